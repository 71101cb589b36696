package repository

import (
	"context"
	"errors"
	"time"

	"referralengine/internal/model"

	"gorm.io/gorm"
)

var (
	ErrLeadNotFound      = errors.New("lead not found")
	ErrLeadStatusInvalid = errors.New("illegal lead status transition")
	ErrReferrerNotFound  = errors.New("referrer account not found")
)

type LeadRepository struct {
	db *gorm.DB
}

func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

func (r *LeadRepository) Create(ctx context.Context, tx *gorm.DB, lead *model.Lead) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(lead).Error
}

func (r *LeadRepository) GetByLeadNo(ctx context.Context, leadNo string) (*model.Lead, error) {
	var lead model.Lead
	err := r.db.WithContext(ctx).Where("lead_no = ?", leadNo).First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return &lead, nil
}

// CountByPhoneSince backs the duplicate guard: how many leads share this
// customer phone number with created_at inside the trailing window,
// regardless of referrer or status. Pure query, no side effects.
func (r *LeadRepository) CountByPhoneSince(ctx context.Context, phone string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Lead{}).
		Where("customer_phone = ? AND created_at >= ?", phone, since).
		Count(&count).Error
	return count, err
}

// UpdateStatus flips a lead from one status to another with a conditional
// write. The WHERE on the current status makes the flip exactly-once even
// when two staff requests race: the loser matches zero rows.
func (r *LeadRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, leadNo string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanLeadTransitionTo(fromStatus, toStatus) {
		return ErrLeadStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Lead{}).
		Where("lead_no = ? AND status = ?", leadNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrLeadStatusInvalid
	}

	return nil
}

func (r *LeadRepository) ListByReferrerID(ctx context.Context, referrerID int64, page, pageSize int) ([]*model.Lead, int64, error) {
	var leads []*model.Lead
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Lead{}).Where("referrer_id = ?", referrerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&leads).Error

	return leads, total, err
}

// ListRewardedWithoutEntry finds REWARDED leads whose LEAD_REWARD ledger
// entry is missing. The anti-join keeps healthy rows out of the result,
// so the batch never fills up with leads that need no repair.
func (r *LeadRepository) ListRewardedWithoutEntry(ctx context.Context, limit int) ([]*model.Lead, error) {
	var leads []*model.Lead
	err := r.db.WithContext(ctx).
		Model(&model.Lead{}).
		Select("lead.*").
		Joins("LEFT JOIN reward_ledger_entry ON reward_ledger_entry.lead_no = lead.lead_no").
		Where("lead.status = ?", model.LeadStatusRewarded).
		Where("reward_ledger_entry.id IS NULL").
		Order("lead.created_at ASC").
		Limit(limit).
		Find(&leads).Error
	return leads, err
}
