package repository

import (
	"context"
	"errors"

	"referralengine/internal/model"

	"gorm.io/gorm"
)

var (
	ErrWithdrawalNotFound    = errors.New("withdrawal not found")
	ErrWithdrawalStatusFinal = errors.New("withdrawal already in a terminal status")
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, withdrawal *model.Withdrawal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(withdrawal).Error
}

func (r *WithdrawalRepository) GetByWithdrawalNo(ctx context.Context, withdrawalNo string) (*model.Withdrawal, error) {
	var withdrawal model.Withdrawal
	err := r.db.WithContext(ctx).Where("withdrawal_no = ?", withdrawalNo).First(&withdrawal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

// UpdateStatus is the exactly-once guard for withdrawal processing. The
// conditional WHERE on the current status means that of two racing
// approvals only one can match the row; the other sees zero rows
// affected and fails.
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, withdrawalNo string, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanWithdrawalTransitionTo(fromStatus, toStatus) {
		return ErrWithdrawalStatusFinal
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
		Model(&model.Withdrawal{}).
		Where("withdrawal_no = ? AND status = ?", withdrawalNo, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrWithdrawalStatusFinal
	}

	return nil
}

func (r *WithdrawalRepository) ListByReferrerID(ctx context.Context, referrerID int64, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	var withdrawals []*model.Withdrawal
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Withdrawal{}).Where("referrer_id = ?", referrerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&withdrawals).Error

	return withdrawals, total, err
}

// ListCompletedWithoutEntry finds COMPLETED withdrawals whose WITHDRAWAL
// ledger debit is missing. Healthy rows are excluded by the anti-join so
// a gap is found no matter how many consistent withdrawals precede it.
func (r *WithdrawalRepository) ListCompletedWithoutEntry(ctx context.Context, limit int) ([]*model.Withdrawal, error) {
	var withdrawals []*model.Withdrawal
	err := r.db.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Select("withdrawal.*").
		Joins("LEFT JOIN reward_ledger_entry ON reward_ledger_entry.withdrawal_no = withdrawal.withdrawal_no").
		Where("withdrawal.status = ?", model.WithdrawalStatusCompleted).
		Where("reward_ledger_entry.id IS NULL").
		Order("withdrawal.created_at ASC").
		Limit(limit).
		Find(&withdrawals).Error
	return withdrawals, err
}
