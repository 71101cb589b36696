package repository

import (
	"context"
	"errors"

	"referralengine/internal/model"

	"gorm.io/gorm"
)

// LedgerRepository is intentionally append-and-read only. There is no
// update or delete method; immutability of the ledger starts here.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(ctx context.Context, tx *gorm.DB, entry *model.RewardLedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) GetByEntryNo(ctx context.Context, entryNo string) (*model.RewardLedgerEntry, error) {
	var entry model.RewardLedgerEntry
	err := r.db.WithContext(ctx).Where("entry_no = ?", entryNo).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) GetByLeadNo(ctx context.Context, leadNo string) (*model.RewardLedgerEntry, error) {
	var entry model.RewardLedgerEntry
	err := r.db.WithContext(ctx).Where("lead_no = ?", leadNo).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) GetByWithdrawalNo(ctx context.Context, withdrawalNo string) (*model.RewardLedgerEntry, error) {
	var entry model.RewardLedgerEntry
	err := r.db.WithContext(ctx).Where("withdrawal_no = ?", withdrawalNo).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// SumByTypes folds a referrer's entries of the given types into one
// total. Runs against tx when the caller needs the fold inside the same
// transaction as a debit.
func (r *LedgerRepository) SumByTypes(ctx context.Context, tx *gorm.DB, referrerID int64, types []string) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var total int64
	err := tx.WithContext(ctx).
		Model(&model.RewardLedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("referrer_id = ? AND type IN ?", referrerID, types).
		Scan(&total).Error
	return total, err
}

func (r *LedgerRepository) ListByReferrerID(ctx context.Context, referrerID int64, page, pageSize int) ([]*model.RewardLedgerEntry, int64, error) {
	var entries []*model.RewardLedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RewardLedgerEntry{}).Where("referrer_id = ?", referrerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// ReferrerTotal is one row of the earned-total aggregate used by the
// leaderboard projector.
type ReferrerTotal struct {
	ReferrerID int64 `json:"referrer_id"`
	Total      int64 `json:"total"`
}

// EarnedTotals aggregates lifetime earnings (LEAD_REWARD + BONUS, not net
// of withdrawals) per active referrer, largest first; ties go to the
// account registered first.
func (r *LedgerRepository) EarnedTotals(ctx context.Context, limit int) ([]ReferrerTotal, error) {
	var totals []ReferrerTotal
	err := r.db.WithContext(ctx).
		Model(&model.RewardLedgerEntry{}).
		Select("reward_ledger_entry.referrer_id, SUM(reward_ledger_entry.amount) AS total").
		Joins("JOIN referrer_account ON referrer_account.id = reward_ledger_entry.referrer_id").
		Where("reward_ledger_entry.type IN ?", []string{model.EntryTypeLeadReward, model.EntryTypeBonus}).
		Where("referrer_account.active = ?", true).
		Group("reward_ledger_entry.referrer_id").
		Order("total DESC, MIN(referrer_account.created_at) ASC, reward_ledger_entry.referrer_id ASC").
		Limit(limit).
		Scan(&totals).Error
	return totals, err
}
