package service

import (
	"context"
	"fmt"

	"referralengine/internal/config"
	"referralengine/internal/model"
	"referralengine/internal/repository"
	"referralengine/pkg/idgen"

	"gorm.io/gorm"
)

// LedgerService owns the append side of the reward ledger and the balance
// projection over it. There is deliberately no stored balance anywhere:
// every read folds the ledger, so the ledger can never disagree with the
// number a referrer sees.
type LedgerService struct {
	db           *gorm.DB
	cfg          *config.Config
	ledgerRepo   *repository.LedgerRepository
	referrerRepo *repository.ReferrerRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:           db,
		cfg:          cfg,
		ledgerRepo:   repository.NewLedgerRepository(db),
		referrerRepo: repository.NewReferrerRepository(db),
	}
}

func validEntryType(entryType string) bool {
	switch entryType {
	case model.EntryTypeLeadReward, model.EntryTypeBonus, model.EntryTypeWithdrawal, model.EntryTypeAdjustment:
		return true
	}
	return false
}

// Append records one immutable financial fact. Amount is in minor units
// and must be strictly positive; direction is implied by the entry type.
func (s *LedgerService) Append(ctx context.Context, tx *gorm.DB, referrerID int64, entryType string, amount int64, leadNo, withdrawalNo *string, description string) (*model.RewardLedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !validEntryType(entryType) {
		return nil, fmt.Errorf("%w: unknown entry type %s", ErrValidation, entryType)
	}

	entry := &model.RewardLedgerEntry{
		EntryNo:      idgen.GenerateEntryNo(),
		ReferrerID:   referrerID,
		LeadNo:       leadNo,
		WithdrawalNo: withdrawalNo,
		Type:         entryType,
		Amount:       amount,
		Description:  description,
	}

	if err := s.ledgerRepo.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return entry, nil
}

// Balance is the pure fold: credits minus withdrawals, with ADJUSTMENT
// entries handled per the configured policy. When tx is non-nil the fold
// runs inside that transaction, which is how withdrawal approval
// authorizes its debit.
func (s *LedgerService) Balance(ctx context.Context, tx *gorm.DB, referrerID int64) (int64, error) {
	credits, err := s.ledgerRepo.SumByTypes(ctx, tx, referrerID, []string{model.EntryTypeLeadReward, model.EntryTypeBonus})
	if err != nil {
		return 0, fmt.Errorf("failed to sum credits: %w", err)
	}

	debits, err := s.ledgerRepo.SumByTypes(ctx, tx, referrerID, []string{model.EntryTypeWithdrawal})
	if err != nil {
		return 0, fmt.Errorf("failed to sum withdrawals: %w", err)
	}

	balance := credits - debits

	switch s.cfg.Business.AdjustmentPolicy {
	case config.AdjustmentPolicyCredit, config.AdjustmentPolicyDebit:
		adjustments, err := s.ledgerRepo.SumByTypes(ctx, tx, referrerID, []string{model.EntryTypeAdjustment})
		if err != nil {
			return 0, fmt.Errorf("failed to sum adjustments: %w", err)
		}
		if s.cfg.Business.AdjustmentPolicy == config.AdjustmentPolicyCredit {
			balance += adjustments
		} else {
			balance -= adjustments
		}
	}

	return balance, nil
}

// LifetimeEarned is the leaderboard metric: everything ever credited,
// not net of withdrawals.
func (s *LedgerService) LifetimeEarned(ctx context.Context, referrerID int64) (int64, error) {
	return s.ledgerRepo.SumByTypes(ctx, nil, referrerID, []string{model.EntryTypeLeadReward, model.EntryTypeBonus})
}

// GrantBonus appends a staff-granted BONUS entry.
func (s *LedgerService) GrantBonus(ctx context.Context, referrerID int64, amount int64, description, actorID string) (*model.RewardLedgerEntry, error) {
	if _, err := s.referrerRepo.GetByID(ctx, referrerID); err != nil {
		return nil, err
	}

	if description == "" {
		description = fmt.Sprintf("bonus granted by %s", actorID)
	}

	return s.Append(ctx, nil, referrerID, model.EntryTypeBonus, amount, nil, nil, description)
}

// RecordAdjustment appends a staff ADJUSTMENT entry. Whether it moves the
// spendable balance depends on business.adjustment_policy.
func (s *LedgerService) RecordAdjustment(ctx context.Context, referrerID int64, amount int64, description, actorID string) (*model.RewardLedgerEntry, error) {
	if _, err := s.referrerRepo.GetByID(ctx, referrerID); err != nil {
		return nil, err
	}

	if description == "" {
		description = fmt.Sprintf("adjustment recorded by %s", actorID)
	}

	return s.Append(ctx, nil, referrerID, model.EntryTypeAdjustment, amount, nil, nil, description)
}

// Statement lists a referrer's ledger entries, newest first.
func (s *LedgerService) Statement(ctx context.Context, referrerID int64, page, pageSize int) ([]*model.RewardLedgerEntry, int64, error) {
	return s.ledgerRepo.ListByReferrerID(ctx, referrerID, page, pageSize)
}
