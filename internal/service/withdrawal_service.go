package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"referralengine/internal/config"
	"referralengine/internal/infrastructure/lock"
	"referralengine/internal/model"
	"referralengine/internal/repository"
	"referralengine/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type WithdrawalService struct {
	db             *gorm.DB
	redisClient    *redis.Client
	cfg            *config.Config
	withdrawalRepo *repository.WithdrawalRepository
	referrerRepo   *repository.ReferrerRepository
	outboxRepo     *repository.OutboxRepository
	ledgerService  *LedgerService
}

func NewWithdrawalService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		referrerRepo:   repository.NewReferrerRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
		ledgerService:  NewLedgerService(db, cfg),
	}
}

// Create opens a PENDING withdrawal request. The balance read here only
// gates creation; the authoritative check re-runs inside the approval
// transaction, because the balance may have moved in between.
func (s *WithdrawalService) Create(ctx context.Context, referrerID int64, amount int64) (*model.Withdrawal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if amount < s.cfg.Business.MinWithdrawal {
		return nil, fmt.Errorf("%w: minimum is %d", ErrBelowMinimum, s.cfg.Business.MinWithdrawal)
	}

	if _, err := s.referrerRepo.GetByID(ctx, referrerID); err != nil {
		return nil, err
	}

	balance, err := s.ledgerService.Balance(ctx, nil, referrerID)
	if err != nil {
		return nil, err
	}
	if amount > balance {
		return nil, fmt.Errorf("%w: requested %d, balance %d", ErrInsufficientBalance, amount, balance)
	}

	withdrawal := &model.Withdrawal{
		WithdrawalNo: idgen.GenerateWithdrawalNo(),
		ReferrerID:   referrerID,
		Amount:       amount,
		Status:       model.WithdrawalStatusPending,
	}

	if err := s.withdrawalRepo.Create(ctx, nil, withdrawal); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}

	return withdrawal, nil
}

// StartProcessing marks a PENDING withdrawal as picked up by staff.
func (s *WithdrawalService) StartProcessing(ctx context.Context, withdrawalNo, processedBy string) (*model.Withdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByWithdrawalNo(ctx, withdrawalNo)
	if err != nil {
		return nil, err
	}
	if model.IsTerminalWithdrawalStatus(withdrawal.Status) {
		return nil, fmt.Errorf("%w: withdrawalNo=%s status=%s", ErrAlreadyProcessed, withdrawalNo, withdrawal.Status)
	}

	extra := map[string]interface{}{"processed_by": processedBy}
	err = s.withdrawalRepo.UpdateStatus(ctx, nil, withdrawalNo, withdrawal.Status, model.WithdrawalStatusProcessing, extra)
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawalStatusFinal) {
			return nil, fmt.Errorf("%w: withdrawalNo=%s", ErrAlreadyProcessed, withdrawalNo)
		}
		return nil, err
	}

	return s.withdrawalRepo.GetByWithdrawalNo(ctx, withdrawalNo)
}

// Approve completes a withdrawal: status flip, processed stamps, and
// exactly one WITHDRAWAL ledger debit, all in one database transaction.
// A second approval of the same withdrawal fails with ErrAlreadyProcessed
// instead of appending a second debit. Three guards stack up: the
// pre-check on the ledger, the conditional status UPDATE, and the unique
// index on the ledger's withdrawal_no.
//
// The lock is scoped to the referrer, not the withdrawal. Two pending
// withdrawals created against the same balance carry distinct row keys
// and distinct withdrawal_no values, so neither the conditional UPDATE
// nor the unique index would stop concurrent approvals of both; only
// serializing all debits per referrer keeps the in-transaction balance
// read authoritative.
func (s *WithdrawalService) Approve(ctx context.Context, withdrawalNo, transactionID, processedBy, notes string) (*model.Withdrawal, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrValidation)
	}

	withdrawal, err := s.withdrawalRepo.GetByWithdrawalNo(ctx, withdrawalNo)
	if err != nil {
		return nil, err
	}
	if model.IsTerminalWithdrawalStatus(withdrawal.Status) {
		return nil, fmt.Errorf("%w: withdrawalNo=%s status=%s", ErrAlreadyProcessed, withdrawalNo, withdrawal.Status)
	}

	existing, err := s.ledgerService.ledgerRepo.GetByWithdrawalNo(ctx, withdrawalNo)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: debit already recorded for withdrawalNo=%s", ErrAlreadyProcessed, withdrawalNo)
	}

	balanceLock := lock.NewBalanceLock(s.redisClient, withdrawal.ReferrerID, transactionID)
	if err := balanceLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("system busy, please retry: %w", err)
	}
	defer balanceLock.Unlock(ctx)

	// Re-read under the lock; another approval may have won the race.
	withdrawal, err = s.withdrawalRepo.GetByWithdrawalNo(ctx, withdrawalNo)
	if err != nil {
		return nil, err
	}
	if model.IsTerminalWithdrawalStatus(withdrawal.Status) {
		return nil, fmt.Errorf("%w: withdrawalNo=%s status=%s", ErrAlreadyProcessed, withdrawalNo, withdrawal.Status)
	}

	now := time.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Authorize the debit against the ledger inside the same
		// transaction that writes it.
		balance, err := s.ledgerService.Balance(ctx, tx, withdrawal.ReferrerID)
		if err != nil {
			return err
		}
		if withdrawal.Amount > balance {
			return fmt.Errorf("%w: requested %d, balance %d", ErrInsufficientBalance, withdrawal.Amount, balance)
		}

		extra := map[string]interface{}{
			"transaction_id": transactionID,
			"processed_by":   processedBy,
			"processed_at":   &now,
			"notes":          notes,
		}
		if err := s.withdrawalRepo.UpdateStatus(ctx, tx, withdrawalNo, withdrawal.Status, model.WithdrawalStatusCompleted, extra); err != nil {
			if errors.Is(err, repository.ErrWithdrawalStatusFinal) {
				return fmt.Errorf("%w: withdrawalNo=%s", ErrAlreadyProcessed, withdrawalNo)
			}
			return err
		}

		description := fmt.Sprintf("withdrawal payout, external ref %s", transactionID)
		if _, err := s.ledgerService.Append(ctx, tx, withdrawal.ReferrerID, model.EntryTypeWithdrawal, withdrawal.Amount, nil, &withdrawalNo, description); err != nil {
			return err
		}

		return s.writeWithdrawalEvent(ctx, tx, withdrawal, model.WithdrawalStatusCompleted, transactionID)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WithdrawalService] withdrawal completed: withdrawalNo=%s, referrerID=%d, amount=%d, txn=%s",
		withdrawalNo, withdrawal.ReferrerID, withdrawal.Amount, transactionID)

	return s.withdrawalRepo.GetByWithdrawalNo(ctx, withdrawalNo)
}

// Reject terminates a PENDING or PROCESSING withdrawal with no ledger
// effect.
func (s *WithdrawalService) Reject(ctx context.Context, withdrawalNo, processedBy, notes string) (*model.Withdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByWithdrawalNo(ctx, withdrawalNo)
	if err != nil {
		return nil, err
	}
	if model.IsTerminalWithdrawalStatus(withdrawal.Status) {
		return nil, fmt.Errorf("%w: withdrawalNo=%s status=%s", ErrAlreadyProcessed, withdrawalNo, withdrawal.Status)
	}

	now := time.Now()
	extra := map[string]interface{}{
		"processed_by": processedBy,
		"processed_at": &now,
		"notes":        notes,
	}

	err = s.withdrawalRepo.UpdateStatus(ctx, nil, withdrawalNo, withdrawal.Status, model.WithdrawalStatusRejected, extra)
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawalStatusFinal) {
			return nil, fmt.Errorf("%w: withdrawalNo=%s", ErrAlreadyProcessed, withdrawalNo)
		}
		return nil, err
	}

	return s.withdrawalRepo.GetByWithdrawalNo(ctx, withdrawalNo)
}

func (s *WithdrawalService) writeWithdrawalEvent(ctx context.Context, tx *gorm.DB, withdrawal *model.Withdrawal, status, transactionID string) error {
	payload := map[string]interface{}{
		"event":          "withdrawal.completed",
		"withdrawal_no":  withdrawal.WithdrawalNo,
		"referrer_id":    withdrawal.ReferrerID,
		"amount":         withdrawal.Amount,
		"status":         status,
		"transaction_id": transactionID,
		"occurred_at":    time.Now().Format(time.RFC3339),
	}
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: withdrawal.WithdrawalNo,
		Topic:      s.cfg.Kafka.Topic.WithdrawalEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("failed to write outbox message: %w", err)
	}
	return nil
}

func (s *WithdrawalService) GetWithdrawal(ctx context.Context, withdrawalNo string) (*model.Withdrawal, error) {
	return s.withdrawalRepo.GetByWithdrawalNo(ctx, withdrawalNo)
}

func (s *WithdrawalService) ListReferrerWithdrawals(ctx context.Context, referrerID int64, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	return s.withdrawalRepo.ListByReferrerID(ctx, referrerID, page, pageSize)
}
