package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"referralengine/internal/config"
	"referralengine/internal/model"
	"referralengine/internal/repository"
	"referralengine/pkg/idgen"

	"gorm.io/gorm"
)

// LedgerReconciler verifies the bijection between terminal money states
// and ledger entries: every REWARDED lead must have exactly one
// LEAD_REWARD entry, every COMPLETED withdrawal exactly one WITHDRAWAL
// entry. Inside the engine both are written in a single transaction, so
// a gap only appears through out-of-band edits; when found it is logged
// and the missing entry is appended. The ledger's unique indexes make
// the repair idempotent.
type LedgerReconciler struct {
	db             *gorm.DB
	leadRepo       *repository.LeadRepository
	withdrawalRepo *repository.WithdrawalRepository
	ledgerRepo     *repository.LedgerRepository
	cfg            *config.Config
	stopCh         chan struct{}
	interval       time.Duration
	batchSize      int
}

func NewLedgerReconciler(db *gorm.DB, cfg *config.Config) *LedgerReconciler {
	return &LedgerReconciler{
		db:             db,
		leadRepo:       repository.NewLeadRepository(db),
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		ledgerRepo:     repository.NewLedgerRepository(db),
		cfg:            cfg,
		stopCh:         make(chan struct{}),
		interval:       30 * time.Second,
		batchSize:      50,
	}
}

func (j *LedgerReconciler) Start(ctx context.Context) {
	log.Println("[LedgerReconciler] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LedgerReconciler] context cancelled, exiting")
			return
		case <-j.stopCh:
			log.Println("[LedgerReconciler] stopped")
			return
		case <-ticker.C:
			j.reconcileRewardedLeads(ctx)
			j.reconcileCompletedWithdrawals(ctx)
		}
	}
}

func (j *LedgerReconciler) Stop() {
	close(j.stopCh)
}

func (j *LedgerReconciler) reconcileRewardedLeads(ctx context.Context) {
	leads, err := j.leadRepo.ListRewardedWithoutEntry(ctx, j.batchSize)
	if err != nil {
		log.Printf("[LedgerReconciler] failed to list rewarded leads without entries: %v", err)
		return
	}

	for _, lead := range leads {
		if lead.RewardAmount == nil {
			log.Printf("[LedgerReconciler] rewarded lead has no reward amount, cannot repair: leadNo=%s", lead.LeadNo)
			continue
		}

		log.Printf("[LedgerReconciler] rewarded lead missing ledger entry, repairing: leadNo=%s", lead.LeadNo)

		leadNo := lead.LeadNo
		repair := &model.RewardLedgerEntry{
			EntryNo:     idgen.GenerateEntryNo(),
			ReferrerID:  lead.ReferrerID,
			LeadNo:      &leadNo,
			Type:        model.EntryTypeLeadReward,
			Amount:      *lead.RewardAmount,
			Description: fmt.Sprintf("reconciler repair for rewarded lead %s", leadNo),
		}
		if err := j.ledgerRepo.Append(ctx, nil, repair); err != nil {
			// A concurrent repair losing to the unique index lands here.
			log.Printf("[LedgerReconciler] repair append failed: leadNo=%s, err=%v", leadNo, err)
		}
	}
}

func (j *LedgerReconciler) reconcileCompletedWithdrawals(ctx context.Context) {
	withdrawals, err := j.withdrawalRepo.ListCompletedWithoutEntry(ctx, j.batchSize)
	if err != nil {
		log.Printf("[LedgerReconciler] failed to list completed withdrawals without debits: %v", err)
		return
	}

	for _, withdrawal := range withdrawals {
		log.Printf("[LedgerReconciler] completed withdrawal missing debit, repairing: withdrawalNo=%s", withdrawal.WithdrawalNo)

		withdrawalNo := withdrawal.WithdrawalNo
		repair := &model.RewardLedgerEntry{
			EntryNo:      idgen.GenerateEntryNo(),
			ReferrerID:   withdrawal.ReferrerID,
			WithdrawalNo: &withdrawalNo,
			Type:         model.EntryTypeWithdrawal,
			Amount:       withdrawal.Amount,
			Description:  fmt.Sprintf("reconciler repair for completed withdrawal %s", withdrawalNo),
		}
		if err := j.ledgerRepo.Append(ctx, nil, repair); err != nil {
			log.Printf("[LedgerReconciler] repair append failed: withdrawalNo=%s, err=%v", withdrawalNo, err)
		}
	}
}
