package job

import (
	"context"
	"fmt"
	"testing"
	"time"

	"referralengine/internal/config"
	"referralengine/internal/model"
	"referralengine/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newReconcilerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get underlying DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.ReferrerAccount{},
		&model.Lead{},
		&model.RewardLedgerEntry{},
		&model.Withdrawal{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func TestReconcilerRepairsRewardedLeadWithoutEntry(t *testing.T) {
	db := newReconcilerTestDB(t)
	cfg := &config.Config{}
	j := NewLedgerReconciler(db, cfg)
	ctx := context.Background()

	now := time.Now()
	amount := int64(5000)
	lead := &model.Lead{
		LeadNo:        "LEAD1",
		ReferrerID:    1,
		CustomerName:  "Ramesh",
		CustomerPhone: "9876543210",
		City:          "Hyderabad",
		Status:        model.LeadStatusRewarded,
		RewardAmount:  &amount,
		RewardedAt:    &now,
	}
	if err := db.Create(lead).Error; err != nil {
		t.Fatal(err)
	}

	j.reconcileRewardedLeads(ctx)

	ledgerRepo := repository.NewLedgerRepository(db)
	entry, err := ledgerRepo.GetByLeadNo(ctx, "LEAD1")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("expected reconciler to append the missing LEAD_REWARD entry")
	}
	if entry.Type != model.EntryTypeLeadReward || entry.Amount != 5000 {
		t.Fatalf("unexpected repair entry: %+v", entry)
	}

	// A second pass finds the entry in place and appends nothing.
	j.reconcileRewardedLeads(ctx)

	var count int64
	if err := db.Model(&model.RewardLedgerEntry{}).Where("lead_no = ?", "LEAD1").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 entry after repeated reconciliation, got %d", count)
	}
}

func TestReconcilerRepairsCompletedWithdrawalWithoutDebit(t *testing.T) {
	db := newReconcilerTestDB(t)
	cfg := &config.Config{}
	j := NewLedgerReconciler(db, cfg)
	ctx := context.Background()

	withdrawal := &model.Withdrawal{
		WithdrawalNo: "WDR1",
		ReferrerID:   1,
		Amount:       2000,
		Status:       model.WithdrawalStatusCompleted,
	}
	if err := db.Create(withdrawal).Error; err != nil {
		t.Fatal(err)
	}

	j.reconcileCompletedWithdrawals(ctx)

	ledgerRepo := repository.NewLedgerRepository(db)
	entry, err := ledgerRepo.GetByWithdrawalNo(ctx, "WDR1")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("expected reconciler to append the missing WITHDRAWAL entry")
	}
	if entry.Type != model.EntryTypeWithdrawal || entry.Amount != 2000 {
		t.Fatalf("unexpected repair entry: %+v", entry)
	}
}

func TestReconcilerLeavesConsistentStateAlone(t *testing.T) {
	db := newReconcilerTestDB(t)
	cfg := &config.Config{}
	j := NewLedgerReconciler(db, cfg)
	ctx := context.Background()

	amount := int64(5000)
	leadNo := "LEAD1"
	lead := &model.Lead{
		LeadNo:        leadNo,
		ReferrerID:    1,
		CustomerName:  "Ramesh",
		CustomerPhone: "9876543210",
		City:          "Hyderabad",
		Status:        model.LeadStatusRewarded,
		RewardAmount:  &amount,
	}
	if err := db.Create(lead).Error; err != nil {
		t.Fatal(err)
	}
	entry := &model.RewardLedgerEntry{
		EntryNo:    "ENT1",
		ReferrerID: 1,
		LeadNo:     &leadNo,
		Type:       model.EntryTypeLeadReward,
		Amount:     5000,
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatal(err)
	}

	j.reconcileRewardedLeads(ctx)

	var count int64
	if err := db.Model(&model.RewardLedgerEntry{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected ledger untouched, got %d entries", count)
	}
}

func TestReconcilerFindsLeadGapBeyondHealthyRows(t *testing.T) {
	db := newReconcilerTestDB(t)
	cfg := &config.Config{}
	j := NewLedgerReconciler(db, cfg)
	j.batchSize = 3
	ctx := context.Background()

	// More healthy rewarded leads than fit in one batch, each with its
	// ledger entry in place.
	amount := int64(5000)
	for i := 1; i <= 4; i++ {
		leadNo := fmt.Sprintf("LEAD%03d", i)
		lead := &model.Lead{
			LeadNo:        leadNo,
			ReferrerID:    1,
			CustomerName:  "Ramesh",
			CustomerPhone: "9876543210",
			City:          "Hyderabad",
			Status:        model.LeadStatusRewarded,
			RewardAmount:  &amount,
		}
		if err := db.Create(lead).Error; err != nil {
			t.Fatal(err)
		}
		no := leadNo
		entry := &model.RewardLedgerEntry{
			EntryNo:    fmt.Sprintf("ENT%03d", i),
			ReferrerID: 1,
			LeadNo:     &no,
			Type:       model.EntryTypeLeadReward,
			Amount:     amount,
		}
		if err := db.Create(entry).Error; err != nil {
			t.Fatal(err)
		}
	}

	// The broken row sits behind all of them.
	broken := &model.Lead{
		LeadNo:        "LEAD999",
		ReferrerID:    1,
		CustomerName:  "Ramesh",
		CustomerPhone: "9876543210",
		City:          "Hyderabad",
		Status:        model.LeadStatusRewarded,
		RewardAmount:  &amount,
	}
	if err := db.Create(broken).Error; err != nil {
		t.Fatal(err)
	}

	// One pass must reach it: healthy rows never occupy the batch.
	j.reconcileRewardedLeads(ctx)

	entry, err := repository.NewLedgerRepository(db).GetByLeadNo(ctx, "LEAD999")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("expected the gap beyond a full batch of healthy leads to be repaired")
	}
}

func TestReconcilerFindsWithdrawalGapBeyondHealthyRows(t *testing.T) {
	db := newReconcilerTestDB(t)
	cfg := &config.Config{}
	j := NewLedgerReconciler(db, cfg)
	j.batchSize = 3
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		withdrawalNo := fmt.Sprintf("WDR%03d", i)
		withdrawal := &model.Withdrawal{
			WithdrawalNo: withdrawalNo,
			ReferrerID:   1,
			Amount:       2000,
			Status:       model.WithdrawalStatusCompleted,
		}
		if err := db.Create(withdrawal).Error; err != nil {
			t.Fatal(err)
		}
		no := withdrawalNo
		entry := &model.RewardLedgerEntry{
			EntryNo:      fmt.Sprintf("WENT%03d", i),
			ReferrerID:   1,
			WithdrawalNo: &no,
			Type:         model.EntryTypeWithdrawal,
			Amount:       2000,
		}
		if err := db.Create(entry).Error; err != nil {
			t.Fatal(err)
		}
	}

	broken := &model.Withdrawal{
		WithdrawalNo: "WDR999",
		ReferrerID:   1,
		Amount:       2000,
		Status:       model.WithdrawalStatusCompleted,
	}
	if err := db.Create(broken).Error; err != nil {
		t.Fatal(err)
	}

	j.reconcileCompletedWithdrawals(ctx)

	entry, err := repository.NewLedgerRepository(db).GetByWithdrawalNo(ctx, "WDR999")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("expected the gap beyond a full batch of healthy withdrawals to be repaired")
	}
}
