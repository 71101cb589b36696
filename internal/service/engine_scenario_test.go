package service

import (
	"context"
	"errors"
	"testing"

	"referralengine/internal/model"
)

// TestReferralToPayoutScenario walks the whole engine end to end: a lead
// moves to REWARDED and credits the ledger, the referrer withdraws the
// credit, and a late duplicate of the same customer is barred from a
// second reward.
func TestReferralToPayoutScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	referrer := env.mustRegister(t, "Suresh", "9000000001")

	// Submit and walk the pipeline.
	lead := env.mustSubmit(t, referrer.ID, "9876543210", "residential")
	lead = env.mustAdvance(t, lead.LeadNo,
		model.LeadStatusVerified,
		model.LeadStatusContacted,
		model.LeadStatusInterested,
		model.LeadStatusInstalled,
		model.LeadStatusRewarded,
	)
	if lead.Status != model.LeadStatusRewarded {
		t.Fatalf("expected REWARDED, got %s", lead.Status)
	}

	balance, err := env.ledger.Balance(ctx, nil, referrer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 5000 {
		t.Fatalf("expected balance 5000 after reward, got %d", balance)
	}

	// Withdraw the full balance.
	withdrawal, err := env.withdrawals.Create(ctx, referrer.ID, 5000)
	if err != nil {
		t.Fatalf("withdrawal create failed: %v", err)
	}
	if _, err := env.withdrawals.Approve(ctx, withdrawal.WithdrawalNo, "TXN1", "staff-1", ""); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	balance, err = env.ledger.Balance(ctx, nil, referrer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0 after payout, got %d", balance)
	}

	if _, err := env.withdrawals.Approve(ctx, withdrawal.WithdrawalNo, "TXN1", "staff-1", ""); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed on re-approval, got %v", err)
	}

	// The same customer phone again, days later but inside the window.
	dup := env.mustSubmit(t, referrer.ID, "9876543210", "residential")
	if !dup.IsDuplicate {
		t.Fatal("resubmission inside the window must be flagged duplicate")
	}
	env.mustAdvance(t, dup.LeadNo, model.LeadStatusVerified, model.LeadStatusContacted, model.LeadStatusInterested)
	if _, err := env.leads.Transition(ctx, dup.LeadNo, model.LeadStatusInstalled, "staff-1"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for duplicate, got %v", err)
	}

	// Bijection both ways: one REWARDED lead, one LEAD_REWARD entry.
	var rewardedLeads int64
	if err := env.db.Model(&model.Lead{}).Where("status = ?", model.LeadStatusRewarded).Count(&rewardedLeads).Error; err != nil {
		t.Fatal(err)
	}
	if rewardedLeads != 1 {
		t.Fatalf("expected 1 rewarded lead, got %d", rewardedLeads)
	}
	if got := env.ledgerEntryCount(t, referrer.ID, model.EntryTypeLeadReward); got != 1 {
		t.Fatalf("expected 1 LEAD_REWARD entry, got %d", got)
	}
	if got := env.ledgerEntryCount(t, referrer.ID, model.EntryTypeWithdrawal); got != 1 {
		t.Fatalf("expected 1 WITHDRAWAL entry, got %d", got)
	}
}
