package service

import (
	"context"
	"errors"
	"testing"

	"referralengine/internal/model"
	"referralengine/internal/repository"
)

func TestSubmitLeadValidation(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.mustRegister(t, "Suresh", "9000000001")
	ctx := context.Background()

	cases := []struct {
		name string
		req  SubmitLeadRequest
	}{
		{"short phone", SubmitLeadRequest{ReferrerID: referrer.ID, CustomerName: "A", CustomerPhone: "12345", City: "Pune"}},
		{"non-digit phone", SubmitLeadRequest{ReferrerID: referrer.ID, CustomerName: "A", CustomerPhone: "98765abcde", City: "Pune"}},
		{"empty name", SubmitLeadRequest{ReferrerID: referrer.ID, CustomerName: "", CustomerPhone: "9876543210", City: "Pune"}},
		{"empty city", SubmitLeadRequest{ReferrerID: referrer.ID, CustomerName: "A", CustomerPhone: "9876543210", City: ""}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.leads.Submit(ctx, &tc.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSubmitLeadUnknownReferrer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.leads.Submit(context.Background(), &SubmitLeadRequest{
		ReferrerID:    4242,
		CustomerName:  "A",
		CustomerPhone: "9876543210",
		City:          "Pune",
	})
	if !errors.Is(err, repository.ErrReferrerNotFound) {
		t.Fatalf("expected ErrReferrerNotFound, got %v", err)
	}
}

func TestLeadLifecycleToReward(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.mustRegister(t, "Suresh", "9000000001")
	ctx := context.Background()

	lead := env.mustSubmit(t, referrer.ID, "9876543210", "residential")
	if lead.Status != model.LeadStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", lead.Status)
	}
	if lead.IsDuplicate {
		t.Fatal("first submission must not be flagged duplicate")
	}

	lead = env.mustAdvance(t, lead.LeadNo,
		model.LeadStatusVerified,
		model.LeadStatusContacted,
		model.LeadStatusInterested,
		model.LeadStatusInstalled,
	)

	if lead.ContactedAt == nil {
		t.Fatal("contacted_at must be set after CONTACTED")
	}
	if lead.InstalledAt == nil {
		t.Fatal("installed_at must be set after INSTALLED")
	}
	if lead.RewardAmount == nil || *lead.RewardAmount != 5000 {
		t.Fatalf("expected reward amount 5000 from rate table, got %v", lead.RewardAmount)
	}
	if env.ledgerEntryCount(t, referrer.ID, model.EntryTypeLeadReward) != 0 {
		t.Fatal("no ledger entry may exist before REWARDED")
	}

	lead = env.mustAdvance(t, lead.LeadNo, model.LeadStatusRewarded)
	if lead.RewardedAt == nil {
		t.Fatal("rewarded_at must be set after REWARDED")
	}

	// Exactly one LEAD_REWARD entry, and the balance equals it.
	if got := env.ledgerEntryCount(t, referrer.ID, model.EntryTypeLeadReward); got != 1 {
		t.Fatalf("expected exactly 1 LEAD_REWARD entry, got %d", got)
	}
	balance, err := env.ledger.Balance(ctx, nil, referrer.ID)
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance != 5000 {
		t.Fatalf("expected balance 5000, got %d", balance)
	}
}

func TestRewardRateFallsBackToDefault(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Business.DefaultReward = 4000
	referrer := env.mustRegister(t, "Suresh", "9000000001")

	lead := env.mustSubmit(t, referrer.ID, "9876543210", "houseboat")
	lead = env.mustAdvance(t, lead.LeadNo,
		model.LeadStatusVerified,
		model.LeadStatusContacted,
		model.LeadStatusInterested,
		model.LeadStatusInstalled,
	)

	if lead.RewardAmount == nil || *lead.RewardAmount != 4000 {
		t.Fatalf("expected fallback reward 4000, got %v", lead.RewardAmount)
	}
}

func TestRewardRateTableByPropertyType(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.mustRegister(t, "Suresh", "9000000001")

	lead := env.mustSubmit(t, referrer.ID, "9876543210", "commercial")
	lead = env.mustAdvance(t, lead.LeadNo,
		model.LeadStatusVerified,
		model.LeadStatusContacted,
		model.LeadStatusInterested,
		model.LeadStatusInstalled,
	)

	if lead.RewardAmount == nil || *lead.RewardAmount != 10000 {
		t.Fatalf("expected commercial reward 10000, got %v", lead.RewardAmount)
	}
}

func TestIllegalLeadTransitions(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.mustRegister(t, "Suresh", "9000000001")
	ctx := context.Background()

	lead := env.mustSubmit(t, referrer.ID, "9876543210", "residential")

	// Skipping steps is not allowed.
	if _, err := env.leads.Transition(ctx, lead.LeadNo, model.LeadStatusInstalled, "staff-1"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for SUBMITTED -> INSTALLED, got %v", err)
	}

	// REWARDED requires current status INSTALLED.
	env.mustAdvance(t, lead.LeadNo, model.LeadStatusVerified, model.LeadStatusContacted, model.LeadStatusInterested)
	if _, err := env.leads.Transition(ctx, lead.LeadNo, model.LeadStatusRewarded, "staff-1"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for INTERESTED -> REWARDED, got %v", err)
	}

	// Terminal states accept nothing.
	env.mustAdvance(t, lead.LeadNo, model.LeadStatusInstalled, model.LeadStatusRewarded)
	if _, err := env.leads.Transition(ctx, lead.LeadNo, model.LeadStatusRejected, "staff-1"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition for REWARDED -> REJECTED, got %v", err)
	}
}

func TestRejectFromAnyNonTerminalStatus(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.mustRegister(t, "Suresh", "9000000001")
	ctx := context.Background()

	lead := env.mustSubmit(t, referrer.ID, "9876500001", "residential")
	env.mustAdvance(t, lead.LeadNo, model.LeadStatusVerified, model.LeadStatusContacted)

	rejected, err := env.leads.Transition(ctx, lead.LeadNo, model.LeadStatusRejected, "staff-1")
	if err != nil {
		t.Fatalf("reject from CONTACTED failed: %v", err)
	}
	if rejected.Status != model.LeadStatusRejected {
		t.Fatalf("expected REJECTED, got %s", rejected.Status)
	}

	// Rejection never touches the ledger.
	if got := env.ledgerEntryCount(t, referrer.ID, model.EntryTypeLeadReward); got != 0 {
		t.Fatalf("expected no ledger entries, got %d", got)
	}

	// Rejected is terminal.
	if _, err := env.leads.Transition(ctx, lead.LeadNo, model.LeadStatusVerified, "staff-1"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition after rejection, got %v", err)
	}
}

func TestDuplicateLeadFlaggedAndBarred(t *testing.T) {
	env := newTestEnv(t)
	first := env.mustRegister(t, "Suresh", "9000000001")
	second := env.mustRegister(t, "Mahesh", "9000000002")
	ctx := context.Background()

	lead1 := env.mustSubmit(t, first.ID, "9876543210", "residential")
	if lead1.IsDuplicate {
		t.Fatal("first lead must not be flagged")
	}

	// Same customer phone inside the window, different referrer: still a
	// duplicate.
	lead2 := env.mustSubmit(t, second.ID, "9876543210", "residential")
	if !lead2.IsDuplicate {
		t.Fatal("second lead must be flagged duplicate")
	}

	// The duplicate may progress through contact stages for audit, but
	// can never reach INSTALLED.
	env.mustAdvance(t, lead2.LeadNo, model.LeadStatusVerified, model.LeadStatusContacted, model.LeadStatusInterested)
	if _, err := env.leads.Transition(ctx, lead2.LeadNo, model.LeadStatusInstalled, "staff-1"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for duplicate lead, got %v", err)
	}
}

func TestIsDuplicateIsPureQuery(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.mustRegister(t, "Suresh", "9000000001")
	ctx := context.Background()

	dup, err := env.leads.IsDuplicate(ctx, "9876543210")
	if err != nil {
		t.Fatalf("IsDuplicate failed: %v", err)
	}
	if dup {
		t.Fatal("empty store must report no duplicate")
	}

	env.mustSubmit(t, referrer.ID, "9876543210", "residential")

	dup, err = env.leads.IsDuplicate(ctx, "9876543210")
	if err != nil {
		t.Fatalf("IsDuplicate failed: %v", err)
	}
	if !dup {
		t.Fatal("expected duplicate after submission")
	}

	// Querying must not create anything.
	var count int64
	if err := env.db.Model(&model.Lead{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored lead, got %d", count)
	}
}

func TestTransitionUnknownLead(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.leads.Transition(context.Background(), "LEAD00000000000000", model.LeadStatusVerified, "staff-1")
	if !errors.Is(err, repository.ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

func TestLeadEventsWrittenToOutbox(t *testing.T) {
	env := newTestEnv(t)
	referrer := env.mustRegister(t, "Suresh", "9000000001")

	lead := env.mustSubmit(t, referrer.ID, "9876543210", "residential")
	env.mustAdvance(t, lead.LeadNo, model.LeadStatusVerified)

	var count int64
	err := env.db.Model(&model.OutboxMessage{}).
		Where("topic = ? AND message_key = ?", env.cfg.Kafka.Topic.LeadEvents, lead.LeadNo).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	// One event for submission, one for the transition.
	if count != 2 {
		t.Fatalf("expected 2 outbox messages, got %d", count)
	}
}
