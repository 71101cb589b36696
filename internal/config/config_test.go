package config

import "testing"

func TestRewardRateFor(t *testing.T) {
	b := &BusinessConfig{
		DefaultReward: 5000,
		RewardRates: map[string]int64{
			"residential": 5000,
			"commercial":  10000,
		},
	}

	cases := []struct {
		propertyType string
		want         int64
	}{
		{"residential", 5000},
		{"commercial", 10000},
		{"Commercial", 10000}, // lookup is case-insensitive
		{"industrial", 5000},  // unmapped falls back
		{"", 5000},            // missing falls back
	}
	for _, tc := range cases {
		if got := b.RewardRateFor(tc.propertyType); got != tc.want {
			t.Errorf("RewardRateFor(%q) = %d, want %d", tc.propertyType, got, tc.want)
		}
	}
}

func TestRewardRateForWithoutTable(t *testing.T) {
	b := &BusinessConfig{DefaultReward: 3000}
	if got := b.RewardRateFor("residential"); got != 3000 {
		t.Errorf("expected flat default 3000, got %d", got)
	}
}

func TestApplyDefaults(t *testing.T) {
	b := &BusinessConfig{}
	applyDefaults(b)

	if b.DuplicateWindowDays != 90 {
		t.Errorf("expected duplicate window 90, got %d", b.DuplicateWindowDays)
	}
	if b.MinWithdrawal != 1000 {
		t.Errorf("expected minimum withdrawal 1000, got %d", b.MinWithdrawal)
	}
	if b.AdjustmentPolicy != AdjustmentPolicyIgnore {
		t.Errorf("expected adjustment policy %q, got %q", AdjustmentPolicyIgnore, b.AdjustmentPolicy)
	}
	if b.MaxRetryCount != 3 {
		t.Errorf("expected max retry count 3, got %d", b.MaxRetryCount)
	}
}
