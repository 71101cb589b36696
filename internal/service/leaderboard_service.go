package service

import (
	"context"
	"fmt"

	"referralengine/internal/repository"

	"gorm.io/gorm"
)

// LeaderboardEntry is the read model for one ranked referrer. Assembled
// here from the ledger aggregate and the account registry; call sites
// never join the two themselves.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ReferrerID    int64  `json:"referrer_id"`
	Name          string `json:"name"`
	LifetimeTotal int64  `json:"lifetime_total"`
}

// LeaderboardService ranks active referrers by lifetime earned total
// (LEAD_REWARD + BONUS, not net of withdrawals; the ranking reflects
// referral performance, not cash position). Pure read side, recomputed
// on demand; never used to authorize anything.
type LeaderboardService struct {
	ledgerRepo   *repository.LedgerRepository
	referrerRepo *repository.ReferrerRepository
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{
		ledgerRepo:   repository.NewLedgerRepository(db),
		referrerRepo: repository.NewReferrerRepository(db),
	}
}

func (s *LeaderboardService) TopReferrers(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	totals, err := s.ledgerRepo.EarnedTotals(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate earned totals: %w", err)
	}

	if len(totals) == 0 {
		return []LeaderboardEntry{}, nil
	}

	ids := make([]int64, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.ReferrerID)
	}

	accounts, err := s.referrerRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load referrer accounts: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(totals))
	for i, t := range totals {
		entry := LeaderboardEntry{
			Rank:          i + 1,
			ReferrerID:    t.ReferrerID,
			LifetimeTotal: t.Total,
		}
		if account, ok := accounts[t.ReferrerID]; ok {
			entry.Name = account.Name
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
