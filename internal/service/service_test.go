package service

import (
	"context"
	"testing"

	"referralengine/internal/config"
	"referralengine/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// One connection only: each new connection to :memory: would be a
	// fresh empty database.
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
		&model.OutboxMessage{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				LeadEvents:       "lead_events",
				WithdrawalEvents: "withdrawal_events",
			},
		},
		Business: config.BusinessConfig{
			DuplicateWindowDays: 90,
			MinWithdrawal:       1000,
			DefaultReward:       5000,
			RewardRates: map[string]int64{
				"residential": 5000,
				"commercial":  10000,
			},
			AdjustmentPolicy: config.AdjustmentPolicyIgnore,
			MaxRetryCount:    3,
		},
	}
}

type testEnv struct {
	db          *gorm.DB
	rdb         *redis.Client
	cfg         *config.Config
	leads       *LeadService
	ledger      *LedgerService
	withdrawals *WithdrawalService
	leaderboard *LeaderboardService
	referrers   *ReferrerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	rdb := newTestRedis(t)
	cfg := newTestConfig()

	return &testEnv{
		db:          db,
		rdb:         rdb,
		cfg:         cfg,
		leads:       NewLeadService(db, rdb, cfg),
		ledger:      NewLedgerService(db, cfg),
		withdrawals: NewWithdrawalService(db, rdb, cfg),
		leaderboard: NewLeaderboardService(db),
		referrers:   NewReferrerService(db),
	}
}

func (e *testEnv) mustRegister(t *testing.T, name, phone string) *model.ReferrerAccount {
	t.Helper()
	account, err := e.referrers.Register(context.Background(), name, phone)
	if err != nil {
		t.Fatalf("failed to register referrer %s: %v", name, err)
	}
	return account
}

func (e *testEnv) mustSubmit(t *testing.T, referrerID int64, phone, propertyType string) *model.Lead {
	t.Helper()
	lead, err := e.leads.Submit(context.Background(), &SubmitLeadRequest{
		ReferrerID:    referrerID,
		CustomerName:  "Ramesh Kumar",
		CustomerPhone: phone,
		City:          "Hyderabad",
		PropertyType:  propertyType,
	})
	if err != nil {
		t.Fatalf("failed to submit lead: %v", err)
	}
	return lead
}

// mustAdvance walks a lead through the given statuses in order.
func (e *testEnv) mustAdvance(t *testing.T, leadNo string, statuses ...string) *model.Lead {
	t.Helper()
	var lead *model.Lead
	var err error
	for _, status := range statuses {
		lead, err = e.leads.Transition(context.Background(), leadNo, status, "staff-1")
		if err != nil {
			t.Fatalf("failed to transition lead %s to %s: %v", leadNo, status, err)
		}
	}
	return lead
}

func (e *testEnv) ledgerEntryCount(t *testing.T, referrerID int64, entryType string) int64 {
	t.Helper()
	var count int64
	err := e.db.Model(&model.RewardLedgerEntry{}).
		Where("referrer_id = ? AND type = ?", referrerID, entryType).
		Count(&count).Error
	if err != nil {
		t.Fatalf("failed to count ledger entries: %v", err)
	}
	return count
}
