package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"referralengine/internal/config"
	"referralengine/internal/infrastructure/lock"
	"referralengine/internal/model"
	"referralengine/internal/repository"
	"referralengine/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

type LeadService struct {
	db            *gorm.DB
	redisClient   *redis.Client
	cfg           *config.Config
	leadRepo      *repository.LeadRepository
	referrerRepo  *repository.ReferrerRepository
	outboxRepo    *repository.OutboxRepository
	ledgerService *LedgerService
}

func NewLeadService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *LeadService {
	return &LeadService{
		db:            db,
		redisClient:   redisClient,
		cfg:           cfg,
		leadRepo:      repository.NewLeadRepository(db),
		referrerRepo:  repository.NewReferrerRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
		ledgerService: NewLedgerService(db, cfg),
	}
}

type SubmitLeadRequest struct {
	ReferrerID    int64  `json:"referrer_id" binding:"required"`
	CustomerName  string `json:"customer_name" binding:"required"`
	CustomerPhone string `json:"customer_phone" binding:"required"`
	CustomerEmail string `json:"customer_email"`
	City          string `json:"city" binding:"required"`
	PropertyType  string `json:"property_type"`
	Notes         string `json:"notes"`
}

// IsDuplicate reports whether any lead shares this customer phone within
// the trailing duplicate window, regardless of referrer or status.
func (s *LeadService) IsDuplicate(ctx context.Context, phone string) (bool, error) {
	since := time.Now().AddDate(0, 0, -s.cfg.Business.DuplicateWindowDays)
	count, err := s.leadRepo.CountByPhoneSince(ctx, phone, since)
	if err != nil {
		return false, fmt.Errorf("failed to query duplicate window: %w", err)
	}
	return count > 0, nil
}

// Submit validates and stores a new lead. A duplicate submission is still
// stored for audit, flagged is_duplicate; the flag permanently bars it
// from reward-eligible transitions.
func (s *LeadService) Submit(ctx context.Context, req *SubmitLeadRequest) (*model.Lead, error) {
	if req.CustomerName == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if req.City == "" {
		return nil, fmt.Errorf("%w: city is required", ErrValidation)
	}
	if !phonePattern.MatchString(req.CustomerPhone) {
		return nil, fmt.Errorf("%w: customer phone must be exactly 10 digits", ErrValidation)
	}

	if _, err := s.referrerRepo.GetByID(ctx, req.ReferrerID); err != nil {
		return nil, err
	}

	isDuplicate, err := s.IsDuplicate(ctx, req.CustomerPhone)
	if err != nil {
		return nil, err
	}

	lead := &model.Lead{
		LeadNo:        idgen.GenerateLeadNo(),
		ReferrerID:    req.ReferrerID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		City:          req.City,
		PropertyType:  req.PropertyType,
		Notes:         req.Notes,
		Status:        model.LeadStatusSubmitted,
		IsDuplicate:   isDuplicate,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.leadRepo.Create(ctx, tx, lead); err != nil {
			return fmt.Errorf("failed to create lead: %w", err)
		}
		return s.writeLeadEvent(ctx, tx, lead, "lead.submitted")
	})
	if err != nil {
		return nil, err
	}

	if isDuplicate {
		log.Printf("[LeadService] duplicate lead stored: leadNo=%s, phone=%s", lead.LeadNo, lead.CustomerPhone)
	}

	return lead, nil
}

// Transition applies one staff-driven status change.
//
// Per-lead serialization: a Redis lock narrows the race window, and the
// conditional UPDATE on the current status makes the flip exactly-once
// regardless. The REWARDED flip and its LEAD_REWARD ledger append commit
// in one database transaction; the unique index on the ledger's lead_no
// is the final backstop against a second credit.
func (s *LeadService) Transition(ctx context.Context, leadNo, targetStatus, actorID string) (*model.Lead, error) {
	leadLock := lock.NewLeadLock(s.redisClient, leadNo, actorID)
	if err := leadLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("system busy, please retry: %w", err)
	}
	defer leadLock.Unlock(ctx)

	lead, err := s.leadRepo.GetByLeadNo(ctx, leadNo)
	if err != nil {
		return nil, err
	}

	if !model.CanLeadTransitionTo(lead.Status, targetStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, lead.Status, targetStatus)
	}

	now := time.Now()
	extra := map[string]interface{}{}

	switch targetStatus {
	case model.LeadStatusContacted:
		// Keep the first contact time even if the transition is replayed.
		if lead.ContactedAt == nil {
			extra["contacted_at"] = &now
		}

	case model.LeadStatusInstalled:
		if lead.IsDuplicate {
			return nil, fmt.Errorf("%w: leadNo=%s", ErrNotEligible, leadNo)
		}
		if lead.InstalledAt == nil {
			extra["installed_at"] = &now
		}
		if lead.RewardAmount == nil {
			extra["reward_amount"] = s.cfg.Business.RewardRateFor(lead.PropertyType)
		}

	case model.LeadStatusRewarded:
		return s.reward(ctx, lead, actorID, now)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.leadRepo.UpdateStatus(ctx, tx, leadNo, lead.Status, targetStatus, extra); err != nil {
			if errors.Is(err, repository.ErrLeadStatusInvalid) {
				return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, lead.Status, targetStatus)
			}
			return err
		}
		lead.Status = targetStatus
		return s.writeLeadEvent(ctx, tx, lead, "lead.status_changed")
	})
	if err != nil {
		return nil, err
	}

	return s.leadRepo.GetByLeadNo(ctx, leadNo)
}

// reward flips INSTALLED -> REWARDED and appends exactly one LEAD_REWARD
// entry, atomically. A lead must never end up REWARDED without its ledger
// entry, nor the other way around.
func (s *LeadService) reward(ctx context.Context, lead *model.Lead, actorID string, now time.Time) (*model.Lead, error) {
	if lead.IsDuplicate {
		return nil, fmt.Errorf("%w: leadNo=%s", ErrNotEligible, lead.LeadNo)
	}
	if lead.RewardAmount == nil {
		return nil, fmt.Errorf("%w: reward amount not assigned for leadNo=%s", ErrIllegalTransition, lead.LeadNo)
	}

	existing, err := s.ledgerService.ledgerRepo.GetByLeadNo(ctx, lead.LeadNo)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: ledger entry already exists for leadNo=%s", ErrAlreadyProcessed, lead.LeadNo)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		extra := map[string]interface{}{"rewarded_at": &now}
		if err := s.leadRepo.UpdateStatus(ctx, tx, lead.LeadNo, model.LeadStatusInstalled, model.LeadStatusRewarded, extra); err != nil {
			if errors.Is(err, repository.ErrLeadStatusInvalid) {
				return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, lead.Status, model.LeadStatusRewarded)
			}
			return err
		}

		leadNo := lead.LeadNo
		description := fmt.Sprintf("reward for installed lead %s, approved by %s", leadNo, actorID)
		if _, err := s.ledgerService.Append(ctx, tx, lead.ReferrerID, model.EntryTypeLeadReward, *lead.RewardAmount, &leadNo, nil, description); err != nil {
			return err
		}

		lead.Status = model.LeadStatusRewarded
		return s.writeLeadEvent(ctx, tx, lead, "lead.rewarded")
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LeadService] lead rewarded: leadNo=%s, referrerID=%d, amount=%d",
		lead.LeadNo, lead.ReferrerID, *lead.RewardAmount)

	return s.leadRepo.GetByLeadNo(ctx, lead.LeadNo)
}

func (s *LeadService) writeLeadEvent(ctx context.Context, tx *gorm.DB, lead *model.Lead, event string) error {
	payload := map[string]interface{}{
		"event":       event,
		"lead_no":     lead.LeadNo,
		"referrer_id": lead.ReferrerID,
		"status":      lead.Status,
		"occurred_at": time.Now().Format(time.RFC3339),
	}
	if lead.RewardAmount != nil {
		payload["reward_amount"] = *lead.RewardAmount
	}
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: lead.LeadNo,
		Topic:      s.cfg.Kafka.Topic.LeadEvents,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("failed to write outbox message: %w", err)
	}
	return nil
}

func (s *LeadService) GetLead(ctx context.Context, leadNo string) (*model.Lead, error) {
	return s.leadRepo.GetByLeadNo(ctx, leadNo)
}

func (s *LeadService) ListReferrerLeads(ctx context.Context, referrerID int64, page, pageSize int) ([]*model.Lead, int64, error) {
	return s.leadRepo.ListByReferrerID(ctx, referrerID, page, pageSize)
}
