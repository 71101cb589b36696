package service

import (
	"context"
	"log"

	"referralengine/internal/model"
	"referralengine/internal/repository"

	"gorm.io/gorm"
)

// OutboxService is the operator surface over the notification outbox:
// inspect messages parked after exhausting their retries, and return
// them to the queue once the broker has recovered.
type OutboxService struct {
	outboxRepo *repository.OutboxRepository
}

func NewOutboxService(db *gorm.DB) *OutboxService {
	return &OutboxService{
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

func (s *OutboxService) ListFailed(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.outboxRepo.GetFailedMessages(ctx, limit)
}

// RequeueFailed flips parked messages back to PENDING so the sender
// picks them up on its next tick. Returns the number requeued.
func (s *OutboxService) RequeueFailed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	messages, err := s.outboxRepo.GetFailedMessages(ctx, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, msg := range messages {
		if err := s.outboxRepo.Requeue(ctx, msg.ID); err != nil {
			return requeued, err
		}
		requeued++
	}

	if requeued > 0 {
		log.Printf("[OutboxService] requeued %d failed messages", requeued)
	}
	return requeued, nil
}
