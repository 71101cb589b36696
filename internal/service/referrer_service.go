package service

import (
	"context"
	"fmt"

	"referralengine/internal/model"
	"referralengine/internal/repository"

	"gorm.io/gorm"
)

type ReferrerService struct {
	referrerRepo *repository.ReferrerRepository
}

func NewReferrerService(db *gorm.DB) *ReferrerService {
	return &ReferrerService{
		referrerRepo: repository.NewReferrerRepository(db),
	}
}

// Register creates (or returns) the account for a referrer phone number.
// Identity verification is handled outside this service.
func (s *ReferrerService) Register(ctx context.Context, name, phone string) (*model.ReferrerAccount, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !phonePattern.MatchString(phone) {
		return nil, fmt.Errorf("%w: phone must be exactly 10 digits", ErrValidation)
	}
	return s.referrerRepo.GetOrCreateByPhone(ctx, phone, name)
}

func (s *ReferrerService) GetAccount(ctx context.Context, id int64) (*model.ReferrerAccount, error) {
	return s.referrerRepo.GetByID(ctx, id)
}
