package repository

import (
	"context"
	"errors"

	"referralengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferrerRepository struct {
	db *gorm.DB
}

func NewReferrerRepository(db *gorm.DB) *ReferrerRepository {
	return &ReferrerRepository{db: db}
}

func (r *ReferrerRepository) Create(ctx context.Context, account *model.ReferrerAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *ReferrerRepository) GetByID(ctx context.Context, id int64) (*model.ReferrerAccount, error) {
	var account model.ReferrerAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferrerNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *ReferrerRepository) GetByPhone(ctx context.Context, phone string) (*model.ReferrerAccount, error) {
	var account model.ReferrerAccount
	err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferrerNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreateByPhone registers a referrer on first touch. The conflict
// clause keeps concurrent first submissions from inserting two rows.
func (r *ReferrerRepository) GetOrCreateByPhone(ctx context.Context, phone, name string) (*model.ReferrerAccount, error) {
	account, err := r.GetByPhone(ctx, phone)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrReferrerNotFound) {
		return nil, err
	}

	newAccount := &model.ReferrerAccount{
		Phone:  phone,
		Name:   name,
		Active: true,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByPhone(ctx, phone)
}

// GetByIDs returns the named accounts keyed by id, for read-model
// assembly in the projectors.
func (r *ReferrerRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.ReferrerAccount, error) {
	var accounts []*model.ReferrerAccount
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&accounts).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*model.ReferrerAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	return byID, nil
}
