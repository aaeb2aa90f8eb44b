package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
)

type ShippingRateRepository interface {
	FindByID(ctx context.Context, rateID string) (*model.ShippingRate, error)
}

type shippingRateRepoImpl struct {
	db *gorm.DB
}

func NewShippingRateRepository(db *gorm.DB) ShippingRateRepository {
	return &shippingRateRepoImpl{
		db: db,
	}
}

func (r *shippingRateRepoImpl) FindByID(ctx context.Context, rateID string) (*model.ShippingRate, error) {
	var rate model.ShippingRate
	err := r.db.WithContext(ctx).
		Where("id = ?", rateID).
		First(&rate).Error

	if err != nil {
		return nil, err
	}

	return &rate, nil
}
