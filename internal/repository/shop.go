package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
)

// ShopCapabilityUpdate is the full capability snapshot written on every KYC
// sync. Writes are last-write-wins over the whole snapshot, never a merge.
type ShopCapabilityUpdate struct {
	ChargesEnabled     bool
	PayoutsEnabled     bool
	OnboardingComplete bool
	KycStatus          string
	HasValidKyc        bool
}

type ShopRepository interface {
	FindByID(ctx context.Context, shopID string) (*model.Shop, error)
	FindByStripeAccountID(ctx context.Context, accountID string) (*model.Shop, error)
	FindAllWithStripeAccount(ctx context.Context) ([]*model.Shop, error)
	SetStripeAccountID(ctx context.Context, shopID, accountID string) error
	UpdateCapabilities(ctx context.Context, shopID string, update *ShopCapabilityUpdate) error
}

type shopRepoImpl struct {
	db *gorm.DB
}

func NewShopRepository(db *gorm.DB) ShopRepository {
	return &shopRepoImpl{
		db: db,
	}
}

func (r *shopRepoImpl) FindByID(ctx context.Context, shopID string) (*model.Shop, error) {
	var shop model.Shop
	err := r.db.WithContext(ctx).
		Where("id = ?", shopID).
		First(&shop).Error

	if err != nil {
		return nil, err
	}

	return &shop, nil
}

func (r *shopRepoImpl) FindByStripeAccountID(ctx context.Context, accountID string) (*model.Shop, error) {
	var shop model.Shop
	err := r.db.WithContext(ctx).
		Where("stripe_account_id = ?", accountID).
		First(&shop).Error

	if err != nil {
		return nil, err
	}

	return &shop, nil
}

func (r *shopRepoImpl) FindAllWithStripeAccount(ctx context.Context) ([]*model.Shop, error) {
	var shops []*model.Shop
	err := r.db.WithContext(ctx).
		Where("stripe_account_id <> ''").
		Find(&shops).Error

	if err != nil {
		return nil, err
	}

	return shops, nil
}

func (r *shopRepoImpl) SetStripeAccountID(ctx context.Context, shopID, accountID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Shop{}).
		Where("id = ?", shopID).
		Updates(map[string]interface{}{
			"stripe_account_id": accountID,
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *shopRepoImpl) UpdateCapabilities(ctx context.Context, shopID string, update *ShopCapabilityUpdate) error {
	result := r.db.WithContext(ctx).
		Model(&model.Shop{}).
		Where("id = ?", shopID).
		Updates(map[string]interface{}{
			"charges_enabled":     update.ChargesEnabled,
			"payouts_enabled":     update.PayoutsEnabled,
			"onboarding_complete": update.OnboardingComplete,
			"kyc_status":          update.KycStatus,
			"has_valid_kyc":       update.HasValidKyc,
			"updated_at":          time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
