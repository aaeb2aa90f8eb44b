package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
)

type KycRepository interface {
	CreateVerification(ctx context.Context, v *model.KycVerification) error
	FindVerificationByID(ctx context.Context, verificationID string) (*model.KycVerification, error)
	FindLatestByShop(ctx context.Context, shopID string) (*model.KycVerification, error)
	HasPendingVerification(ctx context.Context, shopID string) (bool, error)
	UpdateVerification(ctx context.Context, verificationID string, updates map[string]interface{}) error

	AddDocument(ctx context.Context, doc *model.KycDocument) error
	GetDocuments(ctx context.Context, verificationID string) ([]*model.KycDocument, error)
}

type kycRepoImpl struct {
	db *gorm.DB
}

func NewKycRepository(db *gorm.DB) KycRepository {
	return &kycRepoImpl{
		db: db,
	}
}

func (r *kycRepoImpl) CreateVerification(ctx context.Context, v *model.KycVerification) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *kycRepoImpl) FindVerificationByID(ctx context.Context, verificationID string) (*model.KycVerification, error) {
	var v model.KycVerification
	err := r.db.WithContext(ctx).
		Where("id = ?", verificationID).
		First(&v).Error

	if err != nil {
		return nil, err
	}

	return &v, nil
}

func (r *kycRepoImpl) FindLatestByShop(ctx context.Context, shopID string) (*model.KycVerification, error) {
	var v model.KycVerification
	err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("created_at desc").
		First(&v).Error

	if err != nil {
		return nil, err
	}

	return &v, nil
}

func (r *kycRepoImpl) HasPendingVerification(ctx context.Context, shopID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.KycVerification{}).
		Where("shop_id = ? AND status = ?", shopID, model.KycPending).
		Count(&count).Error

	return count > 0, err
}

func (r *kycRepoImpl) UpdateVerification(ctx context.Context, verificationID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.KycVerification{}).
		Where("id = ?", verificationID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *kycRepoImpl) AddDocument(ctx context.Context, doc *model.KycDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *kycRepoImpl) GetDocuments(ctx context.Context, verificationID string) ([]*model.KycDocument, error) {
	var docs []*model.KycDocument
	err := r.db.WithContext(ctx).
		Where("verification_id = ?", verificationID).
		Find(&docs).Error

	if err != nil {
		return nil, err
	}

	return docs, nil
}
