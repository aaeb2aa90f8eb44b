package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
)

type CheckoutSessionRepository interface {
	Create(ctx context.Context, session *model.CheckoutSession) error
	FindByID(ctx context.Context, sessionID string) (*model.CheckoutSession, error)
	FindByStripeSessionID(ctx context.Context, stripeSessionID string) (*model.CheckoutSession, error)
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error

	// ClaimForPayment atomically flips pending -> processing for a session
	// whose information step is done. Returns false when another caller won
	// the claim (or the session is not claimable).
	ClaimForPayment(ctx context.Context, sessionID string) (bool, error)
	ReleaseClaim(ctx context.Context, sessionID string) error

	MarkCompleted(ctx context.Context, sessionID, stripeSessionID string) error
	MarkExpired(ctx context.Context, sessionID string) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type checkoutSessionRepoImpl struct {
	db *gorm.DB
}

func NewCheckoutSessionRepository(db *gorm.DB) CheckoutSessionRepository {
	return &checkoutSessionRepoImpl{
		db: db,
	}
}

func (r *checkoutSessionRepoImpl) Create(ctx context.Context, session *model.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *checkoutSessionRepoImpl) FindByID(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	var session model.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error

	if err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *checkoutSessionRepoImpl) FindByStripeSessionID(ctx context.Context, stripeSessionID string) (*model.CheckoutSession, error) {
	var session model.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("stripe_session_id = ?", stripeSessionID).
		First(&session).Error

	if err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *checkoutSessionRepoImpl) Update(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.CheckoutSession{}).
		Where("id = ?", sessionID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *checkoutSessionRepoImpl) ClaimForPayment(ctx context.Context, sessionID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.CheckoutSession{}).
		Where("id = ? AND status = ? AND current_step >= 2", sessionID, model.SessionPending).
		Updates(map[string]interface{}{
			"status":     model.SessionProcessing,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *checkoutSessionRepoImpl) ReleaseClaim(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&model.CheckoutSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionProcessing).
		Updates(map[string]interface{}{
			"status":     model.SessionPending,
			"updated_at": time.Now(),
		}).Error
}

func (r *checkoutSessionRepoImpl) MarkCompleted(ctx context.Context, sessionID, stripeSessionID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.CheckoutSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":            model.SessionCompleted,
			"stripe_session_id": stripeSessionID,
			"completed_at":      now,
			"updated_at":        now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *checkoutSessionRepoImpl) MarkExpired(ctx context.Context, sessionID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.CheckoutSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":     model.SessionExpired,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *checkoutSessionRepoImpl) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.CheckoutSession{}).
		Where("status = ? AND expires_at < ?", model.SessionPending, now).
		Updates(map[string]interface{}{
			"status":     model.SessionExpired,
			"updated_at": now,
		})

	return result.RowsAffected, result.Error
}
