package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
)

type OrderRepository interface {
	// Create persists the order and its items in one transaction. A
	// duplicate order number surfaces as gorm.ErrDuplicatedKey so the
	// caller can redraw.
	Create(ctx context.Context, order *model.Order, items []*model.OrderItem) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*model.Order, error)
	Update(ctx context.Context, orderID string, updates map[string]interface{}) error
	GetItems(ctx context.Context, orderID string) ([]*model.OrderItem, error)

	AppendAudit(ctx context.Context, entry *model.OrderAuditEntry) error
	GetAuditLog(ctx context.Context, orderID string) ([]*model.OrderAuditEntry, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, order *model.Order, items []*model.OrderItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("checkout_session_id = ?", sessionID).
		First(&order).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) Update(ctx context.Context, orderID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *orderRepoImpl) GetItems(ctx context.Context, orderID string) ([]*model.OrderItem, error) {
	var items []*model.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Find(&items).Error

	if err != nil {
		return nil, err
	}

	return items, nil
}

func (r *orderRepoImpl) AppendAudit(ctx context.Context, entry *model.OrderAuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *orderRepoImpl) GetAuditLog(ctx context.Context, orderID string) ([]*model.OrderAuditEntry, error) {
	var entries []*model.OrderAuditEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc, id asc").
		Find(&entries).Error

	if err != nil {
		return nil, err
	}

	return entries, nil
}
