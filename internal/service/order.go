package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/money"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/repository"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/util"
)

// Audit actions recorded on the order's structured internal note.
const (
	AuditOrderCreated    = "order_created"
	AuditOrderFulfilled  = "order_fulfilled"
	AuditOrderShipped    = "order_shipped"
	AuditOrderDelivered  = "order_delivered"
	AuditOrderCancelled  = "order_cancelled"
	AuditRefundRequested = "refund_requested"
	AuditRefundApproved  = "refund_approved"
	AuditRefundDenied    = "refund_denied"
)

const maxOrderNumberAttempts = 25

type CreateOrderInput struct {
	ShopID            string
	ProductID         string
	CustomerUserID    string
	CustomerEmail     string
	CustomerName      string
	CheckoutSessionID *string
	SubscriptionID    *string

	ShippingAddress    model.Address
	ShippingMethodName string

	Quantity          int
	UnitPriceCents    int64
	ProductPriceCents int64
	ShippingCostCents int64

	// PlatformFeeCents, when set, is the fee actually charged at payment
	// time and is persisted verbatim. When nil the fee is recomputed from
	// the product subtotal with FeePercent.
	PlatformFeeCents *int64
	FeePercent       float64

	Currency      string
	PaymentStatus string
}

type ShipmentDetails struct {
	TrackingNumber    string
	Carrier           string
	EstimatedDelivery *time.Time
}

type OrderService interface {
	Create(ctx context.Context, input *CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, actor *Actor, orderID string) (*model.Order, error)
	MarkPaid(ctx context.Context, orderID string) error

	FulfillOrder(ctx context.Context, actor *Actor, orderID string) (*model.Order, error)
	ShipOrder(ctx context.Context, actor *Actor, orderID string, details *ShipmentDetails) (*model.Order, error)
	DeliverOrder(ctx context.Context, actor *Actor, orderID string) (*model.Order, error)
	CancelOrder(ctx context.Context, actor *Actor, orderID, reason string) (*model.Order, error)

	RequestRefund(ctx context.Context, actor *Actor, orderID, reason string) error
	ProcessRefund(ctx context.Context, actor *Actor, orderID string, approve bool, note string) error

	InternalNote(ctx context.Context, actor *Actor, orderID string) (string, error)
}

type orderServiceImpl struct {
	orderRepo repository.OrderRepository
}

func NewOrderService(orderRepo repository.OrderRepository) OrderService {
	return &orderServiceImpl{
		orderRepo: orderRepo,
	}
}

func newOrderNumber() string {
	return fmt.Sprintf("#%04d", rand.Intn(10000))
}

func (s *orderServiceImpl) Create(ctx context.Context, input *CreateOrderInput) (*model.Order, error) {
	totalCents := input.ProductPriceCents + input.ShippingCostCents

	var feeCents int64
	if input.PlatformFeeCents != nil {
		feeCents = *input.PlatformFeeCents
	} else {
		feeCents = money.PlatformFee(input.ProductPriceCents, input.FeePercent)
	}
	revenueCents := totalCents - feeCents

	paymentStatus := input.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = model.PaymentPending
	}

	order := &model.Order{
		ID:                 uuid.NewString(),
		ShopID:             input.ShopID,
		ProductID:          input.ProductID,
		CustomerUserID:     input.CustomerUserID,
		CustomerEmail:      input.CustomerEmail,
		CustomerName:       input.CustomerName,
		CheckoutSessionID:  input.CheckoutSessionID,
		SubscriptionID:     input.SubscriptionID,
		ShippingAddress:    input.ShippingAddress,
		ShippingMethodName: input.ShippingMethodName,
		ProductPriceCents:  input.ProductPriceCents,
		ShippingCostCents:  input.ShippingCostCents,
		TotalAmountCents:   totalCents,
		PlatformFeeCents:   feeCents,
		ShopRevenueCents:   revenueCents,
		Currency:           input.Currency,
		PaymentStatus:      paymentStatus,
		FulfillmentStatus:  model.FulfillmentUnfulfilled,
	}

	items := []*model.OrderItem{
		{
			OrderID:        order.ID,
			ProductID:      input.ProductID,
			Quantity:       input.Quantity,
			UnitPriceCents: input.UnitPriceCents,
			Currency:       input.Currency,
		},
	}

	// The order number space is tiny (10k values), so collisions are real.
	// The unique index is the arbiter; redraw on conflict, bounded.
	var created bool
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = newOrderNumber()
		err := s.orderRepo.Create(ctx, order, items)
		if err == nil {
			created = true
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, fmt.Errorf("store order: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("exhausted %d order number attempts", maxOrderNumberAttempts)
	}

	if err := s.orderRepo.AppendAudit(ctx, &model.OrderAuditEntry{
		OrderID:   order.ID,
		Actor:     "system",
		ActorRole: model.RoleAdmin,
		Action:    AuditOrderCreated,
	}); err != nil {
		zap.L().Error("append order audit", zap.String("order_id", order.ID), zap.Error(err))
	}

	util.OrdersCreatedTotal.Inc()
	zap.L().Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_cents", order.TotalAmountCents))

	return order, nil
}

func (s *orderServiceImpl) findOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order not found")
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return order, nil
}

// customerActions lists what a customer may do to their own order. Everything
// else on orders is shop-owner or admin territory.
var customerActions = map[string]bool{
	AuditOrderCancelled:  true,
	AuditRefundRequested: true,
}

func authorizeOrder(actor *Actor, order *model.Order, action string) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleShopOwner:
		if !actor.OwnsShop(order.ShopID) {
			return apperr.Forbidden("order belongs to another shop")
		}
		return nil
	case model.RoleCustomer:
		if order.CustomerUserID != actor.UserID {
			return apperr.Forbidden("order belongs to another customer")
		}
		if action != "" && !customerActions[action] {
			return apperr.Forbidden("customers may not perform this action")
		}
		return nil
	default:
		return apperr.Forbidden("unknown role")
	}
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, actor *Actor, orderID string) (*model.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrder(actor, order, ""); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderServiceImpl) MarkPaid(ctx context.Context, orderID string) error {
	err := s.orderRepo.Update(ctx, orderID, map[string]interface{}{
		"payment_status": model.PaymentPaid,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("order not found")
	}
	return err
}

func (s *orderServiceImpl) appendAudit(ctx context.Context, actor *Actor, orderID, action, reason string) {
	if err := s.orderRepo.AppendAudit(ctx, &model.OrderAuditEntry{
		OrderID:   orderID,
		Actor:     actor.UserID,
		ActorRole: actor.Role,
		Action:    action,
		Reason:    reason,
	}); err != nil {
		zap.L().Error("append order audit", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *orderServiceImpl) FulfillOrder(ctx context.Context, actor *Actor, orderID string) (*model.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrder(actor, order, AuditOrderFulfilled); err != nil {
		return nil, err
	}

	if order.FulfillmentStatus != model.FulfillmentUnfulfilled {
		return nil, apperr.BadRequest("only unfulfilled orders can be fulfilled")
	}
	if order.PaymentStatus != model.PaymentPaid {
		return nil, apperr.BadRequest("order must be paid before fulfillment")
	}

	now := time.Now()
	if err := s.orderRepo.Update(ctx, orderID, map[string]interface{}{
		"fulfillment_status": model.FulfillmentFulfilled,
		"fulfilled_at":       now,
	}); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, actor, orderID, AuditOrderFulfilled, "")

	return s.findOrder(ctx, orderID)
}

func (s *orderServiceImpl) ShipOrder(ctx context.Context, actor *Actor, orderID string, details *ShipmentDetails) (*model.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrder(actor, order, AuditOrderShipped); err != nil {
		return nil, err
	}

	// Re-shipping is allowed (replacement packages, corrected tracking);
	// only a cancelled order is off limits.
	if order.FulfillmentStatus == model.FulfillmentCancelled {
		return nil, apperr.BadRequest("cancelled orders cannot be shipped")
	}

	now := time.Now()
	updates := map[string]interface{}{
		"fulfillment_status": model.FulfillmentShipped,
		"tracking_number":    details.TrackingNumber,
		"carrier":            details.Carrier,
		"shipped_at":         now,
	}
	if details.EstimatedDelivery != nil {
		updates["estimated_delivery"] = *details.EstimatedDelivery
	}
	if err := s.orderRepo.Update(ctx, orderID, updates); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, actor, orderID, AuditOrderShipped, details.TrackingNumber)

	return s.findOrder(ctx, orderID)
}

func (s *orderServiceImpl) DeliverOrder(ctx context.Context, actor *Actor, orderID string) (*model.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrder(actor, order, AuditOrderDelivered); err != nil {
		return nil, err
	}

	if order.FulfillmentStatus != model.FulfillmentShipped {
		return nil, apperr.BadRequest("only shipped orders can be marked delivered")
	}

	now := time.Now()
	if err := s.orderRepo.Update(ctx, orderID, map[string]interface{}{
		"fulfillment_status": model.FulfillmentDelivered,
		"delivered_at":       now,
	}); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, actor, orderID, AuditOrderDelivered, "")

	return s.findOrder(ctx, orderID)
}

func (s *orderServiceImpl) CancelOrder(ctx context.Context, actor *Actor, orderID, reason string) (*model.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrder(actor, order, AuditOrderCancelled); err != nil {
		return nil, err
	}

	switch order.FulfillmentStatus {
	case model.FulfillmentDelivered:
		return nil, apperr.BadRequest("delivered orders cannot be cancelled")
	case model.FulfillmentShipped:
		return nil, apperr.BadRequest("shipped orders cannot be cancelled, contact support")
	case model.FulfillmentCancelled:
		return nil, apperr.BadRequest("order is already cancelled")
	}

	now := time.Now()
	if err := s.orderRepo.Update(ctx, orderID, map[string]interface{}{
		"fulfillment_status": model.FulfillmentCancelled,
		"cancelled_at":       now,
	}); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, actor, orderID, AuditOrderCancelled, reason)

	return s.findOrder(ctx, orderID)
}

func (s *orderServiceImpl) RequestRefund(ctx context.Context, actor *Actor, orderID, reason string) error {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := authorizeOrder(actor, order, AuditRefundRequested); err != nil {
		return err
	}

	if order.PaymentStatus != model.PaymentPaid {
		return apperr.BadRequest("only paid orders can be refunded")
	}
	if order.FulfillmentStatus == model.FulfillmentDelivered {
		return apperr.BadRequest("delivered orders are outside the refund window")
	}

	s.appendAudit(ctx, actor, orderID, AuditRefundRequested, reason)
	return nil
}

func (s *orderServiceImpl) ProcessRefund(ctx context.Context, actor *Actor, orderID string, approve bool, note string) error {
	if actor.Role == model.RoleCustomer {
		return apperr.Forbidden("customers may not process refunds")
	}

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := authorizeOrder(actor, order, AuditRefundApproved); err != nil {
		return err
	}

	if order.PaymentStatus == model.PaymentRefunded {
		return apperr.BadRequest("refund has already been processed for this order")
	}
	if order.PaymentStatus != model.PaymentPaid {
		return apperr.BadRequest("only paid orders can be refunded")
	}

	if approve {
		if err := s.orderRepo.Update(ctx, orderID, map[string]interface{}{
			"payment_status": model.PaymentRefunded,
		}); err != nil {
			return err
		}
		s.appendAudit(ctx, actor, orderID, AuditRefundApproved, note)
		return nil
	}

	s.appendAudit(ctx, actor, orderID, AuditRefundDenied, note)
	return nil
}

// InternalNote renders the structured audit log as the legacy free-text
// internal note.
func (s *orderServiceImpl) InternalNote(ctx context.Context, actor *Actor, orderID string) (string, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if err := authorizeOrder(actor, order, ""); err != nil {
		return "", err
	}

	entries, err := s.orderRepo.GetAuditLog(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("get audit log: %w", err)
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString("[")
		b.WriteString(e.CreatedAt.UTC().Format(time.RFC3339))
		b.WriteString("] ")
		b.WriteString(e.Actor)
		b.WriteString(" (")
		b.WriteString(e.ActorRole)
		b.WriteString(") ")
		b.WriteString(e.Action)
		if e.Reason != "" {
			b.WriteString(": ")
			b.WriteString(e.Reason)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
