package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/client"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/money"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/repository"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/util"
)

type CreateSubscriptionInput struct {
	ShopID               string
	ProductID            string
	CustomerUserID       string
	CustomerEmail        string
	StripeSubscriptionID string

	BillingCycle      string
	ProductPriceCents int64
	FeePercent        float64
	Currency          string

	RequiresShipping   bool
	ShippingMethodName string
	ShippingCostCents  int64
	ShippingAddress    model.Address
}

type SubscriptionService interface {
	Create(ctx context.Context, input *CreateSubscriptionInput) (*model.Subscription, error)
	Get(ctx context.Context, actor *Actor, subscriptionID string) (*model.Subscription, error)

	Cancel(ctx context.Context, actor *Actor, subscriptionID string, atPeriodEnd bool) (*model.Subscription, error)
	Pause(ctx context.Context, actor *Actor, subscriptionID, reason string, resumeAt *time.Time) (*model.Subscription, error)
	Resume(ctx context.Context, actor *Actor, subscriptionID string) (*model.Subscription, error)
	ChangePlan(ctx context.Context, actor *Actor, subscriptionID, newCycle string) (*model.Subscription, error)

	HandleInvoicePaid(ctx context.Context, invoice *model.StripeInvoice) error
	HandleInvoiceFailed(ctx context.Context, invoice *model.StripeInvoice) error
	HandleSubscriptionDeleted(ctx context.Context, stripeSub *model.StripeSubscription) error
}

type subscriptionServiceImpl struct {
	subRepo      repository.SubscriptionRepository
	productRepo  repository.ProductRepository
	shopRepo     repository.ShopRepository
	orderService OrderService
	stripeClient client.StripeClient
}

func NewSubscriptionService(
	subRepo repository.SubscriptionRepository,
	productRepo repository.ProductRepository,
	shopRepo repository.ShopRepository,
	orderService OrderService,
	stripeClient client.StripeClient,
) SubscriptionService {
	return &subscriptionServiceImpl{
		subRepo:      subRepo,
		productRepo:  productRepo,
		shopRepo:     shopRepo,
		orderService: orderService,
		stripeClient: stripeClient,
	}
}

// CalculateBillingDates returns the calendar period [start, end) containing
// from: the ISO week for weekly, the month for monthly, the year for yearly.
func CalculateBillingDates(cycle string, from time.Time) (time.Time, time.Time, error) {
	from = from.UTC()
	switch cycle {
	case model.CycleWeekly:
		// Roll back to Monday 00:00.
		offset := (int(from.Weekday()) + 6) % 7
		start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case model.CycleMonthly:
		start := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case model.CycleYearly:
		start := time.Date(from.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, apperr.BadRequest("billing cycle %q is not recurring", cycle)
	}
}

func (s *subscriptionServiceImpl) Create(ctx context.Context, input *CreateSubscriptionInput) (*model.Subscription, error) {
	start, end, err := CalculateBillingDates(input.BillingCycle, time.Now())
	if err != nil {
		return nil, err
	}

	amountCents := input.ProductPriceCents + input.ShippingCostCents
	feeCents := money.PlatformFee(input.ProductPriceCents, input.FeePercent)

	currency := input.Currency
	if currency == "" {
		currency = "usd"
	}

	sub := &model.Subscription{
		ID:                   uuid.NewString(),
		ShopID:               input.ShopID,
		ProductID:            input.ProductID,
		CustomerUserID:       input.CustomerUserID,
		CustomerEmail:        input.CustomerEmail,
		StripeSubscriptionID: input.StripeSubscriptionID,
		BillingCycle:         input.BillingCycle,
		AmountCents:          amountCents,
		PlatformFeeCents:     feeCents,
		ShopRevenueCents:     amountCents - feeCents,
		Currency:             currency,
		CurrentPeriodStart:   start,
		CurrentPeriodEnd:     end,
		Status:               model.SubActive,
		RequiresShipping:     input.RequiresShipping,
		ShippingMethodName:   input.ShippingMethodName,
		ShippingCostCents:    input.ShippingCostCents,
		ShippingAddress:      input.ShippingAddress,
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("store subscription: %w", err)
	}

	zap.L().Info("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("billing_cycle", sub.BillingCycle),
		zap.Int64("amount_cents", sub.AmountCents))

	return sub, nil
}

func (s *subscriptionServiceImpl) findSubscription(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.subRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("subscription not found")
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return sub, nil
}

func authorizeSubscription(actor *Actor, sub *model.Subscription, ownerOnly bool) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleShopOwner:
		if !actor.OwnsShop(sub.ShopID) {
			return apperr.Forbidden("subscription belongs to another shop")
		}
		return nil
	case model.RoleCustomer:
		if ownerOnly {
			return apperr.Forbidden("customers may not perform this action")
		}
		if sub.CustomerUserID != actor.UserID {
			return apperr.Forbidden("subscription belongs to another customer")
		}
		return nil
	default:
		return apperr.Forbidden("unknown role")
	}
}

func (s *subscriptionServiceImpl) Get(ctx context.Context, actor *Actor, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.findSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubscription(actor, sub, false); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *subscriptionServiceImpl) Cancel(ctx context.Context, actor *Actor, subscriptionID string, atPeriodEnd bool) (*model.Subscription, error) {
	sub, err := s.findSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubscription(actor, sub, false); err != nil {
		return nil, err
	}

	if sub.Status == model.SubCancelled {
		return nil, apperr.BadRequest("subscription is already cancelled")
	}

	if atPeriodEnd {
		if err := s.subRepo.Update(ctx, sub.ID, map[string]interface{}{
			"cancel_at_period_end": true,
		}); err != nil {
			return nil, err
		}
		return s.findSubscription(ctx, subscriptionID)
	}

	if sub.StripeSubscriptionID != "" {
		if err := s.stripeClient.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if err := s.subRepo.Update(ctx, sub.ID, map[string]interface{}{
		"status":       model.SubCancelled,
		"cancelled_at": now,
	}); err != nil {
		return nil, err
	}

	return s.findSubscription(ctx, subscriptionID)
}

func (s *subscriptionServiceImpl) Pause(ctx context.Context, actor *Actor, subscriptionID, reason string, resumeAt *time.Time) (*model.Subscription, error) {
	sub, err := s.findSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubscription(actor, sub, true); err != nil {
		return nil, err
	}

	if sub.Status != model.SubActive {
		return nil, apperr.BadRequest("only active subscriptions can be paused")
	}

	updates := map[string]interface{}{
		"status":       model.SubPaused,
		"pause_reason": reason,
	}
	if resumeAt != nil {
		updates["resume_at"] = *resumeAt
	}
	if err := s.subRepo.Update(ctx, sub.ID, updates); err != nil {
		return nil, err
	}

	return s.findSubscription(ctx, subscriptionID)
}

func (s *subscriptionServiceImpl) Resume(ctx context.Context, actor *Actor, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.findSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubscription(actor, sub, true); err != nil {
		return nil, err
	}

	if sub.Status != model.SubPaused {
		return nil, apperr.BadRequest("only paused subscriptions can be resumed")
	}

	if err := s.subRepo.Update(ctx, sub.ID, map[string]interface{}{
		"status":       model.SubActive,
		"pause_reason": "",
		"resume_at":    nil,
	}); err != nil {
		return nil, err
	}

	return s.findSubscription(ctx, subscriptionID)
}

func (s *subscriptionServiceImpl) ChangePlan(ctx context.Context, actor *Actor, subscriptionID, newCycle string) (*model.Subscription, error) {
	sub, err := s.findSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubscription(actor, sub, false); err != nil {
		return nil, err
	}

	if sub.Status != model.SubActive {
		return nil, apperr.BadRequest("only active subscriptions can change plan")
	}
	if newCycle != model.CycleWeekly && newCycle != model.CycleMonthly && newCycle != model.CycleYearly {
		return nil, apperr.BadRequest("billing cycle %q is not recurring", newCycle)
	}

	product, err := s.productRepo.FindByID(ctx, sub.ProductID)
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	shop, err := s.shopRepo.FindByID(ctx, sub.ShopID)
	if err != nil {
		return nil, fmt.Errorf("find shop: %w", err)
	}

	productCents := money.PriceForCycle(product, newCycle)
	amountCents := productCents + sub.ShippingCostCents
	feeCents := money.PlatformFee(productCents, shop.PlatformFeePercent)

	if err := s.subRepo.Update(ctx, sub.ID, map[string]interface{}{
		"billing_cycle":      newCycle,
		"amount_cents":       amountCents,
		"platform_fee_cents": feeCents,
		"shop_revenue_cents": amountCents - feeCents,
	}); err != nil {
		return nil, err
	}

	return s.findSubscription(ctx, subscriptionID)
}

func (s *subscriptionServiceImpl) findByStripeID(ctx context.Context, stripeSubID string) (*model.Subscription, error) {
	sub, err := s.subRepo.FindByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no subscription for provider id %s", stripeSubID)
		}
		return nil, fmt.Errorf("find subscription by provider id: %w", err)
	}
	return sub, nil
}

// HandleInvoicePaid rolls the subscription into the period the provider
// actually billed and materializes the renewal order.
func (s *subscriptionServiceImpl) HandleInvoicePaid(ctx context.Context, invoice *model.StripeInvoice) error {
	sub, err := s.findByStripeID(ctx, invoice.Subscription)
	if err != nil {
		return err
	}

	// Provider-supplied bounds take precedence over the calendar
	// calculator: the invoice says what was actually billed.
	var start, end time.Time
	if invoice.PeriodStart > 0 && invoice.PeriodEnd > invoice.PeriodStart {
		start = time.Unix(invoice.PeriodStart, 0).UTC()
		end = time.Unix(invoice.PeriodEnd, 0).UTC()
	} else {
		start, end, err = CalculateBillingDates(sub.BillingCycle, time.Now())
		if err != nil {
			return err
		}
	}

	if err := s.subRepo.Update(ctx, sub.ID, map[string]interface{}{
		"status":               model.SubActive,
		"current_period_start": start,
		"current_period_end":   end,
		"renewal_count":        sub.RenewalCount + 1,
	}); err != nil {
		return err
	}

	subID := sub.ID
	productCents := sub.AmountCents - sub.ShippingCostCents
	fee := sub.PlatformFeeCents
	_, err = s.orderService.Create(ctx, &CreateOrderInput{
		ShopID:             sub.ShopID,
		ProductID:          sub.ProductID,
		CustomerUserID:     sub.CustomerUserID,
		CustomerEmail:      sub.CustomerEmail,
		SubscriptionID:     &subID,
		ShippingAddress:    sub.ShippingAddress,
		ShippingMethodName: sub.ShippingMethodName,
		Quantity:           1,
		UnitPriceCents:     productCents,
		ProductPriceCents:  productCents,
		ShippingCostCents:  sub.ShippingCostCents,
		PlatformFeeCents:   &fee,
		Currency:           sub.Currency,
		PaymentStatus:      model.PaymentPaid,
	})
	if err != nil {
		return fmt.Errorf("materialize renewal order: %w", err)
	}

	util.SubscriptionRenewalsTotal.Inc()
	zap.L().Info("subscription renewed",
		zap.String("subscription_id", sub.ID),
		zap.Int("renewal_count", sub.RenewalCount+1),
		zap.Time("period_end", end))

	return nil
}

func (s *subscriptionServiceImpl) HandleInvoiceFailed(ctx context.Context, invoice *model.StripeInvoice) error {
	sub, err := s.findByStripeID(ctx, invoice.Subscription)
	if err != nil {
		return err
	}

	// No automatic retry scheduling; the provider drives further attempts.
	return s.subRepo.Update(ctx, sub.ID, map[string]interface{}{
		"status": model.SubPastDue,
	})
}

func (s *subscriptionServiceImpl) HandleSubscriptionDeleted(ctx context.Context, stripeSub *model.StripeSubscription) error {
	sub, err := s.findByStripeID(ctx, stripeSub.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	return s.subRepo.Update(ctx, sub.ID, map[string]interface{}{
		"status":       model.SubCancelled,
		"cancelled_at": now,
	})
}
