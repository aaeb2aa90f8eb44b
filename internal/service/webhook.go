package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/client"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/money"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/repository"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/util"
)

type WebhookService interface {
	HandleWebhook(ctx context.Context, body []byte, sigHeader string) error
}

type webhookServiceImpl struct {
	stripeClient client.StripeClient
	eventRepo    repository.WebhookEventRepository
	sessionRepo  repository.CheckoutSessionRepository
	productRepo  repository.ProductRepository
	shopRepo     repository.ShopRepository
	orderRepo    repository.OrderRepository
	orderService OrderService
	subService   SubscriptionService
	kycService   KycService
}

func NewWebhookService(
	stripeClient client.StripeClient,
	eventRepo repository.WebhookEventRepository,
	sessionRepo repository.CheckoutSessionRepository,
	productRepo repository.ProductRepository,
	shopRepo repository.ShopRepository,
	orderRepo repository.OrderRepository,
	orderService OrderService,
	subService SubscriptionService,
	kycService KycService,
) WebhookService {
	return &webhookServiceImpl{
		stripeClient: stripeClient,
		eventRepo:    eventRepo,
		sessionRepo:  sessionRepo,
		productRepo:  productRepo,
		shopRepo:     shopRepo,
		orderRepo:    orderRepo,
		orderService: orderService,
		subService:   subService,
		kycService:   kycService,
	}
}

// parseEvent narrows the provider's event taxonomy to the handled subset.
// Everything else becomes EventIgnored.
func parseEvent(raw *model.StripeEvent) (*model.Event, error) {
	event := &model.Event{ID: raw.ID}

	switch raw.Type {
	case "checkout.session.completed":
		var cs model.StripeCheckoutSession
		if err := json.Unmarshal(raw.Data.Object, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session object: %w", err)
		}
		event.Kind = model.EventCheckoutCompleted
		event.CheckoutSession = &cs
	case "invoice.paid":
		var inv model.StripeInvoice
		if err := json.Unmarshal(raw.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice object: %w", err)
		}
		event.Kind = model.EventInvoicePaid
		event.Invoice = &inv
	case "invoice.payment_failed":
		var inv model.StripeInvoice
		if err := json.Unmarshal(raw.Data.Object, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice object: %w", err)
		}
		event.Kind = model.EventInvoiceFailed
		event.Invoice = &inv
	case "customer.subscription.deleted":
		var sub model.StripeSubscription
		if err := json.Unmarshal(raw.Data.Object, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription object: %w", err)
		}
		event.Kind = model.EventSubscriptionDeleted
		event.Subscription = &sub
	case "account.updated":
		var acct model.StripeAccount
		if err := json.Unmarshal(raw.Data.Object, &acct); err != nil {
			return nil, fmt.Errorf("decode account object: %w", err)
		}
		event.Kind = model.EventAccountUpdated
		event.Account = &acct
	default:
		event.Kind = model.EventIgnored
	}

	return event, nil
}

func (s *webhookServiceImpl) HandleWebhook(ctx context.Context, body []byte, sigHeader string) error {
	raw, err := s.stripeClient.VerifyWebhookSignature(body, sigHeader)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		return apperr.BadRequest("invalid webhook signature")
	}

	processed, err := s.eventRepo.Exists(ctx, raw.ID)
	if err != nil {
		return fmt.Errorf("check webhook event: %w", err)
	}
	if processed {
		util.WebhookEventsTotal.WithLabelValues(raw.Type, "duplicate").Inc()
		return nil
	}

	event, err := parseEvent(raw)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(raw.Type, "malformed").Inc()
		return apperr.BadRequest("malformed webhook payload")
	}

	switch event.Kind {
	case model.EventCheckoutCompleted:
		err = s.handleCheckoutCompleted(ctx, event.CheckoutSession)
	case model.EventInvoicePaid:
		err = s.subService.HandleInvoicePaid(ctx, event.Invoice)
	case model.EventInvoiceFailed:
		err = s.subService.HandleInvoiceFailed(ctx, event.Invoice)
	case model.EventSubscriptionDeleted:
		err = s.subService.HandleSubscriptionDeleted(ctx, event.Subscription)
	case model.EventAccountUpdated:
		// Best effort: a failed flag update must not fail the whole
		// dispatch, the periodic sweep will catch up.
		if syncErr := s.kycService.HandleAccountUpdated(ctx, event.Account); syncErr != nil {
			zap.L().Warn("account.updated sync failed",
				zap.String("account_id", event.Account.ID),
				zap.Error(syncErr))
		}
	case model.EventIgnored:
		zap.L().Debug("ignoring webhook event", zap.String("type", raw.Type))
	}
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(raw.Type, "error").Inc()
		return err
	}

	if err := s.eventRepo.MarkProcessed(ctx, raw.ID, raw.Type); err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}

	util.WebhookEventsTotal.WithLabelValues(raw.Type, "ok").Inc()
	return nil
}

// handleCheckoutCompleted closes the checkout session and materializes its
// order (and, for recurring purchases, the subscription).
func (s *webhookServiceImpl) handleCheckoutCompleted(ctx context.Context, cs *model.StripeCheckoutSession) error {
	sessionID := cs.Metadata["checkout_session_id"]

	var session *model.CheckoutSession
	var err error
	if sessionID != "" {
		session, err = s.sessionRepo.FindByID(ctx, sessionID)
	} else {
		session, err = s.sessionRepo.FindByStripeSessionID(ctx, cs.ID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("no checkout session for provider session %s", cs.ID)
		}
		return fmt.Errorf("find checkout session: %w", err)
	}

	if err := s.sessionRepo.MarkCompleted(ctx, session.ID, cs.ID); err != nil {
		return fmt.Errorf("complete checkout session: %w", err)
	}

	// Replayed completions must not double-materialize.
	if _, err := s.orderRepo.FindByCheckoutSessionID(ctx, session.ID); err == nil {
		zap.L().Info("order already materialized for session",
			zap.String("session_id", session.ID))
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check existing order: %w", err)
	}

	shop, err := s.shopRepo.FindByID(ctx, session.ShopID)
	if err != nil {
		return fmt.Errorf("find shop: %w", err)
	}
	product, err := s.productRepo.FindByID(ctx, session.ProductID)
	if err != nil {
		return fmt.Errorf("find product: %w", err)
	}

	// The fee actually routed at payment time is re-derived with the same
	// inputs so order and charge can never disagree.
	feeCents := money.PlatformFee(session.ProductPriceCents, shop.PlatformFeePercent)
	unitCents := int64(0)
	if session.Quantity > 0 {
		unitCents = session.ProductPriceCents / int64(session.Quantity)
	}

	csID := session.ID
	order, err := s.orderService.Create(ctx, &CreateOrderInput{
		ShopID:             session.ShopID,
		ProductID:          session.ProductID,
		CustomerUserID:     session.CustomerUserID,
		CustomerEmail:      session.CustomerEmail,
		CustomerName:       session.CustomerName,
		CheckoutSessionID:  &csID,
		ShippingAddress:    session.ShippingAddress,
		ShippingMethodName: session.ShippingMethodName,
		Quantity:           session.Quantity,
		UnitPriceCents:     unitCents,
		ProductPriceCents:  session.ProductPriceCents,
		ShippingCostCents:  session.ShippingCostCents,
		PlatformFeeCents:   &feeCents,
		Currency:           product.Currency,
		PaymentStatus:      model.PaymentPaid,
	})
	if err != nil {
		return fmt.Errorf("materialize order: %w", err)
	}

	if session.BillingCycle != model.CycleOneTime {
		_, err := s.subService.Create(ctx, &CreateSubscriptionInput{
			ShopID:               session.ShopID,
			ProductID:            session.ProductID,
			CustomerUserID:       session.CustomerUserID,
			CustomerEmail:        session.CustomerEmail,
			StripeSubscriptionID: cs.Metadata["subscription_id"],
			BillingCycle:         session.BillingCycle,
			ProductPriceCents:    session.ProductPriceCents,
			FeePercent:           shop.PlatformFeePercent,
			Currency:             product.Currency,
			RequiresShipping:     product.RequiresShipping,
			ShippingMethodName:   session.ShippingMethodName,
			ShippingCostCents:    session.ShippingCostCents,
			ShippingAddress:      session.ShippingAddress,
		})
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
	}

	zap.L().Info("checkout completed",
		zap.String("session_id", session.ID),
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber))

	return nil
}
