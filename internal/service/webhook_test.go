package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
)

type webhookFixture struct {
	service  WebhookService
	stripe   *fakeStripeClient
	events   *fakeWebhookEventRepo
	sessions *fakeSessionRepo
	orders   *fakeOrderRepo
	subs     *fakeSubscriptionRepo
	shops    *fakeShopRepo
}

func newWebhookFixture(product *model.Product, shop *model.Shop) *webhookFixture {
	f := &webhookFixture{
		stripe:   newFakeStripeClient(),
		events:   newFakeWebhookEventRepo(),
		sessions: newFakeSessionRepo(),
		orders:   newFakeOrderRepo(),
		subs:     newFakeSubscriptionRepo(),
		shops:    newFakeShopRepo(shop),
	}
	products := newFakeProductRepo(product)
	orderService := NewOrderService(f.orders)
	subService := NewSubscriptionService(f.subs, products, f.shops, orderService, f.stripe)
	kycService := NewKycService(newFakeKycRepo(), f.shops, f.stripe, "https://shop.example.com")

	f.service = NewWebhookService(
		f.stripe, f.events, f.sessions, products, f.shops, f.orders,
		orderService, subService, kycService,
	)
	return f
}

// deliver hands the fixture a verified event; signature checking itself is
// covered in the client package.
func (f *webhookFixture) deliver(t *testing.T, id, eventType string, object interface{}) error {
	t.Helper()
	payload, err := json.Marshal(object)
	require.NoError(t, err)
	f.stripe.verifyEvent = &model.StripeEvent{
		ID:      id,
		Type:    eventType,
		Created: time.Now().Unix(),
		Data:    model.StripeEventData{Object: payload},
	}
	return f.service.HandleWebhook(context.Background(), []byte("{}"), "t=0,v1=sig")
}

func (f *webhookFixture) seedPaidSession(t *testing.T, cycle string) *model.CheckoutSession {
	t.Helper()
	session := &model.CheckoutSession{
		ID:                "cs_1700000000000_abcdefghi",
		ProductID:         "prod_1",
		ShopID:            "shop_1",
		BillingCycle:      cycle,
		Quantity:          1,
		ProductPriceCents: 5000,
		ShippingCostCents: 599,
		TotalAmountCents:  5599,
		CustomerUserID:    "user_cust",
		CustomerEmail:     "buyer@example.com",
		CustomerName:      "Buyer",
		CurrentStep:       4,
		Status:            model.SessionPending,
		StripeSessionID:   "cs_test_1",
		ExpiresAt:         time.Now().Add(time.Hour),
	}
	require.NoError(t, f.sessions.Create(context.Background(), session))
	return session
}

func TestHandleWebhookSignatureFailure(t *testing.T) {
	f := newWebhookFixture(physicalProduct(), readyShop())
	f.stripe.verifyErr = fmt.Errorf("webhook signature mismatch")

	err := f.service.HandleWebhook(context.Background(), []byte("{}"), "t=0,v1=bad")
	require.Error(t, err)
	assert.True(t, apperr.IsBadRequest(err))
	assert.Empty(t, f.events.processed)
}

func TestHandleWebhookIdempotency(t *testing.T) {
	f := newWebhookFixture(physicalProduct(), readyShop())
	f.seedPaidSession(t, model.CycleOneTime)

	completed := &model.StripeCheckoutSession{
		ID:       "cs_test_1",
		Metadata: map[string]string{"checkout_session_id": "cs_1700000000000_abcdefghi"},
	}

	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", completed))
	require.Len(t, f.orders.orders, 1)

	// Same event id again: skipped before any dispatch.
	require.NoError(t, f.deliver(t, "evt_1", "checkout.session.completed", completed))
	assert.Len(t, f.orders.orders, 1)

	// A replayed completion under a fresh event id must not double-materialize.
	require.NoError(t, f.deliver(t, "evt_2", "checkout.session.completed", completed))
	assert.Len(t, f.orders.orders, 1)
}

func TestHandleWebhookIgnoredEvent(t *testing.T) {
	f := newWebhookFixture(physicalProduct(), readyShop())

	err := f.deliver(t, "evt_x", "payment_method.attached", map[string]string{"id": "pm_1"})
	require.NoError(t, err)
	assert.Equal(t, "payment_method.attached", f.events.processed["evt_x"])
	assert.Empty(t, f.orders.orders)
}

func TestCheckoutCompletedMaterializesOrder(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(physicalProduct(), readyShop())
	session := f.seedPaidSession(t, model.CycleOneTime)

	err := f.deliver(t, "evt_1", "checkout.session.completed", &model.StripeCheckoutSession{
		ID:       "cs_test_1",
		Metadata: map[string]string{"checkout_session_id": session.ID},
	})
	require.NoError(t, err)

	got, err := f.sessions.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	require.Len(t, f.orders.orders, 1)
	for _, order := range f.orders.orders {
		assert.Equal(t, model.PaymentPaid, order.PaymentStatus)
		assert.Equal(t, int64(5000), order.ProductPriceCents)
		assert.Equal(t, int64(599), order.ShippingCostCents)
		assert.Equal(t, int64(5599), order.TotalAmountCents)
		assert.Equal(t, int64(750), order.PlatformFeeCents, "same fee the charge routed")
		assert.Equal(t, int64(4849), order.ShopRevenueCents)
		assert.Equal(t, "user_cust", order.CustomerUserID)
		require.NotNil(t, order.CheckoutSessionID)
		assert.Equal(t, session.ID, *order.CheckoutSessionID)
	}

	assert.Empty(t, f.subs.subs, "one-time purchases get no subscription")
}

func TestCheckoutCustomerCanActOnMaterializedOrder(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(physicalProduct(), readyShop())
	session := f.seedPaidSession(t, model.CycleOneTime)

	err := f.deliver(t, "evt_1", "checkout.session.completed", &model.StripeCheckoutSession{
		ID:       "cs_test_1",
		Metadata: map[string]string{"checkout_session_id": session.ID},
	})
	require.NoError(t, err)

	var orderID string
	for id := range f.orders.orders {
		orderID = id
	}
	require.NotEmpty(t, orderID)

	orderService := NewOrderService(f.orders)

	// The purchasing customer cancels their own order.
	got, err := orderService.CancelOrder(ctx, customerActor, orderID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.FulfillmentCancelled, got.FulfillmentStatus)

	// A different customer is still locked out.
	f2 := newWebhookFixture(physicalProduct(), readyShop())
	session2 := f2.seedPaidSession(t, model.CycleOneTime)
	err = f2.deliver(t, "evt_1", "checkout.session.completed", &model.StripeCheckoutSession{
		ID:       "cs_test_1",
		Metadata: map[string]string{"checkout_session_id": session2.ID},
	})
	require.NoError(t, err)
	for id := range f2.orders.orders {
		orderID = id
	}
	stranger := &Actor{UserID: "user_stranger", Role: model.RoleCustomer}
	_, err = NewOrderService(f2.orders).CancelOrder(ctx, stranger, orderID, "")
	assert.True(t, apperr.IsForbidden(err))
}

func TestCheckoutCompletedFallsBackToProviderID(t *testing.T) {
	f := newWebhookFixture(physicalProduct(), readyShop())
	f.seedPaidSession(t, model.CycleOneTime)

	// No metadata: the dispatcher matches on the provider's session id.
	err := f.deliver(t, "evt_1", "checkout.session.completed", &model.StripeCheckoutSession{
		ID: "cs_test_1",
	})
	require.NoError(t, err)
	assert.Len(t, f.orders.orders, 1)
}

func TestCheckoutCompletedUnknownSession(t *testing.T) {
	f := newWebhookFixture(physicalProduct(), readyShop())

	err := f.deliver(t, "evt_1", "checkout.session.completed", &model.StripeCheckoutSession{
		ID: "cs_test_unknown",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Empty(t, f.events.processed, "failed events stay unprocessed for redelivery")
}

func TestCheckoutCompletedRecurringCreatesSubscription(t *testing.T) {
	f := newWebhookFixture(physicalProduct(), readyShop())
	session := f.seedPaidSession(t, model.CycleMonthly)

	err := f.deliver(t, "evt_1", "checkout.session.completed", &model.StripeCheckoutSession{
		ID: "cs_test_1",
		Metadata: map[string]string{
			"checkout_session_id": session.ID,
			"subscription_id":     "sub_stripe_9",
		},
	})
	require.NoError(t, err)

	require.Len(t, f.subs.subs, 1)
	for _, sub := range f.subs.subs {
		assert.Equal(t, model.SubActive, sub.Status)
		assert.Equal(t, model.CycleMonthly, sub.BillingCycle)
		assert.Equal(t, "sub_stripe_9", sub.StripeSubscriptionID)
		assert.Equal(t, int64(5599), sub.AmountCents)
		assert.Equal(t, int64(750), sub.PlatformFeeCents)
		assert.Equal(t, "user_cust", sub.CustomerUserID)
		assert.Equal(t, "usd", sub.Currency)
		assert.True(t, sub.RequiresShipping)
	}
}

func TestInvoiceEventsRouteToSubscriptions(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(physicalProduct(), readyShop())

	subService := NewSubscriptionService(f.subs, newFakeProductRepo(physicalProduct()), f.shops, NewOrderService(f.orders), f.stripe)
	sub, err := subService.Create(ctx, monthlySubInput())
	require.NoError(t, err)

	require.NoError(t, f.deliver(t, "evt_1", "invoice.paid", &model.StripeInvoice{
		ID: "in_1", Subscription: "sub_stripe_1",
	}))
	got, _ := f.subs.FindByID(ctx, sub.ID)
	assert.Equal(t, 1, got.RenewalCount)
	assert.Len(t, f.orders.orders, 1, "renewal order materialized")

	require.NoError(t, f.deliver(t, "evt_2", "invoice.payment_failed", &model.StripeInvoice{
		ID: "in_2", Subscription: "sub_stripe_1",
	}))
	got, _ = f.subs.FindByID(ctx, sub.ID)
	assert.Equal(t, model.SubPastDue, got.Status)

	require.NoError(t, f.deliver(t, "evt_3", "customer.subscription.deleted", &model.StripeSubscription{
		ID: "sub_stripe_1",
	}))
	got, _ = f.subs.FindByID(ctx, sub.ID)
	assert.Equal(t, model.SubCancelled, got.Status)
}

func TestAccountUpdatedIsBestEffort(t *testing.T) {
	ctx := context.Background()

	t.Run("updates the shop", func(t *testing.T) {
		shop := readyShop()
		shop.HasValidKyc = false
		shop.ChargesEnabled = false
		f := newWebhookFixture(physicalProduct(), shop)

		err := f.deliver(t, "evt_1", "account.updated", &model.StripeAccount{
			ID:               "acct_1",
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: true,
		})
		require.NoError(t, err)

		got, err := f.shops.FindByID(ctx, "shop_1")
		require.NoError(t, err)
		assert.True(t, got.HasValidKyc)
		assert.True(t, got.ChargesEnabled)
	})

	t.Run("unknown account does not fail the delivery", func(t *testing.T) {
		f := newWebhookFixture(physicalProduct(), readyShop())

		err := f.deliver(t, "evt_1", "account.updated", &model.StripeAccount{ID: "acct_nobody"})
		require.NoError(t, err, "a sync failure is logged, not returned")
		assert.Equal(t, "account.updated", f.events.processed["evt_1"])
	})
}
