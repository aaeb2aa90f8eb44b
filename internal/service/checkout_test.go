package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/util"
)

type checkoutFixture struct {
	service  CheckoutService
	sessions *fakeSessionRepo
	products *fakeProductRepo
	shops    *fakeShopRepo
	stripe   *fakeStripeClient
}

func newCheckoutFixture(product *model.Product, shop *model.Shop) *checkoutFixture {
	f := &checkoutFixture{
		sessions: newFakeSessionRepo(),
		products: newFakeProductRepo(product),
		shops:    newFakeShopRepo(shop),
		stripe:   newFakeStripeClient(),
	}
	f.service = NewCheckoutService(
		f.sessions, f.products, f.shops, newFakeShippingRateRepo(), f.stripe,
		"https://shop.example.com", 24*time.Hour,
	)
	return f
}

func readyShop() *model.Shop {
	return &model.Shop{
		ID:                 "shop_1",
		OwnerUserID:        "user_owner",
		Name:               "Widgets Inc",
		IsActive:           true,
		StripeAccountID:    "acct_1",
		ChargesEnabled:     true,
		HasValidKyc:        true,
		KycStatus:          model.KycApproved,
		PlatformFeePercent: 15,
	}
}

func physicalProduct() *model.Product {
	return &model.Product{
		ID:               "prod_1",
		ShopID:           "shop_1",
		Name:             "Widget",
		BasePriceCents:   5000,
		Currency:         "usd",
		RequiresShipping: true,
		IsActive:         true,
	}
}

func digitalProduct() *model.Product {
	p := physicalProduct()
	p.RequiresShipping = false
	return p
}

func testInformation() *CustomerInformation {
	return &CustomerInformation{
		Email: "buyer@example.com",
		Name:  "Buyer",
		ShippingAddress: model.Address{
			Line1:      "1 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62701",
			Country:    "US",
		},
	}
}

const standardShippingID = "00000000-0000-4000-8000-000000000001"

func TestCreateSession(t *testing.T) {
	f := newCheckoutFixture(physicalProduct(), readyShop())
	ctx := context.Background()

	result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 2)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.SessionID, "cs_"), "token %q", result.SessionID)
	assert.Contains(t, result.CheckoutURL, result.SessionID)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), result.ExpiresAt, time.Minute)

	session, err := f.sessions.FindByID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.CurrentStep)
	assert.Equal(t, model.SessionPending, session.Status)
	assert.Equal(t, int64(10000), session.ProductPriceCents, "2 x $50.00")
}

func TestCreateSessionRejections(t *testing.T) {
	t.Run("unknown billing cycle", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		_, err := f.service.CreateSession(context.Background(), "prod_1", "biweekly", 1)
		assert.True(t, apperr.IsBadRequest(err))
	})

	t.Run("zero quantity", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		_, err := f.service.CreateSession(context.Background(), "prod_1", model.CycleOneTime, 0)
		assert.True(t, apperr.IsBadRequest(err))
	})

	t.Run("unknown product", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		_, err := f.service.CreateSession(context.Background(), "prod_missing", model.CycleOneTime, 1)
		assert.True(t, apperr.IsNotFound(err))
	})

	t.Run("inactive product", func(t *testing.T) {
		p := physicalProduct()
		p.IsActive = false
		f := newCheckoutFixture(p, readyShop())
		_, err := f.service.CreateSession(context.Background(), "prod_1", model.CycleOneTime, 1)
		assert.True(t, apperr.IsBadRequest(err))
	})

	t.Run("shop cannot receive payments", func(t *testing.T) {
		shop := readyShop()
		shop.ChargesEnabled = false
		f := newCheckoutFixture(physicalProduct(), shop)
		_, err := f.service.CreateSession(context.Background(), "prod_1", model.CycleOneTime, 1)
		assert.True(t, apperr.IsBadRequest(err))
	})
}

func TestSaveInformationAdvancesStep(t *testing.T) {
	ctx := context.Background()

	t.Run("physical product moves to shipping-eligible", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)

		session, err := f.service.SaveInformation(ctx, result.SessionID, testInformation())
		require.NoError(t, err)
		assert.Equal(t, 2, session.CurrentStep)
		assert.Equal(t, "buyer@example.com", session.CustomerEmail)
	})

	t.Run("digital product skips shipping", func(t *testing.T) {
		f := newCheckoutFixture(digitalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)

		session, err := f.service.SaveInformation(ctx, result.SessionID, testInformation())
		require.NoError(t, err)
		assert.Equal(t, 3, session.CurrentStep)
	})

	t.Run("signed-in buyer is recorded on the session", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)

		info := testInformation()
		info.UserID = "user_cust"
		session, err := f.service.SaveInformation(ctx, result.SessionID, info)
		require.NoError(t, err)
		assert.Equal(t, "user_cust", session.CustomerUserID)

		// A later guest edit keeps the attribution.
		session, err = f.service.SaveInformation(ctx, result.SessionID, testInformation())
		require.NoError(t, err)
		assert.Equal(t, "user_cust", session.CustomerUserID)
	})
}

func TestStepNeverDecreases(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(physicalProduct(), readyShop())

	result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
	require.NoError(t, err)

	_, err = f.service.SaveInformation(ctx, result.SessionID, testInformation())
	require.NoError(t, err)

	session, err := f.service.SelectShipping(ctx, result.SessionID, standardShippingID)
	require.NoError(t, err)
	require.Equal(t, 3, session.CurrentStep)

	// Going back to edit the email must not rewind progress.
	info := testInformation()
	info.Email = "corrected@example.com"
	session, err = f.service.SaveInformation(ctx, result.SessionID, info)
	require.NoError(t, err)
	assert.Equal(t, 3, session.CurrentStep)
	assert.Equal(t, "corrected@example.com", session.CustomerEmail)
}

func TestSelectShipping(t *testing.T) {
	ctx := context.Background()

	t.Run("default rate updates totals", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)
		_, err = f.service.SaveInformation(ctx, result.SessionID, testInformation())
		require.NoError(t, err)

		session, err := f.service.SelectShipping(ctx, result.SessionID, standardShippingID)
		require.NoError(t, err)
		assert.Equal(t, int64(599), session.ShippingCostCents)
		assert.Equal(t, int64(5599), session.TotalAmountCents)
		assert.Equal(t, "Standard Shipping (5-7 days)", session.ShippingMethodName)
	})

	t.Run("digital product rejects shipping", func(t *testing.T) {
		f := newCheckoutFixture(digitalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)

		_, err = f.service.SelectShipping(ctx, result.SessionID, standardShippingID)
		require.Error(t, err)
		assert.True(t, apperr.IsBadRequest(err))
		assert.Contains(t, err.Error(), "does not require shipping")
	})

	t.Run("unknown rate", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)

		_, err = f.service.SelectShipping(ctx, result.SessionID, "rate_missing")
		assert.True(t, apperr.IsNotFound(err))
	})
}

func TestExpiredSessionIsRejectedEverywhere(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(physicalProduct(), readyShop())

	expired := &model.CheckoutSession{
		ID:                "cs_1700000000000_abcdefghi",
		ProductID:         "prod_1",
		ShopID:            "shop_1",
		BillingCycle:      model.CycleOneTime,
		Quantity:          1,
		ProductPriceCents: 5000,
		TotalAmountCents:  5000,
		CurrentStep:       2,
		Status:            model.SessionPending,
		ExpiresAt:         time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.sessions.Create(ctx, expired))

	_, err := f.service.SaveInformation(ctx, expired.ID, testInformation())
	assert.True(t, apperr.IsBadRequest(err))

	_, err = f.service.SelectShipping(ctx, expired.ID, standardShippingID)
	assert.True(t, apperr.IsBadRequest(err))

	_, err = f.service.CreatePayment(ctx, expired.ID)
	assert.True(t, apperr.IsBadRequest(err))
	assert.Empty(t, f.stripe.checkoutCalls, "an expired session must never reach the processor")
}

func TestCompletedSessionCannotBeMutated(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(physicalProduct(), readyShop())

	result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
	require.NoError(t, err)
	require.NoError(t, f.service.CompleteSession(ctx, result.SessionID, "cs_test_done"))

	_, err = f.service.SaveInformation(ctx, result.SessionID, testInformation())
	assert.True(t, apperr.IsBadRequest(err))
}

func TestCreatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("requires the information step", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)

		_, err = f.service.CreatePayment(ctx, result.SessionID)
		require.Error(t, err)
		assert.True(t, apperr.IsBadRequest(err))
		assert.Empty(t, f.stripe.checkoutCalls)
	})

	t.Run("fee on product subtotal, shipping passes through", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)
		_, err = f.service.SaveInformation(ctx, result.SessionID, testInformation())
		require.NoError(t, err)
		_, err = f.service.SelectShipping(ctx, result.SessionID, standardShippingID)
		require.NoError(t, err)

		payment, err := f.service.CreatePayment(ctx, result.SessionID)
		require.NoError(t, err)

		assert.Equal(t, int64(5000), payment.ProductCents)
		assert.Equal(t, int64(599), payment.ShippingCents)
		assert.Equal(t, int64(750), payment.PlatformFeeCents, "fee applies to the product subtotal only")
		assert.Equal(t, int64(6349), payment.ChargeCents)

		require.Len(t, f.stripe.checkoutCalls, 1)
		params := f.stripe.checkoutCalls[0]
		assert.Equal(t, "acct_1", params.ConnectedAccountID)
		assert.Equal(t, int64(750), params.ApplicationFeeCents)
		assert.Equal(t, result.SessionID, params.Metadata["checkout_session_id"])

		session, err := f.sessions.FindByID(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, 4, session.CurrentStep)
		assert.NotEmpty(t, session.StripeSessionID)
	})

	t.Run("double submission loses the claim", func(t *testing.T) {
		f := newCheckoutFixture(digitalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)
		_, err = f.service.SaveInformation(ctx, result.SessionID, testInformation())
		require.NoError(t, err)

		_, err = f.service.CreatePayment(ctx, result.SessionID)
		require.NoError(t, err)

		_, err = f.service.CreatePayment(ctx, result.SessionID)
		require.Error(t, err)
		assert.True(t, apperr.IsBadRequest(err))
		assert.Len(t, f.stripe.checkoutCalls, 1, "the loser must not reach the processor")
	})

	t.Run("processor failure releases the claim", func(t *testing.T) {
		f := newCheckoutFixture(digitalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)
		_, err = f.service.SaveInformation(ctx, result.SessionID, testInformation())
		require.NoError(t, err)

		f.stripe.checkoutErr = apperr.Provider(assert.AnError, "payment could not be processed, please try again")
		_, err = f.service.CreatePayment(ctx, result.SessionID)
		require.Error(t, err)

		session, err := f.sessions.FindByID(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, model.SessionPending, session.Status, "claim must be released on failure")

		// The retry succeeds once the processor recovers.
		f.stripe.checkoutErr = nil
		_, err = f.service.CreatePayment(ctx, result.SessionID)
		assert.NoError(t, err)
	})

	t.Run("failure counter labels validation and provider errors apart", func(t *testing.T) {
		p := digitalProduct()
		p.BasePriceCents = 0
		f := newCheckoutFixture(p, readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)
		_, err = f.service.SaveInformation(ctx, result.SessionID, testInformation())
		require.NoError(t, err)

		rejectedBefore := testutil.ToFloat64(util.PaymentFailedTotal.WithLabelValues("rejected"))
		providerBefore := testutil.ToFloat64(util.PaymentFailedTotal.WithLabelValues("provider"))

		_, err = f.service.CreatePayment(ctx, result.SessionID)
		require.Error(t, err)
		assert.True(t, apperr.IsBadRequest(err))

		assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(util.PaymentFailedTotal.WithLabelValues("rejected")))
		assert.Equal(t, providerBefore, testutil.ToFloat64(util.PaymentFailedTotal.WithLabelValues("provider")))

		f2 := newCheckoutFixture(digitalProduct(), readyShop())
		result2, err := f2.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)
		_, err = f2.service.SaveInformation(ctx, result2.SessionID, testInformation())
		require.NoError(t, err)

		f2.stripe.checkoutErr = apperr.Provider(assert.AnError, "payment could not be processed, please try again")
		_, err = f2.service.CreatePayment(ctx, result2.SessionID)
		require.Error(t, err)

		assert.Equal(t, providerBefore+1, testutil.ToFloat64(util.PaymentFailedTotal.WithLabelValues("provider")))
	})
}

func TestAbandonSession(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(digitalProduct(), readyShop())

	result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
	require.NoError(t, err)

	require.NoError(t, f.service.AbandonSession(ctx, result.SessionID))

	session, err := f.sessions.FindByID(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionAbandoned, session.Status)

	// A second abandon is no longer pending.
	err = f.service.AbandonSession(ctx, result.SessionID)
	assert.True(t, apperr.IsBadRequest(err))
}

func TestCleanupExpiredSessions(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture(physicalProduct(), readyShop())

	stale := &model.CheckoutSession{
		ID:        "cs_1_stale",
		ProductID: "prod_1", ShopID: "shop_1",
		BillingCycle: model.CycleOneTime, Quantity: 1,
		Status:    model.SessionPending,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	fresh := &model.CheckoutSession{
		ID:        "cs_2_fresh",
		ProductID: "prod_1", ShopID: "shop_1",
		BillingCycle: model.CycleOneTime, Quantity: 1,
		Status:    model.SessionPending,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	completedStale := &model.CheckoutSession{
		ID:        "cs_3_done",
		ProductID: "prod_1", ShopID: "shop_1",
		BillingCycle: model.CycleOneTime, Quantity: 1,
		Status:    model.SessionCompleted,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	for _, s := range []*model.CheckoutSession{stale, fresh, completedStale} {
		require.NoError(t, f.sessions.Create(ctx, s))
	}

	swept, err := f.service.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	got, _ := f.sessions.FindByID(ctx, "cs_1_stale")
	assert.Equal(t, model.SessionExpired, got.Status)
	got, _ = f.sessions.FindByID(ctx, "cs_2_fresh")
	assert.Equal(t, model.SessionPending, got.Status)
	got, _ = f.sessions.FindByID(ctx, "cs_3_done")
	assert.Equal(t, model.SessionCompleted, got.Status, "completed sessions are left alone")
}

func TestGetPublicCheckoutData(t *testing.T) {
	ctx := context.Background()

	t.Run("ready shop", func(t *testing.T) {
		f := newCheckoutFixture(physicalProduct(), readyShop())
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)

		data, err := f.service.GetPublicCheckoutData(ctx, result.SessionID)
		require.NoError(t, err)
		assert.True(t, data.ShopReady)
		assert.Equal(t, "Widget", data.ProductName)
		assert.Equal(t, "Widgets Inc", data.ShopName)
	})

	t.Run("shop loses readiness after session creation", func(t *testing.T) {
		shop := readyShop()
		f := newCheckoutFixture(physicalProduct(), shop)
		result, err := f.service.CreateSession(ctx, "prod_1", model.CycleOneTime, 1)
		require.NoError(t, err)

		// Capabilities get revoked between creation and page load.
		f.shops.shops["shop_1"].ChargesEnabled = false

		data, err := f.service.GetPublicCheckoutData(ctx, result.SessionID)
		require.NoError(t, err, "a not-ready shop is a state, not an error")
		assert.False(t, data.ShopReady)
		assert.NotEmpty(t, data.Message)
	})
}
