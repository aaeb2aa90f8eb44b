package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/client"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/money"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/repository"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/util"
)

// Checkout steps. CurrentStep never decreases over a session's lifetime.
const (
	stepCreated     = 1
	stepInformation = 2
	stepShipping    = 3
	stepPayment     = 4
)

// Fallback rates for products without a configured shipping zone, keyed by
// fixed sentinel ids.
var defaultShippingRates = map[string]*model.ShippingRate{
	"00000000-0000-4000-8000-000000000001": {
		ID:          "00000000-0000-4000-8000-000000000001",
		Name:        "Standard Shipping (5-7 days)",
		AmountCents: 599,
		Currency:    "usd",
	},
	"00000000-0000-4000-8000-000000000002": {
		ID:          "00000000-0000-4000-8000-000000000002",
		Name:        "Express Shipping (2-3 days)",
		AmountCents: 1299,
		Currency:    "usd",
	},
	"00000000-0000-4000-8000-000000000003": {
		ID:          "00000000-0000-4000-8000-000000000003",
		Name:        "Overnight Shipping",
		AmountCents: 2499,
		Currency:    "usd",
	},
}

type CustomerInformation struct {
	// UserID is the authenticated customer's id when the request carried a
	// valid token; empty for guest checkouts.
	UserID string
	Email  string
	Name   string
	Phone  string

	ShippingAddress model.Address
	Note            string
}

type CreateSessionResult struct {
	SessionID   string
	CheckoutURL string
	ExpiresAt   time.Time
}

type PaymentResult struct {
	SessionID        string
	PaymentURL       string
	StripeSessionID  string
	ProductCents     int64
	ShippingCents    int64
	PlatformFeeCents int64
	ChargeCents      int64
}

type CheckoutSummary struct {
	Session     *model.CheckoutSession
	ProductName string
	ShopName    string
}

// PublicCheckoutData is the unauthenticated projection served to the
// customer-facing checkout page. ShopReady=false is a legitimate business
// state (shop KYC not complete yet), not a failure.
type PublicCheckoutData struct {
	Session     *model.CheckoutSession
	ProductName string
	ShopName    string
	ShopReady   bool
	Message     string
}

type CheckoutService interface {
	CreateSession(ctx context.Context, productID, billingCycle string, quantity int) (*CreateSessionResult, error)
	SaveInformation(ctx context.Context, sessionID string, info *CustomerInformation) (*model.CheckoutSession, error)
	SelectShipping(ctx context.Context, sessionID, shippingRateID string) (*model.CheckoutSession, error)
	CreatePayment(ctx context.Context, sessionID string) (*PaymentResult, error)
	GetSummary(ctx context.Context, sessionID string) (*CheckoutSummary, error)
	GetPublicCheckoutData(ctx context.Context, sessionID string) (*PublicCheckoutData, error)
	ExpireSession(ctx context.Context, sessionID string) error
	AbandonSession(ctx context.Context, sessionID string) error
	CompleteSession(ctx context.Context, sessionID, stripeSessionID string) error
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

type checkoutServiceImpl struct {
	sessionRepo      repository.CheckoutSessionRepository
	productRepo      repository.ProductRepository
	shopRepo         repository.ShopRepository
	shippingRateRepo repository.ShippingRateRepository
	stripeClient     client.StripeClient
	frontendBaseURL  string
	sessionTTL       time.Duration
}

func NewCheckoutService(
	sessionRepo repository.CheckoutSessionRepository,
	productRepo repository.ProductRepository,
	shopRepo repository.ShopRepository,
	shippingRateRepo repository.ShippingRateRepository,
	stripeClient client.StripeClient,
	frontendBaseURL string,
	sessionTTL time.Duration,
) CheckoutService {
	return &checkoutServiceImpl{
		sessionRepo:      sessionRepo,
		productRepo:      productRepo,
		shopRepo:         shopRepo,
		shippingRateRepo: shippingRateRepo,
		stripeClient:     stripeClient,
		frontendBaseURL:  frontendBaseURL,
		sessionTTL:       sessionTTL,
	}
}

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func newSessionToken() string {
	tail := make([]byte, 9)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range tail {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the process is in a bad state
			panic(fmt.Sprintf("read random: %v", err))
		}
		tail[i] = tokenAlphabet[n.Int64()]
	}
	return fmt.Sprintf("cs_%d_%s", time.Now().UnixMilli(), tail)
}

func validBillingCycle(cycle string) bool {
	switch cycle {
	case model.CycleOneTime, model.CycleWeekly, model.CycleMonthly, model.CycleYearly:
		return true
	}
	return false
}

func (s *checkoutServiceImpl) CreateSession(ctx context.Context, productID, billingCycle string, quantity int) (*CreateSessionResult, error) {
	if !validBillingCycle(billingCycle) {
		return nil, apperr.BadRequest("unknown billing cycle %q", billingCycle)
	}
	if quantity <= 0 {
		return nil, apperr.BadRequest("quantity must be positive")
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, fmt.Errorf("find product: %w", err)
	}
	if !product.IsActive {
		return nil, apperr.BadRequest("product is not available for purchase")
	}

	shop, err := s.shopRepo.FindByID(ctx, product.ShopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("shop not found")
		}
		return nil, fmt.Errorf("find shop: %w", err)
	}
	if !shop.IsActive {
		return nil, apperr.BadRequest("shop is not active")
	}
	if !shop.CanReceivePayments() {
		return nil, apperr.BadRequest("shop is not able to accept payments yet")
	}

	unitPrice := money.PriceForCycle(product, billingCycle)
	subtotal := unitPrice * int64(quantity)

	session := &model.CheckoutSession{
		ID:                newSessionToken(),
		ProductID:         product.ID,
		ShopID:            shop.ID,
		BillingCycle:      billingCycle,
		Quantity:          quantity,
		ProductPriceCents: subtotal,
		TotalAmountCents:  subtotal,
		CurrentStep:       stepCreated,
		Status:            model.SessionPending,
		ExpiresAt:         time.Now().Add(s.sessionTTL),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("store checkout session: %w", err)
	}

	util.CheckoutSessionsCreatedTotal.Inc()
	zap.L().Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("product_id", product.ID),
		zap.String("billing_cycle", billingCycle))

	return &CreateSessionResult{
		SessionID:   session.ID,
		CheckoutURL: fmt.Sprintf("%s/checkout/%s", s.frontendBaseURL, session.ID),
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// validateSession is the shared precondition gate for every mutating
// operation: the session must exist, be unexpired, and not be completed.
func (s *checkoutServiceImpl) validateSession(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("checkout session not found")
		}
		return nil, fmt.Errorf("find checkout session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, apperr.BadRequest("checkout session has expired")
	}
	if session.Status == model.SessionCompleted {
		return nil, apperr.BadRequest("checkout session is already completed")
	}

	return session, nil
}

func (s *checkoutServiceImpl) SaveInformation(ctx context.Context, sessionID string, info *CustomerInformation) (*model.CheckoutSession, error) {
	session, err := s.validateSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, session.ProductID)
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}

	// Physical products go through the shipping step next; digital ones
	// jump straight to payment-eligible.
	nextStep := stepShipping
	if product.RequiresShipping {
		nextStep = stepInformation
	}
	if session.CurrentStep > nextStep {
		nextStep = session.CurrentStep
	}

	updates := map[string]interface{}{
		"customer_email":   info.Email,
		"customer_name":    info.Name,
		"customer_phone":   info.Phone,
		"ship_line1":       info.ShippingAddress.Line1,
		"ship_line2":       info.ShippingAddress.Line2,
		"ship_city":        info.ShippingAddress.City,
		"ship_state":       info.ShippingAddress.State,
		"ship_postal_code": info.ShippingAddress.PostalCode,
		"ship_country":     info.ShippingAddress.Country,
		"customer_note":    info.Note,
		"current_step":     nextStep,
	}
	// Never clear an earlier attribution when a later edit comes in as guest.
	if info.UserID != "" {
		updates["customer_user_id"] = info.UserID
	}
	if err := s.sessionRepo.Update(ctx, session.ID, updates); err != nil {
		return nil, fmt.Errorf("update checkout session: %w", err)
	}

	return s.sessionRepo.FindByID(ctx, session.ID)
}

func (s *checkoutServiceImpl) resolveShippingRate(ctx context.Context, rateID string) (*model.ShippingRate, error) {
	if rate, ok := defaultShippingRates[rateID]; ok {
		return rate, nil
	}

	rate, err := s.shippingRateRepo.FindByID(ctx, rateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("shipping rate not found")
		}
		return nil, fmt.Errorf("find shipping rate: %w", err)
	}
	return rate, nil
}

func (s *checkoutServiceImpl) SelectShipping(ctx context.Context, sessionID, shippingRateID string) (*model.CheckoutSession, error) {
	session, err := s.validateSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.FindByID(ctx, session.ProductID)
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	if !product.RequiresShipping {
		return nil, apperr.BadRequest("product does not require shipping")
	}

	rate, err := s.resolveShippingRate(ctx, shippingRateID)
	if err != nil {
		return nil, err
	}

	nextStep := stepShipping
	if session.CurrentStep > nextStep {
		nextStep = session.CurrentStep
	}

	updates := map[string]interface{}{
		"shipping_rate_id":     rate.ID,
		"shipping_method_name": rate.Name,
		"shipping_cost_cents":  rate.AmountCents,
		"total_amount_cents":   session.ProductPriceCents + rate.AmountCents,
		"current_step":         nextStep,
	}
	if err := s.sessionRepo.Update(ctx, session.ID, updates); err != nil {
		return nil, fmt.Errorf("update checkout session: %w", err)
	}

	return s.sessionRepo.FindByID(ctx, session.ID)
}

func (s *checkoutServiceImpl) CreatePayment(ctx context.Context, sessionID string) (*PaymentResult, error) {
	session, err := s.validateSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.CurrentStep < stepInformation {
		return nil, apperr.BadRequest("customer information must be saved before creating a payment")
	}

	util.PaymentAttemptsTotal.Inc()

	// Claim the session so two concurrent payment calls cannot both reach
	// the processor. The loser of the conditional update gets rejected.
	claimed, err := s.sessionRepo.ClaimForPayment(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("claim checkout session: %w", err)
	}
	if !claimed {
		util.PaymentFailedTotal.WithLabelValues("already_processing").Inc()
		return nil, apperr.BadRequest("a payment is already in progress for this checkout session")
	}

	result, err := s.createPaymentLocked(ctx, session)
	if err != nil {
		if relErr := s.sessionRepo.ReleaseClaim(ctx, session.ID); relErr != nil {
			zap.L().Error("release payment claim",
				zap.String("session_id", session.ID),
				zap.Error(relErr))
		}
		util.PaymentFailedTotal.WithLabelValues(paymentFailureReason(err)).Inc()
		return nil, err
	}

	return result, nil
}

// paymentFailureReason labels the failure counter by error class so local
// validation rejections are not counted against the provider.
func paymentFailureReason(err error) string {
	kind, ok := apperr.KindOf(err)
	if !ok {
		return "internal"
	}
	switch kind {
	case apperr.KindProvider:
		return "provider"
	case apperr.KindBadRequest:
		return "rejected"
	case apperr.KindNotFound:
		return "not_found"
	}
	return "internal"
}

func (s *checkoutServiceImpl) createPaymentLocked(ctx context.Context, session *model.CheckoutSession) (*PaymentResult, error) {
	// Recompute all amounts from current product and rate state. The
	// session's stored copy may predate a price change.
	product, err := s.productRepo.FindByID(ctx, session.ProductID)
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	shop, err := s.shopRepo.FindByID(ctx, session.ShopID)
	if err != nil {
		return nil, fmt.Errorf("find shop: %w", err)
	}

	productCents := money.PriceForCycle(product, session.BillingCycle) * int64(session.Quantity)

	var shippingCents int64
	shippingName := ""
	if product.RequiresShipping && session.ShippingRateID != nil {
		rate, err := s.resolveShippingRate(ctx, *session.ShippingRateID)
		if err != nil {
			return nil, err
		}
		shippingCents = rate.AmountCents
		shippingName = rate.Name
	}

	// Platform fee on the product subtotal only; shipping passes through
	// to the shop uncommissioned.
	feeCents := money.PlatformFee(productCents, shop.PlatformFeePercent)
	chargeCents := productCents + shippingCents + feeCents

	if chargeCents <= 0 {
		return nil, apperr.BadRequest("payment amount must be positive")
	}

	lineItems := []client.LineItem{
		{Name: product.Name, AmountCents: productCents, Quantity: 1},
	}
	if shippingCents > 0 {
		lineItems = append(lineItems, client.LineItem{Name: shippingName, AmountCents: shippingCents, Quantity: 1})
	}
	lineItems = append(lineItems, client.LineItem{Name: "Platform fee", AmountCents: feeCents, Quantity: 1})

	params := &client.CheckoutSessionParams{
		LineItems:  lineItems,
		Currency:   product.Currency,
		SuccessURL: fmt.Sprintf("%s/checkout/success?session_id=%s", s.frontendBaseURL, session.ID),
		CancelURL:  fmt.Sprintf("%s/checkout/cancel?session_id=%s", s.frontendBaseURL, session.ID),
		Metadata: map[string]string{
			"checkout_session_id": session.ID,
			"shop_id":             shop.ID,
		},
	}
	if shop.StripeAccountID != "" && shop.ChargesEnabled {
		params.ConnectedAccountID = shop.StripeAccountID
		params.ApplicationFeeCents = feeCents
	}

	stripeSession, err := s.stripeClient.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"product_price_cents":      productCents,
		"shipping_cost_cents":      shippingCents,
		"total_amount_cents":       productCents + shippingCents,
		"stripe_session_id":        stripeSession.ID,
		"stripe_payment_intent_id": stripeSession.PaymentIntent,
		"current_step":             stepPayment,
	}
	if err := s.sessionRepo.Update(ctx, session.ID, updates); err != nil {
		return nil, fmt.Errorf("update checkout session: %w", err)
	}

	zap.L().Info("payment created",
		zap.String("session_id", session.ID),
		zap.String("stripe_session_id", stripeSession.ID),
		zap.Int64("charge_cents", chargeCents))

	return &PaymentResult{
		SessionID:        session.ID,
		PaymentURL:       stripeSession.URL,
		StripeSessionID:  stripeSession.ID,
		ProductCents:     productCents,
		ShippingCents:    shippingCents,
		PlatformFeeCents: feeCents,
		ChargeCents:      chargeCents,
	}, nil
}

func (s *checkoutServiceImpl) GetSummary(ctx context.Context, sessionID string) (*CheckoutSummary, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("checkout session not found")
		}
		return nil, fmt.Errorf("find checkout session: %w", err)
	}

	summary := &CheckoutSummary{Session: session}

	if product, err := s.productRepo.FindByID(ctx, session.ProductID); err == nil {
		summary.ProductName = product.Name
	}
	if shop, err := s.shopRepo.FindByID(ctx, session.ShopID); err == nil {
		summary.ShopName = shop.Name
	}

	return summary, nil
}

func (s *checkoutServiceImpl) GetPublicCheckoutData(ctx context.Context, sessionID string) (*PublicCheckoutData, error) {
	summary, err := s.GetSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	data := &PublicCheckoutData{
		Session:     summary.Session,
		ProductName: summary.ProductName,
		ShopName:    summary.ShopName,
		ShopReady:   true,
	}

	shop, err := s.shopRepo.FindByID(ctx, summary.Session.ShopID)
	if err == nil && !shop.CanReceivePayments() {
		data.ShopReady = false
		data.Message = "this shop is not ready to accept payments yet"
	}

	return data, nil
}

func (s *checkoutServiceImpl) ExpireSession(ctx context.Context, sessionID string) error {
	err := s.sessionRepo.MarkExpired(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("checkout session not found")
	}
	if err == nil {
		util.CheckoutSessionsExpiredTotal.Inc()
	}
	return err
}

func (s *checkoutServiceImpl) AbandonSession(ctx context.Context, sessionID string) error {
	session, err := s.validateSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != model.SessionPending {
		return apperr.BadRequest("only pending checkout sessions can be abandoned")
	}

	return s.sessionRepo.Update(ctx, session.ID, map[string]interface{}{
		"status": model.SessionAbandoned,
	})
}

func (s *checkoutServiceImpl) CompleteSession(ctx context.Context, sessionID, stripeSessionID string) error {
	err := s.sessionRepo.MarkCompleted(ctx, sessionID, stripeSessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("checkout session not found")
	}
	return err
}

func (s *checkoutServiceImpl) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	swept, err := s.sessionRepo.ExpireStale(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", err)
	}
	if swept > 0 {
		util.CheckoutSessionsExpiredTotal.Add(float64(swept))
		zap.L().Info("expired stale checkout sessions", zap.Int64("count", swept))
	}
	return swept, nil
}
