package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/client"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/repository"
)

// In-memory fakes for the repository and processor interfaces. Update maps
// mirror the column names the services write.

func asTime(v interface{}) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	}
	return nil
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// ---- products ----

type fakeProductRepo struct {
	products map[string]*model.Product
}

func newFakeProductRepo(products ...*model.Product) *fakeProductRepo {
	r := &fakeProductRepo{products: map[string]*model.Product{}}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *fakeProductRepo) FindByID(_ context.Context, id string) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

// ---- shipping rates ----

type fakeShippingRateRepo struct {
	rates map[string]*model.ShippingRate
}

func newFakeShippingRateRepo(rates ...*model.ShippingRate) *fakeShippingRateRepo {
	r := &fakeShippingRateRepo{rates: map[string]*model.ShippingRate{}}
	for _, rate := range rates {
		r.rates[rate.ID] = rate
	}
	return r
}

func (r *fakeShippingRateRepo) FindByID(_ context.Context, id string) (*model.ShippingRate, error) {
	rate, ok := r.rates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *rate
	return &cp, nil
}

// ---- shops ----

type fakeShopRepo struct {
	shops map[string]*model.Shop
}

func newFakeShopRepo(shops ...*model.Shop) *fakeShopRepo {
	r := &fakeShopRepo{shops: map[string]*model.Shop{}}
	for _, s := range shops {
		r.shops[s.ID] = s
	}
	return r
}

func (r *fakeShopRepo) FindByID(_ context.Context, id string) (*model.Shop, error) {
	s, ok := r.shops[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeShopRepo) FindByStripeAccountID(_ context.Context, accountID string) (*model.Shop, error) {
	for _, s := range r.shops {
		if s.StripeAccountID == accountID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeShopRepo) FindAllWithStripeAccount(_ context.Context) ([]*model.Shop, error) {
	var out []*model.Shop
	for _, s := range r.shops {
		if s.StripeAccountID != "" {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeShopRepo) SetStripeAccountID(_ context.Context, shopID, accountID string) error {
	s, ok := r.shops[shopID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.StripeAccountID = accountID
	return nil
}

func (r *fakeShopRepo) UpdateCapabilities(_ context.Context, shopID string, u *repository.ShopCapabilityUpdate) error {
	s, ok := r.shops[shopID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.ChargesEnabled = u.ChargesEnabled
	s.PayoutsEnabled = u.PayoutsEnabled
	s.OnboardingComplete = u.OnboardingComplete
	s.KycStatus = u.KycStatus
	s.HasValidKyc = u.HasValidKyc
	return nil
}

// ---- checkout sessions ----

type fakeSessionRepo struct {
	sessions map[string]*model.CheckoutSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*model.CheckoutSession{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *model.CheckoutSession) error {
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id string) (*model.CheckoutSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) FindByStripeSessionID(_ context.Context, stripeID string) (*model.CheckoutSession, error) {
	for _, s := range r.sessions {
		if s.StripeSessionID == stripeID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) Update(_ context.Context, id string, updates map[string]interface{}) error {
	s, ok := r.sessions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "customer_user_id":
			s.CustomerUserID = v.(string)
		case "customer_email":
			s.CustomerEmail = v.(string)
		case "customer_name":
			s.CustomerName = v.(string)
		case "customer_phone":
			s.CustomerPhone = v.(string)
		case "ship_line1":
			s.ShippingAddress.Line1 = v.(string)
		case "ship_line2":
			s.ShippingAddress.Line2 = v.(string)
		case "ship_city":
			s.ShippingAddress.City = v.(string)
		case "ship_state":
			s.ShippingAddress.State = v.(string)
		case "ship_postal_code":
			s.ShippingAddress.PostalCode = v.(string)
		case "ship_country":
			s.ShippingAddress.Country = v.(string)
		case "customer_note":
			s.CustomerNote = v.(string)
		case "current_step":
			s.CurrentStep = v.(int)
		case "status":
			s.Status = v.(string)
		case "shipping_rate_id":
			id := v.(string)
			s.ShippingRateID = &id
		case "shipping_method_name":
			s.ShippingMethodName = v.(string)
		case "shipping_cost_cents":
			s.ShippingCostCents = asInt64(v)
		case "product_price_cents":
			s.ProductPriceCents = asInt64(v)
		case "total_amount_cents":
			s.TotalAmountCents = asInt64(v)
		case "stripe_session_id":
			s.StripeSessionID = v.(string)
		case "stripe_payment_intent_id":
			s.StripePaymentIntentID = v.(string)
		}
	}
	return nil
}

func (r *fakeSessionRepo) ClaimForPayment(_ context.Context, id string) (bool, error) {
	s, ok := r.sessions[id]
	if !ok {
		return false, nil
	}
	if s.Status != model.SessionPending || s.CurrentStep < 2 {
		return false, nil
	}
	s.Status = model.SessionProcessing
	return true, nil
}

func (r *fakeSessionRepo) ReleaseClaim(_ context.Context, id string) error {
	s, ok := r.sessions[id]
	if ok && s.Status == model.SessionProcessing {
		s.Status = model.SessionPending
	}
	return nil
}

func (r *fakeSessionRepo) MarkCompleted(_ context.Context, id, stripeID string) error {
	s, ok := r.sessions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	s.Status = model.SessionCompleted
	s.StripeSessionID = stripeID
	s.CompletedAt = &now
	return nil
}

func (r *fakeSessionRepo) MarkExpired(_ context.Context, id string) error {
	s, ok := r.sessions[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Status = model.SessionExpired
	return nil
}

func (r *fakeSessionRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, s := range r.sessions {
		if s.Status == model.SessionPending && s.ExpiresAt.Before(now) {
			s.Status = model.SessionExpired
			n++
		}
	}
	return n, nil
}

// ---- orders ----

type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*model.Order
	numbers map[string]bool
	items   map[string][]*model.OrderItem
	audit   map[string][]*model.OrderAuditEntry
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:  map[string]*model.Order{},
		numbers: map[string]bool{},
		items:   map[string][]*model.OrderItem{},
		audit:   map[string][]*model.OrderAuditEntry{},
	}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *model.Order, items []*model.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numbers[o.OrderNumber] {
		return gorm.ErrDuplicatedKey
	}
	r.numbers[o.OrderNumber] = true
	cp := *o
	r.orders[o.ID] = &cp
	r.items[o.ID] = items
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) FindByCheckoutSessionID(_ context.Context, sessionID string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.CheckoutSessionID != nil && *o.CheckoutSessionID == sessionID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeOrderRepo) Update(_ context.Context, id string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "payment_status":
			o.PaymentStatus = v.(string)
		case "fulfillment_status":
			o.FulfillmentStatus = v.(string)
		case "tracking_number":
			o.TrackingNumber = v.(string)
		case "carrier":
			o.Carrier = v.(string)
		case "estimated_delivery":
			o.EstimatedDelivery = asTime(v)
		case "fulfilled_at":
			o.FulfilledAt = asTime(v)
		case "shipped_at":
			o.ShippedAt = asTime(v)
		case "delivered_at":
			o.DeliveredAt = asTime(v)
		case "cancelled_at":
			o.CancelledAt = asTime(v)
		}
	}
	return nil
}

func (r *fakeOrderRepo) GetItems(_ context.Context, orderID string) ([]*model.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[orderID], nil
}

func (r *fakeOrderRepo) AppendAudit(_ context.Context, e *model.OrderAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.CreatedAt = time.Now()
	r.audit[e.OrderID] = append(r.audit[e.OrderID], e)
	return nil
}

func (r *fakeOrderRepo) GetAuditLog(_ context.Context, orderID string) ([]*model.OrderAuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audit[orderID], nil
}

// ---- kyc ----

type fakeKycRepo struct {
	verifications map[string]*model.KycVerification
	documents     map[string][]*model.KycDocument
}

func newFakeKycRepo() *fakeKycRepo {
	return &fakeKycRepo{
		verifications: map[string]*model.KycVerification{},
		documents:     map[string][]*model.KycDocument{},
	}
}

func (r *fakeKycRepo) CreateVerification(_ context.Context, v *model.KycVerification) error {
	v.CreatedAt = time.Now()
	cp := *v
	r.verifications[v.ID] = &cp
	return nil
}

func (r *fakeKycRepo) FindVerificationByID(_ context.Context, id string) (*model.KycVerification, error) {
	v, ok := r.verifications[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeKycRepo) FindLatestByShop(_ context.Context, shopID string) (*model.KycVerification, error) {
	var latest *model.KycVerification
	for _, v := range r.verifications {
		if v.ShopID != shopID {
			continue
		}
		if latest == nil || v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeKycRepo) HasPendingVerification(_ context.Context, shopID string) (bool, error) {
	for _, v := range r.verifications {
		if v.ShopID == shopID && v.Status == model.KycPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeKycRepo) UpdateVerification(_ context.Context, id string, updates map[string]interface{}) error {
	v, ok := r.verifications[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, val := range updates {
		switch k {
		case "status":
			v.Status = val.(string)
		case "requested_info":
			v.RequestedInfo = val.(string)
		case "rejection_reason":
			v.RejectionReason = val.(string)
		case "requirements_json":
			v.RequirementsJSON = val.(string)
		case "capabilities_json":
			v.CapabilitiesJSON = val.(string)
		case "submitted_at":
			v.SubmittedAt = asTime(val)
		case "verified_at":
			v.VerifiedAt = asTime(val)
		case "rejected_at":
			v.RejectedAt = asTime(val)
		}
	}
	return nil
}

func (r *fakeKycRepo) AddDocument(_ context.Context, d *model.KycDocument) error {
	r.documents[d.VerificationID] = append(r.documents[d.VerificationID], d)
	return nil
}

func (r *fakeKycRepo) GetDocuments(_ context.Context, verificationID string) ([]*model.KycDocument, error) {
	return r.documents[verificationID], nil
}

// ---- subscriptions ----

type fakeSubscriptionRepo struct {
	subs map[string]*model.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: map[string]*model.Subscription{}}
}

func (r *fakeSubscriptionRepo) Create(_ context.Context, s *model.Subscription) error {
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *fakeSubscriptionRepo) FindByID(_ context.Context, id string) (*model.Subscription, error) {
	s, ok := r.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSubscriptionRepo) FindByStripeSubscriptionID(_ context.Context, stripeID string) (*model.Subscription, error) {
	for _, s := range r.subs {
		if s.StripeSubscriptionID == stripeID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSubscriptionRepo) Update(_ context.Context, id string, updates map[string]interface{}) error {
	s, ok := r.subs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			s.Status = v.(string)
		case "cancel_at_period_end":
			s.CancelAtPeriodEnd = v.(bool)
		case "cancelled_at":
			s.CancelledAt = asTime(v)
		case "pause_reason":
			s.PauseReason = v.(string)
		case "resume_at":
			s.ResumeAt = asTime(v)
		case "current_period_start":
			if t := asTime(v); t != nil {
				s.CurrentPeriodStart = *t
			}
		case "current_period_end":
			if t := asTime(v); t != nil {
				s.CurrentPeriodEnd = *t
			}
		case "renewal_count":
			s.RenewalCount = v.(int)
		case "billing_cycle":
			s.BillingCycle = v.(string)
		case "amount_cents":
			s.AmountCents = asInt64(v)
		case "platform_fee_cents":
			s.PlatformFeeCents = asInt64(v)
		case "shop_revenue_cents":
			s.ShopRevenueCents = asInt64(v)
		}
	}
	return nil
}

// ---- webhook events ----

type fakeWebhookEventRepo struct {
	processed map[string]string
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{processed: map[string]string{}}
}

func (r *fakeWebhookEventRepo) Exists(_ context.Context, eventID string) (bool, error) {
	_, ok := r.processed[eventID]
	return ok, nil
}

func (r *fakeWebhookEventRepo) MarkProcessed(_ context.Context, eventID, eventType string) error {
	r.processed[eventID] = eventType
	return nil
}

// ---- payment processor ----

type fakeStripeClient struct {
	checkoutCalls []*client.CheckoutSessionParams
	checkoutErr   error

	accounts    map[string]*model.StripeAccount
	nextAccount *model.StripeAccount

	verifyEvent *model.StripeEvent
	verifyErr   error

	cancelledSubs []string
	uploadedFiles []string
}

func newFakeStripeClient() *fakeStripeClient {
	return &fakeStripeClient{accounts: map[string]*model.StripeAccount{}}
}

func (c *fakeStripeClient) CreateCheckoutSession(_ context.Context, params *client.CheckoutSessionParams) (*model.StripeCheckoutSession, error) {
	if c.checkoutErr != nil {
		return nil, c.checkoutErr
	}
	c.checkoutCalls = append(c.checkoutCalls, params)
	return &model.StripeCheckoutSession{
		ID:            fmt.Sprintf("cs_test_%d", len(c.checkoutCalls)),
		URL:           "https://pay.example.com/c/session",
		PaymentIntent: "pi_test_1",
	}, nil
}

func (c *fakeStripeClient) CreateAccount(_ context.Context, _ *client.AccountParams) (*model.StripeAccount, error) {
	acct := c.nextAccount
	if acct == nil {
		acct = &model.StripeAccount{ID: "acct_test_1"}
	}
	c.accounts[acct.ID] = acct
	return acct, nil
}

func (c *fakeStripeClient) UpdateAccount(_ context.Context, accountID string, _ *client.AccountParams) error {
	if _, ok := c.accounts[accountID]; !ok {
		c.accounts[accountID] = &model.StripeAccount{ID: accountID}
	}
	return nil
}

func (c *fakeStripeClient) RetrieveAccount(_ context.Context, accountID string) (*model.StripeAccount, error) {
	acct, ok := c.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("no such account %s", accountID)
	}
	return acct, nil
}

func (c *fakeStripeClient) CreateAccountLink(_ context.Context, accountID, returnURL, _ string) (*model.StripeAccountLink, error) {
	return &model.StripeAccountLink{URL: "https://connect.example.com/setup/" + accountID}, nil
}

func (c *fakeStripeClient) CancelSubscription(_ context.Context, subscriptionID string) error {
	c.cancelledSubs = append(c.cancelledSubs, subscriptionID)
	return nil
}

func (c *fakeStripeClient) UploadVerificationFile(_ context.Context, fileName string, _ []byte) (*model.StripeFile, error) {
	c.uploadedFiles = append(c.uploadedFiles, fileName)
	return &model.StripeFile{ID: "file_" + fileName}, nil
}

func (c *fakeStripeClient) VerifyWebhookSignature(_ []byte, _ string) (*model.StripeEvent, error) {
	if c.verifyErr != nil {
		return nil, c.verifyErr
	}
	return c.verifyEvent, nil
}
