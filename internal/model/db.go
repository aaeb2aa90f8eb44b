package model

import "time"

// Billing cycles
const (
	CycleOneTime = "one_time"
	CycleWeekly  = "weekly"
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// Checkout session statuses
const (
	SessionPending    = "pending"
	SessionProcessing = "processing"
	SessionCompleted  = "completed"
	SessionExpired    = "expired"
	SessionAbandoned  = "abandoned"
)

// Order payment statuses
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Order fulfillment statuses
const (
	FulfillmentUnfulfilled = "unfulfilled"
	FulfillmentFulfilled   = "fulfilled"
	FulfillmentShipped     = "shipped"
	FulfillmentDelivered   = "delivered"
	FulfillmentCancelled   = "cancelled"
)

// KYC statuses (shared by shops and verifications)
const (
	KycNone           = "none"
	KycPending        = "pending"
	KycInReview       = "in_review"
	KycMoreInfoNeeded = "additional_information_required"
	KycApproved       = "approved"
	KycRejected       = "rejected"
	KycRestricted     = "restricted"
)

// Subscription statuses
const (
	SubActive    = "active"
	SubPaused    = "paused"
	SubPastDue   = "past_due"
	SubCancelled = "cancelled"
)

// Actor roles
const (
	RoleCustomer  = "customer"
	RoleShopOwner = "shop_owner"
	RoleAdmin     = "admin"
)

// Address is embedded wherever a shipping address snapshot is stored.
type Address struct {
	Line1      string `gorm:"size:255"`
	Line2      string `gorm:"size:255"`
	City       string `gorm:"size:128"`
	State      string `gorm:"size:128"`
	PostalCode string `gorm:"size:32"`
	Country    string `gorm:"size:2"`
}

type Shop struct {
	ID          string `gorm:"primaryKey;size:64;not null"`
	OwnerUserID string `gorm:"size:64;index;not null"`
	Name        string `gorm:"size:255;not null"`
	IsActive    bool   `gorm:"not null;default:true"`

	// Payment-processor account state. Written only by the KYC reconciler.
	StripeAccountID    string  `gorm:"size:64;index"`
	ChargesEnabled     bool    `gorm:"not null;default:false"`
	PayoutsEnabled     bool    `gorm:"not null;default:false"`
	OnboardingComplete bool    `gorm:"not null;default:false"`
	KycStatus          string  `gorm:"size:40;not null;default:'none'"`
	HasValidKyc        bool    `gorm:"not null;default:false"`
	PlatformFeePercent float64 `gorm:"type:decimal(5,2);not null;default:15.00"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID     string `gorm:"primaryKey;size:64;not null"`
	ShopID string `gorm:"size:64;index;not null"`
	Name   string `gorm:"size:255;not null"`

	// Prices in integer cents. Cycle prices are optional overrides of the
	// base price.
	BasePriceCents    int64  `gorm:"not null"`
	WeeklyPriceCents  *int64 `gorm:""`
	MonthlyPriceCents *int64 `gorm:""`
	YearlyPriceCents  *int64 `gorm:""`
	Currency          string `gorm:"size:8;not null;default:'usd'"`

	RequiresShipping bool    `gorm:"not null;default:false"`
	ShippingZoneID   *string `gorm:"size:64"`
	IsActive         bool    `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ShippingRate struct {
	ID          string `gorm:"primaryKey;size:64;not null"`
	ShopID      string `gorm:"size:64;index"`
	Name        string `gorm:"size:128;not null"`
	AmountCents int64  `gorm:"not null"`
	Currency    string `gorm:"size:8;not null;default:'usd'"`
	CreatedAt   time.Time
}

type CheckoutSession struct {
	// ID is the opaque token, format cs_<unixMillis>_<random>.
	ID        string `gorm:"primaryKey;size:64;not null"`
	ProductID string `gorm:"size:64;index;not null"`
	ShopID    string `gorm:"size:64;index;not null"`

	BillingCycle      string `gorm:"size:16;not null"`
	Quantity          int    `gorm:"not null;default:1"`
	ProductPriceCents int64  `gorm:"not null"`

	ShippingRateID     *string `gorm:"size:64"`
	ShippingMethodName string  `gorm:"size:128"`
	ShippingCostCents  int64   `gorm:"not null;default:0"`
	TotalAmountCents   int64   `gorm:"not null"`

	// CustomerUserID is set when a signed-in user saves their information,
	// so materialized orders can be tied back to the account.
	CustomerUserID  string  `gorm:"size:64;index"`
	CustomerEmail   string  `gorm:"size:255"`
	CustomerName    string  `gorm:"size:255"`
	CustomerPhone   string  `gorm:"size:64"`
	ShippingAddress Address `gorm:"embedded;embeddedPrefix:ship_"`
	CustomerNote    string  `gorm:"type:text"`

	CurrentStep int    `gorm:"not null;default:1"`
	Status      string `gorm:"size:16;index;not null;default:'pending'"`

	StripeSessionID       string `gorm:"size:128;index"`
	StripePaymentIntentID string `gorm:"size:128"`

	ExpiresAt   time.Time `gorm:"index;not null"`
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Order struct {
	ID          string `gorm:"primaryKey;size:64;not null"`
	OrderNumber string `gorm:"size:8;uniqueIndex;not null"` // "#NNNN"

	ShopID            string  `gorm:"size:64;index;not null"`
	ProductID         string  `gorm:"size:64;index;not null"`
	CustomerUserID    string  `gorm:"size:64;index"`
	CustomerEmail     string  `gorm:"size:255"`
	CustomerName      string  `gorm:"size:255"`
	CheckoutSessionID *string `gorm:"size:64;index"`
	SubscriptionID    *string `gorm:"size:64;index"`

	ShippingAddress    Address `gorm:"embedded;embeddedPrefix:ship_"`
	ShippingMethodName string  `gorm:"size:128"`

	ProductPriceCents int64  `gorm:"not null"`
	ShippingCostCents int64  `gorm:"not null;default:0"`
	TotalAmountCents  int64  `gorm:"not null"`
	PlatformFeeCents  int64  `gorm:"not null"`
	ShopRevenueCents  int64  `gorm:"not null"`
	Currency          string `gorm:"size:8;not null;default:'usd'"`

	PaymentStatus     string `gorm:"size:16;index;not null;default:'pending'"`
	FulfillmentStatus string `gorm:"size:16;index;not null;default:'unfulfilled'"`

	TrackingNumber    string `gorm:"size:128"`
	Carrier           string `gorm:"size:64"`
	EstimatedDelivery *time.Time

	FulfilledAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderItem struct {
	ID             uint   `gorm:"primaryKey"`
	OrderID        string `gorm:"size:64;index;not null"`
	ProductID      string `gorm:"size:64;index;not null"`
	Quantity       int    `gorm:"not null"`
	UnitPriceCents int64  `gorm:"not null"`
	Currency       string `gorm:"size:8;not null"`
	CreatedAt      time.Time
}

// OrderAuditEntry is the structured replacement for a free-text internal
// note: one row per action, rendered to text for display.
type OrderAuditEntry struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"size:64;index;not null"`
	Actor     string `gorm:"size:64;not null"`
	ActorRole string `gorm:"size:16;not null"`
	Action    string `gorm:"size:64;not null"`
	Reason    string `gorm:"type:text"`
	CreatedAt time.Time
}

type KycVerification struct {
	ID     string `gorm:"primaryKey;size:64;not null"`
	ShopID string `gorm:"size:64;index;not null"`
	Type   string `gorm:"size:16;not null"` // individual | company
	Status string `gorm:"size:40;index;not null;default:'pending'"`

	FirstName   string `gorm:"size:128"`
	LastName    string `gorm:"size:128"`
	Email       string `gorm:"size:255"`
	Phone       string `gorm:"size:64"`
	DateOfBirth string `gorm:"size:10"`

	BusinessName    string `gorm:"size:255"`
	BusinessTaxID   string `gorm:"size:64"`
	BusinessAddress string `gorm:"size:512"`

	BankAccountNumber string `gorm:"size:64"`
	BankRoutingNumber string `gorm:"size:64"`

	// Raw provider blobs, last-write-wins on every sync.
	RequirementsJSON string `gorm:"type:text"`
	CapabilitiesJSON string `gorm:"type:text"`

	RequestedInfo   string `gorm:"type:text"`
	RejectionReason string `gorm:"type:text"`

	SubmittedAt *time.Time
	VerifiedAt  *time.Time
	RejectedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type KycDocument struct {
	ID             string `gorm:"primaryKey;size:64;not null"`
	VerificationID string `gorm:"size:64;index;not null"`
	DocType        string `gorm:"size:40;not null"`
	StripeFileID   string `gorm:"size:128"`
	FileName       string `gorm:"size:255"`
	CreatedAt      time.Time
}

type Subscription struct {
	ID                   string `gorm:"primaryKey;size:64;not null"`
	ShopID               string `gorm:"size:64;index;not null"`
	ProductID            string `gorm:"size:64;index;not null"`
	CustomerUserID       string `gorm:"size:64;index"`
	CustomerEmail        string `gorm:"size:255"`
	StripeSubscriptionID string `gorm:"size:128;uniqueIndex"`

	BillingCycle     string `gorm:"size:16;not null"`
	AmountCents      int64  `gorm:"not null"`
	PlatformFeeCents int64  `gorm:"not null"`
	ShopRevenueCents int64  `gorm:"not null"`
	Currency         string `gorm:"size:8;not null;default:'usd'"`

	CurrentPeriodStart time.Time `gorm:"not null"`
	CurrentPeriodEnd   time.Time `gorm:"not null"`

	Status            string `gorm:"size:16;index;not null;default:'active'"`
	CancelAtPeriodEnd bool   `gorm:"not null;default:false"`
	RenewalCount      int    `gorm:"not null;default:0"`

	PauseReason string `gorm:"size:255"`
	ResumeAt    *time.Time

	RequiresShipping   bool    `gorm:"not null;default:false"`
	ShippingMethodName string  `gorm:"size:128"`
	ShippingCostCents  int64   `gorm:"not null;default:0"`
	ShippingAddress    Address `gorm:"embedded;embeddedPrefix:ship_"`

	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;uniqueIndex;not null"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}
