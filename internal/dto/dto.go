package dto

import "time"

type CreateCheckoutRequest struct {
	ProductID    string `json:"product_id"`
	BillingCycle string `json:"billing_cycle"`
	Quantity     int    `json:"quantity"`
}

type CreateCheckoutResponse struct {
	SessionID   string    `json:"session_id"`
	CheckoutURL string    `json:"checkout_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AddressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type SaveInformationRequest struct {
	Email           string         `json:"email"`
	Name            string         `json:"name"`
	Phone           string         `json:"phone"`
	ShippingAddress AddressPayload `json:"shipping_address"`
	Note            string         `json:"note"`
}

type SelectShippingRequest struct {
	ShippingRateID string `json:"shipping_rate_id"`
}

type SessionResponse struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	CurrentStep  int    `json:"current_step"`
	ProductPrice string `json:"product_price"`
	ShippingCost string `json:"shipping_cost"`
	TotalAmount  string `json:"total_amount"`
}

type PaymentResponse struct {
	SessionID   string `json:"session_id"`
	PaymentURL  string `json:"payment_url"`
	Product     string `json:"product_amount"`
	Shipping    string `json:"shipping_amount"`
	PlatformFee string `json:"platform_fee"`
	Total       string `json:"total_amount"`
}

type CheckoutSummaryResponse struct {
	SessionResponse
	BillingCycle   string `json:"billing_cycle"`
	Quantity       int    `json:"quantity"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	CustomerName   string `json:"customer_name,omitempty"`
	ShippingMethod string `json:"shipping_method,omitempty"`
	ProductName    string `json:"product_name"`
	ShopName       string `json:"shop_name"`
}

type PublicCheckoutResponse struct {
	SessionResponse
	ProductName string `json:"product_name"`
	ShopName    string `json:"shop_name"`
	ShopReady   bool   `json:"shop_ready"`
	Message     string `json:"message,omitempty"`
}

type ShipOrderRequest struct {
	TrackingNumber    string     `json:"tracking_number"`
	Carrier           string     `json:"carrier"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type RefundRequest struct {
	Reason string `json:"reason"`
}

type ProcessRefundRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

type OrderResponse struct {
	OrderID           string `json:"order_id"`
	OrderNumber       string `json:"order_number"`
	PaymentStatus     string `json:"payment_status"`
	FulfillmentStatus string `json:"fulfillment_status"`
	ProductPrice      string `json:"product_price"`
	ShippingCost      string `json:"shipping_cost"`
	TotalAmount       string `json:"total_amount"`
	PlatformFee       string `json:"platform_fee"`
	ShopRevenue       string `json:"shop_revenue"`
}

type CreateKycRequest struct {
	ShopID string `json:"shop_id"`
	Type   string `json:"type"`

	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"`
	Country     string `json:"country"`

	BusinessName    string `json:"business_name"`
	BusinessTaxID   string `json:"business_tax_id"`
	BusinessAddress string `json:"business_address"`

	BankAccountNumber string `json:"bank_account_number"`
	BankRoutingNumber string `json:"bank_routing_number"`
}

type KycResponse struct {
	VerificationID string   `json:"verification_id"`
	ShopID         string   `json:"shop_id"`
	Status         string   `json:"status"`
	RequestedInfo  string   `json:"requested_info,omitempty"`
	MissingDocs    []string `json:"missing_documents,omitempty"`
}

type CancelSubscriptionRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

type PauseSubscriptionRequest struct {
	Reason   string     `json:"reason"`
	ResumeAt *time.Time `json:"resume_at"`
}

type ChangePlanRequest struct {
	BillingCycle string `json:"billing_cycle"`
}

type SubscriptionResponse struct {
	SubscriptionID     string    `json:"subscription_id"`
	Status             string    `json:"status"`
	BillingCycle       string    `json:"billing_cycle"`
	Amount             string    `json:"amount"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
	RenewalCount       int       `json:"renewal_count"`
}
