package model

import "encoding/json"

// Payload structs for the payment processor's API. Only the fields the
// services read are modeled.

type StripeRequirements struct {
	CurrentlyDue []string `json:"currently_due"`
	PastDue      []string `json:"past_due"`
}

type StripeCapabilities struct {
	CardPayments string `json:"card_payments"`
	Transfers    string `json:"transfers"`
}

type StripeAccount struct {
	ID               string             `json:"id"`
	ChargesEnabled   bool               `json:"charges_enabled"`
	PayoutsEnabled   bool               `json:"payouts_enabled"`
	Requirements     StripeRequirements `json:"requirements"`
	Capabilities     StripeCapabilities `json:"capabilities"`
	DetailsSubmitted bool               `json:"details_submitted"`
}

type StripeCheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

type StripeInvoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	PeriodStart  int64  `json:"period_start"`
	PeriodEnd    int64  `json:"period_end"`
	AmountPaid   int64  `json:"amount_paid"`
}

type StripeSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

type StripeFile struct {
	ID string `json:"id"`
}

type StripeAccountLink struct {
	URL string `json:"url"`
}

type StripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type StripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    StripeEventData `json:"data"`
}

// Event is the typed union the webhook dispatcher produces from a verified
// StripeEvent. Exactly one payload field is set, matching Kind.
type Event struct {
	ID   string
	Kind EventKind

	CheckoutSession *StripeCheckoutSession
	Invoice         *StripeInvoice
	Subscription    *StripeSubscription
	Account         *StripeAccount
}

type EventKind int

const (
	EventIgnored EventKind = iota
	EventCheckoutCompleted
	EventInvoicePaid
	EventInvoiceFailed
	EventSubscriptionDeleted
	EventAccountUpdated
)
