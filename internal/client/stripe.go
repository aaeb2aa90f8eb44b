package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/config"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
)

type LineItem struct {
	Name        string
	AmountCents int64
	Quantity    int
}

type CheckoutSessionParams struct {
	LineItems  []LineItem
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string

	// When ConnectedAccountID is set, funds are transferred to the shop's
	// sub-account and ApplicationFeeCents is retained by the platform.
	ConnectedAccountID  string
	ApplicationFeeCents int64
}

type AccountParams struct {
	Type          string // individual | company
	Email         string
	BusinessName  string
	Country       string
	AccountNumber string
	RoutingNumber string
}

type StripeClient interface {
	CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*model.StripeCheckoutSession, error)
	CreateAccount(ctx context.Context, params *AccountParams) (*model.StripeAccount, error)
	UpdateAccount(ctx context.Context, accountID string, params *AccountParams) error
	RetrieveAccount(ctx context.Context, accountID string) (*model.StripeAccount, error)
	CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (*model.StripeAccountLink, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	UploadVerificationFile(ctx context.Context, fileName string, data []byte) (*model.StripeFile, error)
	VerifyWebhookSignature(body []byte, sigHeader string) (*model.StripeEvent, error)
}

type stripeClientImpl struct {
	httpClient    *http.Client
	baseApiURL    string
	secretKey     string
	webhookSecret string
}

func NewStripeClient(cfg *config.Stripe) StripeClient {
	return &stripeClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:    cfg.BaseApiURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
	}
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps a raw provider rejection onto a small set of user-facing
// messages; the raw detail is logged but never surfaced.
func classify(status int, body []byte) error {
	var eb stripeErrorBody
	_ = json.Unmarshal(body, &eb)

	raw := fmt.Errorf("stripe error %d: %s", status, string(body))
	zap.L().Error("stripe request rejected",
		zap.Int("status", status),
		zap.String("code", eb.Error.Code),
		zap.String("message", eb.Error.Message))

	msg := strings.ToLower(eb.Error.Message + " " + eb.Error.Code)
	switch {
	case strings.Contains(msg, "amount"):
		return apperr.Provider(raw, "payment amount was rejected by the payment provider")
	case strings.Contains(msg, "currency"):
		return apperr.Provider(raw, "currency is not supported by the payment provider")
	default:
		return apperr.Provider(raw, "payment could not be processed, please try again")
	}
}

func (c *stripeClientImpl) do(ctx context.Context, method, path string, form url.Values, connectedAccount string, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, body)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if connectedAccount != "" {
		req.Header.Set("Stripe-Account", connectedAccount)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode stripe response: %w", err)
		}
	}
	return nil
}

func (c *stripeClientImpl) CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*model.StripeCheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	for i, li := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", params.Currency)
		form.Set(prefix+"[price_data][product_data][name]", li.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(li.AmountCents, 10))
		form.Set(prefix+"[quantity]", strconv.Itoa(li.Quantity))
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}
	if params.ConnectedAccountID != "" {
		form.Set("payment_intent_data[application_fee_amount]", strconv.FormatInt(params.ApplicationFeeCents, 10))
		form.Set("payment_intent_data[transfer_data][destination]", params.ConnectedAccountID)
	}

	var result model.StripeCheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *stripeClientImpl) CreateAccount(ctx context.Context, params *AccountParams) (*model.StripeAccount, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("email", params.Email)
	form.Set("business_type", params.Type)
	if params.Country != "" {
		form.Set("country", params.Country)
	}
	if params.BusinessName != "" {
		form.Set("business_profile[name]", params.BusinessName)
	}
	if params.AccountNumber != "" {
		form.Set("external_account[object]", "bank_account")
		form.Set("external_account[account_number]", params.AccountNumber)
		form.Set("external_account[routing_number]", params.RoutingNumber)
	}

	var result model.StripeAccount
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", form, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *stripeClientImpl) UpdateAccount(ctx context.Context, accountID string, params *AccountParams) error {
	form := url.Values{}
	form.Set("email", params.Email)
	if params.BusinessName != "" {
		form.Set("business_profile[name]", params.BusinessName)
	}
	return c.do(ctx, http.MethodPost, "/v1/accounts/"+accountID, form, "", nil)
}

func (c *stripeClientImpl) RetrieveAccount(ctx context.Context, accountID string) (*model.StripeAccount, error) {
	var result model.StripeAccount
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *stripeClientImpl) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (*model.StripeAccountLink, error) {
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("return_url", returnURL)
	form.Set("refresh_url", refreshURL)
	form.Set("type", "account_onboarding")

	var result model.StripeAccountLink
	if err := c.do(ctx, http.MethodPost, "/v1/account_links", form, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *stripeClientImpl) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/subscriptions/"+subscriptionID, nil, "", nil)
}

func (c *stripeClientImpl) UploadVerificationFile(ctx context.Context, fileName string, data []byte) (*model.StripeFile, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "identity_document"); err != nil {
		return nil, err
	}
	fw, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseApiURL+"/v1/files", &buf)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classify(resp.StatusCode, respBody)
	}

	var result model.StripeFile
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode stripe response: %w", err)
	}
	return &result, nil
}

const signatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks the "t=...,v1=..." signature header against
// an HMAC-SHA256 of "<t>.<body>" with the webhook secret, rejecting stale
// timestamps, then decodes the event envelope.
func (c *stripeClientImpl) VerifyWebhookSignature(body []byte, sigHeader string) (*model.StripeEvent, error) {
	var ts string
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == "" || len(sigs) == 0 {
		return nil, fmt.Errorf("malformed signature header")
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed signature timestamp")
	}
	if d := time.Since(time.Unix(tsInt, 0)); d > signatureTolerance || d < -signatureTolerance {
		return nil, fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, s := range sigs {
		if hmac.Equal([]byte(expected), []byte(s)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("webhook signature mismatch")
	}

	var event model.StripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	return &event, nil
}
