package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/service"
)

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// StripeWebhook reads the raw body before any binding so the signature check
// sees exactly the bytes the provider signed.
func (h *WebhookHandler) StripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	sigHeader := c.Request().Header.Get("Stripe-Signature")
	if err := h.webhookService.HandleWebhook(ctx, body, sigHeader); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"received": "true"})
}
