package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/dto"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/middleware"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/money"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/service"
)

type SubscriptionHandler struct {
	subService service.SubscriptionService
}

func NewSubscriptionHandler(subService service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subService: subService,
	}
}

func subscriptionResponse(s *model.Subscription) dto.SubscriptionResponse {
	return dto.SubscriptionResponse{
		SubscriptionID:     s.ID,
		Status:             s.Status,
		BillingCycle:       s.BillingCycle,
		Amount:             money.FromCents(s.AmountCents).StringFixed(2),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		RenewalCount:       s.RenewalCount,
	}
}

func (h *SubscriptionHandler) GetSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	sub, err := h.subService.Get(ctx, actor, c.Param("subscriptionID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, subscriptionResponse(sub))
}

func (h *SubscriptionHandler) CancelSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	var req dto.CancelSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	sub, err := h.subService.Cancel(ctx, actor, c.Param("subscriptionID"), req.AtPeriodEnd)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, subscriptionResponse(sub))
}

func (h *SubscriptionHandler) PauseSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	var req dto.PauseSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	sub, err := h.subService.Pause(ctx, actor, c.Param("subscriptionID"), req.Reason, req.ResumeAt)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, subscriptionResponse(sub))
}

func (h *SubscriptionHandler) ResumeSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	sub, err := h.subService.Resume(ctx, actor, c.Param("subscriptionID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, subscriptionResponse(sub))
}

func (h *SubscriptionHandler) ChangePlan(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	var req dto.ChangePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	sub, err := h.subService.ChangePlan(ctx, actor, c.Param("subscriptionID"), req.BillingCycle)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, subscriptionResponse(sub))
}
