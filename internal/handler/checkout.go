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

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

func sessionResponse(s *model.CheckoutSession) dto.SessionResponse {
	return dto.SessionResponse{
		SessionID:    s.ID,
		Status:       s.Status,
		CurrentStep:  s.CurrentStep,
		ProductPrice: money.FromCents(s.ProductPriceCents).StringFixed(2),
		ShippingCost: money.FromCents(s.ShippingCostCents).StringFixed(2),
		TotalAmount:  money.FromCents(s.TotalAmountCents).StringFixed(2),
	}
}

func (h *CheckoutHandler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	result, err := h.checkoutService.CreateSession(ctx, req.ProductID, req.BillingCycle, req.Quantity)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dto.CreateCheckoutResponse{
		SessionID:   result.SessionID,
		CheckoutURL: result.CheckoutURL,
		ExpiresAt:   result.ExpiresAt,
	})
}

func (h *CheckoutHandler) SaveInformation(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("sessionID")

	var req dto.SaveInformationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	info := &service.CustomerInformation{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
		ShippingAddress: model.Address{
			Line1:      req.ShippingAddress.Line1,
			Line2:      req.ShippingAddress.Line2,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		Note: req.Note,
	}
	if actor := middleware.ActorFrom(c); actor != nil {
		info.UserID = actor.UserID
	}

	session, err := h.checkoutService.SaveInformation(ctx, sessionID, info)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, sessionResponse(session))
}

func (h *CheckoutHandler) SelectShipping(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("sessionID")

	var req dto.SelectShippingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	session, err := h.checkoutService.SelectShipping(ctx, sessionID, req.ShippingRateID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, sessionResponse(session))
}

func (h *CheckoutHandler) CreatePayment(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("sessionID")

	result, err := h.checkoutService.CreatePayment(ctx, sessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.PaymentResponse{
		SessionID:   result.SessionID,
		PaymentURL:  result.PaymentURL,
		Product:     money.FromCents(result.ProductCents).StringFixed(2),
		Shipping:    money.FromCents(result.ShippingCents).StringFixed(2),
		PlatformFee: money.FromCents(result.PlatformFeeCents).StringFixed(2),
		Total:       money.FromCents(result.ChargeCents).StringFixed(2),
	})
}

func (h *CheckoutHandler) GetSummary(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("sessionID")

	summary, err := h.checkoutService.GetSummary(ctx, sessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.CheckoutSummaryResponse{
		SessionResponse: sessionResponse(summary.Session),
		BillingCycle:    summary.Session.BillingCycle,
		Quantity:        summary.Session.Quantity,
		CustomerEmail:   summary.Session.CustomerEmail,
		CustomerName:    summary.Session.CustomerName,
		ShippingMethod:  summary.Session.ShippingMethodName,
		ProductName:     summary.ProductName,
		ShopName:        summary.ShopName,
	})
}

func (h *CheckoutHandler) GetPublicCheckoutData(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("sessionID")

	data, err := h.checkoutService.GetPublicCheckoutData(ctx, sessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.PublicCheckoutResponse{
		SessionResponse: sessionResponse(data.Session),
		ProductName:     data.ProductName,
		ShopName:        data.ShopName,
		ShopReady:       data.ShopReady,
		Message:         data.Message,
	})
}

func (h *CheckoutHandler) AbandonSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("sessionID")

	if err := h.checkoutService.AbandonSession(ctx, sessionID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": model.SessionAbandoned})
}

func (h *CheckoutHandler) ExpireSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("sessionID")

	if err := h.checkoutService.ExpireSession(ctx, sessionID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": model.SessionExpired})
}
