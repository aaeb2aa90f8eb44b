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

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

func orderResponse(o *model.Order) dto.OrderResponse {
	return dto.OrderResponse{
		OrderID:           o.ID,
		OrderNumber:       o.OrderNumber,
		PaymentStatus:     o.PaymentStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		ProductPrice:      money.FromCents(o.ProductPriceCents).StringFixed(2),
		ShippingCost:      money.FromCents(o.ShippingCostCents).StringFixed(2),
		TotalAmount:       money.FromCents(o.TotalAmountCents).StringFixed(2),
		PlatformFee:       money.FromCents(o.PlatformFeeCents).StringFixed(2),
		ShopRevenue:       money.FromCents(o.ShopRevenueCents).StringFixed(2),
	}
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	order, err := h.orderService.GetOrder(ctx, actor, c.Param("orderID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) FulfillOrder(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	order, err := h.orderService.FulfillOrder(ctx, actor, c.Param("orderID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) ShipOrder(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	var req dto.ShipOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.ShipOrder(ctx, actor, c.Param("orderID"), &service.ShipmentDetails{
		TrackingNumber:    req.TrackingNumber,
		Carrier:           req.Carrier,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) DeliverOrder(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	order, err := h.orderService.DeliverOrder(ctx, actor, c.Param("orderID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	var req dto.CancelOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	order, err := h.orderService.CancelOrder(ctx, actor, c.Param("orderID"), req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orderResponse(order))
}

func (h *OrderHandler) RequestRefund(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	var req dto.RefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if err := h.orderService.RequestRefund(ctx, actor, c.Param("orderID"), req.Reason); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "refund_requested"})
}

func (h *OrderHandler) ProcessRefund(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	var req dto.ProcessRefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if err := h.orderService.ProcessRefund(ctx, actor, c.Param("orderID"), req.Approve, req.Note); err != nil {
		return err
	}

	status := "refund_denied"
	if req.Approve {
		status = "refund_approved"
	}
	return c.JSON(http.StatusOK, map[string]string{"status": status})
}

func (h *OrderHandler) GetInternalNote(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	note, err := h.orderService.InternalNote(ctx, actor, c.Param("orderID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"internal_note": note})
}
