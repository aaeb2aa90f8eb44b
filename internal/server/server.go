package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/handler"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/middleware"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/service"
)

type Server struct {
	echo *echo.Echo

	checkoutHandler     *handler.CheckoutHandler
	orderHandler        *handler.OrderHandler
	kycHandler          *handler.KycHandler
	subscriptionHandler *handler.SubscriptionHandler
	webhookHandler      *handler.WebhookHandler

	jwtSecret string
}

func NewServer(
	checkoutService service.CheckoutService,
	orderService service.OrderService,
	kycService service.KycService,
	subService service.SubscriptionService,
	webhookService service.WebhookService,
	jwtSecret string,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.HTTPErrorHandler = errorHandler

	s := &Server{
		echo:                e,
		checkoutHandler:     handler.NewCheckoutHandler(checkoutService),
		orderHandler:        handler.NewOrderHandler(orderService),
		kycHandler:          handler.NewKycHandler(kycService),
		subscriptionHandler: handler.NewSubscriptionHandler(subService),
		webhookHandler:      handler.NewWebhookHandler(webhookService),
		jwtSecret:           jwtSecret,
	}

	s.setupRoutes()
	return s
}

// errorHandler maps the domain error taxonomy onto HTTP statuses; everything
// unclassified is a 500 with a generic message.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if he, ok := err.(*echo.HTTPError); ok {
		httpErr = he
	} else if kind, ok := apperr.KindOf(err); ok {
		switch kind {
		case apperr.KindNotFound:
			httpErr = echo.NewHTTPError(http.StatusNotFound, err.Error())
		case apperr.KindForbidden:
			httpErr = echo.NewHTTPError(http.StatusForbidden, err.Error())
		case apperr.KindBadRequest, apperr.KindProvider:
			httpErr = echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if httpErr == nil {
		zap.L().Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		httpErr = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	_ = c.JSON(httpErr.Code, map[string]interface{}{"error": httpErr.Message})
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// -------- public checkout --------
	// OptionalAuth so a signed-in customer's purchases attach to their account.
	checkout := api.Group("/checkout", middleware.OptionalAuth(s.jwtSecret))
	checkout.POST("", s.checkoutHandler.CreateSession)
	checkout.GET("/:sessionID", s.checkoutHandler.GetPublicCheckoutData)
	checkout.POST("/:sessionID/information", s.checkoutHandler.SaveInformation)
	checkout.POST("/:sessionID/shipping", s.checkoutHandler.SelectShipping)
	checkout.POST("/:sessionID/payment", s.checkoutHandler.CreatePayment)
	checkout.POST("/:sessionID/abandon", s.checkoutHandler.AbandonSession)

	// -------- webhooks --------
	api.POST("/webhooks/stripe", s.webhookHandler.StripeWebhook)

	// -------- authenticated --------
	auth := api.Group("", middleware.Auth(s.jwtSecret))

	orders := auth.Group("/orders")
	orders.GET("/:orderID", s.orderHandler.GetOrder)
	orders.GET("/:orderID/internal-note", s.orderHandler.GetInternalNote)
	orders.POST("/:orderID/fulfill", s.orderHandler.FulfillOrder)
	orders.POST("/:orderID/ship", s.orderHandler.ShipOrder)
	orders.POST("/:orderID/deliver", s.orderHandler.DeliverOrder)
	orders.POST("/:orderID/cancel", s.orderHandler.CancelOrder)
	orders.POST("/:orderID/refund-request", s.orderHandler.RequestRefund)
	orders.POST("/:orderID/refund", s.orderHandler.ProcessRefund)

	kyc := auth.Group("/kyc")
	kyc.POST("/verifications", s.kycHandler.CreateVerification)
	kyc.GET("/verifications/:verificationID", s.kycHandler.GetVerification)
	kyc.POST("/verifications/:verificationID/documents", s.kycHandler.UploadDocument)
	kyc.POST("/verifications/:verificationID/submit", s.kycHandler.SubmitForReview)
	kyc.POST("/verifications/:verificationID/cancel", s.kycHandler.CancelVerification)
	kyc.GET("/shops/:shopID/onboarding-link", s.kycHandler.OnboardingLink)
	kyc.POST("/shops/:shopID/sync", s.kycHandler.SyncShopStatus)

	subs := auth.Group("/subscriptions")
	subs.GET("/:subscriptionID", s.subscriptionHandler.GetSubscription)
	subs.POST("/:subscriptionID/cancel", s.subscriptionHandler.CancelSubscription)
	subs.POST("/:subscriptionID/pause", s.subscriptionHandler.PauseSubscription)
	subs.POST("/:subscriptionID/resume", s.subscriptionHandler.ResumeSubscription)
	subs.POST("/:subscriptionID/change-plan", s.subscriptionHandler.ChangePlan)

	// admin/ops: full session summary and manual expiry
	auth.GET("/checkout/:sessionID/summary", s.checkoutHandler.GetSummary)
	auth.POST("/checkout/:sessionID/expire", s.checkoutHandler.ExpireSession)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
