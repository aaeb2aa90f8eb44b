package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/client"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/config"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/logger"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/repository"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/server"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/service"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Environment.Name); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	db, err := client.InitDB(&cfg.Database)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}
	stripeClient := client.NewStripeClient(&cfg.Stripe)

	productRepo := repository.NewProductRepository(db)
	shippingRateRepo := repository.NewShippingRateRepository(db)
	shopRepo := repository.NewShopRepository(db)
	sessionRepo := repository.NewCheckoutSessionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	kycRepo := repository.NewKycRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	checkoutService := service.NewCheckoutService(
		sessionRepo, productRepo, shopRepo, shippingRateRepo,
		stripeClient,
		cfg.Frontend.BaseURL,
		time.Duration(cfg.Platform.CheckoutTTLHours)*time.Hour,
	)
	orderService := service.NewOrderService(orderRepo)
	kycService := service.NewKycService(kycRepo, shopRepo, stripeClient, cfg.Frontend.BaseURL)
	subService := service.NewSubscriptionService(subRepo, productRepo, shopRepo, orderService, stripeClient)
	webhookService := service.NewWebhookService(
		stripeClient, webhookEventRepo, sessionRepo, productRepo, shopRepo, orderRepo,
		orderService, subService, kycService,
	)

	// Background sweeps: expire stale checkout sessions, refresh shops
	// whose KYC state may have missed a webhook.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go func() {
		interval := time.Duration(cfg.Platform.SweepIntervalMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := checkoutService.CleanupExpiredSessions(sweepCtx); err != nil {
					log.Warn("checkout session sweep", zap.Error(err))
				}
				if err := kycService.SyncAllShopStatuses(sweepCtx); err != nil {
					log.Warn("kyc status sweep", zap.Error(err))
				}
			}
		}
	}()

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(
		checkoutService, orderService, kycService, subService, webhookService,
		cfg.Auth.JWTSecret,
	)

	log.Info("starting HTTP server", zap.String("addr", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("signal received, starting graceful shutdown")
	sweepCancel()

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error", zap.Error(err))
	}
}
