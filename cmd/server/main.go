package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"babymuse/config"
	"babymuse/internal/api"
	"babymuse/internal/broker"
	"babymuse/internal/gateway"
	"babymuse/internal/redisclient"
	"babymuse/internal/service"
	"babymuse/internal/store"
	"babymuse/internal/util"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting babymuse order core")

	tp, err := util.InitTracer("babymuse", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// idempotent bootstrap, safe on every restart
	if err := db.EnsureAdminSeed(context.Background(), cfg.Business.AdminEmail); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	razorpay := gateway.NewClient(
		cfg.Gateway.KeyID,
		cfg.Gateway.KeySecret,
		cfg.Gateway.WebhookSecret,
		cfg.Gateway.BaseURL,
	)

	pricing := service.PricingConfig{
		ShippingFee:           cfg.Business.ShippingFee,
		FreeShippingThreshold: cfg.Business.FreeShippingThreshold,
		TaxRatePercent:        cfg.Business.TaxRatePercent,
	}

	couponService := service.NewCouponService(db, redisClient)
	checkoutService := service.NewCheckoutService(db, couponService, razorpay, eventPublisher, pricing, cfg.Business.Currency)
	settlementService := service.NewSettlementService(db, razorpay, redisClient, eventPublisher, couponService)
	cancellationService := service.NewCancellationService(db, eventPublisher)
	fulfillmentService := service.NewFulfillmentService(db)
	walletService := service.NewWalletService(db, eventPublisher)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(checkoutService, couponService, settlementService, cancellationService, fulfillmentService, walletService, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
