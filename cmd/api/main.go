package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/handlers"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/payments"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/auth"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/config"
	pfirestore "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/firestore"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/idempotency"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/jobs"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/observability"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/secrets"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
	firestoreRepo "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories/firestore"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	orderEventsTopic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
	defer orderEventsTopic.Stop()

	eventPublisher, err := jobs.NewPubSubOrderEventPublisher(orderEventsTopic)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(checkCtx context.Context) error {
				iter := firestoreClient.Collection("products").Limit(1).Documents(checkCtx)
				defer iter.Stop()
				if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
		{
			Name: "pubsub",
			Check: func(checkCtx context.Context) error {
				_, err := orderEventsTopic.Exists(checkCtx)
				return err
			},
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	eventLog := observability.EventLogger(logger)

	pricingEngine, err := services.NewPricingEngine(services.PricingEngineDeps{Config: cfg.Pricing})
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:  orderRepo,
		Pricing: pricingEngine,
		Events:  eventPublisher,
		Logger:  eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentManager, err := buildPaymentManager(cfg, eventLog, logger)
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:  orderRepo,
		Manager: paymentManager,
		Events:  eventPublisher,
		Logger:  eventLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{Catalog: catalogRepo})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Build: services.BuildInfo{
			Version:     os.Getenv("API_BUILD_VERSION"),
			CommitSHA:   os.Getenv("API_BUILD_COMMIT"),
			Environment: cfg.Security.Environment,
			StartedAt:   startedAt,
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(eventLog),
	)

	orderHandlers := handlers.NewOrderHandlers(handlers.OrderHandlersDeps{
		Orders:      orderService,
		Idempotency: idempotencyMiddleware,
	})
	paymentHandlers := handlers.NewPaymentHandlers(handlers.PaymentHandlersDeps{
		Payments:        paymentService,
		FrontendBaseURL: cfg.Frontend.BaseURL,
		Logger:          eventLog,
	})
	productHandlers := handlers.NewProductHandlers(handlers.ProductHandlersDeps{Catalog: catalogService})
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminHandlersDeps{Orders: orderService})
	healthHandlers := handlers.NewHealthHandlers(handlers.HealthHandlersDeps{System: systemService})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			auth.Middleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr), zap.String("environment", cfg.Security.Environment))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

// buildPaymentManager registers a provider per configured gateway. Offline
// methods are always available; gateways without credentials are left out so
// a misconfigured deployment fails at initiation, not at callback time.
func buildPaymentManager(cfg config.Config, eventLog payments.Logger, logger *zap.Logger) (*payments.Manager, error) {
	cod, err := payments.NewOfflineProvider(domain.PaymentMethodCOD)
	if err != nil {
		return nil, err
	}
	bank, err := payments.NewOfflineProvider(domain.PaymentMethodBankTransfer)
	if err != nil {
		return nil, err
	}
	providers := []payments.Provider{cod, bank}

	if cfg.VNPay.TMNCode != "" {
		vnpay, err := payments.NewVNPayProvider(payments.VNPayProviderDeps{
			Config: cfg.VNPay,
			Logger: eventLog,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, vnpay)
	} else {
		logger.Warn("vnpay gateway disabled: no merchant code configured")
	}

	if cfg.MoMo.PartnerCode != "" {
		momo, err := payments.NewMoMoProvider(payments.MoMoProviderDeps{
			Config: cfg.MoMo,
			Logger: eventLog,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, momo)
	} else {
		logger.Warn("momo gateway disabled: no partner code configured")
	}

	if cfg.Stripe.APIKey != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderDeps{
			Config: cfg.Stripe,
			Logger: eventLog,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, stripe)
	} else {
		logger.Warn("stripe gateway disabled: no api key configured")
	}

	return payments.NewManager(payments.ManagerDeps{
		Providers: providers,
		Logger:    eventLog,
	})
}
