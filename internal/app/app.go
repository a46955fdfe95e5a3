package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/fruitsmith-checkout/internal/domain/notify"
	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
	"github.com/xenking/fruitsmith-checkout/internal/domain/payment"
	"github.com/xenking/fruitsmith-checkout/internal/gateway/razorpay"
	"github.com/xenking/fruitsmith-checkout/internal/gateway/stripe"
	"github.com/xenking/fruitsmith-checkout/internal/handler"
	"github.com/xenking/fruitsmith-checkout/internal/mailer"
	"github.com/xenking/fruitsmith-checkout/internal/repository"
	"github.com/xenking/fruitsmith-checkout/pkg/health"
	"github.com/xenking/fruitsmith-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("payment_provider", cfg.Payment.Provider),
	)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Check{
		Name:             "postgres_pool",
		Kind:             health.Readiness,
		Func:             health.PoolSaturationCheck(pool),
		FailureThreshold: 5,
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// Payment gateway.
	gateway, err := newGateway(cfg.Payment)
	if err != nil {
		return errors.Wrap(err, "create payment gateway")
	}
	payments := payment.NewManager(gateway,
		payment.WithTimeout(cfg.Payment.Timeout),
		payment.WithTracerProvider(m.TracerProvider()),
	)

	// Notifications.
	renderer, err := mailer.NewRenderer(mailer.RendererConfig{
		Brand:  cfg.Mail.FromName,
		Locale: cfg.Mail.Locale,
	})
	if err != nil {
		return errors.Wrap(err, "create mail renderer")
	}
	sender, err := newSender(cfg.Mail)
	if err != nil {
		return errors.Wrap(err, "create mail sender")
	}
	dispatcher := notify.NewDispatcher(userRepo, renderer, sender, cfg.Mail.Timeout)
	defer dispatcher.Wait()

	// Domain services.
	policy, err := cfg.Pricing.Policy()
	if err != nil {
		return errors.Wrap(err, "pricing")
	}
	orderService, err := order.NewService(
		order.ServiceConfig{Currency: cfg.Pricing.Currency, Delivery: policy},
		productRepo,
		orderRepo,
		payments,
		dispatcher,
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	securityHandler, err := handler.NewSecurityHandler([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	if err != nil {
		return errors.Wrap(err, "create security handler")
	}
	checkoutLimiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Name:    "checkout",
		Max:     cfg.RateLimit.CheckoutMax,
		Window:  cfg.RateLimit.CheckoutWindow,
		KeyFunc: handler.PrincipalKey,
	})
	checkoutLimiter.StartCleanup(ctx)
	h := handler.NewHandler(orderService, handler.WithCheckoutLimit(checkoutLimiter.Middleware))

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes(securityHandler))
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Payment.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
				ExposeHeaders:    []string{"X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Name:   "global",
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("fruitsmith-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	lg.Info("Waiting for pending notifications")
	return nil
}

func newGateway(cfg PaymentConfig) (payment.Gateway, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderRazorpay:
		return razorpay.New(razorpay.Config{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
			Timeout:   cfg.Timeout,
		})
	case ProviderStripe:
		return stripe.New(stripe.Config{
			SecretKey:      cfg.Stripe.SecretKey,
			PublishableKey: cfg.Stripe.PublishableKey,
		})
	default:
		return nil, errors.Errorf("unknown payment provider %q", cfg.Provider)
	}
}

func newSender(cfg MailConfig) (notify.Sender, error) {
	if cfg.Host == "" {
		return mailer.LogSender{}, nil
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		FromName: cfg.FromName,
	})
}
