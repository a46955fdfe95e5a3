package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
)

// Supported payment providers.
const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
)

// Config holds the complete application configuration, loadable from
// environment variables (FRUITSMITH_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (FRUITSMITH_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	Pricing     PricingConfig
	Payment     PaymentConfig
	Mail        MailConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `usage:"HS256 secret shared with the identity provider" flag:"jwt-secret"`
	Issuer    string `default:"" usage:"Required iss claim; empty accepts any issuer"`
}

// PricingConfig holds the delivery policy and settlement currency.
type PricingConfig struct {
	Currency          string `default:"INR" usage:"ISO 4217 currency of all orders"`
	DeliveryThreshold string `default:"999" usage:"Subtotal at or above which delivery is free"`
	DeliveryFee       string `default:"50" usage:"Delivery fee below the threshold"`
}

// PaymentConfig selects and configures the payment gateway.
type PaymentConfig struct {
	Provider string        `default:"razorpay" usage:"Payment provider: razorpay or stripe"`
	Timeout  time.Duration `default:"10s" usage:"Timeout of a single gateway call"`
	Razorpay RazorpayConfig
	Stripe   StripeConfig
}

// RazorpayConfig holds Razorpay API credentials.
type RazorpayConfig struct {
	KeyID     string `usage:"Razorpay key id (public)"`
	KeySecret string `usage:"Razorpay key secret"`
}

// StripeConfig holds Stripe API credentials.
type StripeConfig struct {
	SecretKey      string `usage:"Stripe secret key"`
	PublishableKey string `usage:"Stripe publishable key"`
}

// MailConfig configures confirmation emails. An empty Host disables
// delivery; messages are logged instead.
type MailConfig struct {
	Host     string        `default:"" usage:"SMTP relay host"`
	Port     int           `default:"587" usage:"SMTP relay port"`
	Username string        `usage:"SMTP username"`
	Password string        `usage:"SMTP password"`
	From     string        `default:"orders@fruitsmith.example" usage:"Sender address"`
	FromName string        `default:"Fruit Elegance" usage:"Sender display name"`
	Locale   string        `default:"en-IN" usage:"Locale for amounts in emails"`
	Timeout  time.Duration `default:"30s" usage:"Timeout of a single delivery"`
}

// RateLimitConfig controls the sliding window rate limiters: a per-IP budget
// for all traffic and a per-user budget for calls that reach the gateway.
type RateLimitConfig struct {
	Max            int           `default:"100" usage:"Max requests per IP per window"`
	Window         time.Duration `default:"1m"  usage:"Rate limit window duration"`
	CheckoutMax    int           `default:"10" usage:"Max order placements and payment verifications per user per window"`
	CheckoutWindow time.Duration `default:"1m" usage:"Checkout rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML files,
// then validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FRUITSMITH",
		Files:     []string{"config.yaml", "/etc/fruitsmith/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set FRUITSMITH_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is required")
	}
	if len(c.Pricing.Currency) != 3 {
		return errors.Errorf("currency %q is not an ISO 4217 code", c.Pricing.Currency)
	}
	if _, err := c.Pricing.Policy(); err != nil {
		return err
	}

	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 ||
		c.RateLimit.CheckoutMax <= 0 || c.RateLimit.CheckoutWindow <= 0 {
		return errors.New("rate limits and windows must be positive")
	}

	switch strings.ToLower(c.Payment.Provider) {
	case ProviderRazorpay:
		if c.Payment.Razorpay.KeyID == "" || c.Payment.Razorpay.KeySecret == "" {
			return errors.New("razorpay key id and secret are required")
		}
	case ProviderStripe:
		if c.Payment.Stripe.SecretKey == "" {
			return errors.New("stripe secret key is required")
		}
	default:
		return errors.Errorf("unknown payment provider %q", c.Payment.Provider)
	}
	return nil
}

// Policy parses the delivery policy.
func (p PricingConfig) Policy() (order.DeliveryPolicy, error) {
	threshold, err := decimal.NewFromString(p.DeliveryThreshold)
	if err != nil {
		return order.DeliveryPolicy{}, errors.Wrap(err, "parse delivery threshold")
	}
	fee, err := decimal.NewFromString(p.DeliveryFee)
	if err != nil {
		return order.DeliveryPolicy{}, errors.Wrap(err, "parse delivery fee")
	}
	if threshold.IsNegative() || fee.IsNegative() {
		return order.DeliveryPolicy{}, errors.New("delivery threshold and fee must not be negative")
	}
	return order.DeliveryPolicy{Threshold: threshold, Fee: fee}, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	c.Pricing.Currency = strings.ToUpper(c.Pricing.Currency)
}
