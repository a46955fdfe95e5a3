package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/fruitsmith-checkout/internal/domain/auth"
	"github.com/xenking/fruitsmith-checkout/internal/domain/product"
	"github.com/xenking/fruitsmith-checkout/internal/domain/user"
	"github.com/xenking/fruitsmith-checkout/internal/handler"
	"github.com/xenking/fruitsmith-checkout/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Images   []string        `json:"images"`
}

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type options struct {
	databaseURL  string
	productsFile string
	usersFile    string
	jwtSecret    string
	jwtIssuer    string
	tokenTTL     time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.usersFile, "users-file", "db/seed/users.json", "path to users JSON file")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "print dev tokens for seeded users signed with this secret (or FRUITSMITH_AUTH_JWTSECRET env)")
	flag.StringVar(&opts.jwtIssuer, "jwt-issuer", "", "issuer of printed dev tokens")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed dev tokens")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("FRUITSMITH_AUTH_JWTSECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	users, err := seedUsers(ctx, repository.NewUserRepository(pool), opts.usersFile)
	if err != nil {
		return errors.Wrap(err, "seed users")
	}

	if opts.jwtSecret != "" {
		if err := printTokens(users, opts); err != nil {
			return errors.Wrap(err, "issue dev tokens")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, w product.Writer, path string) error {
	slog.Info("reading products file", slog.String("path", path))

	var items []productJSON
	if err := readJSON(path, &items); err != nil {
		return err
	}

	products := make([]product.Product, 0, len(items))
	for _, p := range items {
		if p.ID == "" || p.Price.IsNegative() {
			return errors.Errorf("invalid product %q", p.ID)
		}
		products = append(products, product.Product{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Category: p.Category,
			Images:   p.Images,
		})
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	written, err := w.Upsert(ctx, products)
	if err != nil {
		return err
	}

	slog.Info("upserted products", slog.Int64("rows", written))

	return nil
}

func seedUsers(ctx context.Context, w user.Writer, path string) ([]user.User, error) {
	slog.Info("reading users file", slog.String("path", path))

	var items []userJSON
	if err := readJSON(path, &items); err != nil {
		return nil, err
	}

	users := make([]user.User, 0, len(items))
	for _, u := range items {
		users = append(users, user.User{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
	}

	if err := w.Upsert(ctx, users); err != nil {
		return nil, err
	}

	for _, u := range users {
		slog.Info("upserted user", slog.String("id", u.ID), slog.String("email", u.Email))
	}

	return users, nil
}

func printTokens(users []user.User, opts options) error {
	sec, err := handler.NewSecurityHandler([]byte(opts.jwtSecret), opts.jwtIssuer)
	if err != nil {
		return err
	}
	for _, u := range users {
		role := auth.RoleUser
		if u.Role == string(auth.RoleAdmin) {
			role = auth.RoleAdmin
		}
		token, err := sec.Issue(auth.Principal{ID: u.ID, Role: role}, opts.tokenTTL)
		if err != nil {
			return err
		}
		slog.Info("dev token", slog.String("user", u.ID), slog.String("role", string(role)), slog.String("token", token))
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}
