package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/xenking/fruitsmith-checkout/internal/domain/auth"
)

var errUnauthorized = errors.New("unauthorized")

var _ auth.Authenticator = (*SecurityHandler)(nil)

// Claims is the bearer token payload issued by the identity provider.
type Claims struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SecurityHandler authenticates requests with HS256-signed bearer tokens.
type SecurityHandler struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewSecurityHandler creates a SecurityHandler. When issuer is set, tokens
// must carry it in the iss claim.
func NewSecurityHandler(secret []byte, issuer string) (*SecurityHandler, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &SecurityHandler{
		secret: secret,
		issuer: issuer,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Authenticate resolves a raw token into a principal.
func (s *SecurityHandler) Authenticate(_ context.Context, raw string) (auth.Principal, error) {
	var c Claims
	token, err := s.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return auth.Principal{}, errUnauthorized
	}
	if s.issuer != "" && !c.VerifyIssuer(s.issuer, true) {
		return auth.Principal{}, errUnauthorized
	}
	if c.ID == "" {
		return auth.Principal{}, errUnauthorized
	}

	role := auth.RoleUser
	if auth.Role(c.Role) == auth.RoleAdmin {
		role = auth.RoleAdmin
	}
	return auth.Principal{ID: c.ID, Role: role}, nil
}

// Issue signs a token for p valid for ttl. Used by tooling and tests.
func (s *SecurityHandler) Issue(p auth.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		ID:   p.ID,
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the principal in the request context.
func (s *SecurityHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(r.Context(), w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		p, err := s.Authenticate(r.Context(), raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.String("principal_id", p.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin principals with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(r)
		if !ok {
			writeError(r.Context(), w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		if !p.IsAdmin() {
			writeError(r.Context(), w, http.StatusForbidden, "forbidden", "denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
