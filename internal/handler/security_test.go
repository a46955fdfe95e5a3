package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/fruitsmith-checkout/internal/domain/auth"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestSecurityHandler_Authenticate(t *testing.T) {
	sec, err := NewSecurityHandler([]byte(testSecret), "fruitsmith")
	require.NoError(t, err)

	valid := func(id, role string) Claims {
		return Claims{
			ID:   id,
			Role: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "fruitsmith",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	expired := valid("u1", "user")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := valid("u1", "user")
	wrongIssuer.Issuer = "someone-else"

	tests := []struct {
		name    string
		token   string
		want    auth.Principal
		wantErr bool
	}{
		{
			name:  "user",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), valid("u1", "user")),
			want:  auth.Principal{ID: "u1", Role: auth.RoleUser},
		},
		{
			name:  "admin",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), valid("a1", "admin")),
			want:  auth.Principal{ID: "a1", Role: auth.RoleAdmin},
		},
		{
			name:  "unknown role downgraded",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), valid("u1", "superuser")),
			want:  auth.Principal{ID: "u1", Role: auth.RoleUser},
		},
		{
			name:    "wrong secret",
			token:   sign(t, jwt.SigningMethodHS256, []byte("other"), valid("u1", "user")),
			wantErr: true,
		},
		{
			name:    "other algorithm",
			token:   sign(t, jwt.SigningMethodHS512, []byte(testSecret), valid("u1", "user")),
			wantErr: true,
		},
		{
			name:    "unsigned",
			token:   sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid("u1", "admin")),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
			wantErr: true,
		},
		{
			name:    "wrong issuer",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer),
			wantErr: true,
		},
		{
			name:    "missing id",
			token:   sign(t, jwt.SigningMethodHS256, []byte(testSecret), valid("", "admin")),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "a.b.c",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := sec.Authenticate(context.Background(), tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, errUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestNewSecurityHandler_RequiresSecret(t *testing.T) {
	_, err := NewSecurityHandler(nil, "")
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"Bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	} {
		r := newRequestWithAuth(header)
		got, ok := bearerToken(r)
		assert.Equal(t, want, got, header)
		assert.Equal(t, want != "", ok, header)
	}
}

func newRequestWithAuth(header string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return r
}
