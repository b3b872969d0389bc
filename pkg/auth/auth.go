// Package auth maps login PINs to roles and issues the signed role tokens the
// API gates its routes with.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

var (
	ErrInvalidPIN   = errors.New("invalid PIN")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims represents the JWT claims structure
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator turns PINs into role tokens and validates them.
type Authenticator struct {
	pins   map[string]string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. pins maps a PIN to the role it grants.
func NewAuthenticator(pins map[string]string, secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{pins: pins, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Login returns a signed token for the role the PIN grants.
func (a *Authenticator) Login(pin string) (token, role string, err error) {
	for candidate, r := range a.pins {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(pin)) == 1 {
			role = r
		}
	}
	if role == "" {
		return "", "", ErrInvalidPIN
	}

	now := a.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   role,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", "", err
	}
	return token, role, nil
}

// Validate parses a token and returns its claims.
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Role == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type contextKey struct{}

// RoleFrom returns the role stored in the request context by Require.
func RoleFrom(ctx context.Context) string {
	role, _ := ctx.Value(contextKey{}).(string)
	return role
}

// WithRole stores a role in a context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, contextKey{}, role)
}

// Require returns middleware that accepts only bearer tokens carrying one of
// the given roles. With no roles any valid token is accepted.
func (a *Authenticator) Require(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}

			claims, err := a.Validate(parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
				writeError(w, http.StatusForbidden, "role not allowed")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), claims.Role)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
