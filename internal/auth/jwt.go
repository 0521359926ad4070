// Package auth provides optional JWT identity for the API. Tokens are
// verified with a shared HMAC secret, a JWKS endpoint, or both.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/manishnupt/mynx-file-hive/internal/logging"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/pkg/protocol"
)

type contextKey string

const userContextKey contextKey = "user"

// AnonymousUser is the identity of requests without a username.
const AnonymousUser = "anonymous"

var validMethods = []string{"HS256", "HS384", "HS512", "RS256", "ES256"}

// Config holds token verification settings.
type Config struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWKSURL   string `mapstructure:"jwks_url"`
	Required  bool   `mapstructure:"required"`
}

// Claims holds JWT token claims.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Name returns the username claim, falling back to the subject.
func (c *Claims) Name() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// Auth verifies bearer tokens.
type Auth struct {
	secret   []byte
	jwks     keyfunc.Keyfunc
	required bool
}

// New creates an Auth. With a JWKS URL the key set is fetched and kept
// refreshed in the background for the lifetime of ctx.
func New(ctx context.Context, cfg Config) (*Auth, error) {
	a := &Auth{required: cfg.Required}
	if cfg.JWTSecret != "" {
		a.secret = []byte(cfg.JWTSecret)
	}
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client: %w", err)
		}
		a.jwks = jwks
		logging.Info("JWT verifier initialized", zap.String("jwks_url", cfg.JWKSURL))
	}
	if cfg.Required && a.secret == nil && a.jwks == nil {
		return nil, errors.New("auth.required needs auth.jwt_secret or auth.jwks_url")
	}
	return a, nil
}

// NewWithKeyfunc creates an Auth that verifies asymmetric tokens with jwks.
func NewWithKeyfunc(jwks keyfunc.Keyfunc, secret string, required bool) *Auth {
	a := &Auth{jwks: jwks, required: required}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

// Enabled reports whether any verification key is configured.
func (a *Auth) Enabled() bool {
	return a.secret != nil || a.jwks != nil
}

// Middleware validates bearer tokens. A request without a token passes
// through anonymously unless tokens are required; a request with an
// invalid token is always rejected.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			if a.required {
				metrics.RecordAuthAttempt(false)
				sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.validateToken(tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			logging.WithContext(r.Context()).Debug("token rejected", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		metrics.RecordAuthAttempt(true)
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, a.keyFor, jwt.WithValidMethods(validMethods))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Name() == "" {
		return nil, fmt.Errorf("token has no username or subject")
	}
	return claims, nil
}

func (a *Auth) keyFor(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if a.secret == nil {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}
	if a.jwks == nil {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return a.jwks.Keyfunc(token)
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(userContextKey).(*Claims)
	return claims
}

// ResolveUsername picks the verified identity, then the requested name,
// then AnonymousUser.
func ResolveUsername(ctx context.Context, requested string) string {
	if claims := GetClaims(ctx); claims != nil && claims.Name() != "" {
		return claims.Name()
	}
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	return AnonymousUser
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Status:    code,
		Error:     http.StatusText(code),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
