package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Roles understood by the referential API.
const (
	RoleAdmin  = "admin"
	RoleEditor = "referential_editor"
	RoleReader = "referential_reader"
)

type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey is used for development/testing only
	SigningKey []byte
}

// NewKeyfunc resolves verification keys: the static HMAC key when one is
// configured, otherwise a JWKS that refreshes in the background until ctx
// is cancelled.
func NewKeyfunc(ctx context.Context, cfg JWTConfig, logger zerolog.Logger) (jwt.Keyfunc, error) {
	if len(cfg.SigningKey) > 0 {
		key := cfg.SigningKey
		return func(*jwt.Token) (interface{}, error) { return key, nil }, nil
	}
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("either a JWKS URL or a signing key is required")
	}

	override := keyfunc.Override{
		RefreshInterval: time.Hour,
		HTTPTimeout:     10 * time.Second,
		RefreshErrorHandlerFunc: func(url string) func(context.Context, error) {
			return func(_ context.Context, err error) {
				logger.Error().Err(err).Str("url", url).Msg("refresh JWKS")
			}
		},
	}
	k, err := keyfunc.NewDefaultOverrideCtx(ctx, []string{cfg.JWKSURL}, override)
	if err != nil {
		return nil, fmt.Errorf("load JWKS: %w", err)
	}
	return k.Keyfunc, nil
}

func validMethods(cfg JWTConfig) []string {
	if len(cfg.SigningKey) > 0 {
		return []string{jwt.SigningMethodHS256.Alg()}
	}
	return []string{
		jwt.SigningMethodRS256.Alg(),
		jwt.SigningMethodRS384.Alg(),
		jwt.SigningMethodPS256.Alg(),
		jwt.SigningMethodES256.Alg(),
	}
}

// JWTMiddleware authenticates bearer tokens and exposes the subject and
// roles on the request context.
func JWTMiddleware(cfg JWTConfig, kf jwt.Keyfunc) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods(validMethods(cfg)), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := bearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenStr, claims, kf)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			// Set values on echo context for tenant middleware
			c.Set("jwt_tenant_id", claims.TenantID)

			ctx := WithIdentity(c.Request().Context(), claims.Subject, claims.Roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

// DevAuthMiddleware grants an admin identity to unauthenticated requests.
// Requests that do carry a token are passed to verify when it is set.
func DevAuthMiddleware(verify echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := next
		if verify != nil {
			verified = verify(next)
		}
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			c.Set("jwt_tenant_id", "")
			ctx := WithIdentity(c.Request().Context(), "dev-user", []string{RoleAdmin})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// WithIdentity attaches an authenticated subject and its roles to ctx.
func WithIdentity(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
