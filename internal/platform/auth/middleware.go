package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims is the JWT claim set issued by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	BranchID    string   `json:"branch_id"`
	Permissions []string `json:"permissions"`
}

// JWTConfig configures token validation.
type JWTConfig struct {
	Issuer   string
	Audience string
	// SigningKey is the shared HMAC secret used to verify tokens.
	SigningKey []byte
}

// JWTMiddleware validates a bearer token and stores the resulting Principal
// on the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.BranchID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing branch_id")
			}

			p := &Principal{
				UserID:      claims.Subject,
				BranchID:    claims.BranchID,
				Permissions: claims.Permissions,
			}
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))

			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development that grants a
// wildcard principal to unauthenticated requests.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := &Principal{
				UserID:      "dev-user",
				BranchID:    "dev-branch",
				Permissions: []string{"*"},
			}
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}
