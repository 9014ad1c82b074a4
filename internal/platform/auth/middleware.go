package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "user_role"
)

// Roles recognized by the service.
const (
	RoleElder     = "elder"
	RoleCaregiver = "caregiver"
	RoleAdmin     = "admin"
)

// Claims is the JWT payload issued for mobile and web clients. Subject is the
// user's UUID.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Sign issues an HS256 token for the given user. Used by the dev token
// command and by tests.
func Sign(secret []byte, userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// JWTMiddleware returns middleware that authenticates requests using an HS256
// bearer token. WebSocket clients cannot set headers from the browser, so a
// "token" query parameter is accepted as a fallback.
func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := extractToken(c)
			if tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization token")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			// String form on the echo context for the rate limiter key.
			c.Set("user_id", userID.String())

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, userID)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.QueryParam("token")
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// without a token are authenticated as the identity given in the X-User-ID
// and X-User-Role headers, or as a fixed admin identity when those are
// absent. Requests that do carry a token are validated normally.
func DevAuthMiddleware(secret []byte) echo.MiddlewareFunc {
	jwtMW := JWTMiddleware(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := jwtMW(next)
		return func(c echo.Context) error {
			if extractToken(c) != "" {
				return validated(c)
			}

			userID := uuid.Nil
			if hdr := c.Request().Header.Get("X-User-ID"); hdr != "" {
				if parsed, err := uuid.Parse(hdr); err == nil {
					userID = parsed
				}
			}
			role := c.Request().Header.Get("X-User-Role")
			if role == "" {
				role = RoleAdmin
			}

			c.Set("user_id", userID.String())
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, userID)
			ctx = context.WithValue(ctx, RoleKey, role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// UserIDFromContext returns the authenticated user's ID, or uuid.Nil when the
// request is unauthenticated.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	uid, _ := ctx.Value(UserIDKey).(uuid.UUID)
	return uid
}

// RoleFromContext returns the authenticated user's role.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}
