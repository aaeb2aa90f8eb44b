package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/service"
)

const actorContextKey = "actor"

type Claims struct {
	Role    string   `json:"role"`
	ShopIDs []string `json:"shop_ids"`
	jwt.RegisteredClaims
}

// Auth parses the Bearer token and stores the resulting Actor on the echo
// context for handlers to hand to services.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			claims, err := parseClaims(strings.TrimPrefix(header, "Bearer "), jwtSecret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(actorContextKey, actorFromClaims(claims))
			return next(c)
		}
	}
}

// OptionalAuth attaches an Actor when a valid Bearer token is present but
// lets anonymous requests through. Public checkout uses it so purchases by
// signed-in customers can be tied back to their account.
func OptionalAuth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				if claims, err := parseClaims(strings.TrimPrefix(header, "Bearer "), jwtSecret); err == nil {
					c.Set(actorContextKey, actorFromClaims(claims))
				}
			}
			return next(c)
		}
	}
}

func parseClaims(tokenString, jwtSecret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

func actorFromClaims(claims *Claims) *service.Actor {
	return &service.Actor{
		UserID:  claims.Subject,
		Role:    claims.Role,
		ShopIDs: claims.ShopIDs,
	}
}

func ActorFrom(c echo.Context) *service.Actor {
	if actor, ok := c.Get(actorContextKey).(*service.Actor); ok {
		return actor
	}
	return nil
}
