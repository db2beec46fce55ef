package http

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/service"
)

const (
	tokenKey  = "user"
	sellerKey = "seller"
)

// jwtMiddleware accepts HS256 tokens signed with secret. Tokens are issued by
// the identity provider; the subject claim is the seller's auth id.
func jwtMiddleware(secret []byte) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey: tokenKey,
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			token, err := jwt.ParseWithClaims(auth, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
				if _, isHMAC := t.Method.(*jwt.SigningMethodHMAC); !isHMAC {
					return nil, errors.New("unexpected signing method")
				}
				return secret, nil
			})
			if err != nil {
				return nil, err
			}
			if !token.Valid {
				return nil, errors.New("invalid token")
			}
			return token, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid bearer token", err)
		},
	})
}

// subject returns the token subject, or "" when the request is anonymous.
func subject(c echo.Context) string {
	token, isToken := c.Get(tokenKey).(*jwt.Token)
	if !isToken {
		return ""
	}
	claims, isRegistered := token.Claims.(*jwt.RegisteredClaims)
	if !isRegistered {
		return ""
	}
	return claims.Subject
}

// sellerGuard resolves the token subject to a seller profile and rejects
// identities that have none.
func sellerGuard(catalog *service.CatalogService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub := subject(c)
			if sub == "" {
				return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			}
			seller, err := catalog.SellerByAuthID(c.Request().Context(), sub)
			var notFound *service.NotFoundError
			if errors.As(err, &notFound) {
				return fail(c, http.StatusForbidden, "FORBIDDEN", "No seller profile for this identity", nil)
			}
			if err != nil {
				return serviceError(c, err)
			}
			c.Set(sellerKey, seller)
			return next(c)
		}
	}
}

func currentSeller(c echo.Context) *entity.Seller {
	s, _ := c.Get(sellerKey).(*entity.Seller)
	return s
}
