package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/thependalorian/ketchup-smartpay-sub005/internal/auth"
	"github.com/thependalorian/ketchup-smartpay-sub005/internal/config"
)

// AdminAuth guards operator endpoints: it requires a bearer token signed with
// the service secret and carrying the adm claim.
func AdminAuth(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := auth.ParseAndVerifyHS256(tokenStr, []byte(cfg.JWTSecret))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if admin, _ := claims["adm"].(bool); !admin {
			return fiber.NewError(http.StatusForbidden, "operator access required")
		}

		sub, _ := claims["sub"].(string)
		c.Locals("operator_id", sub)
		return c.Next()
	}
}
