package middleware

import (
	"context"

	common_models "go-ops/internal/common/models"
	"go-ops/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// TenantMiddleware copies the tenant id from the validated claims into the
// request's user context so repositories can scope every query by it.
func TenantMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok && claims.TenantID != "" {
			ctx := context.WithValue(c.UserContext(), common_models.TenantIDKey, claims.TenantID)
			c.SetUserContext(ctx)
		}
		return c.Next()
	}
}

// TenantID extracts the tenant id set by TenantMiddleware. Falls back to the
// zero tenant for dev mode with SKIP_AUTH.
func TenantID(c *fiber.Ctx) string {
	if claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok {
		return claims.TenantID
	}
	return ""
}
