// ctf-scoreboard-system/middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the authenticated username and roles the
// Gateway forwards in headers. The core services assume authorization
// already happened here — they only enforce data-consistency contracts.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		username := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		var roles []string
		if rolesStr != "" {
			for _, r := range strings.Split(rolesStr, ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					roles = append(roles, r)
				}
			}
		}

		// Attach to ctx for handlers
		c.Locals("username", username)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}

// RequireAdminRole gates the admin group. Write access to arbitrary users'
// rows is admin-only; everyone else may only touch their own ledger.
func RequireAdminRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		for _, r := range roles {
			if r == "admin" {
				return c.Next()
			}
		}
		log.Printf("🚫 [USER_CTX] admin role required for %s", c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "admin role required",
		})
	}
}
