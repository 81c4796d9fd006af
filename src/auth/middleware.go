package auth

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/trackship/server/src/types"
)

const identityKey = "identity"

// RequireAuth verifies the bearer token on a request and stores the
// decoded identity in the request locals. Missing token is 401,
// invalid token is 403, matching the API's browser client.
func RequireAuth(tokens *Tokens) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if header == "" || len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Access denied. No token provided.",
			})
		}

		identity, err := tokens.Verify(parts[1])
		if err != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Invalid token.",
			})
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// RequireAdmin rejects requests whose identity lacks the admin role.
// Must run after RequireAuth.
func RequireAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		identity, ok := IdentityFromCtx(c)
		if !ok || !identity.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Unauthorized: Admin access required",
			})
		}
		return c.Next()
	}
}

// IdentityFromCtx returns the identity stored by RequireAuth.
func IdentityFromCtx(c fiber.Ctx) (types.Identity, bool) {
	identity, ok := c.Locals(identityKey).(types.Identity)
	return identity, ok
}
