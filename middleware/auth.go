// middleware/auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"arena-tournament-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// RequireAuth validates the Bearer token and attaches user_id / user_role
// to the request context. Blocked accounts are rejected here so no handler
// has to re-check.
func RequireAuth(db *gorm.DB) fiber.Handler {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("❌ JWT_SECRET is not set — cannot authenticate requests")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false, "error": "unauthorized", "message": "missing Authorization header",
			})
		}

		raw := strings.TrimPrefix(authHeader, "Bearer ")
		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false, "error": "unauthorized", "message": "invalid or expired token",
			})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false, "error": "unauthorized", "message": "invalid token claims",
			})
		}
		userID, _ := claims["user_id"].(string)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false, "error": "unauthorized", "message": "invalid token claims",
			})
		}

		var user models.User
		if err := db.Select("id", "role", "is_blocked").First(&user, "id = ?", userID).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false, "error": "unauthorized", "message": "account no longer exists",
			})
		}
		if user.IsBlocked {
			log.Printf("🚫 [AUTH] Blocked account %s attempted %s", userID, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false, "error": "forbidden", "message": "account is blocked",
			})
		}

		// Role comes from the DB, not the token, so promotions and
		// demotions apply without re-login.
		c.Locals("user_id", userID)
		c.Locals("user_role", user.Role)

		return c.Next()
	}
}

// RequireRole gates a route group to specific roles. Apply after RequireAuth.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false, "error": "forbidden", "message": "insufficient role",
		})
	}
}
