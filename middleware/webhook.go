// middleware/webhook.go
package middleware

import (
	"crypto/subtle"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
)

// RequireWebhookToken validates the shared secret the payment gateway sends
// with every webhook call. Without it anyone could mark payouts as failed
// and trigger compensating credits.
func RequireWebhookToken() fiber.Handler {
	expected := os.Getenv("GATEWAY_WEBHOOK_SECRET")
	if expected == "" {
		log.Fatal("❌ GATEWAY_WEBHOOK_SECRET is not set — cannot authenticate gateway webhooks")
	}

	return func(c *fiber.Ctx) error {
		got := c.Get("X-Webhook-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			log.Printf("🚫 [WEBHOOK] Invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false, "error": "unauthorized", "message": "invalid webhook token",
			})
		}
		return c.Next()
	}
}
