package handlers

import (
	"arena-tournament-system/middleware"
	"arena-tournament-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupWalletRoutes(app *fiber.App, db *gorm.DB, walletService *services.WalletService) {
	// Gateway webhook — authenticated by shared token, not a user session
	app.Post("/wallet/payouts/webhook", middleware.RequireWebhookToken(), walletService.PayoutWebhook)

	// 🔐 Authenticated wallet routes
	secured := app.Group("/wallet", middleware.RequireAuth(db))
	secured.Get("/", walletService.GetWallet)
	secured.Get("/transactions", walletService.GetTransactions)
	secured.Post("/deposits", walletService.Deposit)
	secured.Post("/deposits/verify", walletService.VerifyDeposit)
	secured.Post("/withdrawals", walletService.Withdraw)
}
