package handlers

import (
	"arena-tournament-system/middleware"
	"arena-tournament-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB, authService *services.AuthService) {
	// 🔓 Public routes
	app.Post("/auth/register", authService.Register)
	app.Post("/auth/register/verify", authService.VerifyRegistration)
	app.Post("/auth/login", authService.Login)

	// 🔐 Password change requires a live session
	secured := app.Group("/auth", middleware.RequireAuth(db))
	secured.Post("/password/request", authService.RequestPasswordChange)
	secured.Post("/password/confirm", authService.ConfirmPasswordChange)
}
