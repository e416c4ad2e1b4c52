package handlers

import (
	"arena-tournament-system/middleware"
	"arena-tournament-system/models"
	"arena-tournament-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupUserRoutes(app *fiber.App, db *gorm.DB, userService *services.UserService) {
	secured := app.Group("/", middleware.RequireAuth(db))

	secured.Get("/users/me", userService.GetMe)
	secured.Get("/users/me/history", userService.GetMyHistory)
	secured.Patch("/users/me", userService.UpdateProfile)
	secured.Put("/users/me/game-profile", userService.UpdateGameProfile)
	secured.Put("/users/me/payout-details", userService.UpdatePayoutDetails)
	secured.Post("/users/me/avatar", userService.UploadAvatar)
	secured.Get("/users/search", userService.SearchUsers)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.Patch("/users/:id/role", userService.UpdateRole)
	admin.Patch("/users/:id/block", userService.SetBlocked)
	admin.Delete("/users/:id", userService.DeleteUser)
}
