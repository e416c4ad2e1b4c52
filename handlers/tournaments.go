package handlers

import (
	"arena-tournament-system/middleware"
	"arena-tournament-system/models"
	"arena-tournament-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupTournamentRoutes(app *fiber.App, db *gorm.DB, tournamentService *services.TournamentService) {
	// 🔓 Public routes — listings and details are browsable without a session
	app.Get("/tournaments", tournamentService.GetAllTournaments)
	app.Get("/tournaments/:id", tournamentService.GetTournamentByID)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.RequireAuth(db))

	secured.Post("/tournaments/:id/join", tournamentService.JoinTournament)
	secured.Post("/tournaments/:id/leave", tournamentService.LeaveTournament)
	secured.Get("/tournaments/:id/participants", tournamentService.GetParticipants)

	// Hosting (room_host or admin; CreateTournament re-checks the role so
	// a plain player gets a clean forbidden instead of a 404)
	host := secured.Group("/", middleware.RequireRole(models.RoleRoomHost, models.RoleAdmin))
	host.Post("/tournaments", tournamentService.CreateTournament)
	host.Put("/tournaments/:id", tournamentService.UpdateTournament)
	host.Patch("/tournaments/:id/status", tournamentService.UpdateTournamentStatus)
	host.Put("/tournaments/:id/room", tournamentService.SetRoomDetails)
	host.Post("/tournaments/:id/results", tournamentService.RecordResults)
	host.Delete("/tournaments/:id", tournamentService.DeleteTournament)
}
