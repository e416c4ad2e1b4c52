package handlers

import (
	"arena-tournament-system/middleware"
	"arena-tournament-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupTeamRoutes(app *fiber.App, db *gorm.DB, teamService *services.TeamService) {
	// Every team operation is tied to a member or leader identity
	secured := app.Group("/", middleware.RequireAuth(db))

	secured.Post("/teams", teamService.CreateTeam)
	secured.Get("/teams/mine", teamService.GetMyTeams)
	secured.Get("/teams/:id", teamService.GetTeam)
	secured.Delete("/teams/:id", teamService.DeleteTeam)
	secured.Post("/teams/:id/logo", teamService.UploadTeamLogo)

	// Roster management
	secured.Post("/teams/:id/invites", teamService.InviteMember)
	secured.Post("/teams/join", teamService.RequestJoin)
	secured.Post("/teams/:id/respond", teamService.RespondToMembership)
	secured.Delete("/teams/:id/members/:user_id", teamService.RemoveMember)
	secured.Post("/teams/:id/leave", teamService.LeaveTeam)
}
