package services

import (
	"fmt"
	"testing"

	"arena-tournament-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newUserApp mounts the user handlers behind the same stub auth layer the
// team tests use; role gating lives in routing, so admin endpoints are
// mounted directly here.
func newUserApp(db *gorm.DB) *fiber.App {
	svc := NewUserService(db)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-Test-User"))
		c.Locals("user_role", c.Get("X-Test-Role", models.RolePlayer))
		return c.Next()
	})
	app.Get("/users/me", svc.GetMe)
	app.Patch("/users/me", svc.UpdateProfile)
	app.Patch("/admin/users/:id/role", svc.UpdateRole)
	app.Delete("/admin/users/:id", svc.DeleteUser)
	return app
}

func TestDeleteUserVacatesTournamentSlot(t *testing.T) {
	db := newTestDB(t)
	app := newUserApp(db)
	svc := newTestTournamentService(t, db)
	admin := seedUser(t, db, 0)

	tour := seedTournament(t, db, models.TournamentTypeSolo, 20, 10)
	user := seedUser(t, db, 100)
	_, err := svc.joinTournament(tour.ID, user.ID, "")
	require.NoError(t, err)

	status, _ := doJSONWithRole(t, app, "DELETE",
		fmt.Sprintf("/admin/users/%s", user.ID), admin.ID, models.RoleAdmin, nil)
	require.Equal(t, 200, status)

	// The deleted account no longer occupies its slot.
	var occupied int64
	require.NoError(t, db.Model(&models.TournamentParticipant{}).
		Where("tournament_id = ? AND entity_kind = ? AND entity_id = ?",
			tour.ID, models.ParticipantKindUser, user.ID).Count(&occupied).Error)
	assert.Zero(t, occupied)

	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tour.ID).Error)
	assert.Equal(t, 0, reloaded.CurrentSlots)

	// Account, memberships and history are gone too.
	var users, history int64
	db.Model(&models.User{}).Where("id = ?", user.ID).Count(&users)
	db.Model(&models.UserParticipation{}).Where("user_id = ?", user.ID).Count(&history)
	assert.Zero(t, users)
	assert.Zero(t, history)
}

func TestDeleteUserRemovesLedTeamEntries(t *testing.T) {
	db := newTestDB(t)
	app := newUserApp(db)
	svc := newTestTournamentService(t, db)
	admin := seedUser(t, db, 0)

	tour := seedTournament(t, db, models.TournamentTypeDuo, 10, 10)
	team, members := seedTeam(t, db, models.TeamTypeDuo, 100)
	leader := members[0]
	_, err := svc.joinTournament(tour.ID, leader.ID, team.ID)
	require.NoError(t, err)

	status, _ := doJSONWithRole(t, app, "DELETE",
		fmt.Sprintf("/admin/users/%s", leader.ID), admin.ID, models.RoleAdmin, nil)
	require.Equal(t, 200, status)

	// The team dies with its leader, and its roster entry dies with the team.
	var teams, roster int64
	db.Model(&models.Team{}).Where("id = ?", team.ID).Count(&teams)
	db.Model(&models.TournamentParticipant{}).
		Where("entity_kind = ? AND entity_id = ?", models.ParticipantKindTeam, team.ID).Count(&roster)
	assert.Zero(t, teams)
	assert.Zero(t, roster)

	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tour.ID).Error)
	assert.Equal(t, 0, reloaded.CurrentSlots)

	// The other member's account survives, just without the membership.
	var survivors, memberships int64
	db.Model(&models.User{}).Where("id = ?", members[1].ID).Count(&survivors)
	db.Model(&models.TeamMember{}).Where("user_id = ?", members[1].ID).Count(&memberships)
	assert.EqualValues(t, 1, survivors)
	assert.Zero(t, memberships)
}

func TestDeleteUserUnknownID(t *testing.T) {
	db := newTestDB(t)
	app := newUserApp(db)
	admin := seedUser(t, db, 0)

	status, body := doJSONWithRole(t, app, "DELETE",
		"/admin/users/nope", admin.ID, models.RoleAdmin, nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, false, body["success"])
}
