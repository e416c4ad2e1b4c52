package services

import (
	"testing"
	"time"

	"arena-tournament-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// In-memory sqlite gives each connection its own database, so the pool
	// must stay at a single connection.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.UserParticipation{},
		&models.Team{},
		&models.TeamMember{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.Transaction{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, balance float64) *models.User {
	t.Helper()

	id := uuid.NewString()
	user := &models.User{
		ID:             id,
		Username:       "player-" + id[:8],
		Email:          id[:8] + "@example.com",
		PasswordHash:   "x",
		Role:           models.RolePlayer,
		IsVerified:     true,
		WalletBalance:  balance,
		GamePlatformID: "pf-" + id[:8],
		GameLevel:      42,
		InGameName:     "ign-" + id[:8],
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedTournament(t *testing.T, db *gorm.DB, typ string, entryFee float64, maxSlots int) *models.Tournament {
	t.Helper()

	now := time.Now()
	host := seedUser(t, db, 0)
	tour := &models.Tournament{
		ID:                   uuid.NewString(),
		Slug:                 "t-" + uuid.NewString()[:8],
		Name:                 "Test Cup",
		Type:                 typ,
		EntryFee:             entryFee,
		PrizePool:            1000,
		MaxSlots:             maxSlots,
		Status:               models.TournamentStatusRegistrationOpen,
		HostID:               host.ID,
		RegistrationOpensAt:  now.Add(-time.Hour),
		RegistrationClosesAt: now.Add(time.Hour),
		StartTime:            now.Add(2 * time.Hour),
	}
	require.NoError(t, db.Create(tour).Error)
	return tour
}

// seedTeam creates a team of the given type with an accepted leader and
// enough accepted members to fill the roster.
func seedTeam(t *testing.T, db *gorm.DB, typ string, memberBalance float64) (*models.Team, []*models.User) {
	t.Helper()

	size := 2
	if typ == models.TeamTypeSquad {
		size = 4
	}

	users := make([]*models.User, size)
	for i := range users {
		users[i] = seedUser(t, db, memberBalance)
	}

	team := &models.Team{
		ID:         uuid.NewString(),
		Name:       "team-" + uuid.NewString()[:8],
		Type:       typ,
		LeaderID:   users[0].ID,
		InviteCode: uuid.NewString()[:6],
	}
	require.NoError(t, db.Create(team).Error)
	for _, u := range users {
		require.NoError(t, db.Create(&models.TeamMember{
			ID:     uuid.NewString(),
			TeamID: team.ID,
			UserID: u.ID,
			Status: models.MemberStatusAccepted,
			Origin: models.MemberOriginInvite,
		}).Error)
	}
	require.NoError(t, db.Preload("Members.User").First(team, "id = ?", team.ID).Error)
	return team, users
}

func balanceOf(t *testing.T, db *gorm.DB, userID string) float64 {
	t.Helper()
	var user models.User
	require.NoError(t, db.First(&user, "id = ?", userID).Error)
	return user.WalletBalance
}
