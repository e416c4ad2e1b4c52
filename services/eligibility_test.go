package services

import (
	"testing"

	"arena-tournament-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eligibilityFixture() (*models.Team, *models.Tournament) {
	leader := &models.User{ID: "u1", Username: "leader", GamePlatformID: "p1", GameLevel: 10, InGameName: "L"}
	mate := &models.User{ID: "u2", Username: "mate", GamePlatformID: "p2", GameLevel: 12, InGameName: "M"}
	team := &models.Team{
		ID: "team1", Name: "duo-one", Type: models.TeamTypeDuo, LeaderID: "u1",
		Members: []models.TeamMember{
			{TeamID: "team1", UserID: "u1", Status: models.MemberStatusAccepted, User: leader},
			{TeamID: "team1", UserID: "u2", Status: models.MemberStatusAccepted, User: mate},
		},
	}
	tour := &models.Tournament{ID: "t1", Type: models.TournamentTypeDuo}
	return team, tour
}

func TestCanFieldTeamAccepts(t *testing.T) {
	team, tour := eligibilityFixture()
	require.NoError(t, CanFieldTeam(team, tour, "u1", nil))
}

func TestCanFieldTeamTypeMismatch(t *testing.T) {
	team, tour := eligibilityFixture()
	tour.Type = models.TournamentTypeSquad

	err := CanFieldTeam(team, tour, "u1", nil)
	assert.Equal(t, CodeTypeMismatch, appCode(t, err))
}

func TestCanFieldTeamNonLeader(t *testing.T) {
	team, tour := eligibilityFixture()

	err := CanFieldTeam(team, tour, "u2", nil)
	assert.Equal(t, CodeNotLeader, appCode(t, err))
}

func TestCanFieldTeamIncompleteRoster(t *testing.T) {
	team, tour := eligibilityFixture()
	team.Members[1].Status = models.MemberStatusPending

	err := CanFieldTeam(team, tour, "u1", nil)
	assert.Equal(t, CodeIncompleteRoster, appCode(t, err))
}

func TestCanFieldTeamOverfullRoster(t *testing.T) {
	team, tour := eligibilityFixture()
	extra := &models.User{ID: "u3", GamePlatformID: "p3", GameLevel: 3, InGameName: "X"}
	team.Members = append(team.Members, models.TeamMember{
		TeamID: team.ID, UserID: "u3", Status: models.MemberStatusAccepted, User: extra,
	})

	// Exactly the required size, not at-least.
	err := CanFieldTeam(team, tour, "u1", nil)
	assert.Equal(t, CodeIncompleteRoster, appCode(t, err))
}

func TestCanFieldTeamMemberProfileIncomplete(t *testing.T) {
	team, tour := eligibilityFixture()
	team.Members[1].User.InGameName = ""

	err := CanFieldTeam(team, tour, "u1", nil)
	assert.Equal(t, CodeIncompleteProfile, appCode(t, err))
}

func TestCanFieldTeamPendingMemberProfileIgnored(t *testing.T) {
	team, tour := eligibilityFixture()
	// A rejected hanger-on with no profile must not block the team.
	team.Members = append(team.Members, models.TeamMember{
		TeamID: team.ID, UserID: "u9", Status: models.MemberStatusRejected,
	})
	require.NoError(t, CanFieldTeam(team, tour, "u1", nil))
}

func TestCanFieldTeamAlreadyRegistered(t *testing.T) {
	team, tour := eligibilityFixture()
	participants := []models.TournamentParticipant{
		{TournamentID: tour.ID, EntityKind: models.ParticipantKindTeam, EntityID: team.ID},
	}

	err := CanFieldTeam(team, tour, "u1", participants)
	assert.Equal(t, CodeAlreadyRegistered, appCode(t, err))
}

func TestCanFieldTeamIgnoresOtherEntities(t *testing.T) {
	team, tour := eligibilityFixture()
	participants := []models.TournamentParticipant{
		{TournamentID: tour.ID, EntityKind: models.ParticipantKindTeam, EntityID: "other-team"},
		{TournamentID: tour.ID, EntityKind: models.ParticipantKindUser, EntityID: team.ID},
	}
	require.NoError(t, CanFieldTeam(team, tour, "u1", participants))
}
