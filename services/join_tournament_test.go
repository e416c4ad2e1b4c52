package services

import (
	"testing"

	"arena-tournament-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestTournamentService(t *testing.T, db *gorm.DB) *TournamentService {
	t.Helper()
	wallet, _ := newTestWallet(t, db)
	return NewTournamentService(db, wallet)
}

func TestJoinSoloHappyPath(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 20, 100)
	user := seedUser(t, db, 100)

	participant, err := svc.joinTournament(tour.ID, user.ID, "")
	require.NoError(t, err)

	assert.Equal(t, models.ParticipantKindUser, participant.EntityKind)
	assert.Equal(t, user.ID, participant.EntityID)
	assert.Equal(t, models.PaymentStatusPaid, participant.PaymentStatus)
	assert.NotEmpty(t, participant.PaymentRef)

	// Fee taken exactly once, slot count derived from the roster.
	assert.Equal(t, 80.0, balanceOf(t, db, user.ID))
	var reloaded models.Tournament
	require.NoError(t, db.First(&reloaded, "id = ?", tour.ID).Error)
	assert.Equal(t, 1, reloaded.CurrentSlots)

	// Stats and per-user history written.
	var joined models.User
	require.NoError(t, db.First(&joined, "id = ?", user.ID).Error)
	assert.EqualValues(t, 1, joined.TournamentsPlayed)
	var hist models.UserParticipation
	require.NoError(t, db.First(&hist, "user_id = ? AND tournament_id = ?", user.ID, tour.ID).Error)
	assert.Equal(t, participant.ID, hist.ParticipantID)
}

func TestJoinRejectsDuplicate(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 20, 100)
	user := seedUser(t, db, 100)

	_, err := svc.joinTournament(tour.ID, user.ID, "")
	require.NoError(t, err)

	_, err = svc.joinTournament(tour.ID, user.ID, "")
	assert.Equal(t, CodeDuplicateJoin, appCode(t, err))
	// The duplicate was caught before the fee reservation.
	assert.Equal(t, 80.0, balanceOf(t, db, user.ID))
}

func TestJoinRequiresOpenRegistration(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 20, 100)
	require.NoError(t, db.Model(&models.Tournament{}).Where("id = ?", tour.ID).
		Update("status", models.TournamentStatusRegistrationClosed).Error)
	user := seedUser(t, db, 100)

	_, err := svc.joinTournament(tour.ID, user.ID, "")
	assert.Equal(t, CodeRegistrationClosed, appCode(t, err))
}

func TestJoinRejectsFullTournament(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 0, 1)

	first := seedUser(t, db, 0)
	_, err := svc.joinTournament(tour.ID, first.ID, "")
	require.NoError(t, err)

	second := seedUser(t, db, 0)
	_, err = svc.joinTournament(tour.ID, second.ID, "")
	assert.Equal(t, CodeFull, appCode(t, err))
}

func TestJoinRejectsInsufficientFunds(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 50, 100)
	user := seedUser(t, db, 30)

	_, err := svc.joinTournament(tour.ID, user.ID, "")
	assert.Equal(t, CodeInsufficientFunds, appCode(t, err))

	// No participant row, no slot taken, balance intact.
	var count int64
	db.Model(&models.TournamentParticipant{}).Where("tournament_id = ?", tour.ID).Count(&count)
	assert.Zero(t, count)
	assert.Equal(t, 30.0, balanceOf(t, db, user.ID))
}

func TestJoinRejectsIncompleteProfile(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 0, 100)
	user := seedUser(t, db, 0)
	require.NoError(t, db.Model(user).Update("in_game_name", "").Error)

	_, err := svc.joinTournament(tour.ID, user.ID, "")
	assert.Equal(t, CodeIncompleteProfile, appCode(t, err))
}

func TestJoinSoloRejectsTeamID(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 0, 100)
	user := seedUser(t, db, 0)
	team, _ := seedTeam(t, db, models.TeamTypeDuo, 0)

	_, err := svc.joinTournament(tour.ID, user.ID, team.ID)
	assert.Equal(t, CodeTeamNotAllowed, appCode(t, err))
}

func TestJoinDuoHappyPath(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeDuo, 40, 10)
	team, members := seedTeam(t, db, models.TeamTypeDuo, 100)
	leader := members[0]

	participant, err := svc.joinTournament(tour.ID, leader.ID, team.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ParticipantKindTeam, participant.EntityKind)
	assert.Equal(t, team.ID, participant.EntityID)

	// Leader pays the fee; both members get the stats bump and history row.
	assert.Equal(t, 60.0, balanceOf(t, db, leader.ID))
	assert.Equal(t, 100.0, balanceOf(t, db, members[1].ID))
	for _, m := range members {
		var u models.User
		require.NoError(t, db.First(&u, "id = ?", m.ID).Error)
		assert.EqualValues(t, 1, u.TournamentsPlayed, "member %s", m.ID)
		var hist models.UserParticipation
		require.NoError(t, db.First(&hist, "user_id = ? AND tournament_id = ?", m.ID, tour.ID).Error)
	}
}

func TestJoinDuoRequiresLeader(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeDuo, 0, 10)
	team, members := seedTeam(t, db, models.TeamTypeDuo, 0)

	_, err := svc.joinTournament(tour.ID, members[1].ID, team.ID)
	assert.Equal(t, CodeNotLeader, appCode(t, err))
}

func TestJoinDuoRejectsIncompleteRoster(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeDuo, 0, 10)
	team, members := seedTeam(t, db, models.TeamTypeDuo, 0)
	require.NoError(t, db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", team.ID, members[1].ID).
		Update("status", models.MemberStatusPending).Error)

	_, err := svc.joinTournament(tour.ID, members[0].ID, team.ID)
	assert.Equal(t, CodeIncompleteRoster, appCode(t, err))
}

func TestJoinDuoRejectsTypeMismatch(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSquad, 0, 10)
	team, members := seedTeam(t, db, models.TeamTypeDuo, 0)

	_, err := svc.joinTournament(tour.ID, members[0].ID, team.ID)
	assert.Equal(t, CodeTypeMismatch, appCode(t, err))
}

func TestJoinDuoRejectsDoubleEntry(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeDuo, 0, 10)
	team, members := seedTeam(t, db, models.TeamTypeDuo, 0)

	_, err := svc.joinTournament(tour.ID, members[0].ID, team.ID)
	require.NoError(t, err)

	_, err = svc.joinTournament(tour.ID, members[0].ID, team.ID)
	assert.Equal(t, CodeAlreadyRegistered, appCode(t, err))
}

func TestCompensateEntryFeeRestoresBalance(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 25, 100)
	user := seedUser(t, db, 100)

	feeTxn, err := svc.Wallet.Reserve(user.ID, tour.EntryFee, "entry fee", &tour.ID)
	require.NoError(t, err)
	require.Equal(t, 75.0, balanceOf(t, db, user.ID))

	err = svc.compensateEntryFee(user.ID, tour, feeTxn, assert.AnError)
	require.NoError(t, err)
	assert.Equal(t, 100.0, balanceOf(t, db, user.ID))

	var refund models.Transaction
	require.NoError(t, db.First(&refund, "user_id = ? AND kind = ?", user.ID, models.TxKindRefund).Error)
	assert.Equal(t, 25.0, refund.Amount)
}

// A join that loses the in-transaction capacity check must refund the fee.
func TestJoinLastSlotLoserIsRefunded(t *testing.T) {
	db := newTestDB(t)
	svc := newTestTournamentService(t, db)
	tour := seedTournament(t, db, models.TournamentTypeSolo, 10, 1)
	winner := seedUser(t, db, 50)
	loser := seedUser(t, db, 50)

	_, err := svc.joinTournament(tour.ID, winner.ID, "")
	require.NoError(t, err)

	// The loser passes the pre-checks against a stale snapshot.
	var stale models.Tournament
	require.NoError(t, db.First(&stale, "id = ?", tour.ID).Error)
	require.NoError(t, db.Model(&models.Tournament{}).Where("id = ?", tour.ID).
		Update("current_slots", 0).Error)

	_, err = svc.joinTournament(tour.ID, loser.ID, "")
	assert.Equal(t, CodeFull, appCode(t, err))

	// Fee reserved, then compensated inside the failure branch.
	assert.Equal(t, 50.0, balanceOf(t, db, loser.ID))
	var kinds []string
	db.Model(&models.Transaction{}).Where("user_id = ?", loser.ID).
		Order("created_at").Pluck("kind", &kinds)
	assert.Equal(t, []string{models.TxKindDeduction, models.TxKindRefund}, kinds)
}
