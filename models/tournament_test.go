package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{TournamentStatusUpcoming, TournamentStatusRegistrationOpen, true},
		{TournamentStatusRegistrationOpen, TournamentStatusRegistrationClosed, true},
		{TournamentStatusRegistrationClosed, TournamentStatusLive, true},
		{TournamentStatusLive, TournamentStatusCompleted, true},

		// No skipping or going backwards.
		{TournamentStatusUpcoming, TournamentStatusLive, false},
		{TournamentStatusRegistrationOpen, TournamentStatusLive, false},
		{TournamentStatusLive, TournamentStatusRegistrationOpen, false},
		{TournamentStatusCompleted, TournamentStatusLive, false},

		// Cancellation works from anywhere except the terminal states.
		{TournamentStatusUpcoming, TournamentStatusCancelled, true},
		{TournamentStatusRegistrationOpen, TournamentStatusCancelled, true},
		{TournamentStatusLive, TournamentStatusCancelled, true},
		{TournamentStatusCompleted, TournamentStatusCancelled, false},
		{TournamentStatusCancelled, TournamentStatusCancelled, false},
	}
	for _, tc := range cases {
		tour := Tournament{Status: tc.from}
		assert.Equal(t, tc.ok, tour.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRequiredTeamSize(t *testing.T) {
	assert.Equal(t, 1, (&Tournament{Type: TournamentTypeSolo}).RequiredTeamSize())
	assert.Equal(t, 2, (&Tournament{Type: TournamentTypeDuo}).RequiredTeamSize())
	assert.Equal(t, 4, (&Tournament{Type: TournamentTypeSquad}).RequiredTeamSize())
}

func TestIsFull(t *testing.T) {
	assert.False(t, (&Tournament{MaxSlots: 10, CurrentSlots: 9}).IsFull())
	assert.True(t, (&Tournament{MaxSlots: 10, CurrentSlots: 10}).IsFull())
	// Zero max means unlimited.
	assert.False(t, (&Tournament{MaxSlots: 0, CurrentSlots: 5000}).IsFull())
}

func TestHasCompleteGameProfile(t *testing.T) {
	full := User{GamePlatformID: "pf", GameLevel: 3, InGameName: "x"}
	assert.True(t, full.HasCompleteGameProfile())

	assert.False(t, (&User{GameLevel: 3, InGameName: "x"}).HasCompleteGameProfile())
	assert.False(t, (&User{GamePlatformID: "pf", InGameName: "x"}).HasCompleteGameProfile())
	assert.False(t, (&User{GamePlatformID: "pf", GameLevel: 3}).HasCompleteGameProfile())
}

func TestHasPayoutDetails(t *testing.T) {
	bank := User{BankAccountName: "A", BankAccountNumber: "1", BankIFSC: "IFSC0001"}
	assert.True(t, bank.HasPayoutDetails(WithdrawMethodBank))
	assert.False(t, bank.HasPayoutDetails(WithdrawMethodUPI))

	upi := User{UpiID: "a@upi"}
	assert.True(t, upi.HasPayoutDetails(WithdrawMethodUPI))
	assert.False(t, upi.HasPayoutDetails(WithdrawMethodBank))
	assert.False(t, upi.HasPayoutDetails("cheque"))

	partial := User{BankAccountName: "A", BankAccountNumber: "1"}
	assert.False(t, partial.HasPayoutDetails(WithdrawMethodBank))
}

func TestTeamMaxMembersAndAcceptedCount(t *testing.T) {
	duo := Team{Type: TeamTypeDuo}
	squad := Team{Type: TeamTypeSquad}
	assert.Equal(t, 2, duo.MaxMembers())
	assert.Equal(t, 4, squad.MaxMembers())

	team := Team{Members: []TeamMember{
		{Status: MemberStatusAccepted},
		{Status: MemberStatusPending},
		{Status: MemberStatusAccepted},
		{Status: MemberStatusRejected},
	}}
	assert.Equal(t, 2, team.AcceptedCount())
}
