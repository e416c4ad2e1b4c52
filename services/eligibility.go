// services/eligibility.go
package services

import (
	"fmt"

	"arena-tournament-system/models"
)

// CanFieldTeam decides whether team may represent itself in tournament, with
// callerID as the acting user. Pure read — no side effects. The team must be
// loaded with Members and each member's User.
//
// Checks, in order: type match, caller is leader, accepted roster exactly
// matches the required size, every accepted member has a complete game
// profile, and the team is not already on the roster (the roster check
// happens against the participants passed in, so callers can run it again
// inside the join transaction with fresh data).
func CanFieldTeam(team *models.Team, tournament *models.Tournament, callerID string, participants []models.TournamentParticipant) error {
	if team.Type != tournament.Type {
		return &AppError{
			Code: CodeTypeMismatch, Status: 409,
			Message: fmt.Sprintf("a %s team cannot enter a %s tournament", team.Type, tournament.Type),
		}
	}
	if team.LeaderID != callerID {
		return &AppError{Code: CodeNotLeader, Status: 403, Message: "only the team leader can enter the team"}
	}

	required := tournament.RequiredTeamSize()
	if team.AcceptedCount() != required {
		return &AppError{
			Code: CodeIncompleteRoster, Status: 409,
			Message: fmt.Sprintf("team needs exactly %d accepted members, has %d", required, team.AcceptedCount()),
		}
	}

	for _, m := range team.Members {
		if m.Status != models.MemberStatusAccepted {
			continue
		}
		if m.User == nil || !m.User.HasCompleteGameProfile() {
			name := m.UserID
			if m.User != nil {
				name = m.User.Username
			}
			return &AppError{
				Code: CodeIncompleteProfile, Status: 409,
				Message: fmt.Sprintf("member %s has an incomplete game profile", name),
			}
		}
	}

	for _, p := range participants {
		if p.EntityKind == models.ParticipantKindTeam && p.EntityID == team.ID {
			return &AppError{Code: CodeAlreadyRegistered, Status: 409, Message: "team is already registered for this tournament"}
		}
	}
	return nil
}
