// services/join_tournament.go
package services

import (
	"errors"
	"fmt"
	"log"

	"arena-tournament-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The join flow is a small state machine:
//
//	Validating → EligibilityChecked → FeeReserved → RosterUpdated →
//	StatsUpdated → Committed
//
// with a Compensating branch from any state after FeeReserved. Roster and
// stats writes run inside one DB transaction that re-validates capacity and
// duplicates under a row lock on the tournament — two racing joins for the
// last slot serialize there, and the loser gets Full plus a fee refund.

// JoinTournament is the HTTP entry point for joining.
func (s *TournamentService) JoinTournament(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	tournamentID := c.Params("id")

	type Req struct {
		TeamID string `json:"team_id,omitempty"`
	}
	var req Req
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return respondErr(c, ErrValidation("invalid JSON body", nil))
		}
	}

	participant, err := s.joinTournament(tournamentID, userID, req.TeamID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(201).JSON(fiber.Map{
		"success":     true,
		"message":     "joined tournament",
		"participant": participant,
	})
}

// joinTournament runs the whole state machine and returns the committed
// participant entry.
func (s *TournamentService) joinTournament(tournamentID, userID, teamID string) (*models.TournamentParticipant, error) {
	// --- Validating ---
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("tournament not found")
		}
		return nil, err
	}
	if tournament.Status != models.TournamentStatusRegistrationOpen {
		return nil, &AppError{Code: CodeRegistrationClosed, Status: 409, Message: "registration is not open for this tournament"}
	}
	if tournament.IsFull() {
		return nil, &AppError{Code: CodeFull, Status: 409, Message: "tournament is full"}
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("user not found")
		}
		return nil, err
	}
	if !user.HasCompleteGameProfile() {
		return nil, &AppError{Code: CodeIncompleteProfile, Status: 409, Message: "complete your game profile before joining"}
	}

	// --- EligibilityChecked ---
	entityKind := models.ParticipantKindUser
	entityID := userID
	var team *models.Team

	if tournament.Type == models.TournamentTypeSolo {
		if teamID != "" {
			return nil, &AppError{Code: CodeTeamNotAllowed, Status: 409, Message: "solo tournaments are joined individually, not as a team"}
		}
	} else {
		if teamID == "" {
			return nil, ErrValidation("team_id is required for "+tournament.Type+" tournaments", map[string]string{"team_id": "required"})
		}
		var t models.Team
		if err := s.DB.Preload("Members.User").First(&t, "id = ?", teamID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound("team not found")
			}
			return nil, err
		}
		var existing []models.TournamentParticipant
		if err := s.DB.Where("tournament_id = ?", tournamentID).Find(&existing).Error; err != nil {
			return nil, err
		}
		if err := CanFieldTeam(&t, &tournament, userID, existing); err != nil {
			return nil, err
		}
		team = &t
		entityKind = models.ParticipantKindTeam
		entityID = t.ID
	}

	// Duplicate pre-check — the authoritative one re-runs under the row lock.
	var dup int64
	s.DB.Model(&models.TournamentParticipant{}).
		Where("tournament_id = ? AND entity_kind = ? AND entity_id = ?", tournamentID, entityKind, entityID).
		Count(&dup)
	if dup > 0 {
		return nil, &AppError{Code: CodeDuplicateJoin, Status: 409, Message: "already registered for this tournament"}
	}

	// --- FeeReserved ---
	feeTxn, err := s.Wallet.Reserve(userID, tournament.EntryFee,
		fmt.Sprintf("entry fee for %s", tournament.Name), &tournament.ID)
	if err != nil {
		return nil, err // nothing reserved, nothing to compensate
	}

	// --- RosterUpdated + StatsUpdated ---
	participant := &models.TournamentParticipant{
		ID:            uuid.NewString(),
		TournamentID:  tournament.ID,
		EntityKind:    entityKind,
		EntityID:      entityID,
		PaymentStatus: models.PaymentStatusPaid,
		PaymentRef:    feeTxn.ExternalPaymentID,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Serialize against concurrent joins on the same tournament.
		var locked models.Tournament
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", tournament.ID).Error; err != nil {
			return err
		}
		if locked.Status != models.TournamentStatusRegistrationOpen {
			return &AppError{Code: CodeRegistrationClosed, Status: 409, Message: "registration closed while joining"}
		}

		var count int64
		if err := tx.Model(&models.TournamentParticipant{}).
			Where("tournament_id = ?", locked.ID).Count(&count).Error; err != nil {
			return err
		}
		if locked.MaxSlots > 0 && count >= int64(locked.MaxSlots) {
			// Lost the race for the last slot.
			return &AppError{Code: CodeFull, Status: 409, Message: "tournament is full"}
		}

		var dupInTx int64
		if err := tx.Model(&models.TournamentParticipant{}).
			Where("tournament_id = ? AND entity_kind = ? AND entity_id = ?", locked.ID, entityKind, entityID).
			Count(&dupInTx).Error; err != nil {
			return err
		}
		if dupInTx > 0 {
			return &AppError{Code: CodeDuplicateJoin, Status: 409, Message: "already registered for this tournament"}
		}

		if err := tx.Create(participant).Error; err != nil {
			return err
		}

		// current_slots is derived from the roster — recompute, never increment.
		if err := tx.Model(&models.Tournament{}).
			Where("id = ?", locked.ID).
			Update("current_slots", count+1).Error; err != nil {
			return err
		}

		// Stats: solo bumps the joiner, team entries bump every accepted member.
		memberIDs := []string{userID}
		if team != nil {
			memberIDs = memberIDs[:0]
			for _, m := range team.Members {
				if m.Status == models.MemberStatusAccepted {
					memberIDs = append(memberIDs, m.UserID)
				}
			}
		}
		for _, id := range memberIDs {
			if err := tx.Model(&models.User{}).
				Where("id = ?", id).
				Update("tournaments_played", gorm.Expr("tournaments_played + 1")).Error; err != nil {
				return err
			}
			if err := tx.Create(&models.UserParticipation{
				ID:            uuid.NewString(),
				UserID:        id,
				TournamentID:  tournament.ID,
				ParticipantID: participant.ID,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// --- Compensating ---
		if cerr := s.compensateEntryFee(userID, &tournament, feeTxn, err); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}

	// --- Committed ---
	return participant, nil
}

// compensateEntryFee re-credits a reserved entry fee after a later join step
// failed. It is its own named step so it can be exercised directly in tests.
// A compensation that itself fails is the one error that must never be
// swallowed — the user has been charged with no roster entry to show for it.
func (s *TournamentService) compensateEntryFee(userID string, tournament *models.Tournament, feeTxn *models.Transaction, cause error) error {
	amount := -feeTxn.Amount // deductions are stored negative
	_, err := s.Wallet.Credit(userID, amount, models.TxKindRefund,
		fmt.Sprintf("entry fee refund for %s (join failed)", tournament.Name), &tournament.ID)
	if err != nil {
		log.Printf("🚨 [JOIN] COMPENSATION FAILED — user=%s tournament=%s fee=%.2f fee_txn=%s cause=%v credit_err=%v",
			userID, tournament.ID, amount, feeTxn.ID, cause, err)
		return ErrInvariant("entry fee could not be refunded, manual reconciliation required")
	}
	log.Printf("↩️ [JOIN] refunded entry fee %.2f to %s for tournament %s (join failed: %v)",
		amount, userID, tournament.ID, cause)
	return nil
}
