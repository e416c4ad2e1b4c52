package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"arena-tournament-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TournamentService struct {
	DB     *gorm.DB
	Wallet *WalletService
}

func NewTournamentService(db *gorm.DB, wallet *WalletService) *TournamentService {
	return &TournamentService{DB: db, Wallet: wallet}
}

// recomputeSlots syncs current_slots from the roster count. Called on every
// persisting write of a tournament so the derived field can never drift from
// participants, whichever code path mutated the roster.
func recomputeSlots(tx *gorm.DB, tournamentID string) error {
	var count int64
	if err := tx.Model(&models.TournamentParticipant{}).
		Where("tournament_id = ?", tournamentID).Count(&count).Error; err != nil {
		return err
	}
	return tx.Model(&models.Tournament{}).
		Where("id = ?", tournamentID).
		Update("current_slots", count).Error
}

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("user_role").(string)
	if role != models.RoleRoomHost && role != models.RoleAdmin {
		return respondErr(c, ErrForbidden("only room hosts and admins can create tournaments"))
	}

	type Req struct {
		Name                 string  `json:"name"`
		Type                 string  `json:"type"`
		Map                  string  `json:"map"`
		Description          string  `json:"description"`
		Rules                string  `json:"rules"`
		EntryFee             float64 `json:"entry_fee"`
		PrizePool            float64 `json:"prize_pool"`
		PrizeSplit           string  `json:"prize_split"`
		PerKillReward        float64 `json:"per_kill_reward"`
		MaxSlots             int     `json:"max_slots"`
		RegistrationOpensAt  string  `json:"registration_opens_at"`
		RegistrationClosesAt string  `json:"registration_closes_at"`
		StartTime            string  `json:"start_time"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	// --- Validation ---
	fields := map[string]string{}
	if req.Name == "" {
		fields["name"] = "required"
	}
	if req.Type != models.TournamentTypeSolo && req.Type != models.TournamentTypeDuo && req.Type != models.TournamentTypeSquad {
		fields["type"] = "must be solo, duo or squad"
	}
	if req.MaxSlots <= 0 {
		fields["max_slots"] = "must be a positive integer"
	}
	if req.EntryFee < 0 {
		fields["entry_fee"] = "must be non-negative"
	}
	if req.StartTime == "" {
		fields["start_time"] = "required"
	}
	if len(fields) > 0 {
		return respondErr(c, ErrValidation("invalid tournament", fields))
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return respondErr(c, ErrValidation("invalid start_time (use RFC3339)", map[string]string{"start_time": "invalid"}))
	}
	var opensAt, closesAt time.Time
	if req.RegistrationOpensAt != "" {
		if opensAt, err = time.Parse(time.RFC3339, req.RegistrationOpensAt); err != nil {
			return respondErr(c, ErrValidation("invalid registration_opens_at (use RFC3339)", map[string]string{"registration_opens_at": "invalid"}))
		}
	}
	if req.RegistrationClosesAt != "" {
		if closesAt, err = time.Parse(time.RFC3339, req.RegistrationClosesAt); err != nil {
			return respondErr(c, ErrValidation("invalid registration_closes_at (use RFC3339)", map[string]string{"registration_closes_at": "invalid"}))
		}
	} else {
		closesAt = startTime
	}

	tournament := &models.Tournament{
		ID:                   uuid.NewString(),
		Slug:                 s.uniqueSlug(req.Name),
		Name:                 req.Name,
		Type:                 req.Type,
		Map:                  req.Map,
		Description:          req.Description,
		Rules:                req.Rules,
		EntryFee:             req.EntryFee,
		PrizePool:            req.PrizePool,
		PrizeSplit:           req.PrizeSplit,
		PerKillReward:        req.PerKillReward,
		MaxSlots:             req.MaxSlots,
		RegistrationOpensAt:  opensAt,
		RegistrationClosesAt: closesAt,
		StartTime:            startTime,
		Status:               models.TournamentStatusUpcoming,
		HostID:               userID,
	}

	if err := s.DB.Create(tournament).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to create tournament"})
	}
	return c.Status(201).JSON(fiber.Map{"success": true, "tournament": tournament})
}

// uniqueSlug slugifies the name and suffixes a short id on collision.
func (s *TournamentService) uniqueSlug(name string) string {
	base := slug.Make(name)
	var count int64
	s.DB.Model(&models.Tournament{}).Where("slug = ?", base).Count(&count)
	if count == 0 {
		return base
	}
	return base + "-" + uuid.NewString()[:8]
}

func (s *TournamentService) GetAllTournaments(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	db := s.DB.Model(&models.Tournament{}).Order("start_time ASC").Limit(limit)
	if status := c.Query("status"); status != "" {
		db = db.Where("status = ?", status)
	}
	if typ := c.Query("type"); typ != "" {
		db = db.Where("type = ?", typ)
	}

	var minis []models.MiniTournament
	if err := db.Find(&minis).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to list tournaments"})
	}
	return c.JSON(fiber.Map{"success": true, "tournaments": minis})
}

func (s *TournamentService) GetTournamentByID(c *fiber.Ctx) error {
	var tournament models.Tournament
	if err := s.DB.Preload("Participants").
		First(&tournament, "id = ? OR slug = ?", c.Params("id"), c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondErr(c, ErrNotFound("tournament not found"))
		}
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to load tournament"})
	}

	// Room credentials are only for registered players once live.
	if tournament.Status != models.TournamentStatusLive {
		tournament.RoomID = ""
		tournament.RoomPassword = ""
	}
	return c.JSON(fiber.Map{"success": true, "tournament": tournament})
}

func (s *TournamentService) UpdateTournament(c *fiber.Ctx) error {
	tournament, err := s.hostedTournament(c)
	if err != nil {
		return respondErr(c, err)
	}

	type Req struct {
		Name          *string  `json:"name"`
		Map           *string  `json:"map"`
		Description   *string  `json:"description"`
		Rules         *string  `json:"rules"`
		EntryFee      *float64 `json:"entry_fee"`
		PrizePool     *float64 `json:"prize_pool"`
		PrizeSplit    *string  `json:"prize_split"`
		PerKillReward *float64 `json:"per_kill_reward"`
		MaxSlots      *int     `json:"max_slots"`
		StartTime     *string  `json:"start_time"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	updates := map[string]interface{}{}
	if req.Name != nil && *req.Name != "" {
		updates["name"] = *req.Name
	}
	if req.Map != nil {
		updates["map"] = *req.Map
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Rules != nil {
		updates["rules"] = *req.Rules
	}
	if req.EntryFee != nil {
		if tournament.CurrentSlots > 0 {
			return respondErr(c, ErrConflict(CodeConflict, "cannot change entry fee once players have joined"))
		}
		if *req.EntryFee < 0 {
			return respondErr(c, ErrValidation("entry_fee must be non-negative", map[string]string{"entry_fee": "invalid"}))
		}
		updates["entry_fee"] = *req.EntryFee
	}
	if req.PrizePool != nil {
		updates["prize_pool"] = *req.PrizePool
	}
	if req.PrizeSplit != nil {
		updates["prize_split"] = *req.PrizeSplit
	}
	if req.PerKillReward != nil {
		updates["per_kill_reward"] = *req.PerKillReward
	}
	if req.MaxSlots != nil {
		if *req.MaxSlots < tournament.CurrentSlots {
			return respondErr(c, ErrConflict(CodeConflict, "max_slots cannot go below the current participant count"))
		}
		updates["max_slots"] = *req.MaxSlots
	}
	if req.StartTime != nil {
		startTime, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			return respondErr(c, ErrValidation("invalid start_time (use RFC3339)", map[string]string{"start_time": "invalid"}))
		}
		updates["start_time"] = startTime
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(tournament).Updates(updates).Error; err != nil {
				return err
			}
		}
		return recomputeSlots(tx, tournament.ID)
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "update failed"})
	}

	s.DB.First(tournament, "id = ?", tournament.ID)
	return c.JSON(fiber.Map{"success": true, "tournament": tournament})
}

// UpdateTournamentStatus moves the tournament along its state machine.
// Cancelling refunds every paid participant before the status flips.
func (s *TournamentService) UpdateTournamentStatus(c *fiber.Ctx) error {
	tournament, err := s.hostedTournament(c)
	if err != nil {
		return respondErr(c, err)
	}

	type Req struct {
		Status string `json:"status"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	if !tournament.CanTransitionTo(req.Status) {
		return respondErr(c, ErrConflict(CodeConflict,
			fmt.Sprintf("cannot move tournament from %s to %s", tournament.Status, req.Status)))
	}

	if req.Status == models.TournamentStatusCancelled {
		if err := s.cancelTournament(tournament); err != nil {
			return respondErr(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "message": "tournament cancelled and entry fees refunded"})
	}

	if err := s.DB.Model(tournament).Update("status", req.Status).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "status update failed"})
	}
	return c.JSON(fiber.Map{"success": true, "status": req.Status})
}

// cancelTournament refunds each participant's entry fee (to whoever paid it)
// and marks the tournament cancelled. Refund failures are logged and the
// loop keeps going — a partially refunded cancellation must still surface
// the stuck entries rather than abort half way.
func (s *TournamentService) cancelTournament(tournament *models.Tournament) error {
	var participants []models.TournamentParticipant
	if err := s.DB.Where("tournament_id = ?", tournament.ID).Find(&participants).Error; err != nil {
		return err
	}

	stuck := 0
	for _, p := range participants {
		if p.PaymentStatus != models.PaymentStatusPaid || tournament.EntryFee == 0 {
			continue
		}
		// The fee deduction's ledger row tells us who paid.
		var feeTxn models.Transaction
		if err := s.DB.Where("external_payment_id = ? AND kind = ?", p.PaymentRef, models.TxKindDeduction).
			First(&feeTxn).Error; err != nil {
			log.Printf("🚨 [TOURNAMENT] cancel: no fee ledger row for participant %s ref %s: %v", p.ID, p.PaymentRef, err)
			stuck++
			continue
		}
		if _, err := s.Wallet.Credit(feeTxn.UserID, -feeTxn.Amount, models.TxKindRefund,
			fmt.Sprintf("refund for cancelled tournament %s", tournament.Name), &tournament.ID); err != nil {
			log.Printf("🚨 [TOURNAMENT] cancel: refund failed for participant %s user %s: %v", p.ID, feeTxn.UserID, err)
			stuck++
			continue
		}
		s.DB.Model(&models.TournamentParticipant{}).
			Where("id = ?", p.ID).
			Update("payment_status", models.PaymentStatusRefunded)
	}

	if err := s.DB.Model(tournament).Update("status", models.TournamentStatusCancelled).Error; err != nil {
		return err
	}
	if stuck > 0 {
		return ErrInvariant(fmt.Sprintf("%d refunds did not apply — manual reconciliation required", stuck))
	}
	return nil
}

func (s *TournamentService) DeleteTournament(c *fiber.Ctx) error {
	tournament, err := s.hostedTournament(c)
	if err != nil {
		return respondErr(c, err)
	}
	if tournament.CurrentSlots > 0 && tournament.Status != models.TournamentStatusCancelled {
		return respondErr(c, ErrConflict(CodeConflict, "cancel the tournament first so entry fees are refunded"))
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tournament_id = ?", tournament.ID).Delete(&models.TournamentParticipant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tournament_id = ?", tournament.ID).Delete(&models.UserParticipation{}).Error; err != nil {
			return err
		}
		return tx.Delete(tournament).Error
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "delete failed"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "tournament deleted"})
}

// SetRoomDetails shares the match room credentials; only visible to clients
// once the tournament is live.
func (s *TournamentService) SetRoomDetails(c *fiber.Ctx) error {
	tournament, err := s.hostedTournament(c)
	if err != nil {
		return respondErr(c, err)
	}

	type Req struct {
		RoomID       string `json:"room_id"`
		RoomPassword string `json:"room_password"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	if err := s.DB.Model(tournament).Updates(map[string]interface{}{
		"room_id":       req.RoomID,
		"room_password": req.RoomPassword,
	}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to set room details"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetParticipants lists the roster.
func (s *TournamentService) GetParticipants(c *fiber.Ctx) error {
	var participants []models.TournamentParticipant
	if err := s.DB.Where("tournament_id = ?", c.Params("id")).
		Order("registered_at ASC").
		Find(&participants).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to load participants"})
	}
	return c.JSON(fiber.Map{"success": true, "participants": participants})
}

// hostedTournament loads the tournament from the :id param and checks the
// caller is its host or an admin.
func (s *TournamentService) hostedTournament(c *fiber.Ctx) (*models.Tournament, error) {
	userID, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("user_role").(string)

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("tournament not found")
		}
		return nil, err
	}
	if tournament.HostID != userID && role != models.RoleAdmin {
		return nil, ErrForbidden("only the host or an admin can manage this tournament")
	}
	return &tournament, nil
}

// ---------------------------------------------------------------------------
// Results & prizes
// ---------------------------------------------------------------------------

// RecordResults takes the host's final standings for a live tournament,
// marks it completed, pays out prizes through the ledger and bumps winner
// stats for every member of the winning entity.
func (s *TournamentService) RecordResults(c *fiber.Ctx) error {
	tournament, err := s.hostedTournament(c)
	if err != nil {
		return respondErr(c, err)
	}
	if tournament.Status != models.TournamentStatusLive {
		return respondErr(c, ErrConflict(CodeConflict, "results can only be recorded for a live tournament"))
	}

	type Result struct {
		ParticipantID string `json:"participant_id"`
		Rank          int    `json:"rank"`
		Kills         int    `json:"kills"`
		Points        int    `json:"points"`
	}
	type Req struct {
		Results []Result `json:"results"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil || len(req.Results) == 0 {
		return respondErr(c, ErrValidation("results are required", nil))
	}

	split := parsePrizeSplit(tournament.PrizeSplit)

	for _, r := range req.Results {
		var p models.TournamentParticipant
		if err := s.DB.First(&p, "id = ? AND tournament_id = ?", r.ParticipantID, tournament.ID).Error; err != nil {
			return respondErr(c, ErrValidation(fmt.Sprintf("unknown participant %s", r.ParticipantID), nil))
		}

		prize := tournament.PerKillReward * float64(r.Kills)
		if r.Rank >= 1 && r.Rank <= len(split) {
			prize += tournament.PrizePool * split[r.Rank-1] / 100
		}

		if err := s.DB.Model(&p).Updates(map[string]interface{}{
			"rank": r.Rank, "kills": r.Kills, "points": r.Points, "prize_won": prize,
		}).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to record result"})
		}

		if err := s.settleParticipantResult(tournament, &p, r.Rank, r.Kills, prize); err != nil {
			return respondErr(c, err)
		}
	}

	if err := s.DB.Model(tournament).Update("status", models.TournamentStatusCompleted).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to complete tournament"})
	}
	return c.JSON(fiber.Map{"success": true, "message": "results recorded, prizes paid"})
}

// settleParticipantResult updates per-user history, pays the prize and bumps
// winner stats. Prizes for team entries are split evenly across accepted
// members at result time.
func (s *TournamentService) settleParticipantResult(tournament *models.Tournament, p *models.TournamentParticipant, rank, kills int, prize float64) error {
	memberIDs := []string{p.EntityID}
	if p.EntityKind == models.ParticipantKindTeam {
		var members []models.TeamMember
		if err := s.DB.Where("team_id = ? AND status = ?", p.EntityID, models.MemberStatusAccepted).
			Find(&members).Error; err != nil {
			return err
		}
		memberIDs = memberIDs[:0]
		for _, m := range members {
			memberIDs = append(memberIDs, m.UserID)
		}
	}
	if len(memberIDs) == 0 {
		return nil
	}

	share := prize / float64(len(memberIDs))
	status := "completed"
	if rank == 1 {
		status = "won"
	}

	for _, id := range memberIDs {
		if share > 0 {
			if _, err := s.Wallet.Credit(id, share, models.TxKindPrize,
				fmt.Sprintf("prize for %s (rank %d)", tournament.Name, rank), &tournament.ID); err != nil {
				log.Printf("🚨 [TOURNAMENT] prize credit failed: user=%s tournament=%s amount=%.2f err=%v",
					id, tournament.ID, share, err)
				return ErrInvariant("prize payout did not apply — manual reconciliation required")
			}
		}
		if rank == 1 {
			if err := s.DB.Model(&models.User{}).Where("id = ?", id).
				Update("tournaments_won", gorm.Expr("tournaments_won + 1")).Error; err != nil {
				return err
			}
		}
		s.DB.Model(&models.UserParticipation{}).
			Where("user_id = ? AND participant_id = ?", id, p.ID).
			Updates(map[string]interface{}{
				"final_rank": rank, "kills": kills, "prize_won": share, "status": status,
			})
	}
	return nil
}

// parsePrizeSplit turns "50,30,20" into percentages per rank. Anything
// malformed falls back to winner-takes-all.
func parsePrizeSplit(csv string) []float64 {
	if csv == "" {
		return []float64{100}
	}
	parts := strings.Split(csv, ",")
	out := make([]float64, 0, len(parts))
	total := 0.0
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f < 0 {
			return []float64{100}
		}
		out = append(out, f)
		total += f
	}
	if total <= 0 || total > 100.01 {
		return []float64{100}
	}
	return out
}

// LeaveTournament lets a solo participant withdraw before registration
// closes; the entry fee goes back through the ledger.
func (s *TournamentService) LeaveTournament(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	tournamentID := c.Params("id")

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		return respondErr(c, ErrNotFound("tournament not found"))
	}
	if tournament.Status != models.TournamentStatusRegistrationOpen {
		return respondErr(c, ErrConflict(CodeRegistrationClosed, "can only leave while registration is open"))
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.Tournament
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", tournamentID).Error; err != nil {
			return err
		}

		var p models.TournamentParticipant
		if err := tx.Where("tournament_id = ? AND entity_kind = ? AND entity_id = ?",
			tournamentID, models.ParticipantKindUser, userID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("you are not registered for this tournament")
			}
			return err
		}

		if err := tx.Delete(&p).Error; err != nil {
			return err
		}
		if err := tx.Where("participant_id = ?", p.ID).Delete(&models.UserParticipation{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("tournaments_played", gorm.Expr("CASE WHEN tournaments_played > 0 THEN tournaments_played - 1 ELSE 0 END")).Error; err != nil {
			return err
		}
		return recomputeSlots(tx, tournamentID)
	})
	if err != nil {
		return respondErr(c, err)
	}

	if tournament.EntryFee > 0 {
		if _, err := s.Wallet.Credit(userID, tournament.EntryFee, models.TxKindRefund,
			fmt.Sprintf("entry fee refund for leaving %s", tournament.Name), &tournament.ID); err != nil {
			log.Printf("🚨 [TOURNAMENT] leave refund failed: user=%s tournament=%s err=%v", userID, tournament.ID, err)
			return respondErr(c, ErrInvariant("left the tournament but the refund did not apply — manual reconciliation required"))
		}
	}
	return c.JSON(fiber.Map{"success": true, "message": "left tournament, entry fee refunded"})
}
