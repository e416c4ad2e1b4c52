// services/user_service.go
package services

import (
	"errors"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"arena-tournament-system/models"
	"arena-tournament-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

func (s *UserService) GetMe(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return respondErr(c, ErrNotFound("user not found"))
	}
	return c.JSON(fiber.Map{"success": true, "user": user})
}

// GetMyHistory lists the caller's tournament participations, newest first.
func (s *UserService) GetMyHistory(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var history []models.UserParticipation
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(100).
		Find(&history).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to load history"})
	}
	return c.JSON(fiber.Map{"success": true, "history": history})
}

func (s *UserService) UpdateProfile(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		Bio *string `json:"bio"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	updates := map[string]interface{}{}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if len(updates) > 0 {
		if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "update failed"})
		}
	}
	return c.JSON(fiber.Map{"success": true})
}

// UpdateGameProfile sets the game identity needed to enter tournaments.
func (s *UserService) UpdateGameProfile(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		GamePlatformID string `json:"game_platform_id"`
		GameLevel      int    `json:"game_level"`
		InGameName     string `json:"in_game_name"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	fields := map[string]string{}
	if req.GamePlatformID == "" {
		fields["game_platform_id"] = "required"
	}
	if req.GameLevel <= 0 {
		fields["game_level"] = "must be positive"
	}
	if req.InGameName == "" {
		fields["in_game_name"] = "required"
	}
	if len(fields) > 0 {
		return respondErr(c, ErrValidation("incomplete game profile", fields))
	}

	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"game_platform_id": req.GamePlatformID,
		"game_level":       req.GameLevel,
		"in_game_name":     req.InGameName,
	}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "update failed"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// UpdatePayoutDetails stores the bank / UPI destination for withdrawals.
func (s *UserService) UpdatePayoutDetails(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		BankAccountName   *string `json:"bank_account_name"`
		BankAccountNumber *string `json:"bank_account_number"`
		BankIFSC          *string `json:"bank_ifsc"`
		UpiID             *string `json:"upi_id"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	updates := map[string]interface{}{}
	if req.BankAccountName != nil {
		updates["bank_account_name"] = *req.BankAccountName
	}
	if req.BankAccountNumber != nil {
		updates["bank_account_number"] = *req.BankAccountNumber
	}
	if req.BankIFSC != nil {
		updates["bank_ifsc"] = strings.ToUpper(*req.BankIFSC)
	}
	if req.UpiID != nil {
		updates["upi_id"] = *req.UpiID
	}
	if len(updates) == 0 {
		return respondErr(c, ErrValidation("nothing to update", nil))
	}

	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "update failed"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// UploadAvatar stores a profile image in R2.
func (s *UserService) UploadAvatar(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	file, err := c.FormFile("avatar")
	if err != nil || file.Size == 0 {
		return respondErr(c, ErrValidation("avatar file is required", map[string]string{"avatar": "required"}))
	}
	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".png"
	}

	var current models.User
	if err := s.DB.Select("avatar_url").First(&current, "id = ?", userID).Error; err != nil {
		return respondErr(c, ErrNotFound("user not found"))
	}

	key := "avatars/" + uuid.NewString() + ext
	url, err := utils.UploadFileToR2(file, key)
	if err != nil {
		log.Printf("⚠️ [USER] avatar upload failed for %s: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to upload avatar"})
	}

	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).Update("avatar_url", url).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to save avatar"})
	}

	// The replaced object has nothing pointing at it anymore.
	if oldKey := utils.ObjectKeyFromURL(current.AvatarURL); oldKey != "" {
		if err := utils.DeleteFromR2(oldKey); err != nil {
			log.Printf("⚠️ [USER] failed to delete replaced avatar %s: %v", oldKey, err)
		}
	}
	return c.JSON(fiber.Map{"success": true, "avatar_url": url})
}

// SearchUsers finds users by username for team invites.
func (s *UserService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 || limit > 50 {
		limit = 20
	}

	db := s.DB.Model(&models.User{}).Where("is_blocked = ?", false).Limit(limit)
	if query != "" {
		db = db.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(query))+"%")
	}

	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "search failed"})
	}

	type UserSummary struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		AvatarURL  string `json:"avatar_url"`
		InGameName string `json:"in_game_name"`
	}
	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL, InGameName: u.InGameName}
	}
	return c.JSON(fiber.Map{"success": true, "users": res})
}

// ---------------------------------------------------------------------------
// Admin endpoints
// ---------------------------------------------------------------------------

// UpdateRole promotes or demotes a user (admin only, enforced in routing).
func (s *UserService) UpdateRole(c *fiber.Ctx) error {
	type Req struct {
		Role string `json:"role"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}
	if req.Role != models.RolePlayer && req.Role != models.RoleRoomHost && req.Role != models.RoleAdmin {
		return respondErr(c, ErrValidation("role must be player, room_host or admin", map[string]string{"role": "invalid"}))
	}

	res := s.DB.Model(&models.User{}).Where("id = ?", c.Params("id")).Update("role", req.Role)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "update failed"})
	}
	if res.RowsAffected == 0 {
		return respondErr(c, ErrNotFound("user not found"))
	}
	return c.JSON(fiber.Map{"success": true, "role": req.Role})
}

// SetBlocked blocks or unblocks an account (admin only).
func (s *UserService) SetBlocked(c *fiber.Ctx) error {
	type Req struct {
		Blocked bool `json:"blocked"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	res := s.DB.Model(&models.User{}).Where("id = ?", c.Params("id")).Update("is_blocked", req.Blocked)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "update failed"})
	}
	if res.RowsAffected == 0 {
		return respondErr(c, ErrNotFound("user not found"))
	}
	return c.JSON(fiber.Map{"success": true, "blocked": req.Blocked})
}

// DeleteUser removes an account and cascades its team and tournament
// references so no roster points at a ghost (admin only).
func (s *UserService) DeleteUser(c *fiber.Ctx) error {
	targetID := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("user not found")
			}
			return err
		}

		// Led teams go away entirely; ordinary memberships are just dropped.
		var ledTeams []models.Team
		if err := tx.Where("leader_id = ?", targetID).Find(&ledTeams).Error; err != nil {
			return err
		}
		teamIDs := make([]string, 0, len(ledTeams))
		for _, t := range ledTeams {
			teamIDs = append(teamIDs, t.ID)
			if err := tx.Where("team_id = ?", t.ID).Delete(&models.TeamMember{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&t).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", targetID).Delete(&models.TeamMember{}).Error; err != nil {
			return err
		}

		// Vacate tournament slots: the user's solo entries plus the entries of
		// the teams that just disappeared with them.
		roster := tx.Model(&models.TournamentParticipant{}).
			Where("entity_kind = ? AND entity_id = ?", models.ParticipantKindUser, targetID)
		if len(teamIDs) > 0 {
			roster = tx.Model(&models.TournamentParticipant{}).
				Where("(entity_kind = ? AND entity_id = ?) OR (entity_kind = ? AND entity_id IN ?)",
					models.ParticipantKindUser, targetID, models.ParticipantKindTeam, teamIDs)
		}
		var affected []string
		if err := roster.Distinct("tournament_id").Pluck("tournament_id", &affected).Error; err != nil {
			return err
		}
		if len(affected) > 0 {
			del := tx.Where("entity_kind = ? AND entity_id = ?", models.ParticipantKindUser, targetID)
			if len(teamIDs) > 0 {
				del = tx.Where("(entity_kind = ? AND entity_id = ?) OR (entity_kind = ? AND entity_id IN ?)",
					models.ParticipantKindUser, targetID, models.ParticipantKindTeam, teamIDs)
			}
			if err := del.Delete(&models.TournamentParticipant{}).Error; err != nil {
				return err
			}
			for _, tid := range affected {
				var n int64
				if err := tx.Model(&models.TournamentParticipant{}).
					Where("tournament_id = ?", tid).Count(&n).Error; err != nil {
					return err
				}
				if err := tx.Model(&models.Tournament{}).
					Where("id = ?", tid).Update("current_slots", n).Error; err != nil {
					return err
				}
			}
		}

		if err := tx.Where("user_id = ?", targetID).Delete(&models.UserParticipation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "user deleted"})
}
