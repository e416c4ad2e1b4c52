// services/team_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"arena-tournament-system/models"
	"arena-tournament-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxTeamsPerType caps both how many teams of one type a user may lead and
// how many they may be an accepted member of.
const maxTeamsPerType = 2

type TeamService struct {
	DB *gorm.DB
}

func NewTeamService(db *gorm.DB) *TeamService {
	return &TeamService{DB: db}
}

// newUniqueInviteCode generates a code and retries on collision up to the
// ceiling. Exhausting the retries is surfaced, never silently looped.
func (s *TeamService) newUniqueInviteCode() (string, error) {
	for i := 0; i < utils.InviteCodeMaxRetries; i++ {
		code, err := utils.NewInviteCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := s.DB.Model(&models.Team{}).Where("invite_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	log.Printf("🚨 [TEAM] invite code space exhausted after %d retries", utils.InviteCodeMaxRetries)
	return "", &AppError{Code: CodeCodeSpaceExhausted, Status: 500, Message: "could not generate a unique invite code"}
}

// countTeamsOfType counts teams of the given type where the user is an
// accepted member (leadership implies accepted membership).
func (s *TeamService) countTeamsOfType(userID, teamType string) (int64, error) {
	var count int64
	err := s.DB.Model(&models.TeamMember{}).
		Joins("JOIN teams ON teams.id = team_members.team_id").
		Where("team_members.user_id = ? AND team_members.status = ? AND teams.type = ?",
			userID, models.MemberStatusAccepted, teamType).
		Count(&count).Error
	return count, err
}

func (s *TeamService) CreateTeam(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	fields := map[string]string{}
	if len(req.Name) < 3 || len(req.Name) > 30 {
		fields["name"] = "must be 3–30 characters"
	}
	if req.Type != models.TeamTypeDuo && req.Type != models.TeamTypeSquad {
		fields["type"] = "must be duo or squad"
	}
	if len(fields) > 0 {
		return respondErr(c, ErrValidation("invalid team", fields))
	}

	// Leader cap: at most 2 led teams per type.
	var led int64
	if err := s.DB.Model(&models.Team{}).
		Where("leader_id = ? AND type = ?", userID, req.Type).Count(&led).Error; err != nil {
		return respondErr(c, err)
	}
	if led >= maxTeamsPerType {
		return respondErr(c, ErrConflict(CodeConflict,
			fmt.Sprintf("you already lead %d %s teams", maxTeamsPerType, req.Type)))
	}
	// Membership cap counts the leader too.
	member, err := s.countTeamsOfType(userID, req.Type)
	if err != nil {
		return respondErr(c, err)
	}
	if member >= maxTeamsPerType {
		return respondErr(c, ErrConflict(CodeConflict,
			fmt.Sprintf("you are already in %d %s teams", maxTeamsPerType, req.Type)))
	}

	var nameClash int64
	s.DB.Model(&models.Team{}).Where("name = ?", req.Name).Count(&nameClash)
	if nameClash > 0 {
		return respondErr(c, ErrConflict(CodeConflict, "team name is taken"))
	}

	code, err := s.newUniqueInviteCode()
	if err != nil {
		return respondErr(c, err)
	}

	team := &models.Team{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Type:       req.Type,
		LeaderID:   userID,
		InviteCode: code,
	}
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(team).Error; err != nil {
			return err
		}
		// The leader is always an accepted member.
		return tx.Create(&models.TeamMember{
			ID:     uuid.NewString(),
			TeamID: team.ID,
			UserID: userID,
			Status: models.MemberStatusAccepted,
			Origin: models.MemberOriginInvite,
		}).Error
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to create team"})
	}
	return c.Status(201).JSON(fiber.Map{"success": true, "team": team})
}

func (s *TeamService) GetTeam(c *fiber.Ctx) error {
	var team models.Team
	if err := s.DB.Preload("Members.User").First(&team, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondErr(c, ErrNotFound("team not found"))
		}
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to load team"})
	}

	// Only members get to see the invite code.
	userID, _ := c.Locals("user_id").(string)
	isMember := false
	for _, m := range team.Members {
		if m.UserID == userID && m.Status == models.MemberStatusAccepted {
			isMember = true
			break
		}
	}
	if !isMember {
		team.InviteCode = ""
	}
	return c.JSON(fiber.Map{"success": true, "team": team})
}

func (s *TeamService) GetMyTeams(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var teams []models.Team
	if err := s.DB.Preload("Members.User").
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ? AND team_members.status IN ?",
			userID, []string{models.MemberStatusPending, models.MemberStatusAccepted}).
		Find(&teams).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to load teams"})
	}
	return c.JSON(fiber.Map{"success": true, "teams": teams})
}

// InviteMember lets the leader invite a user by username; the invitee then
// accepts or rejects.
func (s *TeamService) InviteMember(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		Username string `json:"username"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil || req.Username == "" {
		return respondErr(c, ErrValidation("username is required", map[string]string{"username": "required"}))
	}

	var invitee models.User
	if err := s.DB.First(&invitee, "username = ?", req.Username).Error; err != nil {
		return respondErr(c, ErrNotFound("user not found"))
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.Preload("Members").First(&team, "id = ?", c.Params("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("team not found")
			}
			return err
		}
		// Leader check is the last read before the membership write.
		if team.LeaderID != userID {
			return &AppError{Code: CodeNotLeader, Status: 403, Message: "only the leader can invite members"}
		}
		return s.addPendingMember(tx, &team, invitee.ID, models.MemberOriginInvite)
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"success": true, "message": "invite sent"})
}

// RequestJoin adds a pending join request using the team's invite code.
func (s *TeamService) RequestJoin(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		InviteCode string `json:"invite_code"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil || len(req.InviteCode) != utils.InviteCodeLength {
		return respondErr(c, ErrValidation("a 6-character invite_code is required", map[string]string{"invite_code": "invalid"}))
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.Preload("Members").First(&team, "invite_code = ?", req.InviteCode).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("no team with that invite code")
			}
			return err
		}
		return s.addPendingMember(tx, &team, userID, models.MemberOriginJoinRequest)
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"success": true, "message": "join request sent"})
}

// addPendingMember creates the pending roster entry, guarding against
// duplicates and against a roster that is already at capacity.
func (s *TeamService) addPendingMember(tx *gorm.DB, team *models.Team, userID, origin string) error {
	for _, m := range team.Members {
		if m.UserID == userID && m.Status != models.MemberStatusRejected {
			return ErrConflict(CodeConflict, "user is already on the roster")
		}
	}
	if team.AcceptedCount() >= team.MaxMembers() {
		return ErrConflict(CodeConflict, "team is already full")
	}
	// Re-invite after a rejection replaces the old entry.
	if err := tx.Where("team_id = ? AND user_id = ?", team.ID, userID).
		Delete(&models.TeamMember{}).Error; err != nil {
		return err
	}
	return tx.Create(&models.TeamMember{
		ID:     uuid.NewString(),
		TeamID: team.ID,
		UserID: userID,
		Status: models.MemberStatusPending,
		Origin: origin,
	}).Error
}

// RespondToMembership resolves a pending entry. Who may respond depends on
// the origin: invites are accepted/rejected by the invitee, join requests by
// the leader.
func (s *TeamService) RespondToMembership(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		MemberID string `json:"member_id"`
		Accept   bool   `json:"accept"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil || req.MemberID == "" {
		return respondErr(c, ErrValidation("member_id is required", map[string]string{"member_id": "required"}))
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.Preload("Members").First(&team, "id = ?", c.Params("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("team not found")
			}
			return err
		}

		var member models.TeamMember
		if err := tx.First(&member, "id = ? AND team_id = ?", req.MemberID, team.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("membership entry not found")
			}
			return err
		}
		if member.Status != models.MemberStatusPending {
			return ErrConflict(CodeConflict, "membership is already resolved")
		}

		switch member.Origin {
		case models.MemberOriginInvite:
			if member.UserID != userID {
				return ErrForbidden("only the invited user can respond to an invite")
			}
		case models.MemberOriginJoinRequest:
			if team.LeaderID != userID {
				return &AppError{Code: CodeNotLeader, Status: 403, Message: "only the leader can resolve join requests"}
			}
		}

		if !req.Accept {
			return tx.Model(&member).Update("status", models.MemberStatusRejected).Error
		}

		// Capacity and the per-type membership cap are checked at accept time.
		if team.AcceptedCount() >= team.MaxMembers() {
			return ErrConflict(CodeConflict, "team is already full")
		}
		count, err := s.countTeamsOfType(member.UserID, team.Type)
		if err != nil {
			return err
		}
		if count >= maxTeamsPerType {
			return ErrConflict(CodeConflict,
				fmt.Sprintf("user is already in %d %s teams", maxTeamsPerType, team.Type))
		}
		return tx.Model(&member).Update("status", models.MemberStatusAccepted).Error
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// RemoveMember drops a member from the roster. The leader cannot be removed.
func (s *TeamService) RemoveMember(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	memberUserID := c.Params("user_id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.First(&team, "id = ?", c.Params("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("team not found")
			}
			return err
		}
		if team.LeaderID != userID {
			return &AppError{Code: CodeNotLeader, Status: 403, Message: "only the leader can remove members"}
		}
		if memberUserID == team.LeaderID {
			return ErrConflict(CodeConflict, "the leader cannot be removed — delete the team instead")
		}
		res := tx.Where("team_id = ? AND user_id = ?", team.ID, memberUserID).Delete(&models.TeamMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound("user is not on this team")
		}
		return nil
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "member removed"})
}

// LeaveTeam lets a non-leader member walk away.
func (s *TeamService) LeaveTeam(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.First(&team, "id = ?", c.Params("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("team not found")
			}
			return err
		}
		if team.LeaderID == userID {
			return ErrConflict(CodeConflict, "the leader cannot leave — delete the team instead")
		}
		res := tx.Where("team_id = ? AND user_id = ?", team.ID, userID).Delete(&models.TeamMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound("you are not on this team")
		}
		return nil
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "left team"})
}

// DeleteTeam removes the team and every membership entry (the cascade that
// strips the team reference from all members).
func (s *TeamService) DeleteTeam(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("user_role").(string)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var team models.Team
		if err := tx.First(&team, "id = ?", c.Params("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound("team not found")
			}
			return err
		}
		if team.LeaderID != userID && role != models.RoleAdmin {
			return &AppError{Code: CodeNotLeader, Status: 403, Message: "only the leader can delete the team"}
		}
		if err := tx.Where("team_id = ?", team.ID).Delete(&models.TeamMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&team).Error
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "team deleted"})
}

// UploadTeamLogo stores a logo image in R2 and saves its URL.
func (s *TeamService) UploadTeamLogo(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var team models.Team
	if err := s.DB.First(&team, "id = ?", c.Params("id")).Error; err != nil {
		return respondErr(c, ErrNotFound("team not found"))
	}
	if team.LeaderID != userID {
		return respondErr(c, &AppError{Code: CodeNotLeader, Status: 403, Message: "only the leader can change the logo"})
	}

	file, err := c.FormFile("logo")
	if err != nil || file.Size == 0 {
		return respondErr(c, ErrValidation("logo file is required", map[string]string{"logo": "required"}))
	}
	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".png"
	}
	key := "teams/logos/" + uuid.NewString() + ext
	url, err := utils.UploadFileToR2(file, key)
	if err != nil {
		log.Printf("⚠️ [TEAM] logo upload failed for %s: %v", team.ID, err)
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to upload logo"})
	}

	if err := s.DB.Model(&team).Update("logo_url", url).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to save logo"})
	}

	// The replaced object has nothing pointing at it anymore.
	if oldKey := utils.ObjectKeyFromURL(team.LogoURL); oldKey != "" {
		if err := utils.DeleteFromR2(oldKey); err != nil {
			log.Printf("⚠️ [TEAM] failed to delete replaced logo %s: %v", oldKey, err)
		}
	}
	return c.JSON(fiber.Map{"success": true, "logo_url": url})
}
