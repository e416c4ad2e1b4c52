// services/auth_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"net/mail"
	"os"
	"time"

	"arena-tournament-system/models"
	"arena-tournament-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	DB        *gorm.DB
	OTP       *OTPStore
	Mailer    *MailerClient
	JWTSecret string
}

func NewAuthService(db *gorm.DB, otp *OTPStore, mailer *MailerClient) *AuthService {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}
	return &AuthService{DB: db, OTP: otp, Mailer: mailer, JWTSecret: secret}
}

// GenerateToken signs a 24h JWT carrying the user id and role.
func (s *AuthService) GenerateToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString([]byte(s.JWTSecret))
}

// Register validates the signup, hashes the password, parks everything in a
// PendingRecord and emails the OTP. No user row exists until verification.
func (s *AuthService) Register(c *fiber.Ctx) error {
	type Req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	fields := map[string]string{}
	if len(req.Username) < 3 || len(req.Username) > 20 {
		fields["username"] = "must be 3–20 characters"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		fields["email"] = "invalid email address"
	}
	if len(req.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		return respondErr(c, ErrValidation("invalid registration", fields))
	}

	var clash int64
	s.DB.Model(&models.User{}).
		Where("username = ? OR email = ?", req.Username, req.Email).Count(&clash)
	if clash > 0 {
		return respondErr(c, ErrConflict(CodeConflict, "username or email is already taken"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "registration failed"})
	}
	otp, err := utils.NewOTP()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "registration failed"})
	}

	rec := PendingRecord{
		OTP:          otp,
		Purpose:      PendingPurposeRegister,
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		IssuedAt:     time.Now(),
	}
	if err := s.OTP.Put(c.Context(), rec); err != nil {
		log.Printf("❌ [AUTH] failed to park pending registration for %s: %v", req.Email, err)
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "registration failed"})
	}

	// Mail failures are logged, not surfaced — the OTP can be re-requested.
	s.Mailer.SendAsync(req.Email, "Your verification code",
		fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", otp))

	return c.Status(202).JSON(fiber.Map{"success": true, "message": "verification code sent"})
}

// VerifyRegistration consumes the OTP and creates the permanent account.
func (s *AuthService) VerifyRegistration(c *fiber.Ctx) error {
	type Req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.OTP == "" {
		return respondErr(c, ErrValidation("email and otp are required", nil))
	}

	rec, err := s.OTP.Get(c.Context(), PendingPurposeRegister, req.Email)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "verification failed"})
	}
	if rec == nil {
		return respondErr(c, ErrNotFound("no pending registration — it may have expired"))
	}
	if rec.OTP != req.OTP {
		if err := s.OTP.RecordFailedAttempt(c.Context(), rec); err != nil {
			log.Printf("⚠️ [AUTH] failed to record OTP attempt for %s: %v", req.Email, err)
		}
		return respondErr(c, ErrValidation("incorrect verification code", map[string]string{"otp": "incorrect"}))
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     rec.Username,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         models.RolePlayer,
		IsVerified:   true,
	}
	if err := s.DB.Create(user).Error; err != nil {
		// A clashing signup may have finished first.
		return respondErr(c, ErrConflict(CodeConflict, "username or email is already taken"))
	}
	if err := s.OTP.Delete(c.Context(), PendingPurposeRegister, req.Email); err != nil {
		log.Printf("⚠️ [AUTH] failed to drop pending registration for %s: %v", req.Email, err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "verification failed"})
	}
	return c.Status(201).JSON(fiber.Map{"success": true, "token": token, "user": user})
}

// Login checks credentials and returns a fresh JWT.
func (s *AuthService) Login(c *fiber.Ctx) error {
	type Req struct {
		Identity string `json:"identity"` // username or email
		Password string `json:"password"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil || req.Identity == "" || req.Password == "" {
		return respondErr(c, ErrValidation("identity and password are required", nil))
	}

	var user models.User
	if err := s.DB.First(&user, "username = ? OR email = ?", req.Identity, req.Identity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondErr(c, ErrUnauthorized("invalid credentials"))
		}
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "login failed"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return respondErr(c, ErrUnauthorized("invalid credentials"))
	}
	if user.IsBlocked {
		return respondErr(c, ErrForbidden("account is blocked"))
	}
	if !user.IsVerified {
		return respondErr(c, ErrForbidden("account is not verified"))
	}

	token, err := s.GenerateToken(&user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "login failed"})
	}
	return c.JSON(fiber.Map{"success": true, "token": token, "user": user})
}

// RequestPasswordChange issues an OTP to the account email.
func (s *AuthService) RequestPasswordChange(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return respondErr(c, ErrNotFound("user not found"))
	}

	otp, err := utils.NewOTP()
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "could not issue code"})
	}
	rec := PendingRecord{
		OTP:      otp,
		Purpose:  PendingPurposePasswordChange,
		Email:    user.Email,
		UserID:   user.ID,
		IssuedAt: time.Now(),
	}
	if err := s.OTP.Put(c.Context(), rec); err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "could not issue code"})
	}

	s.Mailer.SendAsync(user.Email, "Password change code",
		fmt.Sprintf("Your password change code is %s. If this wasn't you, secure your account now.", otp))

	return c.Status(202).JSON(fiber.Map{"success": true, "message": "code sent"})
}

// ConfirmPasswordChange consumes the OTP and sets the new password.
func (s *AuthService) ConfirmPasswordChange(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		OTP         string `json:"otp"`
		NewPassword string `json:"new_password"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil || req.OTP == "" {
		return respondErr(c, ErrValidation("otp and new_password are required", nil))
	}
	if len(req.NewPassword) < 8 {
		return respondErr(c, ErrValidation("password must be at least 8 characters", map[string]string{"new_password": "too short"}))
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		return respondErr(c, ErrNotFound("user not found"))
	}

	rec, err := s.OTP.Get(c.Context(), PendingPurposePasswordChange, user.Email)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "verification failed"})
	}
	if rec == nil || rec.UserID != user.ID {
		return respondErr(c, ErrNotFound("no pending password change — request a new code"))
	}
	if rec.OTP != req.OTP {
		if err := s.OTP.RecordFailedAttempt(c.Context(), rec); err != nil {
			log.Printf("⚠️ [AUTH] failed to record OTP attempt for %s: %v", user.Email, err)
		}
		return respondErr(c, ErrValidation("incorrect code", map[string]string{"otp": "incorrect"}))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "password change failed"})
	}
	if err := s.DB.Model(&user).Update("password_hash", string(hash)).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "password change failed"})
	}
	if err := s.OTP.Delete(c.Context(), PendingPurposePasswordChange, user.Email); err != nil {
		log.Printf("⚠️ [AUTH] failed to drop pending password change for %s: %v", user.Email, err)
	}

	s.Mailer.SendAsync(user.Email, "Your password was changed",
		"Your account password was just changed. If this wasn't you, contact support immediately.")

	return c.JSON(fiber.Map{"success": true, "message": "password changed"})
}
