package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RolePlayer   = "player"
	RoleRoomHost = "room_host"
	RoleAdmin    = "admin"
)

// User is the platform account: identity, role, wallet, game profile and
// aggregate tournament stats all live here. The wallet balance is mutated
// only by the WalletService — everyone else reads it.
type User struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	Username     string `gorm:"uniqueIndex;not null" json:"username"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         string `gorm:"type:varchar(16);default:'player'" json:"role"`

	IsVerified bool `gorm:"default:false" json:"is_verified"`
	IsBlocked  bool `gorm:"default:false" json:"is_blocked"`

	// 💰 Wallet — balance can never go below zero (enforced by conditional updates)
	WalletBalance float64 `gorm:"not null;default:0;check:wallet_balance >= 0" json:"wallet_balance"`

	// 🎮 Game identity — all three must be filled before joining tournaments
	GamePlatformID string `json:"game_platform_id"`
	GameLevel      int    `gorm:"default:0" json:"game_level"`
	InGameName     string `json:"in_game_name"`

	// Profile
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio,omitempty"`

	// 🏦 Payout destinations (for withdrawals)
	BankAccountName   string `json:"bank_account_name,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	BankIFSC          string `json:"bank_ifsc,omitempty"`
	UpiID             string `json:"upi_id,omitempty"`

	// Aggregate stats
	TournamentsPlayed int64 `gorm:"default:0" json:"tournaments_played"`
	TournamentsWon    int64 `gorm:"default:0" json:"tournaments_won"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// HasCompleteGameProfile reports whether the game identity is fully filled in.
// Tournament joins require this for the joining user and every teammate.
func (u *User) HasCompleteGameProfile() bool {
	return u.GamePlatformID != "" && u.GameLevel > 0 && u.InGameName != ""
}

// HasPayoutDetails reports whether the stored destination for the given
// withdrawal method is complete.
func (u *User) HasPayoutDetails(method string) bool {
	switch method {
	case WithdrawMethodBank:
		return u.BankAccountName != "" && u.BankAccountNumber != "" && u.BankIFSC != ""
	case WithdrawMethodUPI:
		return u.UpiID != ""
	}
	return false
}

// UserParticipation = per-user tournament history entry, written when a join
// commits (one row per accepted team member for team entries).
type UserParticipation struct {
	ID            string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string `gorm:"index;not null" json:"user_id"`
	TournamentID  string `gorm:"index;not null" json:"tournament_id"`
	ParticipantID string `gorm:"index;not null" json:"participant_id"` // links to TournamentParticipant.ID

	FinalRank int     `gorm:"default:0" json:"final_rank"` // 0 = not ranked yet
	Kills     int     `gorm:"default:0" json:"kills"`
	PrizeWon  float64 `gorm:"default:0" json:"prize_won"`

	Status string `gorm:"type:varchar(16);default:'joined'" json:"status"` // joined → completed → won

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
