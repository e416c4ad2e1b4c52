package models

import "time"

const (
	TeamTypeDuo   = "duo"
	TeamTypeSquad = "squad"
)

const (
	MemberStatusPending  = "pending"
	MemberStatusAccepted = "accepted"
	MemberStatusRejected = "rejected"
)

const (
	MemberOriginInvite      = "invite"
	MemberOriginJoinRequest = "join_request"
)

// Team groups players for duo/squad tournaments. The leader is always an
// accepted member and cannot leave or be removed — only deleting the team
// gets rid of them.
type Team struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Name     string `gorm:"uniqueIndex;not null" json:"name"` // 3–30 chars
	Type     string `gorm:"type:varchar(8);not null" json:"type"`
	LeaderID string `gorm:"index;not null" json:"leader_id"`

	// 6-char shared secret for self-service join requests
	InviteCode string `gorm:"uniqueIndex;type:varchar(6);not null" json:"invite_code"`

	LogoURL string `json:"logo_url,omitempty"`

	Members []TeamMember `json:"members,omitempty" gorm:"foreignKey:TeamID"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// MaxMembers returns the seat count implied by the team type.
func (t *Team) MaxMembers() int {
	if t.Type == TeamTypeDuo {
		return 2
	}
	return 4
}

// AcceptedCount counts members with accepted status (leader included).
func (t *Team) AcceptedCount() int {
	n := 0
	for _, m := range t.Members {
		if m.Status == MemberStatusAccepted {
			n++
		}
	}
	return n
}

// TeamMember is one roster entry. Origin records whether the member arrived
// via a leader invite or a join request with the invite code.
type TeamMember struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	TeamID string `gorm:"index:idx_team_user,unique;not null" json:"team_id"`
	UserID string `gorm:"index:idx_team_user,unique;not null" json:"user_id"`

	Status string `gorm:"type:varchar(16);default:'pending'" json:"status"`
	Origin string `gorm:"type:varchar(16);not null" json:"origin"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
