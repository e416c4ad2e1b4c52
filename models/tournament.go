package models

import "time"

const (
	TournamentTypeSolo  = "solo"
	TournamentTypeDuo   = "duo"
	TournamentTypeSquad = "squad"
)

const (
	TournamentStatusUpcoming           = "upcoming"
	TournamentStatusRegistrationOpen   = "registration_open"
	TournamentStatusRegistrationClosed = "registration_closed"
	TournamentStatusLive               = "live"
	TournamentStatusCompleted          = "completed"
	TournamentStatusCancelled          = "cancelled"
)

const (
	ParticipantKindUser = "user"
	ParticipantKindTeam = "team"
)

const (
	PaymentStatusPaid     = "paid"
	PaymentStatusPending  = "pending"
	PaymentStatusRefunded = "refunded"
)

// Tournament represents a single entry-fee event.
type Tournament struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`
	Name string `gorm:"not null" json:"name"`
	Type string `gorm:"type:varchar(8);not null" json:"type"` // solo | duo | squad

	Map         string `json:"map"`
	Description string `json:"description"`
	Rules       string `json:"rules"`

	EntryFee  float64 `gorm:"default:0" json:"entry_fee"`
	PrizePool float64 `gorm:"default:0" json:"prize_pool"`
	// Percent split across final ranks, e.g. "50,30,20" → ranks 1..3
	PrizeSplit    string  `json:"prize_split"`
	PerKillReward float64 `gorm:"default:0" json:"per_kill_reward"`

	MaxSlots int `gorm:"not null" json:"max_slots"`
	// Derived: always recomputed from the participant count on persist —
	// never set directly.
	CurrentSlots int `gorm:"default:0" json:"current_slots"`

	RegistrationOpensAt  time.Time `json:"registration_opens_at"`
	RegistrationClosesAt time.Time `json:"registration_closes_at"`
	StartTime            time.Time `gorm:"not null" json:"start_time"`

	Status string `gorm:"type:varchar(24);default:'upcoming'" json:"status"`
	HostID string `gorm:"index;not null" json:"host_id"`

	RoomID       string `json:"room_id,omitempty"`       // shared with participants when live
	RoomPassword string `json:"room_password,omitempty"` // ditto

	Participants []TournamentParticipant `json:"participants,omitempty" gorm:"foreignKey:TournamentID"`

	Timestamps
}

// RequiredTeamSize returns the accepted-member count a team must have for
// this tournament's type (1 for solo, which never takes a team).
func (t *Tournament) RequiredTeamSize() int {
	switch t.Type {
	case TournamentTypeDuo:
		return 2
	case TournamentTypeSquad:
		return 4
	}
	return 1
}

// IsFull reports whether the roster has no open slots left. The authoritative
// check re-counts participants inside the join transaction — this one is only
// the fast pre-check.
func (t *Tournament) IsFull() bool {
	return t.MaxSlots > 0 && t.CurrentSlots >= t.MaxSlots
}

// CanTransitionTo enforces the status machine: upcoming → registration_open →
// registration_closed → live → completed, with cancelled reachable from any
// pre-completed state.
func (t *Tournament) CanTransitionTo(next string) bool {
	if next == TournamentStatusCancelled {
		return t.Status != TournamentStatusCompleted && t.Status != TournamentStatusCancelled
	}
	allowed := map[string]string{
		TournamentStatusUpcoming:           TournamentStatusRegistrationOpen,
		TournamentStatusRegistrationOpen:   TournamentStatusRegistrationClosed,
		TournamentStatusRegistrationClosed: TournamentStatusLive,
		TournamentStatusLive:               TournamentStatusCompleted,
	}
	return allowed[t.Status] == next
}

// TournamentParticipant is one occupied slot. The entity is a tagged variant:
// EntityKind selects whether EntityID names a User or a Team. The unique index
// keeps any entity from appearing twice in the same roster.
type TournamentParticipant struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	TournamentID string `gorm:"index:idx_tournament_entity,unique;not null" json:"tournament_id"`
	EntityKind   string `gorm:"index:idx_tournament_entity,unique;type:varchar(8);not null" json:"entity_kind"`
	EntityID     string `gorm:"index:idx_tournament_entity,unique;not null" json:"entity_id"`

	RegisteredAt time.Time `json:"registered_at" gorm:"autoCreateTime"`

	// Results (filled by the host when the tournament completes)
	Rank     int     `gorm:"default:0" json:"rank"`
	Kills    int     `gorm:"default:0" json:"kills"`
	Points   int     `gorm:"default:0" json:"points"`
	PrizeWon float64 `gorm:"default:0" json:"prize_won"`

	PaymentStatus string `gorm:"type:varchar(16);default:'paid'" json:"payment_status"`
	PaymentRef    string `json:"payment_ref"` // ledger reference of the entry-fee deduction
}

// MiniTournament is a brief summary for listings.
type MiniTournament struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Map          string    `json:"map"`
	EntryFee     float64   `json:"entry_fee"`
	PrizePool    float64   `json:"prize_pool"`
	MaxSlots     int       `json:"max_slots"`
	CurrentSlots int       `json:"current_slots"`
	Status       string    `json:"status"`
	StartTime    time.Time `json:"start_time"`
}
