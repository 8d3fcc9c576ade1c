package db

import (
	"strconv"
	"time"

	"github.com/oggyb/matchmaker/internal/status"
)

// Roles a user row can hold.
const (
	RoleCandidate  = "candidate"
	RoleMatchmaker = "matchmaker"
	RoleAdmin      = "admin"
)

// Availability is a candidate's availability for new suggestions.
type Availability string

const (
	AvailabilityAvailable   Availability = "AVAILABLE"
	AvailabilityUnavailable Availability = "UNAVAILABLE"
	AvailabilityDating      Availability = "DATING"
	AvailabilityEngaged     Availability = "ENGAGED"
	AvailabilityMarried     Availability = "MARRIED"
	AvailabilityPaused      Availability = "PAUSED"
)

// Priority is informational only; it never influences transitions.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid reports whether p is one of the declared priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// User table. Candidates and matchmakers share it; Role tells them apart.
type User struct {
	ID                 uint64       `gorm:"primaryKey;autoIncrement"`
	Username           string       `gorm:"uniqueIndex;size:64;not null"`
	Email              string       `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash       string       `gorm:"size:255;not null"`
	Active             bool         `gorm:"default:true"`
	Role               string       `gorm:"size:16;not null;default:candidate"`
	AvailabilityStatus Availability `gorm:"size:16;not null;default:AVAILABLE"`
	LastLoginAt        *time.Time
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// Suggestion is a proposed pairing of two candidates by a matchmaker.
//
// Indexes:
//   - uniq active_pair_key
//     Holds "min:max" of the party ids while the suggestion is active and
//     NULL afterwards, so at most one active suggestion exists per pair.
//   - idx_status_deadline(status, response_deadline)
//     Serves the deadline sweeper.
//   - idx_matchmaker_changed(matchmaker_id, last_status_change DESC)
//     Serves the matchmaker's active list.
//
// Stamps other than ResponseDeadline are written at most once.
type Suggestion struct {
	ID             string          `gorm:"primaryKey;size:36"`
	MatchmakerID   uint64          `gorm:"not null;index:idx_matchmaker_changed,priority:1"`
	FirstPartyID   uint64          `gorm:"not null;index"`
	SecondPartyID  uint64          `gorm:"not null;index"`
	Status         status.Status   `gorm:"size:40;not null;index:idx_status_deadline,priority:1"`
	PreviousStatus *status.Status  `gorm:"size:40"`
	Category       status.Category `gorm:"size:16;not null"`
	Priority       Priority        `gorm:"size:16;not null;default:MEDIUM"`
	ActivePairKey  *string         `gorm:"size:64;uniqueIndex"`

	MatchingReason   string `gorm:"type:text"`
	FirstPartyNotes  string `gorm:"type:text"`
	SecondPartyNotes string `gorm:"type:text"`
	InternalNotes    string `gorm:"type:text"`
	FollowUpNotes    string `gorm:"type:text"`

	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
	LastStatusChange      time.Time `gorm:"not null;index:idx_matchmaker_changed,priority:2,sort:desc"`
	LastActivity          time.Time `gorm:"not null"`
	FirstPartySent        *time.Time
	FirstPartyResponded   *time.Time
	SecondPartySent       *time.Time
	SecondPartyResponded  *time.Time
	DecisionDeadline      *time.Time
	ResponseDeadline      *time.Time `gorm:"index:idx_status_deadline,priority:2"`
	ContactSharedAt       *time.Time
	FirstMeetingScheduled *time.Time
	ClosedAt              *time.Time
}

// HasParty reports whether id is one of the two candidates.
func (s *Suggestion) HasParty(id uint64) bool {
	return id == s.FirstPartyID || id == s.SecondPartyID
}

// SuggestionStatusHistory is the append-only audit trail of a suggestion.
// ID is auto-increment and defines append order.
type SuggestionStatusHistory struct {
	ID           uint64        `gorm:"primaryKey;autoIncrement"`
	SuggestionID string        `gorm:"size:36;not null;index:idx_history_suggestion,priority:1"`
	Status       status.Status `gorm:"size:40;not null"`
	Notes        string        `gorm:"type:text"`
	Actor        string        `gorm:"size:16;not null"`
	CreatedAt    time.Time     `gorm:"not null;index:idx_history_suggestion,priority:2"`
}

func (SuggestionStatusHistory) TableName() string { return "suggestion_status_history" }

// PairKey returns the order-independent key of a pair of parties.
func PairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(a, 10) + ":" + strconv.FormatUint(b, 10)
}
