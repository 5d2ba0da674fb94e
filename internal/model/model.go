package model

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	InvitationPending   = "pending"
	InvitationCompleted = "completed"
)

type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// RefreshCredential is the persisted half of a session. At most one row
// exists per account; the store enforces that on insert.
type RefreshCredential struct {
	AccountID string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Invitation struct {
	ID         string
	Email      string
	Inviter    string
	Link       string
	Status     string
	AccessCode *string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type Question struct {
	ID            string
	Text          string
	OptionA       string
	OptionB       string
	OptionC       string
	CorrectOption string
	CreatedAt     time.Time
}
