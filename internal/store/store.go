package store

import (
	"context"
	"errors"

	"github.com/marcinplath/bhp/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not_found")
	// ErrConflict is returned when a conditional write loses: a second
	// credential for an account, a duplicate account email, or an
	// invitation transition whose precondition no longer holds.
	ErrConflict = errors.New("conflict")
	// ErrDuplicateCode is returned when an access code collides with one
	// already issued. Callers regenerate and retry.
	ErrDuplicateCode = errors.New("duplicate_access_code")
)

type AccountStore interface {
	CreateAccount(ctx context.Context, account model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (model.Account, error)
	GetAccountByID(ctx context.Context, id string) (model.Account, error)
}

// CredentialStore holds at most one refresh credential per account. Create
// is atomic create-iff-absent; the second writer gets ErrConflict.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred model.RefreshCredential) error
	GetCredential(ctx context.Context, accountID string) (model.RefreshCredential, error)
	DeleteCredential(ctx context.Context, accountID string) error
}

type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv model.Invitation) error
	GetInvitation(ctx context.Context, id string) (model.Invitation, error)
	GetInvitationByLink(ctx context.Context, link string) (model.Invitation, error)
	GetInvitationByAccessCode(ctx context.Context, code string) (model.Invitation, error)
	ListInvitations(ctx context.Context) ([]model.Invitation, error)
	UpdateInvitation(ctx context.Context, inv model.Invitation) error
	DeleteInvitation(ctx context.Context, id string) error
	// CompleteInvitation transitions pending to completed and records the
	// access code. ErrConflict when the invitation is no longer pending,
	// ErrDuplicateCode when the code is already taken.
	CompleteInvitation(ctx context.Context, id, code string) error
}

type QuestionStore interface {
	CreateQuestion(ctx context.Context, q model.Question) error
	GetQuestion(ctx context.Context, id string) (model.Question, error)
	ListQuestions(ctx context.Context) ([]model.Question, error)
	UpdateQuestion(ctx context.Context, q model.Question) error
	DeleteQuestion(ctx context.Context, id string) error
}

type Store interface {
	AccountStore
	CredentialStore
	InvitationStore
	QuestionStore
	Ping(ctx context.Context) error
	Close()
}
