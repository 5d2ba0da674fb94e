package invite

import (
	"context"
	"errors"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/marcinplath/bhp/internal/crypto"
	"github.com/marcinplath/bhp/internal/mail"
	"github.com/marcinplath/bhp/internal/model"
	"github.com/marcinplath/bhp/internal/store"
)

var (
	ErrInvalidInput = errors.New("invalid_input")
	// ErrInvalidState marks operations that make no sense for the
	// invitation's current state: editing a completed invitation, or a
	// completed invitation missing its access code.
	ErrInvalidState = errors.New("invalid_state")
	// ErrUnsupported is a resend on a status with no defined handling.
	ErrUnsupported = errors.New("unsupported_status")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Registry owns the invitation lifecycle: pending from creation until a
// passed quiz completes it. Completed is terminal.
type Registry struct {
	invitations store.InvitationStore
	mailer      mail.Mailer
	inviteTTL   time.Duration
}

func NewRegistry(invitations store.InvitationStore, mailer mail.Mailer, inviteTTL time.Duration) *Registry {
	return &Registry{invitations: invitations, mailer: mailer, inviteTTL: inviteTTL}
}

// Create validates the guest email, persists a pending invitation with an
// unguessable link, and dispatches the invitation mail. Mail delivery is
// best effort and never rolls the creation back.
func (r *Registry) Create(ctx context.Context, email, inviter string) (model.Invitation, error) {
	if email == "" || inviter == "" || !ValidEmail(email) {
		return model.Invitation{}, ErrInvalidInput
	}

	link, err := crypto.NewLinkToken()
	if err != nil {
		return model.Invitation{}, err
	}

	now := time.Now().UTC()
	inv := model.Invitation{
		ID:        uuid.NewString(),
		Email:     email,
		Inviter:   inviter,
		Link:      link,
		Status:    model.InvitationPending,
		CreatedAt: now,
		ExpiresAt: now.Add(r.inviteTTL),
	}
	if err := r.invitations.CreateInvitation(ctx, inv); err != nil {
		return model.Invitation{}, err
	}

	go func() {
		if err := r.mailer.SendInvitation(inv.Email, inv.Link); err != nil {
			log.Printf("invitation mail to %s failed: %v", inv.Email, err)
		}
	}()
	return inv, nil
}

func (r *Registry) List(ctx context.Context) ([]model.Invitation, error) {
	return r.invitations.ListInvitations(ctx)
}

// ResolveByLink returns the invitation behind a link if it is still
// pending and unexpired. Everything else, including an expired record that
// still physically exists, reads as not found.
func (r *Registry) ResolveByLink(ctx context.Context, link string) (model.Invitation, error) {
	inv, err := r.invitations.GetInvitationByLink(ctx, link)
	if err != nil {
		return model.Invitation{}, err
	}
	if inv.Status != model.InvitationPending || !inv.ExpiresAt.After(time.Now().UTC()) {
		return model.Invitation{}, store.ErrNotFound
	}
	return inv, nil
}

// Edit updates the guest email and/or expiry of a pending invitation.
func (r *Registry) Edit(ctx context.Context, id string, email *string, expiresAt *time.Time) (model.Invitation, error) {
	inv, err := r.invitations.GetInvitation(ctx, id)
	if err != nil {
		return model.Invitation{}, err
	}
	if inv.Status == model.InvitationCompleted {
		return model.Invitation{}, ErrInvalidState
	}

	if email != nil {
		if !ValidEmail(*email) {
			return model.Invitation{}, ErrInvalidInput
		}
		inv.Email = *email
	}
	if expiresAt != nil {
		if !expiresAt.After(time.Now().UTC()) {
			return model.Invitation{}, ErrInvalidInput
		}
		inv.ExpiresAt = expiresAt.UTC()
	}

	if err := r.invitations.UpdateInvitation(ctx, inv); err != nil {
		return model.Invitation{}, err
	}
	return inv, nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.invitations.DeleteInvitation(ctx, id)
}

// Resend re-sends whichever mail matches the invitation's state: the
// original link while pending, the access code once completed. Unlike
// creation this delivery is synchronous; the admin asked for it and wants
// to know if it failed.
func (r *Registry) Resend(ctx context.Context, id string) error {
	inv, err := r.invitations.GetInvitation(ctx, id)
	if err != nil {
		return err
	}

	switch inv.Status {
	case model.InvitationPending:
		return r.mailer.SendInvitation(inv.Email, inv.Link)
	case model.InvitationCompleted:
		if inv.AccessCode == nil {
			return ErrInvalidState
		}
		return r.mailer.SendCompletion(inv.Email, *inv.AccessCode)
	default:
		return ErrUnsupported
	}
}

// Complete is the grading engine's pending-to-completed transition. The
// store rejects the second writer, so double grading cannot overwrite a
// code.
func (r *Registry) Complete(ctx context.Context, id, accessCode string) error {
	return r.invitations.CompleteInvitation(ctx, id, accessCode)
}

// Verify resolves an access code back to the guest it was issued to.
// Read-only.
func (r *Registry) Verify(ctx context.Context, code string) (string, error) {
	inv, err := r.invitations.GetInvitationByAccessCode(ctx, code)
	if err != nil {
		return "", err
	}
	if inv.Status != model.InvitationCompleted {
		return "", ErrInvalidState
	}
	return inv.Email, nil
}
