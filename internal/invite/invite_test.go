package invite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcinplath/bhp/internal/model"
	"github.com/marcinplath/bhp/internal/store"
)

type sentMail struct {
	email   string
	payload string
}

type captureMailer struct {
	invitations chan sentMail
	completions chan sentMail
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{
		invitations: make(chan sentMail, 8),
		completions: make(chan sentMail, 8),
	}
}

func (m *captureMailer) SendInvitation(email, link string) error {
	m.invitations <- sentMail{email: email, payload: link}
	return nil
}

func (m *captureMailer) SendCompletion(email, code string) error {
	m.completions <- sentMail{email: email, payload: code}
	return nil
}

func waitMail(t *testing.T, ch chan sentMail) sentMail {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a mail dispatch")
		return sentMail{}
	}
}

func newTestRegistry() (*Registry, *store.Memory, *captureMailer) {
	m := store.NewMemory()
	mailer := newCaptureMailer()
	return NewRegistry(m, mailer, 7*24*time.Hour), m, mailer
}

func TestCreateInvitation(t *testing.T) {
	registry, _, mailer := newTestRegistry()

	inv, err := registry.Create(context.Background(), "guest@example.com", "Ala Kowalska")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.Status != model.InvitationPending {
		t.Fatalf("expected pending, got %q", inv.Status)
	}
	if inv.Link == "" || inv.ID == "" {
		t.Fatalf("expected link and id to be set")
	}
	if until := time.Until(inv.ExpiresAt); until < 6*24*time.Hour || until > 7*24*time.Hour {
		t.Fatalf("expected expiry about 7 days out, got %s", until)
	}

	sent := waitMail(t, mailer.invitations)
	if sent.email != "guest@example.com" || sent.payload != inv.Link {
		t.Fatalf("unexpected mail %+v", sent)
	}
}

func TestCreateInvitationRejectsBadEmail(t *testing.T) {
	registry, _, _ := newTestRegistry()

	for _, email := range []string{"", "not-an-email", "a b@example.com", "guest@nodot"} {
		if _, err := registry.Create(context.Background(), email, "Ala"); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("email %q: expected ErrInvalidInput, got %v", email, err)
		}
	}
	if _, err := registry.Create(context.Background(), "guest@example.com", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing inviter: expected ErrInvalidInput, got %v", err)
	}
}

func TestResolveByLink(t *testing.T) {
	registry, _, _ := newTestRegistry()

	inv, err := registry.Create(context.Background(), "guest@example.com", "Ala")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := registry.ResolveByLink(context.Background(), inv.Link)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != inv.ID {
		t.Fatalf("resolved wrong invitation")
	}

	if _, err := registry.ResolveByLink(context.Background(), "unknown-link"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveByLinkExpired(t *testing.T) {
	registry, m, _ := newTestRegistry()
	now := time.Now().UTC()

	inv := model.Invitation{
		ID:        "i1",
		Email:     "guest@example.com",
		Inviter:   "Ala",
		Link:      "expired-link",
		Status:    model.InvitationPending,
		CreatedAt: now.Add(-8 * 24 * time.Hour),
		ExpiresAt: now.Add(-24 * time.Hour),
	}
	if err := m.CreateInvitation(context.Background(), inv); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := registry.ResolveByLink(context.Background(), "expired-link"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired invitation, got %v", err)
	}
	// The record itself is retained.
	if _, err := m.GetInvitation(context.Background(), "i1"); err != nil {
		t.Fatalf("expired invitation must not be deleted: %v", err)
	}
}

func TestResolveByLinkCompleted(t *testing.T) {
	registry, m, _ := newTestRegistry()

	inv, err := registry.Create(context.Background(), "guest@example.com", "Ala")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CompleteInvitation(context.Background(), inv.ID, "BHP-123456"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := registry.ResolveByLink(context.Background(), inv.Link); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for completed invitation, got %v", err)
	}
}

func TestEditInvitation(t *testing.T) {
	registry, _, _ := newTestRegistry()

	inv, err := registry.Create(context.Background(), "guest@example.com", "Ala")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	email := "other@example.com"
	future := time.Now().UTC().Add(48 * time.Hour)
	updated, err := registry.Edit(context.Background(), inv.ID, &email, &future)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.Email != email || !updated.ExpiresAt.Equal(future) {
		t.Fatalf("unexpected update %+v", updated)
	}
}

func TestEditInvitationPastExpiry(t *testing.T) {
	registry, m, _ := newTestRegistry()

	inv, err := registry.Create(context.Background(), "guest@example.com", "Ala")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := registry.Edit(context.Background(), inv.ID, nil, &past); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// Record unchanged.
	got, err := m.GetInvitation(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ExpiresAt.Equal(inv.ExpiresAt) {
		t.Fatalf("expiry must be unchanged after rejected edit")
	}
}

func TestEditCompletedInvitationRejected(t *testing.T) {
	registry, m, _ := newTestRegistry()

	inv, err := registry.Create(context.Background(), "guest@example.com", "Ala")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CompleteInvitation(context.Background(), inv.ID, "BHP-123456"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	email := "other@example.com"
	if _, err := registry.Edit(context.Background(), inv.ID, &email, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestEditUnknownInvitation(t *testing.T) {
	registry, _, _ := newTestRegistry()

	email := "other@example.com"
	if _, err := registry.Edit(context.Background(), "missing", &email, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResendBranchesOnStatus(t *testing.T) {
	registry, m, mailer := newTestRegistry()

	inv, err := registry.Create(context.Background(), "guest@example.com", "Ala")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	waitMail(t, mailer.invitations) // drain the creation mail

	if err := registry.Resend(context.Background(), inv.ID); err != nil {
		t.Fatalf("resend pending: %v", err)
	}
	sent := waitMail(t, mailer.invitations)
	if sent.payload != inv.Link {
		t.Fatalf("expected invitation link to be resent")
	}

	if err := m.CompleteInvitation(context.Background(), inv.ID, "BHP-123456"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := registry.Resend(context.Background(), inv.ID); err != nil {
		t.Fatalf("resend completed: %v", err)
	}
	sent = waitMail(t, mailer.completions)
	if sent.payload != "BHP-123456" {
		t.Fatalf("expected access code to be resent, got %q", sent.payload)
	}

	if err := registry.Resend(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResendUnknownStatus(t *testing.T) {
	registry, m, _ := newTestRegistry()
	now := time.Now().UTC()

	inv := model.Invitation{
		ID:        "i1",
		Email:     "guest@example.com",
		Inviter:   "Ala",
		Link:      "link-1",
		Status:    "cancelled",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := m.CreateInvitation(context.Background(), inv); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := registry.Resend(context.Background(), "i1"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	registry, m, _ := newTestRegistry()

	inv, err := registry.Create(context.Background(), "guest@example.com", "Ala")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := registry.Complete(context.Background(), inv.ID, "BHP-777777"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	email, err := registry.Verify(context.Background(), "BHP-777777")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if email != "guest@example.com" {
		t.Fatalf("expected guest email back, got %q", email)
	}

	if _, err := registry.Verify(context.Background(), "BHP-000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}

	// Defensive check: a code attached to a non-completed invitation is
	// rejected even though normal operation never produces one.
	code := "BHP-999999"
	odd := model.Invitation{
		ID:         "odd",
		Email:      "odd@example.com",
		Inviter:    "Ala",
		Link:       "odd-link",
		Status:     model.InvitationPending,
		AccessCode: &code,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	if err := m.CreateInvitation(context.Background(), odd); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := registry.Verify(context.Background(), code); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}
