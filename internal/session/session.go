package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcinplath/bhp/internal/auth"
	"github.com/marcinplath/bhp/internal/crypto"
	"github.com/marcinplath/bhp/internal/model"
	"github.com/marcinplath/bhp/internal/store"
)

var (
	// ErrAlreadyActive means a live refresh credential exists for the
	// account; logging out first is the only way to get a new one.
	ErrAlreadyActive = errors.New("already_active")
	// ErrUnauthenticated covers bad passwords and invalid, expired or
	// unknown tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
)

type Config struct {
	JWTSecret       string
	RefreshSecret   string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Authority issues and validates session tokens. The access token is
// stateless; the refresh token is additionally anchored in the credential
// store, which caps live sessions at one per account.
type Authority struct {
	cfg         Config
	accounts    store.AccountStore
	credentials store.CredentialStore
}

func NewAuthority(cfg Config, accounts store.AccountStore, credentials store.CredentialStore) *Authority {
	return &Authority{cfg: cfg, accounts: accounts, credentials: credentials}
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Login authenticates the account and mints both tokens. store.ErrNotFound
// is passed through for unknown emails; a second login while a credential
// is live fails with ErrAlreadyActive and mints nothing.
func (a *Authority) Login(ctx context.Context, email, password string) (TokenPair, model.Account, error) {
	account, err := a.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, model.Account{}, err
	}
	if err := crypto.CheckPassword(account.PasswordHash, password); err != nil {
		return TokenPair{}, model.Account{}, ErrUnauthenticated
	}

	refreshToken, err := auth.NewRefreshToken(a.cfg.RefreshSecret, a.cfg.Issuer, a.cfg.RefreshTokenTTL, account.ID)
	if err != nil {
		return TokenPair{}, model.Account{}, err
	}

	now := time.Now().UTC()
	err = a.credentials.CreateCredential(ctx, model.RefreshCredential{
		AccountID: account.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(a.cfg.RefreshTokenTTL),
	})
	if errors.Is(err, store.ErrConflict) {
		return TokenPair{}, model.Account{}, ErrAlreadyActive
	}
	if err != nil {
		return TokenPair{}, model.Account{}, fmt.Errorf("persisting credential: %w", err)
	}

	accessToken, err := a.newAccessToken(account)
	if err != nil {
		return TokenPair{}, model.Account{}, err
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, account, nil
}

// ValidateAccess checks signature and expiry only; it never touches the
// store.
func (a *Authority) ValidateAccess(token string) (*auth.Claims, error) {
	claims, err := auth.ParseToken(a.cfg.JWTSecret, token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// Refresh mints a new access token off a valid refresh token with a live
// persisted credential. The refresh token itself is not rotated.
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := auth.ParseRefreshToken(a.cfg.RefreshSecret, refreshToken)
	if err != nil {
		return "", ErrUnauthenticated
	}

	cred, err := a.credentials.GetCredential(ctx, claims.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", err
	}
	if cred.TokenHash != crypto.HashToken(refreshToken) {
		return "", ErrUnauthenticated
	}
	if !cred.ExpiresAt.After(time.Now().UTC()) {
		// Lazy cleanup; the row is dead either way.
		_ = a.credentials.DeleteCredential(ctx, claims.AccountID)
		return "", ErrUnauthenticated
	}

	account, err := a.accounts.GetAccountByID(ctx, claims.AccountID)
	if err != nil {
		return "", ErrUnauthenticated
	}
	return a.newAccessToken(account)
}

// Logout releases the account's session slot. Idempotent.
func (a *Authority) Logout(ctx context.Context, accountID string) error {
	return a.credentials.DeleteCredential(ctx, accountID)
}

func (a *Authority) newAccessToken(account model.Account) (string, error) {
	return auth.NewAccessToken(a.cfg.JWTSecret, a.cfg.Issuer, a.cfg.AccessTokenTTL, auth.Claims{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
	})
}
