package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcinplath/bhp/internal/model"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateAccount(ctx context.Context, account model.Account) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.Email, account.PasswordHash, account.Role, account.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (p *Postgres) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	var account model.Account
	row := p.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM accounts
		WHERE email = $1
	`, email)
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.Role, &account.CreatedAt)
	return account, mapNoRows(err)
}

func (p *Postgres) GetAccountByID(ctx context.Context, id string) (model.Account, error) {
	var account model.Account
	row := p.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM accounts
		WHERE id = $1
	`, id)
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.Role, &account.CreatedAt)
	return account, mapNoRows(err)
}

func (p *Postgres) CreateCredential(ctx context.Context, cred model.RefreshCredential) error {
	// Expired rows must not block a fresh login; clear them first, then let
	// the primary key decide between the two writers.
	_, err := p.pool.Exec(ctx, `
		DELETE FROM refresh_credentials
		WHERE account_id = $1 AND expires_at <= now()
	`, cred.AccountID)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO refresh_credentials (account_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO NOTHING
	`, cred.AccountID, cred.TokenHash, cred.CreatedAt, cred.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) GetCredential(ctx context.Context, accountID string) (model.RefreshCredential, error) {
	var cred model.RefreshCredential
	row := p.pool.QueryRow(ctx, `
		SELECT account_id, token_hash, created_at, expires_at
		FROM refresh_credentials
		WHERE account_id = $1
	`, accountID)
	err := row.Scan(&cred.AccountID, &cred.TokenHash, &cred.CreatedAt, &cred.ExpiresAt)
	return cred, mapNoRows(err)
}

func (p *Postgres) DeleteCredential(ctx context.Context, accountID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM refresh_credentials WHERE account_id = $1`, accountID)
	return err
}

func (p *Postgres) CreateInvitation(ctx context.Context, inv model.Invitation) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO invitations (id, email, inviter, link, status, access_code, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.Email, inv.Inviter, inv.Link, inv.Status, inv.AccessCode, inv.CreatedAt, inv.ExpiresAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (p *Postgres) GetInvitation(ctx context.Context, id string) (model.Invitation, error) {
	return p.scanInvitation(p.pool.QueryRow(ctx, `
		SELECT id, email, inviter, link, status, access_code, created_at, expires_at
		FROM invitations
		WHERE id = $1
	`, id))
}

func (p *Postgres) GetInvitationByLink(ctx context.Context, link string) (model.Invitation, error) {
	return p.scanInvitation(p.pool.QueryRow(ctx, `
		SELECT id, email, inviter, link, status, access_code, created_at, expires_at
		FROM invitations
		WHERE link = $1
	`, link))
}

func (p *Postgres) GetInvitationByAccessCode(ctx context.Context, code string) (model.Invitation, error) {
	return p.scanInvitation(p.pool.QueryRow(ctx, `
		SELECT id, email, inviter, link, status, access_code, created_at, expires_at
		FROM invitations
		WHERE access_code = $1
	`, code))
}

func (p *Postgres) ListInvitations(ctx context.Context) ([]model.Invitation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, email, inviter, link, status, access_code, created_at, expires_at
		FROM invitations
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := []model.Invitation{}
	for rows.Next() {
		var inv model.Invitation
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.Inviter, &inv.Link, &inv.Status, &inv.AccessCode, &inv.CreatedAt, &inv.ExpiresAt); err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (p *Postgres) UpdateInvitation(ctx context.Context, inv model.Invitation) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE invitations
		SET email = $2, expires_at = $3
		WHERE id = $1
	`, inv.ID, inv.Email, inv.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteInvitation(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CompleteInvitation(ctx context.Context, id, code string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE invitations
		SET status = $3, access_code = $2
		WHERE id = $1 AND status = $4
	`, id, code, model.InvitationCompleted, model.InvitationPending)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) CreateQuestion(ctx context.Context, q model.Question) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO questions (id, question_text, option_a, option_b, option_c, correct_option, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, q.ID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.CorrectOption, q.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (p *Postgres) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	var q model.Question
	row := p.pool.QueryRow(ctx, `
		SELECT id, question_text, option_a, option_b, option_c, correct_option, created_at
		FROM questions
		WHERE id = $1
	`, id)
	err := row.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.CorrectOption, &q.CreatedAt)
	return q, mapNoRows(err)
}

func (p *Postgres) ListQuestions(ctx context.Context) ([]model.Question, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, question_text, option_a, option_b, option_c, correct_option, created_at
		FROM questions
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.CorrectOption, &q.CreatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (p *Postgres) UpdateQuestion(ctx context.Context, q model.Question) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE questions
		SET question_text = $2, option_a = $3, option_b = $4, option_c = $5, correct_option = $6
		WHERE id = $1
	`, q.ID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.CorrectOption)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanInvitation(row pgx.Row) (model.Invitation, error) {
	var inv model.Invitation
	err := row.Scan(&inv.ID, &inv.Email, &inv.Inviter, &inv.Link, &inv.Status, &inv.AccessCode, &inv.CreatedAt, &inv.ExpiresAt)
	return inv, mapNoRows(err)
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
