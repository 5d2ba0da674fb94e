package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marcinplath/bhp/internal/model"
)

// Memory is a map-backed Store. It backs tests and the DB_ADAPTER=memory
// mode; the conditional-write semantics match the postgres implementation.
type Memory struct {
	mu          sync.Mutex
	accounts    map[string]model.Account
	credentials map[string]model.RefreshCredential
	invitations map[string]model.Invitation
	questions   map[string]model.Question
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    map[string]model.Account{},
		credentials: map[string]model.RefreshCredential{},
		invitations: map[string]model.Invitation{},
		questions:   map[string]model.Question{},
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close()                         {}

func (m *Memory) CreateAccount(ctx context.Context, account model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Email == account.Email {
			return ErrConflict
		}
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *Memory) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return model.Account{}, ErrNotFound
}

func (m *Memory) GetAccountByID(ctx context.Context, id string) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return account, nil
}

func (m *Memory) CreateCredential(ctx context.Context, cred model.RefreshCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.credentials[cred.AccountID]; ok {
		if existing.ExpiresAt.After(time.Now().UTC()) {
			return ErrConflict
		}
		delete(m.credentials, cred.AccountID)
	}
	m.credentials[cred.AccountID] = cred
	return nil
}

func (m *Memory) GetCredential(ctx context.Context, accountID string) (model.RefreshCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.credentials[accountID]
	if !ok {
		return model.RefreshCredential{}, ErrNotFound
	}
	return cred, nil
}

func (m *Memory) DeleteCredential(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.credentials, accountID)
	return nil
}

func (m *Memory) CreateInvitation(ctx context.Context, inv model.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invitations {
		if existing.Link == inv.Link {
			return ErrConflict
		}
	}
	m.invitations[inv.ID] = inv
	return nil
}

func (m *Memory) GetInvitation(ctx context.Context, id string) (model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return model.Invitation{}, ErrNotFound
	}
	return inv, nil
}

func (m *Memory) GetInvitationByLink(ctx context.Context, link string) (model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Link == link {
			return inv, nil
		}
	}
	return model.Invitation{}, ErrNotFound
}

func (m *Memory) GetInvitationByAccessCode(ctx context.Context, code string) (model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.AccessCode != nil && *inv.AccessCode == code {
			return inv, nil
		}
	}
	return model.Invitation{}, ErrNotFound
}

func (m *Memory) ListInvitations(ctx context.Context) ([]model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	invitations := make([]model.Invitation, 0, len(m.invitations))
	for _, inv := range m.invitations {
		invitations = append(invitations, inv)
	}
	sort.Slice(invitations, func(i, j int) bool {
		return invitations[i].CreatedAt.After(invitations[j].CreatedAt)
	})
	return invitations, nil
}

func (m *Memory) UpdateInvitation(ctx context.Context, inv model.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.invitations[inv.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Email = inv.Email
	existing.ExpiresAt = inv.ExpiresAt
	m.invitations[inv.ID] = existing
	return nil
}

func (m *Memory) DeleteInvitation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invitations[id]; !ok {
		return ErrNotFound
	}
	delete(m.invitations, id)
	return nil
}

func (m *Memory) CompleteInvitation(ctx context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok || inv.Status != model.InvitationPending {
		return ErrConflict
	}
	for _, other := range m.invitations {
		if other.AccessCode != nil && *other.AccessCode == code {
			return ErrDuplicateCode
		}
	}
	inv.Status = model.InvitationCompleted
	inv.AccessCode = &code
	m.invitations[id] = inv
	return nil
}

func (m *Memory) CreateQuestion(ctx context.Context, q model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[q.ID]; ok {
		return ErrConflict
	}
	m.questions[q.ID] = q
	return nil
}

func (m *Memory) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return model.Question{}, ErrNotFound
	}
	return q, nil
}

func (m *Memory) ListQuestions(ctx context.Context) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	questions := make([]model.Question, 0, len(m.questions))
	for _, q := range m.questions {
		questions = append(questions, q)
	}
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].CreatedAt.Before(questions[j].CreatedAt)
	})
	return questions, nil
}

func (m *Memory) UpdateQuestion(ctx context.Context, q model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.questions[q.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Text = q.Text
	existing.OptionA = q.OptionA
	existing.OptionB = q.OptionB
	existing.OptionC = q.OptionC
	existing.CorrectOption = q.CorrectOption
	m.questions[q.ID] = existing
	return nil
}

func (m *Memory) DeleteQuestion(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return ErrNotFound
	}
	delete(m.questions, id)
	return nil
}
