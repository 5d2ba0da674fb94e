package quiz

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/marcinplath/bhp/internal/crypto"
	"github.com/marcinplath/bhp/internal/invite"
	"github.com/marcinplath/bhp/internal/mail"
	"github.com/marcinplath/bhp/internal/model"
	"github.com/marcinplath/bhp/internal/store"
)

var (
	// ErrForbidden means the link grants no quiz right now: unknown,
	// expired, or already completed.
	ErrForbidden = errors.New("forbidden")
	// ErrIncompleteSubmission means the answer set does not cover every
	// question exactly once. Nothing is graded.
	ErrIncompleteSubmission = errors.New("incomplete_submission")
)

const (
	bankCacheKey = "question_bank"
	bankCacheTTL = 5 * time.Minute

	// codeAttempts bounds retries when a generated access code collides
	// with one already issued.
	codeAttempts = 5
)

// QuestionView is what a guest taking the quiz sees. The correct option
// never leaves the server.
type QuestionView struct {
	ID      string `json:"id"`
	Text    string `json:"question"`
	OptionA string `json:"option_a"`
	OptionB string `json:"option_b"`
	OptionC string `json:"option_c"`
}

type Answer struct {
	QuestionID string `json:"question_id"`
	Option     string `json:"answer"`
}

// Result of a graded submission. AccessCode is set only on a pass;
// IncorrectIDs only on a fail.
type Result struct {
	Passed       bool     `json:"passed"`
	AccessCode   string   `json:"access_code,omitempty"`
	IncorrectIDs []string `json:"incorrect_question_ids,omitempty"`
}

// Engine serves the question bank to invited guests and grades their
// submissions. The bank itself is read far more often than it changes, so
// reads go through a short-lived cache that the admin CRUD invalidates.
type Engine struct {
	questions store.QuestionStore
	registry  *invite.Registry
	mailer    mail.Mailer
	cache     *gocache.Cache
}

func NewEngine(questions store.QuestionStore, registry *invite.Registry, mailer mail.Mailer) *Engine {
	return &Engine{
		questions: questions,
		registry:  registry,
		mailer:    mailer,
		cache:     gocache.New(bankCacheTTL, 2*bankCacheTTL),
	}
}

// FetchQuestions returns the bank for a guest holding a live invitation
// link, correct answers stripped, in a fresh random order per call.
func (e *Engine) FetchQuestions(ctx context.Context, link string) ([]QuestionView, error) {
	if _, err := e.registry.ResolveByLink(ctx, link); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	bank, err := e.bank(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]QuestionView, len(bank))
	for i, q := range bank {
		views[i] = QuestionView{
			ID:      q.ID,
			Text:    q.Text,
			OptionA: q.OptionA,
			OptionB: q.OptionB,
			OptionC: q.OptionC,
		}
	}
	rand.Shuffle(len(views), func(i, j int) {
		views[i], views[j] = views[j], views[i]
	})
	return views, nil
}

// Grade scores a submission against the full bank. A submission must
// answer every question exactly once or nothing is graded. A perfect score
// completes the invitation and mails the guest their access code; anything
// less leaves the invitation pending so the guest can retry.
func (e *Engine) Grade(ctx context.Context, link string, answers []Answer) (Result, error) {
	inv, err := e.registry.ResolveByLink(ctx, link)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, ErrForbidden
		}
		return Result{}, err
	}

	bank, err := e.bank(ctx)
	if err != nil {
		return Result{}, err
	}

	seen := make(map[string]string, len(answers))
	for _, a := range answers {
		if _, dup := seen[a.QuestionID]; dup {
			return Result{}, ErrIncompleteSubmission
		}
		seen[a.QuestionID] = a.Option
	}
	for _, q := range bank {
		if _, ok := seen[q.ID]; !ok {
			return Result{}, ErrIncompleteSubmission
		}
	}

	correct := make(map[string]string, len(bank))
	for _, q := range bank {
		correct[q.ID] = q.CorrectOption
	}

	var incorrect []string
	for id, option := range seen {
		if correct[id] != option {
			incorrect = append(incorrect, id)
		}
	}
	if len(incorrect) > 0 {
		return Result{Passed: false, IncorrectIDs: incorrect}, nil
	}

	code, err := e.complete(ctx, inv)
	if err != nil {
		return Result{}, err
	}
	return Result{Passed: true, AccessCode: code}, nil
}

// Invalidate drops the cached bank. Called after every question write.
func (e *Engine) Invalidate() {
	e.cache.Delete(bankCacheKey)
}

func (e *Engine) bank(ctx context.Context) ([]model.Question, error) {
	if cached, ok := e.cache.Get(bankCacheKey); ok {
		return cached.([]model.Question), nil
	}
	bank, err := e.questions.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	e.cache.Set(bankCacheKey, bank, gocache.DefaultExpiration)
	return bank, nil
}

// complete issues an access code and flips the invitation to completed.
// Codes live in a small space, so a collision with an earlier invitation is
// expected occasionally; regenerate and retry. A state conflict means a
// concurrent submission won the transition.
func (e *Engine) complete(ctx context.Context, inv model.Invitation) (string, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := crypto.NewAccessCode()
		if err != nil {
			return "", err
		}

		err = e.registry.Complete(ctx, inv.ID, code)
		if errors.Is(err, store.ErrDuplicateCode) {
			continue
		}
		if errors.Is(err, store.ErrConflict) {
			return "", ErrForbidden
		}
		if err != nil {
			return "", err
		}

		go func() {
			if err := e.mailer.SendCompletion(inv.Email, code); err != nil {
				log.Printf("completion mail to %s failed: %v", inv.Email, err)
			}
		}()
		return code, nil
	}
	return "", errors.New("exhausted access code attempts")
}
