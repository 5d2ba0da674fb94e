package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/marcinplath/bhp/internal/config"
	"github.com/marcinplath/bhp/internal/crypto"
	"github.com/marcinplath/bhp/internal/model"
	"github.com/marcinplath/bhp/internal/store"
)

// Seeds a fresh database with an admin account and a starter question bank
// so the server is usable right after first boot.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	adminEmail := flag.String("admin-email", "admin@example.com", "admin account email")
	adminPassword := flag.String("admin-password", "admin", "admin account password")
	questions := flag.Int("questions", 10, "number of fake questions to generate")
	flag.Parse()

	ctx := context.Background()

	if err := store.ApplyMigrations(cfg.MigrationsDir, cfg.DatabaseURL); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer st.Close()

	if err := seedAdmin(ctx, st, *adminEmail, *adminPassword); err != nil {
		log.Fatalf("seeding admin: %v", err)
	}
	if err := seedQuestions(ctx, st, *questions); err != nil {
		log.Fatalf("seeding questions: %v", err)
	}
}

func seedAdmin(ctx context.Context, st store.Store, email, password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	err = st.CreateAccount(ctx, model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		log.Printf("admin %s already exists, skipping", email)
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("created admin %s", email)
	return nil
}

func seedQuestions(ctx context.Context, st store.Store, count int) error {
	existing, err := st.ListQuestions(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Printf("question bank already has %d entries, skipping", len(existing))
		return nil
	}

	options := []string{"A", "B", "C"}
	for i := 0; i < count; i++ {
		q := model.Question{
			ID:            uuid.NewString(),
			Text:          fmt.Sprintf("%s?", gofakeit.Sentence(8)),
			OptionA:       gofakeit.Phrase(),
			OptionB:       gofakeit.Phrase(),
			OptionC:       gofakeit.Phrase(),
			CorrectOption: options[gofakeit.Number(0, 2)],
			CreatedAt:     time.Now().UTC(),
		}
		if err := st.CreateQuestion(ctx, q); err != nil {
			return err
		}
	}
	log.Printf("created %d questions", count)
	return nil
}
