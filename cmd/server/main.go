package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/marcinplath/bhp/internal/config"
	internalhttp "github.com/marcinplath/bhp/internal/http"
	"github.com/marcinplath/bhp/internal/invite"
	"github.com/marcinplath/bhp/internal/mail"
	"github.com/marcinplath/bhp/internal/quiz"
	"github.com/marcinplath/bhp/internal/session"
	"github.com/marcinplath/bhp/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	switch cfg.DBAdapter {
	case "memory":
		st = store.NewMemory()
	default:
		if err := store.ApplyMigrations(cfg.MigrationsDir, cfg.DatabaseURL); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connection failed: %v", err)
		}
		st = pg
	}
	defer st.Close()

	// Refresh credentials can live in redis instead of the primary store;
	// SetNX gives the same second-writer-loses behavior.
	credentials := store.CredentialStore(st)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer client.Close()
		credentials = store.NewRedisCredentials(client)
	}

	var mailer mail.Mailer
	if cfg.SMTPAddr != "" {
		mailer = mail.NewSMTP(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPPassword, cfg.FrontendOrigin)
	} else {
		log.Printf("SMTP_ADDR not set, mail goes to the log")
		mailer = mail.NewLog(cfg.FrontendOrigin)
	}

	authority := session.NewAuthority(session.Config{
		JWTSecret:       cfg.JWTSecret,
		RefreshSecret:   cfg.RefreshSecret,
		Issuer:          cfg.JWTIssuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}, st, credentials)
	registry := invite.NewRegistry(st, mailer, cfg.InviteTTL)
	engine := quiz.NewEngine(st, registry, mailer)
	server := internalhttp.NewServer(cfg, st, authority, registry, engine)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("bhp server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
