package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/marcinplath/bhp/internal/auth"
	"github.com/marcinplath/bhp/internal/config"
	"github.com/marcinplath/bhp/internal/crypto"
	"github.com/marcinplath/bhp/internal/invite"
	"github.com/marcinplath/bhp/internal/model"
	"github.com/marcinplath/bhp/internal/quiz"
	"github.com/marcinplath/bhp/internal/session"
	"github.com/marcinplath/bhp/internal/store"
)

const refreshCookieName = "refresh_token"

type Server struct {
	cfg       config.Config
	store     store.Store
	authority *session.Authority
	registry  *invite.Registry
	engine    *quiz.Engine
}

func NewServer(cfg config.Config, st store.Store, authority *session.Authority, registry *invite.Registry, engine *quiz.Engine) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		authority: authority,
		registry:  registry,
		engine:    engine,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{s.cfg.FrontendOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Get("/test/{link}", s.handleGetQuiz)
		r.Post("/test/{link}/submit", s.handleSubmitQuiz)
		r.Get("/verify-access/{code}", s.handleVerifyAccess)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireAdmin)
		r.Get("/panel", s.handleAdminPanel)
		r.Post("/send-invitation", s.handleSendInvitation)
		r.Post("/resend-invitation/{id}", s.handleResendInvitation)
		r.Get("/invitations", s.handleListInvitations)
		r.Put("/invitations/{id}", s.handleUpdateInvitation)
		r.Delete("/invitations/{id}", s.handleDeleteInvitation)
		r.Get("/questions", s.handleListQuestions)
		r.Post("/questions", s.handleCreateQuestion)
		r.Put("/questions/{id}", s.handleUpdateQuestion)
		r.Delete("/questions/{id}", s.handleDeleteQuestion)
	})

	return r
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if !invite.ValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid_email")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}

	account := model.Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusBadRequest, "email_taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, accountSummary{ID: account.ID, Email: account.Email, Role: account.Role})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string         `json:"accessToken"`
	User        accountSummary `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	pair, account, err := s.authority.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
		case errors.Is(err, session.ErrAlreadyActive):
			writeError(w, http.StatusConflict, "session_active")
		default:
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken, s.cfg.RefreshTokenTTL)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: pair.AccessToken,
		User:        accountSummary{ID: account.ID, Email: account.Email, Role: account.Role},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "missing_refresh_token")
		return
	}

	accessToken, err := s.authority.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, session.ErrUnauthenticated) {
			s.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	if err := s.authority.Logout(r.Context(), claims.AccountID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	link := chi.URLParam(r, "link")
	if link == "" {
		writeError(w, http.StatusBadRequest, "missing_link")
		return
	}

	questions, err := s.engine.FetchQuestions(r.Context(), link)
	if err != nil {
		if errors.Is(err, quiz.ErrForbidden) {
			writeError(w, http.StatusForbidden, "invalid_link")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

type submitRequest struct {
	Answers []quiz.Answer `json:"answers"`
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	link := chi.URLParam(r, "link")
	if link == "" {
		writeError(w, http.StatusBadRequest, "missing_link")
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.engine.Grade(r.Context(), link, req.Answers)
	if err != nil {
		switch {
		case errors.Is(err, quiz.ErrForbidden):
			writeError(w, http.StatusForbidden, "invalid_link")
		case errors.Is(err, quiz.ErrIncompleteSubmission):
			writeError(w, http.StatusBadRequest, "incomplete_submission")
		default:
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVerifyAccess(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing_code")
		return
	}

	email, err := s.registry.Verify(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "code_not_found")
		case errors.Is(err, invite.ErrInvalidState):
			writeError(w, http.StatusConflict, "code_not_active")
		default:
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"email": email})
}

func (s *Server) handleAdminPanel(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": claims.Email, "role": claims.Role})
}

type invitationView struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Inviter    string  `json:"inviter"`
	Link       string  `json:"link"`
	Status     string  `json:"status"`
	AccessCode *string `json:"access_code,omitempty"`
	CreatedAt  string  `json:"created_at"`
	ExpiresAt  string  `json:"expires_at"`
}

func mapInvitation(inv model.Invitation) invitationView {
	return invitationView{
		ID:         inv.ID,
		Email:      inv.Email,
		Inviter:    inv.Inviter,
		Link:       inv.Link,
		Status:     inv.Status,
		AccessCode: inv.AccessCode,
		CreatedAt:  inv.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:  inv.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

type sendInvitationRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSendInvitation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req sendInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	inv, err := s.registry.Create(r.Context(), req.Email, claims.Email)
	if err != nil {
		if errors.Is(err, invite.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_email")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapInvitation(inv))
}

func (s *Server) handleResendInvitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_invitation_id")
		return
	}

	if err := s.registry.Resend(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "invitation_not_found")
		case errors.Is(err, invite.ErrInvalidState):
			writeError(w, http.StatusConflict, "invitation_state")
		case errors.Is(err, invite.ErrUnsupported):
			writeError(w, http.StatusBadRequest, "unsupported_status")
		default:
			writeError(w, http.StatusInternalServerError, "mail_failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := s.registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	views := make([]invitationView, 0, len(invitations))
	for _, inv := range invitations {
		views = append(views, mapInvitation(inv))
	}
	writeJSON(w, http.StatusOK, views)
}

type updateInvitationRequest struct {
	Email     *string `json:"email,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

func (s *Server) handleUpdateInvitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_invitation_id")
		return
	}

	var req updateInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_expires_at")
			return
		}
		expiresAt = &parsed
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		req.Email = &email
	}

	inv, err := s.registry.Edit(r.Context(), id, req.Email, expiresAt)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "invitation_not_found")
		case errors.Is(err, invite.ErrInvalidState):
			writeError(w, http.StatusConflict, "invitation_completed")
		case errors.Is(err, invite.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_fields")
		default:
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapInvitation(inv))
}

func (s *Server) handleDeleteInvitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_invitation_id")
		return
	}

	if err := s.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invitation_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type questionView struct {
	ID            string `json:"id"`
	Text          string `json:"question"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	CorrectOption string `json:"correct_option"`
	CreatedAt     string `json:"created_at"`
}

func mapQuestion(q model.Question) questionView {
	return questionView{
		ID:            q.ID,
		Text:          q.Text,
		OptionA:       q.OptionA,
		OptionB:       q.OptionB,
		OptionC:       q.OptionC,
		CorrectOption: q.CorrectOption,
		CreatedAt:     q.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.store.ListQuestions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	views := make([]questionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, mapQuestion(q))
	}
	writeJSON(w, http.StatusOK, views)
}

type questionRequest struct {
	Text          string `json:"question"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	CorrectOption string `json:"correct_option"`
}

func (q *questionRequest) validate() string {
	q.Text = strings.TrimSpace(q.Text)
	q.CorrectOption = strings.ToUpper(strings.TrimSpace(q.CorrectOption))
	if q.Text == "" || q.OptionA == "" || q.OptionB == "" || q.OptionC == "" {
		return "missing_fields"
	}
	switch q.CorrectOption {
	case "A", "B", "C":
		return ""
	default:
		return "invalid_correct_option"
	}
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if code := req.validate(); code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	question := model.Question{
		ID:            uuid.NewString(),
		Text:          req.Text,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		CorrectOption: req.CorrectOption,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateQuestion(r.Context(), question); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.engine.Invalidate()

	writeJSON(w, http.StatusCreated, mapQuestion(question))
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_question_id")
		return
	}

	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if code := req.validate(); code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	question, err := s.store.GetQuestion(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "question_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	question.Text = req.Text
	question.OptionA = req.OptionA
	question.OptionB = req.OptionB
	question.OptionC = req.OptionC
	question.CorrectOption = req.CorrectOption
	if err := s.store.UpdateQuestion(r.Context(), question); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.engine.Invalidate()

	writeJSON(w, http.StatusOK, mapQuestion(question))
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_question_id")
		return
	}

	if err := s.store.DeleteQuestion(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "question_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.engine.Invalidate()

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := s.authority.ValidateAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if !auth.HasRole(claims, model.RoleAdmin) {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
