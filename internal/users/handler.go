package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/artmarket/backend/internal/domain"
)

const (
	registrationCodeTTL = 15 * time.Minute
	resendCodeTTL       = 10 * time.Minute
)

type mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Handler struct {
	repo   *UserRepository
	mailer mailer
	logger *slog.Logger
}

func NewHandler(repo *UserRepository, mailer mailer, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		mailer: mailer,
		logger: logger,
	}
}

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || !strings.Contains(req.Email, "@") {
		h.writeError(w, http.StatusBadRequest, "name and a valid email are required")
		return
	}

	user, err := h.repo.Create(r.Context(), req.Name, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			h.writeError(w, http.StatusConflict, "email is already registered")
			return
		}
		h.logger.Error("failed to create user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.issueAndDeliver(r.Context(), user, registrationCodeTTL)

	h.logger.Info("user registered", "user_id", user.ID)
	h.writeJSON(w, http.StatusCreated, user)
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Code == "" {
		h.writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	err := h.repo.Verify(r.Context(), req.Email, req.Code)
	switch {
	case err == nil:
		h.logger.Info("user verified", "email", req.Email)
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "no pending verification for this email")
	case errors.Is(err, ErrAlreadyVerified):
		h.writeError(w, http.StatusConflict, "user is already verified")
	case errors.Is(err, ErrCodeExpired):
		h.writeError(w, http.StatusGone, "verification code has expired")
	case errors.Is(err, ErrCodeMismatch):
		h.writeError(w, http.StatusUnprocessableEntity, "verification code does not match")
	default:
		h.logger.Error("failed to verify user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *Handler) HandleResendCode(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		h.writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.repo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("failed to load user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if user.Verified {
		h.writeError(w, http.StatusConflict, "user is already verified")
		return
	}

	h.issueAndDeliver(r.Context(), user, resendCodeTTL)

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "code sent"})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	user, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("failed to get user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

// issueAndDeliver rotates the code and mails it. Delivery is best effort; the
// user can always request a resend.
func (h *Handler) issueAndDeliver(ctx context.Context, user *domain.User, ttl time.Duration) {
	code, err := h.repo.IssueCode(ctx, user.ID, ttl)
	if err != nil {
		h.logger.Error("failed to issue verification code", "error", err, "user_id", user.ID)
		return
	}

	if h.mailer == nil {
		return
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(ttl.Minutes()))
	if err := h.mailer.Send(ctx, user.Email, "Verify your account", body); err != nil {
		h.logger.Error("failed to send verification email", "error", err, "user_id", user.ID)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
