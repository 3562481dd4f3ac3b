package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"

	"identity/internal/domain/models"
	"identity/internal/http/middleware"
	"identity/internal/http/response"
	"identity/internal/lib/password"
	"identity/internal/lib/sl"
	"identity/internal/services/users"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type Users interface {
	User(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateEmail(ctx context.Context, userID uuid.UUID, email string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
}

type Handler struct {
	logger *slog.Logger
	users  Users
	policy password.Policy
}

func NewHandler(logger *slog.Logger, usersService Users, policy password.Policy) *Handler {
	return &Handler{
		logger: logger,
		users:  usersService,
		policy: policy,
	}
}

// Routes registers the profile endpoints on an authenticated subrouter.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	r.HandleFunc("/me", h.UpdateMe).Methods(http.MethodPut)
	r.HandleFunc("/change-password", h.ChangePassword).Methods(http.MethodPost)
}

type profileResponse struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Message(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	user, err := h.users.User(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			response.Message(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("profile read failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	response.JSON(w, http.StatusOK, profileResponse{
		ID:    user.ID.String(),
		Email: user.Email,
		Roles: user.Roles,
	})
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Message(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		response.FieldErrors(w, map[string][]string{"email": {"email is not a valid address"}})
		return
	}

	if err := h.users.UpdateEmail(r.Context(), claims.UserID, req.Email); err != nil {
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			response.Message(w, http.StatusNotFound, "user not found")
		case errors.Is(err, users.ErrEmailTaken):
			response.FieldErrors(w, map[string][]string{"email": {"email is already in use"}})
		default:
			h.logger.Error("profile update failed", sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Message(w, http.StatusOK, "profile updated")
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Message(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if msgs := h.policy.Validate(req.NewPassword); len(msgs) > 0 {
		response.FieldErrors(w, map[string][]string{"newPassword": msgs})
		return
	}

	if err := h.users.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, users.ErrWrongPassword):
			response.FieldErrors(w, map[string][]string{"currentPassword": {"current password does not match"}})
		case errors.Is(err, users.ErrUserNotFound):
			response.Message(w, http.StatusNotFound, "user not found")
		default:
			h.logger.Error("password change failed", sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Message(w, http.StatusOK, "password changed")
}
