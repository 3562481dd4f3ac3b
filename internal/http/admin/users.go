package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"identity/internal/domain/models"
	"identity/internal/http/account"
	"identity/internal/http/response"
	"identity/internal/lib/password"
	"identity/internal/lib/sl"
	"identity/internal/services/auth"
	"identity/internal/services/users"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type UserService interface {
	List(ctx context.Context) ([]models.User, error)
	User(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateEmail(ctx context.Context, userID uuid.UUID, email string) error
	Lock(ctx context.Context, userID uuid.UUID) error
	Unlock(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// Registrar creates accounts; the admin create endpoint reuses the same
// registration path as self-service signup (default role included).
type Registrar interface {
	Register(ctx context.Context, email, password string) (uuid.UUID, error)
}

type UsersHandler struct {
	logger    *slog.Logger
	users     UserService
	registrar Registrar
	policy    password.Policy
}

func NewUsersHandler(logger *slog.Logger, usersService UserService, registrar Registrar, policy password.Policy) *UsersHandler {
	return &UsersHandler{
		logger:    logger,
		users:     usersService,
		registrar: registrar,
		policy:    policy,
	}
}

// Routes registers the admin user endpoints on an admin-gated subrouter.
func (h *UsersHandler) Routes(r *mux.Router) {
	r.HandleFunc("", h.List).Methods(http.MethodGet)
	r.HandleFunc("", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/{id}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/{id}/lock", h.Lock).Methods(http.MethodPost)
	r.HandleFunc("/{id}/unlock", h.Unlock).Methods(http.MethodPost)
}

type userSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	IsLocked bool   `json:"isLocked"`
}

type userDetail struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Roles       []string   `json:"roles"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

func userIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		h.logger.Error("user list failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	summaries := make([]userSummary, 0, len(list))
	for i := range list {
		summaries = append(summaries, userSummary{
			ID:       list[i].ID.String(),
			Email:    list[i].Email,
			IsLocked: list[i].Locked(now),
		})
	}
	response.JSON(w, http.StatusOK, summaries)
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req account.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if errs := account.ValidateCredentials(req, h.policy); errs != nil {
		response.FieldErrors(w, errs)
		return
	}

	userID, err := h.registrar.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserAlreadyExists):
			response.FieldErrors(w, map[string][]string{"email": {"email is already registered"}})
		case errors.Is(err, auth.ErrDefaultRoleNotAssigned):
			h.logger.Error("created user missing default role",
				slog.String("userID", userID.String()), sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "user creation incomplete")
		default:
			h.logger.Error("user create failed", sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"id":      userID.String(),
		"message": "user created",
	})
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFromRequest(r)
	if !ok {
		response.Message(w, http.StatusNotFound, "user not found")
		return
	}

	user, err := h.users.User(r.Context(), id)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			response.Message(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("user read failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	response.JSON(w, http.StatusOK, userDetail{
		ID:          user.ID.String(),
		Email:       user.Email,
		Roles:       user.Roles,
		LockedUntil: user.LockedUntil,
	})
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFromRequest(r)
	if !ok {
		response.Message(w, http.StatusNotFound, "user not found")
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

	if err := h.users.UpdateEmail(r.Context(), id, req.Email); err != nil {
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			response.Message(w, http.StatusNotFound, "user not found")
		case errors.Is(err, users.ErrEmailTaken):
			response.FieldErrors(w, map[string][]string{"email": {"email is already in use"}})
		default:
			h.logger.Error("user update failed", sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Message(w, http.StatusOK, "user updated")
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDFromRequest(r)
	if !ok {
		response.Message(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			response.Message(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("user delete failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	response.Message(w, http.StatusOK, "user deleted")
}

func (h *UsersHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, true)
}

func (h *UsersHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, false)
}

func (h *UsersHandler) setLock(w http.ResponseWriter, r *http.Request, lock bool) {
	id, ok := userIDFromRequest(r)
	if !ok {
		response.Message(w, http.StatusNotFound, "user not found")
		return
	}

	var err error
	if lock {
		err = h.users.Lock(r.Context(), id)
	} else {
		err = h.users.Unlock(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			response.Message(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("lockout update failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	if lock {
		response.Message(w, http.StatusOK, "user locked")
		return
	}
	response.Message(w, http.StatusOK, "user unlocked")
}
