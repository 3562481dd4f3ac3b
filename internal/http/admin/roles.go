package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"identity/internal/domain/models"
	"identity/internal/http/response"
	"identity/internal/lib/sl"
	"identity/internal/services/roles"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type RoleService interface {
	List(ctx context.Context) ([]models.Role, error)
	Role(ctx context.Context, id uuid.UUID) (*models.Role, error)
	Create(ctx context.Context, name string) (uuid.UUID, error)
	Rename(ctx context.Context, id uuid.UUID, newName string) error
	Delete(ctx context.Context, id uuid.UUID) error
	UsersInRole(ctx context.Context, name string) ([]models.User, error)
	Assign(ctx context.Context, roleName string, userID uuid.UUID) error
	Remove(ctx context.Context, roleName string, userID uuid.UUID) error
}

type RolesHandler struct {
	logger *slog.Logger
	roles  RoleService
}

func NewRolesHandler(logger *slog.Logger, roleService RoleService) *RolesHandler {
	return &RolesHandler{
		logger: logger,
		roles:  roleService,
	}
}

// Routes registers the admin role endpoints on an admin-gated subrouter.
func (h *RolesHandler) Routes(r *mux.Router) {
	r.HandleFunc("", h.List).Methods(http.MethodGet)
	r.HandleFunc("", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/{id}", h.Get).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.Rename).Methods(http.MethodPut)
	r.HandleFunc("/{id}", h.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/{name}/users", h.UsersInRole).Methods(http.MethodGet)
	r.HandleFunc("/{name}/assign/{userId}", h.Assign).Methods(http.MethodPost)
	r.HandleFunc("/{name}/remove/{userId}", h.Remove).Methods(http.MethodPost)
}

type roleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type roleMember struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (h *RolesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.roles.List(r.Context())
	if err != nil {
		h.logger.Error("role list failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, roleResponse{ID: role.ID.String(), Name: role.Name})
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *RolesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.Message(w, http.StatusNotFound, "role not found")
		return
	}

	role, err := h.roles.Role(r.Context(), id)
	if err != nil {
		if errors.Is(err, roles.ErrRoleNotFound) {
			response.Message(w, http.StatusNotFound, "role not found")
			return
		}
		h.logger.Error("role read failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	response.JSON(w, http.StatusOK, roleResponse{ID: role.ID.String(), Name: role.Name})
}

func (h *RolesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleName string `json:"roleName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.RoleName == "" {
		response.FieldErrors(w, map[string][]string{"roleName": {"roleName is required"}})
		return
	}

	id, err := h.roles.Create(r.Context(), req.RoleName)
	if err != nil {
		if errors.Is(err, roles.ErrRoleAlreadyExists) {
			response.FieldErrors(w, map[string][]string{"roleName": {"role already exists"}})
			return
		}
		h.logger.Error("role create failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"id":      id.String(),
		"message": "role created",
	})
}

func (h *RolesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.Message(w, http.StatusNotFound, "role not found")
		return
	}

	var req struct {
		NewRoleName string `json:"newRoleName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Message(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.NewRoleName == "" {
		response.FieldErrors(w, map[string][]string{"newRoleName": {"newRoleName is required"}})
		return
	}

	if err := h.roles.Rename(r.Context(), id, req.NewRoleName); err != nil {
		switch {
		case errors.Is(err, roles.ErrRoleNotFound):
			response.Message(w, http.StatusNotFound, "role not found")
		case errors.Is(err, roles.ErrRoleAlreadyExists):
			response.FieldErrors(w, map[string][]string{"newRoleName": {"role name already in use"}})
		case errors.Is(err, roles.ErrRoleProtected):
			response.Message(w, http.StatusBadRequest, "system role cannot be renamed")
		default:
			h.logger.Error("role rename failed", sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Message(w, http.StatusOK, "role renamed")
}

func (h *RolesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		response.Message(w, http.StatusNotFound, "role not found")
		return
	}

	if err := h.roles.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, roles.ErrRoleNotFound):
			response.Message(w, http.StatusNotFound, "role not found")
		case errors.Is(err, roles.ErrRoleProtected):
			response.Message(w, http.StatusBadRequest, "the Admin role cannot be deleted")
		default:
			h.logger.Error("role delete failed", sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Message(w, http.StatusOK, "role deleted")
}

func (h *RolesHandler) UsersInRole(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	members, err := h.roles.UsersInRole(r.Context(), name)
	if err != nil {
		if errors.Is(err, roles.ErrRoleNotFound) {
			response.Message(w, http.StatusNotFound, "role not found")
			return
		}
		h.logger.Error("role members failed", sl.Err(err))
		response.Message(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]roleMember, 0, len(members))
	for i := range members {
		out = append(out, roleMember{ID: members[i].ID.String(), Email: members[i].Email})
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *RolesHandler) Assign(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	userID, err := uuid.Parse(vars["userId"])
	if err != nil {
		response.Message(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.roles.Assign(r.Context(), name, userID); err != nil {
		switch {
		case errors.Is(err, roles.ErrRoleNotFound):
			response.Message(w, http.StatusBadRequest, "role does not exist")
		case errors.Is(err, roles.ErrUserNotFound):
			response.Message(w, http.StatusNotFound, "user not found")
		case errors.Is(err, roles.ErrRoleAlreadySet):
			response.Message(w, http.StatusBadRequest, "role already assigned")
		default:
			h.logger.Error("role assign failed", sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Message(w, http.StatusOK, "role assigned")
}

func (h *RolesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]
	userID, err := uuid.Parse(vars["userId"])
	if err != nil {
		response.Message(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.roles.Remove(r.Context(), name, userID); err != nil {
		switch {
		case errors.Is(err, roles.ErrUserNotFound):
			response.Message(w, http.StatusNotFound, "user not found")
		case errors.Is(err, roles.ErrRoleNotSet):
			response.Message(w, http.StatusBadRequest, "role not assigned")
		default:
			h.logger.Error("role remove failed", sl.Err(err))
			response.Message(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	response.Message(w, http.StatusOK, "role removed")
}
