package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/libroteca/apiserver/internal/authz"
	"github.com/libroteca/apiserver/internal/services"
	"github.com/libroteca/apiserver/internal/store"
	"github.com/libroteca/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserHandler provides the account endpoints.
type UserHandler struct {
	userService *services.UserService
	secret      []byte
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(userService *services.UserService, jwtSecret string) *UserHandler {
	return &UserHandler{
		userService: userService,
		secret:      []byte(jwtSecret),
	}
}

// UserRouter registers the account routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService, jwtSecret string, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUserHandler(userService, jwtSecret)

	r.Post("/usuarios/register", handler.Register)
	r.Post("/usuarios/login", handler.Login)
	r.Get("/usuarios/{userID}", handler.GetUser)
	r.With(authMiddleware).Put("/usuarios/{userID}", handler.UpdateUser)
	r.With(authMiddleware).Delete("/usuarios/{userID}", handler.DisableUser)
}

type RegisterRequest struct {
	Name     string `json:"nombre"`
	Email    string `json:"correo"`
	Password string `json:"contraseña"`
}

type LoginRequest struct {
	Email    string `json:"correo"`
	Password string `json:"contraseña"`
}

type UpdateUserRequest struct {
	Name        string   `json:"nombre"`
	Email       string   `json:"correo"`
	Password    string   `json:"contraseña"`
	Permissions []string `json:"permisos"`
	Role        string   `json:"rol"`
}

type UserResponse struct {
	Message string     `json:"mensaje"`
	User    types.User `json:"usuario"`
}

type LoginResponse struct {
	Message string `json:"mensaje"`
	Token   string `json:"token"`
}

// Register creates a new account with the standard permission set.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if req.Name == "" || email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Faltan campos requeridos")
		return
	}

	if _, err := h.userService.GetByEmail(r.Context(), email); err == nil {
		writeError(w, http.StatusConflict, "El correo ya está registrado")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	permissions, _ := authz.RolePermissions(string(authz.RoleStandard))
	user, err := h.userService.Create(r.Context(), types.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        email,
		PasswordHash: string(hashed),
		Permissions:  permissions,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "El correo ya está registrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{Message: "Usuario creado", User: user})
}

// Login verifies credentials and returns a signed two-hour token.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Faltan campos requeridos")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}
	if user.Disabled {
		writeError(w, http.StatusForbidden, "Usuario inhabilitado")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Contraseña incorrecta")
		return
	}

	token, err := issueToken(user, h.secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Message: "Login exitoso", Token: token})
}

// GetUser returns an account while it is active.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")

	user, err := h.userService.Lookup(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Usuario no encontrado o inhabilitado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateUser applies a partial update. Permission and role changes are
// restricted to callers holding modify-users; a role, when present, takes
// precedence over an explicit permission list.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	caller, err := authUserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Token no proporcionado")
		return
	}

	id := chi.URLParam(r, "userID")
	isSelf := caller.ID == id
	canModifyUsers := authz.Authorize(caller.Permissions, authz.PermModifyUsers).Allowed
	canSelfModify := authz.Authorize(caller.Permissions, authz.PermSelfModify).Allowed

	if !(isSelf && canSelfModify) && !canModifyUsers {
		writeError(w, http.StatusForbidden, "No tienes permiso para modificar este usuario")
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la petición inválido")
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		user.Name = name
	}
	if email := normalizeEmail(req.Email); email != "" {
		user.Email = email
	}
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Error en el servidor")
			return
		}
		user.PasswordHash = string(hashed)
	}

	if req.Role != "" || req.Permissions != nil {
		if !canModifyUsers {
			writeError(w, http.StatusForbidden, "No puedes cambiar permisos o rol de este usuario")
			return
		}
		if req.Role != "" {
			permissions, ok := authz.RolePermissions(req.Role)
			if !ok {
				writeError(w, http.StatusBadRequest, "Rol no válido")
				return
			}
			user.Permissions = permissions
		} else {
			user.Permissions = req.Permissions
		}
	}

	updated, err := h.userService.Update(r.Context(), user)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "El correo ya está registrado")
		default:
			writeError(w, http.StatusInternalServerError, "Error en el servidor")
		}
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{Message: "Usuario actualizado", User: updated})
}

// DisableUser soft-deletes an account. Disabling yourself requires
// self-modify; disabling another account requires modify-users.
func (h *UserHandler) DisableUser(w http.ResponseWriter, r *http.Request) {
	caller, err := authUserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Token no proporcionado")
		return
	}

	id := chi.URLParam(r, "userID")

	if _, err := h.userService.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	isSelf := caller.ID == id
	if isSelf && !authz.Authorize(caller.Permissions, authz.PermSelfModify).Allowed {
		writeError(w, http.StatusForbidden, "No tienes permiso para deshabilitarte")
		return
	}
	if !isSelf && !authz.Authorize(caller.Permissions, authz.PermModifyUsers).Allowed {
		writeError(w, http.StatusForbidden, "No tienes permiso para deshabilitar a otros usuarios")
		return
	}

	user, err := h.userService.Disable(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Usuario no encontrado")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error en el servidor")
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{Message: "Usuario inhabilitado", User: user})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
