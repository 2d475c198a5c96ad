package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/libroteca/apiserver/internal/authz"
	"github.com/libroteca/apiserver/internal/services"
	"github.com/libroteca/apiserver/types"
)

// Tokens expire two hours after issuance.
const tokenTTL = 2 * time.Hour

// Claims is the signed token payload: the user's id, email and permission
// tokens at login time.
type Claims struct {
	ID          string   `json:"id"`
	Email       string   `json:"correo"`
	Permissions []string `json:"permisos"`
	jwt.RegisteredClaims
}

func issueToken(user types.User, secret []byte) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:          user.ID,
		Email:       user.Email,
		Permissions: user.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseClaims(tokenString string, secret []byte) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return Claims{}, errors.New("missing user id")
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// RequireAuth enforces JWT authentication, reloads the caller from the
// store so disabled accounts are cut off immediately, and injects the
// caller into context.
func RequireAuth(userService *services.UserService, jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Token no proporcionado")
				return
			}

			claims, err := parseClaims(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusForbidden, "Token inválido o expirado")
				return
			}

			user, err := userService.GetByID(r.Context(), claims.ID)
			if err != nil || user.Disabled {
				writeError(w, http.StatusUnauthorized, "Usuario no válido o inhabilitado")
				return
			}

			authUser := AuthUser{
				ID:          user.ID,
				Name:        user.Name,
				Email:       user.Email,
				Permissions: user.Permissions,
			}
			ctx := context.WithValue(r.Context(), contextUserKey, authUser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requirePermission guards a route with an authorization decision evaluated
// before the handler body.
func requirePermission(required authz.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := authUserFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Token no proporcionado")
				return
			}

			if decision := authz.Authorize(caller.Permissions, required); !decision.Allowed {
				writeError(w, http.StatusForbidden, decision.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
