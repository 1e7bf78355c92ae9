// Package httpapi is the HTTP surface of the server: account endpoints,
// health, and the socket upgrade route.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/valeofeternity/vale-rooms/internal/store"
	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

// UserStore is what the account handlers need from persistence.
type UserStore interface {
	Create(ctx context.Context, username, email, password string) (contract.Identity, error)
	Authenticate(ctx context.Context, username, password string) (contract.Identity, error)
}

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Successful responses wrap the identity in a data field; errors carry a
// message. Both shapes are what the client's userapi package parses.
func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Data any `json:"data"`
	}{Data: v})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Message string `json:"message"`
	}{Message: msg})
}

func SignUp(users UserStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c credentials
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeMessage(w, http.StatusBadRequest, "Malformed request body")
			return
		}
		if c.Username == "" || c.Password == "" {
			writeMessage(w, http.StatusBadRequest, "Username and password are required")
			return
		}

		id, err := users.Create(r.Context(), c.Username, c.Email, c.Password)
		if errors.Is(err, store.ErrUsernameTaken) {
			writeMessage(w, http.StatusBadRequest, "Username already taken")
			return
		}
		if err != nil {
			logger.Error("signup failed", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "Unexpected error")
			return
		}
		writeData(w, http.StatusCreated, id)
	}
}

func SignIn(users UserStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c credentials
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeMessage(w, http.StatusBadRequest, "Malformed request body")
			return
		}

		id, err := users.Authenticate(r.Context(), c.Username, c.Password)
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeMessage(w, http.StatusBadRequest, "Invalid username or password")
			return
		}
		if err != nil {
			logger.Error("signin failed", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "Unexpected error")
			return
		}
		writeData(w, http.StatusOK, id)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
