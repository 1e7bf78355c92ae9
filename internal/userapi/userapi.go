// Package userapi is the client side of the account endpoints: the single
// request/response calls that turn credentials into an Identity. The
// identity is then handed to conn.Connect; nothing else in the client core
// touches authentication.
package userapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

// APIError is a server-declined request carrying the server's message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("userapi: %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: http.DefaultClient}
}

// SignIn exchanges credentials for an identity.
func (c *Client) SignIn(ctx context.Context, username, password string) (contract.Identity, error) {
	return c.post(ctx, "/users/signin", http.StatusOK, map[string]string{
		"username": username,
		"password": password,
	})
}

// SignUp registers an account and returns its identity.
func (c *Client) SignUp(ctx context.Context, username, email, password string) (contract.Identity, error) {
	return c.post(ctx, "/users/signup", http.StatusCreated, map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

func (c *Client) post(ctx context.Context, path string, wantStatus int, body map[string]string) (contract.Identity, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return contract.Identity{}, fmt.Errorf("userapi: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return contract.Identity{}, fmt.Errorf("userapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return contract.Identity{}, fmt.Errorf("userapi: %s: %w", path, err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Data    contract.Identity `json:"data"`
		Message string            `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return contract.Identity{}, fmt.Errorf("userapi: decode response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		msg := parsed.Message
		if msg == "" {
			msg = "unexpected error"
		}
		return contract.Identity{}, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return parsed.Data, nil
}
