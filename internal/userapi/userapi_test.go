package userapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/valeofeternity/vale-rooms/internal/httpapi"
	"github.com/valeofeternity/vale-rooms/internal/store"
	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

type fakeUsers struct {
	users map[string]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]string{}}
}

func (f *fakeUsers) Create(_ context.Context, username, _, password string) (contract.Identity, error) {
	if _, ok := f.users[username]; ok {
		return contract.Identity{}, store.ErrUsernameTaken
	}
	f.users[username] = password
	return contract.Identity{UserID: "id-" + username, Username: username}, nil
}

func (f *fakeUsers) Authenticate(_ context.Context, username, password string) (contract.Identity, error) {
	if pw, ok := f.users[username]; !ok || pw != password {
		return contract.Identity{}, store.ErrInvalidCredentials
	}
	return contract.Identity{UserID: "id-" + username, Username: username}, nil
}

func TestSignUpThenSignInAgainstRealHandlers(t *testing.T) {
	users := newFakeUsers()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/signup", httpapi.SignUp(users, zap.NewNop()))
	mux.HandleFunc("/users/signin", httpapi.SignIn(users, zap.NewNop()))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	created, err := c.SignUp(ctx, "alice", "a@example.com", "pw")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if created.Username != "alice" || created.UserID == "" {
		t.Fatalf("identity: %+v", created)
	}

	got, err := c.SignIn(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if got != created {
		t.Fatalf("signin identity mismatch: %+v vs %+v", got, created)
	}
}

func TestSignInRejectionCarriesServerMessage(t *testing.T) {
	users := newFakeUsers()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/signin", httpapi.SignIn(users, zap.NewNop()))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := New(srv.URL).SignIn(context.Background(), "ghost", "pw")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message == "" {
		t.Fatalf("error shape: %+v", apiErr)
	}
}
