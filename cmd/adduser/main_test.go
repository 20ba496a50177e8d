package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/receipt-tracker/backend/internal/auth"
	"github.com/ayush/receipt-tracker/backend/internal/models"
)

// memStore is an in-memory auth.Store.
type memStore struct {
	users   map[string]*models.User
	expired int64
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*models.User{}}
}

func (m *memStore) CreateUser(_ context.Context, name, email, hash string) (*models.User, error) {
	u := &models.User{ID: int64(len(m.users) + 1), Name: name, Email: email, PasswordHash: hash}
	m.users[email] = u
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.users[email], nil
}

func (m *memStore) GetUserByID(context.Context, int64) (*models.User, error) { return nil, nil }

func (m *memStore) CreateSession(context.Context, int64, string, time.Time) (*models.Session, error) {
	return nil, nil
}

func (m *memStore) GetSessionByToken(context.Context, string) (*models.Session, error) {
	return nil, nil
}

func (m *memStore) DeleteSession(context.Context, string) error { return nil }

func (m *memStore) DeleteExpiredSessions(context.Context) (int64, error) { return m.expired, nil }

func newService(st *memStore) *auth.Service {
	return auth.NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAddUser(t *testing.T) {
	st := newMemStore()
	svc := newService(st)
	stdout := new(bytes.Buffer)

	err := addUser(context.Background(), svc, " Alice ", " Alice@Example.com", "secret1", stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "User alice@example.com created successfully with ID 1")

	u := st.users["alice@example.com"]
	require.NotNil(t, u)
	assert.Equal(t, "Alice", u.Name)
	assert.True(t, auth.VerifyPassword("secret1", u.PasswordHash))
}

func TestAddUserDuplicate(t *testing.T) {
	st := newMemStore()
	svc := newService(st)
	stdout := new(bytes.Buffer)

	require.NoError(t, addUser(context.Background(), svc, "Alice", "alice@example.com", "secret1", stdout))
	err := addUser(context.Background(), svc, "Alice", "ALICE@example.com", "secret1", stdout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestPruneSessions(t *testing.T) {
	st := newMemStore()
	st.expired = 4
	stdout := new(bytes.Buffer)

	require.NoError(t, pruneSessions(context.Background(), newService(st), stdout))
	assert.Equal(t, "Deleted 4 expired sessions\n", stdout.String())
}

func TestRunMissingFlags(t *testing.T) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	err := run([]string{"-name", "Alice"}, new(bytes.Buffer), stdout, stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required flags")
	assert.Contains(t, stdout.String(), "Usage:")
}

func TestRunShortPassword(t *testing.T) {
	err := run([]string{"-name", "A", "-email", "a@example.com", "-password", "123"},
		new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 6 characters")
}

func TestRunPromptsForPassword(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	stdout := new(bytes.Buffer)
	stdin := bytes.NewBufferString("interactive_secret\n")

	// The prompt is answered; the run then stops at the missing database URL.
	err := run([]string{"-name", "A", "-email", "a@example.com"}, stdin, stdout, new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, stdout.String(), "Password: ")
}

func TestRunPromptWithoutInput(t *testing.T) {
	err := run([]string{"-name", "A", "-email", "a@example.com"},
		new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRunAgainstDatabase(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	email := "adduser-" + time.Now().Format("20060102150405.000000") + "@example.com"
	stdout := new(bytes.Buffer)

	args := []string{"-name", "CLI", "-email", email, "-password", "secret1", "-db", dbURL}
	require.NoError(t, run(args, new(bytes.Buffer), stdout, new(bytes.Buffer)))
	assert.Contains(t, stdout.String(), "created successfully")

	err := run(args, new(bytes.Buffer), new(bytes.Buffer), new(bytes.Buffer))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	stdout.Reset()
	require.NoError(t, run([]string{"-prune", "-db", dbURL}, new(bytes.Buffer), stdout, new(bytes.Buffer)))
	assert.Contains(t, stdout.String(), "expired sessions")
}
