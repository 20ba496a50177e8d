package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayush/receipt-tracker/backend/internal/models"
	"github.com/ayush/receipt-tracker/backend/internal/store"
)

const (
	SessionTTL    = 7 * 24 * time.Hour
	SessionCookie = "session_token"
)

// Store is the persistence the auth service needs.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.Session, error)
	GetSessionByToken(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Service implements accounts and database-backed sessions.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser hashes the password and inserts the user. It returns nil, nil
// when the email is already registered.
func (s *Service) CreateUser(ctx context.Context, name, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, strings.TrimSpace(name), email, hash)
	if errors.Is(err, store.ErrEmailTaken) {
		return nil, nil
	}
	return user, err
}

// Authenticate returns the user matching email and password, or nil, nil when
// the credentials are wrong.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil || user == nil {
		return nil, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// CreateSession opens a seven-day session for userID.
func (s *Service) CreateSession(ctx context.Context, userID int64) (*models.Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return s.store.CreateSession(ctx, userID, token, s.now().Add(SessionTTL))
}

// AuthResult is the outcome of VerifyAuth. Reason is set when unauthenticated.
type AuthResult struct {
	Authenticated bool
	UserID        int64
	Reason        string
}

const (
	ReasonNoSession      = "Non authentifié"
	ReasonInvalidSession = "Session invalide"
)

// VerifyAuth resolves the session cookie of r. Store failures are logged and
// reported as an invalid session.
func (s *Service) VerifyAuth(r *http.Request) AuthResult {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return AuthResult{Reason: ReasonNoSession}
	}

	sess, err := s.store.GetSessionByToken(r.Context(), cookie.Value)
	if err != nil {
		s.logger.Error("verify session", "error", err)
		return AuthResult{Reason: ReasonInvalidSession}
	}
	if sess == nil {
		return AuthResult{Reason: ReasonInvalidSession}
	}
	return AuthResult{Authenticated: true, UserID: sess.UserID}
}

// CurrentUser returns the user behind the session cookie, or nil.
func (s *Service) CurrentUser(r *http.Request) *models.User {
	res := s.VerifyAuth(r)
	if !res.Authenticated {
		return nil
	}
	user, err := s.store.GetUserByID(r.Context(), res.UserID)
	if err != nil {
		s.logger.Error("load current user", "user_id", res.UserID, "error", err)
		return nil
	}
	return user
}

// Logout deletes the session. Failures are logged and otherwise ignored.
func (s *Service) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		s.logger.Warn("delete session", "error", err)
	}
}

// PruneSessions removes expired sessions.
func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx)
}

// SetSessionCookie writes the session cookie. secure should be true in production.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL / time.Second),
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
