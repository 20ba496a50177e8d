package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayush/receipt-tracker/backend/internal/models"
	"github.com/ayush/receipt-tracker/backend/internal/response"
)

const (
	msgFieldsRequired    = "Tous les champs sont requis"
	msgPasswordTooShort  = "Le mot de passe doit contenir au moins 6 caractères"
	msgInvalidEmail      = "Email invalide"
	msgEmailTaken        = "Cet email est déjà utilisé"
	msgCredentialsNeeded = "Email et mot de passe requis"
	msgBadCredentials    = "Email ou mot de passe incorrect"
	msgGenericError      = "Une erreur est survenue"
)

// Handler serves /api/auth.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	secure   bool
	logger   *slog.Logger
}

// NewHandler builds the auth handlers. secure marks the session cookie Secure.
func NewHandler(svc *Service, secure bool, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, validate: validator.New(), secure: secure, logger: logger}
}

// Register creates an account and logs it in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgFieldsRequired)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = NormalizeEmail(req.Email)

	if msg := registerError(h.validate.Struct(req)); msg != "" {
		response.Error(w, http.StatusBadRequest, msg)
		return
	}

	user, err := h.svc.CreateUser(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.logger.Error("register", "error", err)
		response.Error(w, http.StatusInternalServerError, msgGenericError)
		return
	}
	if user == nil {
		response.Error(w, http.StatusBadRequest, msgEmailTaken)
		return
	}

	h.startSession(w, r, user)
}

// registerError maps validation failures to the message shown to the user.
// Missing fields win over a short password, which wins over a bad email.
func registerError(err error) string {
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return msgFieldsRequired
	}
	msg := ""
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required":
			return msgFieldsRequired
		case fe.Field() == "Password":
			msg = msgPasswordTooShort
		case fe.Field() == "Email" && msg == "":
			msg = msgInvalidEmail
		}
	}
	if msg == "" {
		msg = msgFieldsRequired
	}
	return msg
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, msgCredentialsNeeded)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, msgCredentialsNeeded)
		return
	}

	user, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Error("login", "error", err)
		response.Error(w, http.StatusInternalServerError, msgGenericError)
		return
	}
	if user == nil {
		response.Error(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}

	h.startSession(w, r, user)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) {
	sess, err := h.svc.CreateSession(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("create session", "user_id", user.ID, "error", err)
		response.Error(w, http.StatusInternalServerError, msgGenericError)
		return
	}
	SetSessionCookie(w, sess.Token, h.secure)
	response.OK(w, map[string]any{
		"success": true,
		"user":    user.Public(),
	})
}

// Logout always succeeds; the session row is deleted best effort.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		h.svc.Logout(r.Context(), cookie.Value)
	}
	ClearSessionCookie(w)
	response.OK(w, map[string]bool{"success": true})
}

// User returns the user behind the session cookie.
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	user := h.svc.CurrentUser(r)
	if user == nil {
		response.Error(w, http.StatusUnauthorized, ReasonNoSession)
		return
	}
	response.OK(w, map[string]any{"user": user.Public()})
}
