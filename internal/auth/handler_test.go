package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ayush/receipt-tracker/backend/internal/models"
)

func newTestHandler(st *mockStore) *Handler {
	return NewHandler(NewService(st, discardLogger()), false, discardLogger())
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestRegisterValidation(t *testing.T) {
	h := newTestHandler(new(mockStore))

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing name", `{"email":"a@example.com","password":"secret1"}`, "Tous les champs sont requis"},
		{"missing everything", `{}`, "Tous les champs sont requis"},
		{"short password", `{"name":"A","email":"a@example.com","password":"12345"}`, "Le mot de passe doit contenir au moins 6 caractères"},
		{"bad email", `{"name":"A","email":"nope","password":"secret1"}`, "Email invalide"},
		{"malformed body", `{`, "Tous les champs sont requis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(h.Register, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.want+`"}`, rec.Body.String())
		})
	}
}

func TestRegisterEmailTaken(t *testing.T) {
	st := new(mockStore)
	st.On("GetUserByEmail", mock.Anything, "a@example.com").Return(&models.User{ID: 1}, nil)

	rec := post(newTestHandler(st).Register, `{"name":"A","email":"a@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Cet email est déjà utilisé"}`, rec.Body.String())
}

func TestRegisterSuccessSetsCookie(t *testing.T) {
	st := new(mockStore)
	st.On("GetUserByEmail", mock.Anything, "a@example.com").Return(nil, nil)
	st.On("CreateUser", mock.Anything, "Alice", "a@example.com", mock.AnythingOfType("string")).
		Return(&models.User{ID: 4, Name: "Alice", Email: "a@example.com", PasswordHash: "h"}, nil)
	st.On("CreateSession", mock.Anything, int64(4), mock.AnythingOfType("string"), mock.Anything).
		Return(&models.Session{UserID: 4, Token: "tok"}, nil)

	rec := post(newTestHandler(st).Register, `{"name":"Alice","email":"a@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"user":{"id":4,"name":"Alice","email":"a@example.com"}}`, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session_token", cookies[0].Name)
	assert.Equal(t, "tok", cookies[0].Value)
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	user := &models.User{ID: 2, Name: "Bob", Email: "b@example.com", PasswordHash: hash}

	st := new(mockStore)
	st.On("GetUserByEmail", mock.Anything, "b@example.com").Return(user, nil)
	st.On("GetUserByEmail", mock.Anything, "ghost@example.com").Return(nil, nil)
	st.On("CreateSession", mock.Anything, int64(2), mock.AnythingOfType("string"), mock.Anything).
		Return(&models.Session{UserID: 2, Token: "tok"}, nil)
	h := newTestHandler(st)

	rec := post(h.Login, `{"email":"b@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Email et mot de passe requis"}`, rec.Body.String())

	rec = post(h.Login, `{"email":"ghost@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Email ou mot de passe incorrect"}`, rec.Body.String())

	rec = post(h.Login, `{"email":"b@example.com","password":"wrong!"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Email ou mot de passe incorrect"}`, rec.Body.String())

	rec = post(h.Login, `{"email":"B@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"user":{"id":2,"name":"Bob","email":"b@example.com"}}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	st := new(mockStore)
	st.On("DeleteSession", mock.Anything, "tok").Return(assert.AnError)
	h := newTestHandler(st)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	st.AssertExpectations(t)

	rec = post(h.Logout, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUser(t *testing.T) {
	st := new(mockStore)
	st.On("GetSessionByToken", mock.Anything, "tok").Return(&models.Session{UserID: 7}, nil)
	st.On("GetUserByID", mock.Anything, int64(7)).Return(&models.User{ID: 7, Name: "C", Email: "c@example.com"}, nil)
	h := newTestHandler(st)

	rec := httptest.NewRecorder()
	h.User(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Non authentifié"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok"})
	rec = httptest.NewRecorder()
	h.User(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":{"id":7,"name":"C","email":"c@example.com"}}`, rec.Body.String())
}
