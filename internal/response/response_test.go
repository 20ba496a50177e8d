package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorDetails(rec, http.StatusInternalServerError, "Une erreur est survenue", errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Une erreur est survenue","details":"boom"}`, rec.Body.String())
}

func TestErrorOmitsDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, "Image requise")
	assert.JSONEq(t, `{"error":"Image requise"}`, rec.Body.String())
}

func TestDecode(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, Decode(httptest.NewRecorder(), req, &v))
	assert.Equal(t, "a", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"} {"name":"b"}`))
	assert.Error(t, Decode(httptest.NewRecorder(), req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	assert.Error(t, Decode(httptest.NewRecorder(), req, &v))
}

func TestDecodeLimit(t *testing.T) {
	var v struct {
		Image string `json:"image"`
	}
	body := `{"image":"` + strings.Repeat("a", 64) + `"}`

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	require.NoError(t, DecodeLimit(httptest.NewRecorder(), req, &v, 1024))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := DecodeLimit(httptest.NewRecorder(), req, &v, 16)
	require.Error(t, err)
	assert.True(t, TooLarge(err))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	assert.False(t, TooLarge(Decode(httptest.NewRecorder(), req, &v)))
}
