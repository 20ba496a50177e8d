package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImage = "data:image/jpeg;base64,/9j/4AAQSkZJRg=="

// geminiRequest is the part of the generateContent body the tests inspect.
type geminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MimeType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

func geminiServer(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Equal(t, geminiPrompt, req.Contents[0].Parts[0].Text)
		require.NotNil(t, req.Contents[0].Parts[1].InlineData)
		assert.Equal(t, "image/jpeg", req.Contents[0].Parts[1].InlineData.MimeType)
		assert.Equal(t, "/9j/4AAQSkZJRg==", req.Contents[0].Parts[1].InlineData.Data)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.InDelta(t, 0.1, req.GenerationConfig.Temperature, 0.001)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			io.WriteString(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGemini(t *testing.T, srv *httptest.Server) *GeminiAnalyzer {
	t.Helper()
	g, err := NewGemini(context.Background(), "test-key", "gemini-1.5-flash", srv.URL, srv.Client())
	require.NoError(t, err)
	return g
}

func TestGeminiAnalyze(t *testing.T) {
	answer := `{
		"merchant_name": "Carrefour",
		"transaction_date": "2024-01-15",
		"total_amount": 45.67,
		"items": [{"name": "Pain", "quantity": 2, "unit_price": 1.5, "total_price": 3.0}],
		"is_authentic": true,
		"confidence_score": 95,
		"suspicious_elements": [],
		"analysis": "Le ticket semble authentique."
	}`
	srv := geminiServer(t, http.StatusOK, answer)

	g := newTestGemini(t, srv)
	res, err := g.Analyze(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, "Carrefour", *res.MerchantName)
	assert.Equal(t, "2024-01-15", *res.TransactionDate)
	assert.InDelta(t, 45.67, *res.TotalAmount, 0.001)
	assert.True(t, res.IsAuthentic)
	assert.Equal(t, 95, res.ConfidenceScore)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Pain", res.Items[0].Name)
	assert.Equal(t, "gemini", g.Name())
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	g, err := NewGemini(context.Background(), "", "gemini-1.5-flash", "http://127.0.0.1:1", http.DefaultClient)
	require.NoError(t, err)
	_, err = g.Analyze(context.Background(), testImage)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGeminiUpstreamError(t *testing.T) {
	srv := geminiServer(t, http.StatusForbidden, "")

	_, err := newTestGemini(t, srv).Analyze(context.Background(), testImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGeminiMissingFields(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, `{"merchant_name": null, "transaction_date": "2024-01-15"}`)
	_, err := newTestGemini(t, srv).Analyze(context.Background(), testImage)
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestGeminiRejectsInvalidImage(t *testing.T) {
	g, err := NewGemini(context.Background(), "test-key", "gemini-1.5-flash", "http://127.0.0.1:1", http.DefaultClient)
	require.NoError(t, err)
	_, err = g.Analyze(context.Background(), "not-an-image")
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestGeminiEmptyAnswer(t *testing.T) {
	srv := geminiServer(t, http.StatusOK, "")

	_, err := newTestGemini(t, srv).Analyze(context.Background(), testImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty answer")
}
