package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const azureSucceeded = `{
  "status": "succeeded",
  "analyzeResult": {
    "documents": [{
      "docType": "receipt.retailMeal",
      "confidence": 0.93,
      "fields": {
        "MerchantName": {"type": "string", "valueString": "Monoprix", "content": "MONOPRIX"},
        "TransactionDate": {"type": "date", "valueDate": "2024-03-02", "content": "02/03/2024"},
        "Total": {"type": "currency", "valueCurrency": {"amount": 23.4}, "content": "23,40"},
        "Items": {"type": "array", "valueArray": [
          {"type": "object", "valueObject": {
            "Description": {"type": "string", "valueString": "Café"},
            "Quantity": {"type": "number", "valueNumber": 2},
            "Price": {"type": "currency", "valueCurrency": {"amount": 1.2}},
            "TotalPrice": {"type": "currency", "valueCurrency": {"amount": 2.4}}
          }}
        ]}
      }
    }]
  }
}`

func azureServer(t *testing.T, submitStatus int, final string) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	var srv *httptest.Server
	srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/documentModels/prebuilt-receipt:analyze"):
			assert.NotEmpty(t, r.URL.Query().Get("api-version"))
			var body struct {
				Base64Source string `json:"base64Source"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "/9j/4AAQSkZJRg==", body.Base64Source)
			if submitStatus != http.StatusAccepted {
				w.WriteHeader(submitStatus)
				io.WriteString(w, `{"error":{"code":"Denied","message":"denied"}}`)
				return
			}
			w.Header().Set("Operation-Location", srv.URL+"/operations/1")
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/operations/1":
			if atomic.AddInt32(&polls, 1) == 1 {
				io.WriteString(w, `{"status":"running"}`)
				return
			}
			io.WriteString(w, final)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newTestAzure(t *testing.T, srv *httptest.Server) *AzureAnalyzer {
	t.Helper()
	a, err := newAzure(srv.URL+"/", "secret", azcore.ClientOptions{
		Transport: srv.Client(),
		Retry:     policy.RetryOptions{MaxRetries: -1},
	})
	require.NoError(t, err)
	a.pollInterval = time.Millisecond
	return a
}

func TestAzureAnalyze(t *testing.T) {
	srv, polls := azureServer(t, http.StatusAccepted, azureSucceeded)

	res, err := newTestAzure(t, srv).Analyze(context.Background(), testImage)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(polls))
	assert.Equal(t, "Monoprix", *res.MerchantName)
	assert.Equal(t, "2024-03-02", *res.TransactionDate)
	assert.InDelta(t, 23.4, *res.TotalAmount, 0.001)
	assert.True(t, res.IsAuthentic)
	assert.Equal(t, 93, res.ConfidenceScore)
	assert.Empty(t, res.SuspiciousElements)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Café", res.Items[0].Name)
	assert.InDelta(t, 2.4, *res.Items[0].TotalPrice, 0.001)
	assert.Contains(t, res.Raw, "Monoprix")
}

func TestAzureLowConfidence(t *testing.T) {
	final := `{"status":"succeeded","analyzeResult":{"documents":[{"confidence":0.4,"fields":{}}]}}`
	srv, _ := azureServer(t, http.StatusAccepted, final)

	res, err := newTestAzure(t, srv).Analyze(context.Background(), testImage)
	require.NoError(t, err)
	assert.False(t, res.IsAuthentic)
	assert.Equal(t, 40, res.ConfidenceScore)
	assert.Nil(t, res.MerchantName)
	assert.Contains(t, res.SuspiciousElements, "Nom du commerçant introuvable")
	assert.Contains(t, res.SuspiciousElements, "Confiance d'extraction faible")
}

func TestAzureNoDocument(t *testing.T) {
	srv, _ := azureServer(t, http.StatusAccepted, `{"status":"succeeded","analyzeResult":{"documents":[]}}`)
	_, err := newTestAzure(t, srv).Analyze(context.Background(), testImage)
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestAzureFailedOperation(t *testing.T) {
	srv, _ := azureServer(t, http.StatusAccepted, `{"status":"failed","error":{"code":"InvalidImage","message":"bad"}}`)
	_, err := newTestAzure(t, srv).Analyze(context.Background(), testImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidImage")
}

func TestAzureStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAzureUnauthorized},
		{http.StatusNotFound, ErrAzureNotFound},
		{http.StatusTooManyRequests, ErrAzureRateLimited},
	}
	for _, tt := range tests {
		srv, _ := azureServer(t, tt.status, "")
		_, err := newTestAzure(t, srv).Analyze(context.Background(), testImage)
		assert.ErrorIs(t, err, tt.want)
	}
}

func TestAzureRequiresConfiguration(t *testing.T) {
	a, err := NewAzure("", "", http.DefaultClient)
	require.NoError(t, err)
	_, err = a.Analyze(context.Background(), testImage)
	assert.ErrorIs(t, err, ErrAzureNotConfigured)
}
