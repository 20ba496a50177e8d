// Package analysis extracts receipt fields and an authenticity verdict from a
// receipt photo, using Gemini, Azure Document Intelligence or a local
// simulation.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/ayush/receipt-tracker/backend/internal/config"
)

var (
	ErrNotConfigured      = errors.New("gemini: api key not configured")
	ErrAzureNotConfigured = errors.New("azure: endpoint and key not configured")
	ErrMissingFields      = errors.New("receipt data incomplete: merchant name and date required")
	ErrNoDocument         = errors.New("no receipt detected in image")
	ErrInvalidImage       = errors.New("invalid image: base64 data URI expected")
)

// Analyzer turns a data-URI encoded receipt image into a Result.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, image string) (*Result, error)
}

// Item is one line of a receipt.
type Item struct {
	Name       string   `json:"name"`
	Quantity   *float64 `json:"quantity"`
	UnitPrice  *float64 `json:"unit_price"`
	TotalPrice *float64 `json:"total_price"`
}

// Result is the normalized analyzer output. Raw holds the upstream payload
// for archiving.
type Result struct {
	MerchantName       *string  `json:"merchant_name"`
	TransactionDate    *string  `json:"transaction_date"`
	TotalAmount        *float64 `json:"total_amount"`
	Items              []Item   `json:"items"`
	IsAuthentic        bool     `json:"is_authentic"`
	ConfidenceScore    int      `json:"confidence_score"`
	SuspiciousElements []string `json:"suspicious_elements"`
	Analysis           string   `json:"analysis"`
	Raw                string   `json:"-"`
}

// normalize clamps the score and replaces nil slices so the JSON shape is stable.
func (r *Result) normalize() {
	r.ConfidenceScore = clampScore(r.ConfidenceScore)
	if r.Items == nil {
		r.Items = []Item{}
	}
	if r.SuspiciousElements == nil {
		r.SuspiciousElements = []string{}
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// New builds the analyzer selected by cfg.AnalyzerProvider, wrapped with metrics.
func New(ctx context.Context, cfg *config.Config) (Analyzer, error) {
	client := &http.Client{Timeout: cfg.AnalysisTimeout}

	var (
		a   Analyzer
		err error
	)
	switch cfg.AnalyzerProvider {
	case config.ProviderGemini:
		a, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, client)
	case config.ProviderAzure:
		a, err = NewAzure(cfg.AzureEndpoint, cfg.AzureKey, client)
	case config.ProviderSimulated:
		a = NewSimulated(rand.NewSource(time.Now().UnixNano()), 1500*time.Millisecond)
	default:
		return nil, fmt.Errorf("unknown analyzer provider %q", cfg.AnalyzerProvider)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(a), nil
}
