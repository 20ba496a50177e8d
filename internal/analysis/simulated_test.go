package analysis

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource makes every Float64 draw return roughly roll.
type fixedSource struct{ v int64 }

func (f fixedSource) Int63() int64 { return f.v }
func (f fixedSource) Seed(int64)   {}

func rollSource(roll float64) fixedSource {
	return fixedSource{v: int64(roll * math.MaxInt64)}
}

var largeImage = "data:image/jpeg;base64," + strings.Repeat("A", 12000)

func TestSimulatedOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		roll          float64
		authentic     bool
		minScore      int
		maxScore      int
		suspiciousLen int
	}{
		{"suspect", 0.05, false, 20, 49, 3},
		{"doubtful", 0.20, true, 60, 79, 1},
		{"authentic", 0.90, true, 85, 99, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSimulated(rollSource(tt.roll), 0)
			res, err := s.Analyze(context.Background(), largeImage)
			require.NoError(t, err)

			assert.Equal(t, tt.authentic, res.IsAuthentic)
			assert.GreaterOrEqual(t, res.ConfidenceScore, tt.minScore)
			assert.LessOrEqual(t, res.ConfidenceScore, tt.maxScore)
			assert.Len(t, res.SuspiciousElements, tt.suspiciousLen)
			assert.Nil(t, res.MerchantName)
			assert.Nil(t, res.TransactionDate)
			assert.Empty(t, res.Items)
			assert.NotEmpty(t, res.Analysis)
		})
	}
}

func TestSimulatedImageHeuristics(t *testing.T) {
	s := NewSimulated(rollSource(0.9), 0)

	res, err := s.Analyze(context.Background(), "data:image/png;base64,iVBORw0KGgo=")
	require.NoError(t, err)
	assert.True(t, res.IsAuthentic)
	assert.Contains(t, res.SuspiciousElements, "Image de très petite taille, qualité insuffisante")
	assert.GreaterOrEqual(t, res.ConfidenceScore, 65)
	assert.LessOrEqual(t, res.ConfidenceScore, 79)

	res, err = s.Analyze(context.Background(), strings.Repeat("A", 12000))
	require.NoError(t, err)
	assert.False(t, res.IsAuthentic)
	assert.Contains(t, res.SuspiciousElements, "Format d'image invalide")
}

func TestSimulatedHonoursContext(t *testing.T) {
	s := NewSimulated(rollSource(0.9), time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Analyze(ctx, largeImage)
	assert.ErrorIs(t, err, context.Canceled)
}
