package analysis

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

const minImageLength = 10000

// SimulatedAnalyzer produces a randomized authenticity verdict from simple
// image heuristics. It extracts no receipt fields.
type SimulatedAnalyzer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	delay time.Duration
}

func NewSimulated(src rand.Source, delay time.Duration) *SimulatedAnalyzer {
	return &SimulatedAnalyzer{rng: rand.New(src), delay: delay}
}

func (s *SimulatedAnalyzer) Name() string { return "simulated" }

func (s *SimulatedAnalyzer) Analyze(ctx context.Context, image string) (*Result, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	res := &Result{IsAuthentic: true}
	penalty := 0
	if len(image) < minImageLength {
		res.SuspiciousElements = append(res.SuspiciousElements, "Image de très petite taille, qualité insuffisante")
		penalty += 20
	}
	if !strings.HasPrefix(image, "data:image/") {
		res.SuspiciousElements = append(res.SuspiciousElements, "Format d'image invalide")
		penalty += 30
		res.IsAuthentic = false
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	var base int
	switch {
	case roll < 0.10:
		base = 20 + s.rng.Intn(30)
	case roll < 0.25:
		base = 60 + s.rng.Intn(20)
	default:
		base = 85 + s.rng.Intn(15)
	}
	s.mu.Unlock()

	res.ConfidenceScore = clampScore(base - penalty)

	switch {
	case roll < 0.10:
		res.IsAuthentic = false
		res.SuspiciousElements = append(res.SuspiciousElements,
			"Qualité d'impression suspecte",
			"Absence d'éléments de sécurité standards",
			"Format non conforme aux standards",
		)
		res.Analysis = fmt.Sprintf("TICKET SUSPECT - Plusieurs anomalies détectées. Le document ne présente pas les caractéristiques standard d'un ticket de caisse authentique. Confiance: %d%%.", res.ConfidenceScore)
	case roll < 0.25:
		res.SuspiciousElements = append(res.SuspiciousElements, "Qualité d'image moyenne, vérification difficile")
		res.Analysis = fmt.Sprintf("VÉRIFICATION RECOMMANDÉE - La qualité de l'image rend la vérification difficile. Une inspection manuelle est recommandée. Confiance: %d%%.", res.ConfidenceScore)
	default:
		res.Analysis = fmt.Sprintf("TICKET AUTHENTIQUE - Format standard et qualité d'impression conforme. Aucune anomalie majeure détectée. Confiance: %d%%.", res.ConfidenceScore)
	}

	res.normalize()
	return res, nil
}
