package scoring

import (
	"fmt"
	"math"

	"reclaim/internal/config"
	"reclaim/internal/domain"
)

// AlgorithmVersion tags every candidate for reproducibility; bump it when a
// factor formula or the combination rule changes.
const AlgorithmVersion = "weighted-4factor/1"

const (
	FactorLocation = "location"
	FactorVisual   = "visual"
	FactorText     = "text"
	FactorTemporal = "temporal"
)

// Weights is the per-factor contribution to the overall confidence. The four
// values must sum to 1.0 within the configured tolerance.
type Weights struct {
	Location float64
	Visual   float64
	Text     float64
	Temporal float64
}

func (w Weights) sum() float64 {
	return w.Location + w.Visual + w.Text + w.Temporal
}

// WithoutVisual zeroes the visual weight and renormalizes the rest, for the
// initial pass that runs before enrichment delivers any tags.
func (w Weights) WithoutVisual() (Weights, error) {
	rest := w.Location + w.Text + w.Temporal
	if rest <= 0 {
		return Weights{}, &domain.ConfigurationError{
			Reason: "cannot redistribute visual weight: all other weights are zero",
		}
	}
	return Weights{
		Location: w.Location / rest,
		Text:     w.Text / rest,
		Temporal: w.Temporal / rest,
	}, nil
}

// Engine combines the four factor scores into a single confidence. It is
// pure with respect to its inputs and safe for concurrent use; changing any
// tunable means constructing a new engine.
type Engine struct {
	weights            Weights
	maxRadiusM         float64
	locationDecayM     float64
	temporalDecayHours float64
	visualTagCutoff    float64
}

// NewEngine validates weights against the tolerance and refuses to construct
// on failure; a half-configured engine never exists.
func NewEngine(w Weights, cfg config.Matching) (*Engine, error) {
	// Strictly-within check with a float guard, so a drift equal to the
	// tolerance (0.99 or 1.01 at the default 0.01) is rejected.
	if math.Abs(w.sum()-1.0)+1e-9 >= cfg.WeightTolerance {
		return nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("factor weights sum to %.4f, want 1.0 ± %.2f", w.sum(), cfg.WeightTolerance),
		}
	}
	if w.Location < 0 || w.Visual < 0 || w.Text < 0 || w.Temporal < 0 {
		return nil, &domain.ConfigurationError{Reason: "factor weights must be non-negative"}
	}
	return &Engine{
		weights:            w,
		maxRadiusM:         cfg.MaxRadiusM,
		locationDecayM:     cfg.LocationDecayM,
		temporalDecayHours: cfg.TemporalDecayHours,
		visualTagCutoff:    cfg.VisualTagCutoff,
	}, nil
}

// Score evaluates one opposite-polarity pair and returns the candidate with
// its full reason breakdown, whatever the final confidence ends up being.
// Same-polarity and malformed pairs are rejected before any factor is
// computed.
func (e *Engine) Score(a, b *domain.Item) (domain.MatchCandidate, error) {
	if a == nil || b == nil {
		return domain.MatchCandidate{}, domain.ErrInvalidPairing
	}
	// Exactly one lost and one found; a pair with any other polarity value
	// is malformed, not merely same-sided.
	lostFirst := a.Polarity == domain.PolarityLost && b.Polarity == domain.PolarityFound
	foundFirst := a.Polarity == domain.PolarityFound && b.Polarity == domain.PolarityLost
	if !lostFirst && !foundFirst {
		return domain.MatchCandidate{}, domain.ErrInvalidPairing
	}

	lost, found := a, b
	if foundFirst {
		lost, found = b, a
	}

	reasons := []domain.MatchReason{
		{Factor: FactorLocation, Score: LocationScore(lost, found, e.maxRadiusM, e.locationDecayM), Weight: e.weights.Location},
		{Factor: FactorVisual, Score: VisualScore(lost, found, e.visualTagCutoff), Weight: e.weights.Visual},
		{Factor: FactorText, Score: TextScore(lost, found), Weight: e.weights.Text},
		{Factor: FactorTemporal, Score: TemporalScore(lost, found, e.temporalDecayHours), Weight: e.weights.Temporal},
	}

	var overall float64
	for _, r := range reasons {
		overall += r.Score * r.Weight
	}

	return domain.MatchCandidate{
		LostItemID:       lost.ID,
		FoundItemID:      found.ID,
		Confidence:       overall,
		Reasons:          reasons,
		AlgorithmVersion: AlgorithmVersion,
	}, nil
}
