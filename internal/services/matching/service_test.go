package matching

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reclaim/internal/adapters/memory"
	"reclaim/internal/config"
	"reclaim/internal/domain"
	"reclaim/internal/scoring"
)

func testConfig() config.Matching {
	return config.Matching{
		LocationWeight:      0.30,
		VisualWeight:        0.30,
		TextWeight:          0.25,
		TemporalWeight:      0.15,
		WeightTolerance:     0.01,
		LocationDecayM:      500,
		TemporalDecayHours:  24,
		VisualTagCutoff:     0.8,
		MaxRadiusM:          50000,
		CandidateWindow:     7 * 24 * time.Hour,
		CandidateLimit:      100,
		AutoNotifyThreshold: 0.85,
		SurfaceThreshold:    0.70,
		StoreThreshold:      0.50,
		MatchTTL:            7 * 24 * time.Hour,
		ClaimTTL:            24 * time.Hour,
		MaxVerifyAttempts:   3,
	}
}

type fixture struct {
	store  *memory.Store
	events *memory.EventRecorder
	svc    *Service
	clock  *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	events := memory.NewEventRecorder()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, err := New(store.Items(), store.Matches(), events, testConfig(), clock)
	require.NoError(t, err)
	return &fixture{store: store, events: events, svc: svc, clock: clock}
}

func (f *fixture) addItem(t *testing.T, item domain.Item) {
	t.Helper()
	if item.Status == "" {
		item.Status = domain.ItemActive
	}
	require.NoError(t, f.store.Items().Upsert(context.Background(), item))
}

func walletPair() (domain.Item, domain.Item) {
	reported := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	lost := domain.Item{
		ID: "item-l", Polarity: domain.PolarityLost,
		Lat: 40.7128, Lng: -74.0060,
		ReportedAt:  reported,
		Title:       "Black leather wallet",
		Description: "lost it near the subway entrance on 23rd street",
		OwnerRef:    "user-1",
	}
	found := domain.Item{
		ID: "item-f", Polarity: domain.PolarityFound,
		Lat: 40.7140, Lng: -74.0050,
		ReportedAt:  reported.Add(2*time.Hour + 30*time.Minute),
		Title:       "Black leather wallet",
		Description: "found a wallet near the subway entrance on 23rd street",
		OwnerRef:    "user-2",
	}
	return lost, found
}

func TestInitialPassCreatesPendingMatch(t *testing.T) {
	f := newFixture(t)
	lost, found := walletPair()
	f.addItem(t, lost)
	f.addItem(t, found)

	require.NoError(t, f.svc.InitialPass(context.Background(), found.ID))

	m, ok, err := f.store.Matches().GetByPair(context.Background(), lost.ID, found.ID)
	require.NoError(t, err)
	require.True(t, ok, "initial pass should create a match for the pair")

	assert.Equal(t, domain.MatchPending, m.Status)
	assert.Equal(t, scoring.AlgorithmVersion, m.AlgorithmVersion)
	assert.Equal(t, f.clock.Now().Add(testConfig().MatchTTL), m.ExpiresAt)

	byFactor := map[string]domain.MatchReason{}
	for _, r := range m.Reasons {
		byFactor[r.Factor] = r
	}
	assert.Greater(t, byFactor[scoring.FactorLocation].Score, 0.0)
	assert.Greater(t, byFactor[scoring.FactorTemporal].Score, 0.0)
	assert.Equal(t, 0.0, byFactor[scoring.FactorVisual].Score)
	assert.Equal(t, 0.0, byFactor[scoring.FactorVisual].Weight)
}

func TestPreFilterExcludesDistantPair(t *testing.T) {
	f := newFixture(t)
	lost, found := walletPair()
	// ~100km north; never reaches the engine with a 50km radius.
	found.Lat += 0.9
	f.addItem(t, lost)
	f.addItem(t, found)

	require.NoError(t, f.svc.InitialPass(context.Background(), found.ID))

	_, ok, err := f.store.Matches().GetByPair(context.Background(), lost.ID, found.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLowConfidenceCandidateDiscarded(t *testing.T) {
	f := newFixture(t)
	lost, found := walletPair()
	// In range for the pre-filter but weak on every signal: ~20km away,
	// five days apart, unrelated text.
	found.Lat += 0.18
	found.ReportedAt = lost.ReportedAt.Add(5 * 24 * time.Hour)
	found.Title = "Blue umbrella"
	found.Description = "left behind at the bus stop"
	f.addItem(t, lost)
	f.addItem(t, found)

	require.NoError(t, f.svc.InitialPass(context.Background(), found.ID))

	_, ok, err := f.store.Matches().GetByPair(context.Background(), lost.ID, found.ID)
	require.NoError(t, err)
	assert.False(t, ok, "below store threshold must never be persisted")
}

func TestEnhancedPassUpgradesInPlaceAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	lost, found := walletPair()
	f.addItem(t, lost)
	f.addItem(t, found)
	ctx := context.Background()

	require.NoError(t, f.svc.InitialPass(ctx, found.ID))
	initial, ok, err := f.store.Matches().GetByPair(ctx, lost.ID, found.ID)
	require.NoError(t, err)
	require.True(t, ok)

	tags := []domain.VisualTag{
		{Label: "wallet", Confidence: 0.95},
		{Label: "leather", Confidence: 0.9},
	}
	require.NoError(t, f.store.Items().ApplyVisualTags(ctx, lost.ID, tags))
	require.NoError(t, f.store.Items().ApplyVisualTags(ctx, found.ID, tags))

	require.NoError(t, f.svc.EnhancedPass(ctx, found.ID))
	upgraded, ok, err := f.store.Matches().GetByPair(ctx, lost.ID, found.ID)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, initial.ID, upgraded.ID, "match identity preserved across passes")
	assert.Equal(t, domain.MatchPending, upgraded.Status)

	byFactor := map[string]domain.MatchReason{}
	for _, r := range upgraded.Reasons {
		byFactor[r.Factor] = r
	}
	assert.Equal(t, 1.0, byFactor[scoring.FactorVisual].Score)
	assert.Equal(t, 0.30, byFactor[scoring.FactorVisual].Weight)

	// Re-applying the same enriched input must not change anything.
	require.NoError(t, f.svc.EnhancedPass(ctx, found.ID))
	again, _, err := f.store.Matches().GetByPair(ctx, lost.ID, found.ID)
	require.NoError(t, err)
	assert.Equal(t, upgraded.Confidence, again.Confidence)
	assert.Equal(t, upgraded.Reasons, again.Reasons)
	assert.Equal(t, upgraded.ID, again.ID)
}

func TestRejectedPairStaysSuppressed(t *testing.T) {
	f := newFixture(t)
	lost, found := walletPair()
	f.addItem(t, lost)
	f.addItem(t, found)
	ctx := context.Background()

	require.NoError(t, f.svc.InitialPass(ctx, found.ID))
	m, ok, err := f.store.Matches().GetByPair(ctx, lost.ID, found.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.store.Matches().Reject(ctx, m.ID, "user-1", "not mine", f.clock.Now())
	require.NoError(t, err)

	tags := []domain.VisualTag{{Label: "wallet", Confidence: 0.95}}
	require.NoError(t, f.store.Items().ApplyVisualTags(ctx, lost.ID, tags))
	require.NoError(t, f.store.Items().ApplyVisualTags(ctx, found.ID, tags))

	require.NoError(t, f.svc.EnhancedPass(ctx, found.ID))
	after, _, err := f.store.Matches().GetByPair(ctx, lost.ID, found.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchRejected, after.Status)
	assert.Equal(t, m.Confidence, after.Confidence, "rejected match must not be re-scored")
}

func TestHighConfidenceMatchEmitsDetection(t *testing.T) {
	f := newFixture(t)
	lost, found := walletPair()
	// Same spot, same hour: location and temporal near 1.0, identical text.
	found.Lat = lost.Lat
	found.Lng = lost.Lng
	found.ReportedAt = lost.ReportedAt.Add(30 * time.Minute)
	found.Description = lost.Description
	f.addItem(t, lost)
	f.addItem(t, found)

	require.NoError(t, f.svc.InitialPass(context.Background(), found.ID))

	m, ok, err := f.store.Matches().GetByPair(context.Background(), lost.ID, found.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.GreaterOrEqual(t, m.Confidence, testConfig().AutoNotifyThreshold)

	detected := f.events.Named("match.detected")
	require.Len(t, detected, 1)
	assert.Equal(t, m.ID, detected[0].MatchID)
}

func TestInactiveItemSkipsPass(t *testing.T) {
	f := newFixture(t)
	lost, found := walletPair()
	found.Status = domain.ItemResolved
	f.addItem(t, lost)
	f.addItem(t, found)

	require.NoError(t, f.svc.InitialPass(context.Background(), found.ID))

	_, ok, err := f.store.Matches().GetByPair(context.Background(), lost.ID, found.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRejectsBadWeights(t *testing.T) {
	cfg := testConfig()
	cfg.TemporalWeight = 0.30 // sum 1.15
	store := memory.NewStore()
	_, err := New(store.Items(), store.Matches(), memory.NewEventRecorder(), cfg, clockwork.NewRealClock())
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
