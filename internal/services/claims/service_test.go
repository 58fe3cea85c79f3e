package claims

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
	"reclaim/internal/services/lifecycle"
)

type fixture struct {
	store  *memory.Store
	events *memory.EventRecorder
	svc    *Service
	lc     *lifecycle.Service
	clock  *clockwork.FakeClock
}

func testConfig() config.Matching {
	return config.Matching{
		WeightTolerance:     0.01,
		LocationDecayM:      500,
		TemporalDecayHours:  24,
		VisualTagCutoff:     0.8,
		MaxRadiusM:          50000,
		CandidateLimit:      100,
		AutoNotifyThreshold: 0.85,
		SurfaceThreshold:    0.70,
		StoreThreshold:      0.50,
		MatchTTL:            7 * 24 * time.Hour,
		ClaimTTL:            24 * time.Hour,
		MaxVerifyAttempts:   3,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	events := memory.NewEventRecorder()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	lc := lifecycle.New(store.Matches(), store.Items(), events, testConfig(), clock)
	svc := New(store.Claims(), store.Matches(), lc, events, testConfig(), clock)
	return &fixture{store: store, events: events, svc: svc, lc: lc, clock: clock}
}

// seedConfirmedMatch stores items and a match already confirmed by the lost
// item's owner.
func (f *fixture) seedConfirmedMatch(t *testing.T, id string) domain.Match {
	t.Helper()
	ctx := context.Background()
	lost := domain.Item{ID: id + "-lost", Polarity: domain.PolarityLost, Status: domain.ItemActive, OwnerRef: "owner-lost"}
	found := domain.Item{ID: id + "-found", Polarity: domain.PolarityFound, Status: domain.ItemActive, OwnerRef: "owner-found"}
	require.NoError(t, f.store.Items().Upsert(ctx, lost))
	require.NoError(t, f.store.Items().Upsert(ctx, found))
	m := domain.Match{
		ID:          id,
		LostItemID:  lost.ID,
		FoundItemID: found.ID,
		Confidence:  0.9,
		Status:      domain.MatchPending,
		Version:     1,
		CreatedAt:   f.clock.Now(),
		ExpiresAt:   f.clock.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, f.store.Matches().Create(ctx, m))
	confirmed, err := f.lc.Confirm(ctx, m.ID, "owner-lost")
	require.NoError(t, err)
	return confirmed
}

func TestInitiateClaim(t *testing.T) {
	f := newFixture(t)
	m := f.seedConfirmedMatch(t, "m1")

	c, err := f.svc.Initiate(context.Background(), m.ID, "owner-lost", "email", "claimant@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimPendingVerification, c.Status)
	assert.Len(t, c.VerificationCode, codeDigits)
	assert.Equal(t, f.clock.Now().Add(testConfig().ClaimTTL), c.ExpiresAt)

	require.Len(t, f.events.Named("claim.initiated"), 1)

	// Match status is untouched until verification completes.
	current, err := f.lc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchConfirmed, current.Status)
}

func TestInitiateRequiresConfirmedMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := domain.Match{
		ID: "m-pending", LostItemID: "x", FoundItemID: "y",
		Status: domain.MatchPending, Version: 1,
		CreatedAt: f.clock.Now(), ExpiresAt: f.clock.Now().Add(time.Hour),
	}
	require.NoError(t, f.store.Matches().Create(ctx, m))

	_, err := f.svc.Initiate(ctx, m.ID, "someone", "email", "a@b.c")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestInitiateRejectsDuplicateClaim(t *testing.T) {
	f := newFixture(t)
	m := f.seedConfirmedMatch(t, "m1")
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, m.ID, "owner-lost", "email", "a@b.c")
	require.NoError(t, err)

	_, err = f.svc.Initiate(ctx, m.ID, "owner-found", "sms", "+15550100")
	assert.ErrorIs(t, err, domain.ErrDuplicateClaim)
}

func TestInitiateAfterClaimWindowLapses(t *testing.T) {
	f := newFixture(t)
	m := f.seedConfirmedMatch(t, "m1")
	ctx := context.Background()

	first, err := f.svc.Initiate(ctx, m.ID, "owner-lost", "email", "a@b.c")
	require.NoError(t, err)

	// The old claim has lapsed but no sweep has run; a fresh claim must not
	// be refused as a duplicate.
	f.clock.Advance(testConfig().ClaimTTL + time.Minute)
	second, err := f.svc.Initiate(ctx, m.ID, "owner-found", "sms", "+15550100")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.ClaimPendingVerification, second.Status)

	stale, err := f.store.Claims().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimExpired, stale.Status)

	require.Len(t, f.events.Named("claim.expired"), 1)
	require.Len(t, f.events.Named("claim.initiated"), 2)
}

func TestVerifyWithCorrectCode(t *testing.T) {
	f := newFixture(t)
	m := f.seedConfirmedMatch(t, "m1")
	ctx := context.Background()

	c, err := f.svc.Initiate(ctx, m.ID, "owner-lost", "email", "a@b.c")
	require.NoError(t, err)

	verified, err := f.svc.Verify(ctx, c.ID, c.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimVerified, verified.Status)

	current, err := f.lc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchClaimed, current.Status)
	require.Len(t, f.events.Named("claim.verified"), 1)
}

func TestVerifyWithWrongCodeLeavesStateAlone(t *testing.T) {
	f := newFixture(t)
	m := f.seedConfirmedMatch(t, "m1")
	ctx := context.Background()

	c, err := f.svc.Initiate(ctx, m.ID, "owner-lost", "email", "a@b.c")
	require.NoError(t, err)

	wrong := "000000"
	if c.VerificationCode == wrong {
		wrong = "000001"
	}
	_, err = f.svc.Verify(ctx, c.ID, wrong)
	require.ErrorIs(t, err, domain.ErrClaimVerificationFailed)
	assert.Contains(t, err.Error(), "2 attempt(s) remaining")

	current, err := f.lc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchConfirmed, current.Status)

	stored, err := f.store.Claims().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimPendingVerification, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestVerifyFailsClosedAfterAttemptLimit(t *testing.T) {
	f := newFixture(t)
	m := f.seedConfirmedMatch(t, "m1")
	ctx := context.Background()

	c, err := f.svc.Initiate(ctx, m.ID, "owner-lost", "email", "a@b.c")
	require.NoError(t, err)

	wrong := "000000"
	if c.VerificationCode == wrong {
		wrong = "000001"
	}
	for i := 0; i < testConfig().MaxVerifyAttempts; i++ {
		_, err = f.svc.Verify(ctx, c.ID, wrong)
		require.ErrorIs(t, err, domain.ErrClaimVerificationFailed)
	}

	// Even the correct code is refused once locked out.
	_, err = f.svc.Verify(ctx, c.ID, c.VerificationCode)
	require.ErrorIs(t, err, domain.ErrClaimVerificationFailed)

	current, err := f.lc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchConfirmed, current.Status)
}

func TestVerifyRejectsExpiredClaim(t *testing.T) {
	f := newFixture(t)
	m := f.seedConfirmedMatch(t, "m1")
	ctx := context.Background()

	c, err := f.svc.Initiate(ctx, m.ID, "owner-lost", "email", "a@b.c")
	require.NoError(t, err)

	f.clock.Advance(testConfig().ClaimTTL + time.Minute)
	_, err = f.svc.Verify(ctx, c.ID, c.VerificationCode)
	assert.ErrorIs(t, err, domain.ErrClaimVerificationFailed)
}

func TestSweepExpiresClaims(t *testing.T) {
	f := newFixture(t)
	m := f.seedConfirmedMatch(t, "m1")
	ctx := context.Background()

	c, err := f.svc.Initiate(ctx, m.ID, "owner-lost", "email", "a@b.c")
	require.NoError(t, err)

	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(testConfig().ClaimTTL + time.Minute)
	n, err = f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.store.Claims().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimExpired, stored.Status)
	require.Len(t, f.events.Named("claim.expired"), 1)
}

func TestVerificationCodesAreFreshPerClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	codes := map[string]bool{}
	for i := 0; i < 5; i++ {
		m := f.seedConfirmedMatch(t, "m"+string(rune('a'+i)))
		c, err := f.svc.Initiate(ctx, m.ID, "owner-lost", "email", "a@b.c")
		require.NoError(t, err)
		codes[c.VerificationCode] = true
		require.Len(t, c.VerificationCode, codeDigits)
	}
	// Five draws from a million-value space colliding would point at a
	// broken generator.
	assert.GreaterOrEqual(t, len(codes), 4)
}
