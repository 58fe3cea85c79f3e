package domain

import "time"

// Core domain models. Items are owned by the external posts service and
// consumed read-only here; matches and claims are owned by this service.

type Polarity string

const (
	PolarityLost  Polarity = "lost"
	PolarityFound Polarity = "found"
)

// Counter returns the opposite polarity.
func (p Polarity) Counter() Polarity {
	if p == PolarityLost {
		return PolarityFound
	}
	return PolarityLost
}

type ItemStatus string

const (
	ItemActive   ItemStatus = "active"
	ItemResolved ItemStatus = "resolved"
	ItemExpired  ItemStatus = "expired"
	ItemDeleted  ItemStatus = "deleted"
)

// VisualTag is a single label produced by the external vision pipeline.
// Confidence is in [0,1].
type VisualTag struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type Item struct {
	ID            string
	Category      string
	Polarity      Polarity
	Status        ItemStatus
	Lat           float64
	Lng           float64
	SearchRadiusM *float64
	ReportedAt    time.Time
	Title         string
	Description   string
	VisualTags    []VisualTag
	OwnerRef      string
}

// MatchReason is one factor's contribution to an overall confidence score.
type MatchReason struct {
	Factor string  `json:"factor"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// MatchCandidate is a scored pairing of two opposite-polarity items. It is
// ephemeral: candidates below the store threshold are never persisted.
type MatchCandidate struct {
	LostItemID       string
	FoundItemID      string
	Confidence       float64
	Reasons          []MatchReason
	AlgorithmVersion string
}

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchConfirmed MatchStatus = "confirmed"
	MatchRejected  MatchStatus = "rejected"
	MatchClaimed   MatchStatus = "claimed"
	MatchExpired   MatchStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s MatchStatus) Terminal() bool {
	return s == MatchRejected || s == MatchExpired || s == MatchClaimed
}

// Match is the persisted aggregate for a candidate that cleared the store
// threshold. All mutation goes through the lifecycle service; Version backs
// the optimistic check-and-set on transitions.
type Match struct {
	ID               string
	LostItemID       string
	FoundItemID      string
	Confidence       float64
	Reasons          []MatchReason
	AlgorithmVersion string
	Status           MatchStatus
	Version          int64
	CreatedAt        time.Time
	ExpiresAt        time.Time
	ConfirmedAt      *time.Time
	ConfirmedBy      *string
	RejectedAt       *time.Time
	RejectedBy       *string
	RejectionReason  *string
}

type ClaimStatus string

const (
	ClaimPendingVerification ClaimStatus = "pending_verification"
	ClaimVerified            ClaimStatus = "verified"
	ClaimExpired             ClaimStatus = "expired"
)

// Claim is a time-boxed, code-verified possession request on a confirmed
// match. ContactMethod/ContactValue drive the notification collaborator
// directly and are never serialized into published events.
type Claim struct {
	ID               string
	MatchID          string
	ClaimantRef      string
	ContactMethod    string
	ContactValue     string
	VerificationCode string
	Attempts         int
	Status           ClaimStatus
	CreatedAt        time.Time
	ExpiresAt        time.Time
	VerifiedAt       *time.Time
}

// Active reports whether the claim still blocks its parent match at now.
func (c Claim) Active(now time.Time) bool {
	return c.Status == ClaimPendingVerification && now.Before(c.ExpiresAt)
}
