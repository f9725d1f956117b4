package domain

import "time"

// TrustAction is the business reason for a trust ledger entry. Each action
// carries a canonical point delta; the recorded delta may be smaller when
// the score hits a bound.
type TrustAction string

const (
	ActionEmailVerified    TrustAction = "email_verified"
	ActionProfileCompleted TrustAction = "profile_completed"
	ActionItemReturned     TrustAction = "item_returned"
	ActionClaimApproved    TrustAction = "claim_approved"
	ActionClaimRejected    TrustAction = "claim_rejected"
	ActionSpamItemDetected TrustAction = "spam_item_detected"
	ActionAbuseConfirmed   TrustAction = "abuse_confirmed"
	ActionAdminOverride    TrustAction = "admin_override"
)

// Canonical point deltas per action. AdminOverride has no delta; it sets
// the score directly.
var trustDeltas = map[TrustAction]int{
	ActionEmailVerified:    5,
	ActionProfileCompleted: 5,
	ActionItemReturned:     15,
	ActionClaimApproved:    10,
	ActionClaimRejected:    -2,
	ActionSpamItemDetected: -15,
	ActionAbuseConfirmed:   -20,
}

// Delta returns the canonical point delta for the action. Unknown actions
// and AdminOverride return 0.
func (a TrustAction) Delta() int {
	return trustDeltas[a]
}

// Known reports whether the action is part of the canonical table.
func (a TrustAction) Known() bool {
	if a == ActionAdminOverride {
		return true
	}
	_, ok := trustDeltas[a]
	return ok
}

// Trust score bounds and the score assigned to a fresh profile.
const (
	MinTrustScore     = 0
	MaxTrustScore     = 100
	InitialTrustScore = 50
)

// MinOverrideReasonLen is the shortest reason an admin override accepts.
const MinOverrideReasonLen = 10

// ClampScore bounds a score to [MinTrustScore, MaxTrustScore].
func ClampScore(score int) int {
	if score < MinTrustScore {
		return MinTrustScore
	}
	if score > MaxTrustScore {
		return MaxTrustScore
	}
	return score
}

// NextScore computes the score a ledger entry moves a profile to. An
// admin override sets the score directly after range-checking it; every
// other action applies its canonical delta and clamps.
func NextScore(spec TrustEventSpec, previous int) (int, error) {
	if spec.Action == ActionAdminOverride {
		if spec.OverrideScore < MinTrustScore || spec.OverrideScore > MaxTrustScore {
			return 0, InvalidInputError{Field: "newScore", Reason: "score out of range"}
		}
		return spec.OverrideScore, nil
	}
	return ClampScore(previous + spec.Action.Delta()), nil
}

// Tier names, lowest to highest.
const (
	TierRisky    = "Risky User"
	TierFair     = "Fair Trust"
	TierGood     = "Good Trust"
	TierHigh     = "High Trust"
	TierVerified = "Verified Trusted Member"
)

// TierForScore maps a score to its discrete trust bracket.
func TierForScore(score int) string {
	switch {
	case score <= 30:
		return TierRisky
	case score <= 50:
		return TierFair
	case score <= 70:
		return TierGood
	case score <= 85:
		return TierHigh
	default:
		return TierVerified
	}
}

// Profile is a user's trust standing plus lifetime counters. Score and tier
// are derived exclusively through ledger application, never set directly.
type Profile struct {
	UserID          string    `json:"userID"`
	DisplayName     string    `json:"displayName"`
	TrustScore      int       `json:"trustScore"`
	TrustTier       string    `json:"trustTier"`
	ItemsFound      int       `json:"itemsFound"`
	ItemsReturned   int       `json:"itemsReturned"`
	ClaimsMade      int       `json:"claimsMade"`
	ClaimsSucceeded int       `json:"claimsSucceeded"`
	ClaimsHonored   int       `json:"claimsHonored"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TrustLogEntry is one row of the append-only trust ledger. PointsChange is
// the effective applied delta after clamping, so the running sum of
// PointsChange always equals NewScore minus the initial score.
type TrustLogEntry struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userID"`
	Action        TrustAction `json:"action"`
	PointsChange  int         `json:"pointsChange"`
	PreviousScore int         `json:"previousScore"`
	NewScore      int         `json:"newScore"`
	Reference     string      `json:"reference,omitempty"`
	ActorID       string      `json:"actorID,omitempty"`
	Reason        string      `json:"reason"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// TrustEventSpec describes a ledger entry to be applied. OverrideScore is
// consulted only for AdminOverride.
type TrustEventSpec struct {
	UserID        string
	Action        TrustAction
	Reference     string
	Reason        string
	ActorID       string
	OverrideScore int
}

// TrustApplication is the outcome of applying one trust event.
type TrustApplication struct {
	PreviousScore int
	NewScore      int
	NewTier       string
	Entry         TrustLogEntry
	// Duplicate is set when the (user, action, reference) triple was
	// already applied; the stored entry is returned unchanged.
	Duplicate bool
}
