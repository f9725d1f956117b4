package domain

import "time"

// Claim is a claimant's assertion of ownership over an item. Terminal claims
// are immutable except for the chat-reference backfill on approval.
type Claim struct {
	ID              string      `json:"id"`
	ItemID          string      `json:"itemID"`
	ClaimantID      string      `json:"claimantID"`
	Status          ClaimStatus `json:"status"`
	ProofText       string      `json:"proofText"`
	ProofImageRef   string      `json:"proofImageRef,omitempty"`
	ProofImageURL   string      `json:"proofImageURL,omitempty"`
	RejectionReason string      `json:"rejectionReason,omitempty"`
	DecidedAt       *time.Time  `json:"decidedAt,omitempty"`
	ChatID          *string     `json:"chatID,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Terminal reports whether the claim reached a final status.
func (c Claim) Terminal() bool {
	return c.Status != ClaimPending
}

// ApprovalCascade is the ordered set of sub-effects a single approval
// triggers. It is computed as a pure function of the loaded state so the
// rules are testable without storage, then executed atomically by the
// repository. Every sub-effect is idempotent: re-running the cascade after
// a partial failure converges on the same end state.
type ApprovalCascade struct {
	ItemID     string
	ClaimID    string
	FinderID   string
	ClaimantID string

	// SiblingIDs are the other pending claims on the item, rejected with
	// SiblingRejectionReason.
	SiblingIDs []string

	// Ledger entries appended after the status cascade, in order.
	Ledger []TrustEventSpec
}

// DecisionResult carries the post-cascade state of every entity an approval
// touched.
type DecisionResult struct {
	Claim            Claim
	RejectedSiblings []Claim
	Item             Item
	Chat             *Chat
	Ledger           []TrustApplication
}

// BuildApprovalCascade computes the approval plan for target given the
// item's other pending claims.
//
// A sibling claimant is penalized at most once per cascade, and never when
// they are the approved claimant: the penalty applies only to a claimant
// whose last live claim on the item was just rejected.
func BuildApprovalCascade(item Item, target Claim, siblings []Claim) ApprovalCascade {
	cascade := ApprovalCascade{
		ItemID:     item.ID,
		ClaimID:    target.ID,
		FinderID:   item.FinderID,
		ClaimantID: target.ClaimantID,
	}

	cascade.Ledger = append(cascade.Ledger, TrustEventSpec{
		UserID:    target.ClaimantID,
		Action:    ActionClaimApproved,
		Reference: target.ID,
		Reason:    "claim approved by finder",
	})

	penalized := map[string]bool{
		// The approved claimant still holds a live claim on the item.
		target.ClaimantID: true,
	}

	for _, sibling := range siblings {
		if sibling.ID == target.ID || sibling.Status != ClaimPending {
			continue
		}
		cascade.SiblingIDs = append(cascade.SiblingIDs, sibling.ID)

		if penalized[sibling.ClaimantID] {
			continue
		}
		penalized[sibling.ClaimantID] = true
		cascade.Ledger = append(cascade.Ledger, TrustEventSpec{
			UserID:    sibling.ClaimantID,
			Action:    ActionClaimRejected,
			Reference: sibling.ID,
			Reason:    SiblingRejectionReason,
		})
	}

	return cascade
}

// RejectionPenalty decides whether rejecting target costs its claimant
// trust. The claimant is spared while another of their claims on the same
// item is still live (pending or approved): losing to a better claim of
// their own is not penalized. This asymmetry is deliberate and matches the
// observed behavior of the workflow.
func RejectionPenalty(target Claim, others []Claim) *TrustEventSpec {
	for _, other := range others {
		if other.ID == target.ID {
			continue
		}
		if other.ClaimantID != target.ClaimantID {
			continue
		}
		if other.Status == ClaimPending || other.Status == ClaimApproved {
			return nil
		}
	}
	return &TrustEventSpec{
		UserID:    target.ClaimantID,
		Action:    ActionClaimRejected,
		Reference: target.ID,
		Reason:    "claim rejected by finder",
	}
}
