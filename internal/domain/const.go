package domain

// Context keys populated by the auth middleware.
const (
	RequesterIdCtxKey      = "trove-requesterId"
	RequesterNameCtxKey    = "trove-requesterName"
	RequesterIsAdminCtxKey = "trove-requesterIsAdmin"
)

// Item lifecycle statuses. Flagged/removed are moderation overlays settable
// from outside the claim workflow.
type ItemStatus string

const (
	ItemActive   ItemStatus = "active"
	ItemClaimed  ItemStatus = "claimed"
	ItemReturned ItemStatus = "returned"
	ItemClosed   ItemStatus = "closed"
	ItemFlagged  ItemStatus = "flagged"
	ItemRemoved  ItemStatus = "removed"
)

// Claim lifecycle statuses. Everything but pending is terminal.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimWithdrawn ClaimStatus = "withdrawn"
)

// MaxClaimsPerItem caps how many claims a single claimant may hold on one
// item, counting terminal claims.
const MaxClaimsPerItem = 3

// SiblingRejectionReason is recorded on claims rejected by an approval
// cascade.
const SiblingRejectionReason = "another claim was approved"

// Decision is a finder's verdict on a pending claim.
type Decision string

const (
	DecisionApprove Decision = "approved"
	DecisionReject  Decision = "rejected"
)
