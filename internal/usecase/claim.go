package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/trovehq/trove"
	"github.com/trovehq/trove/internal/domain"
)

// ClaimRepository defines storage operations for items and claims.
type ClaimRepository interface {
	CreateItem(ctx context.Context, item domain.Item) (domain.Item, error)
	GetItem(ctx context.Context, itemID string) (domain.Item, error)
	GetClaim(ctx context.Context, claimID string) (domain.Claim, error)
	ListClaimsByItem(ctx context.Context, itemID string) ([]domain.Claim, error)
	SubmitClaim(ctx context.Context, claim domain.Claim) (domain.Claim, error)
	ExecuteDecision(ctx context.Context, cascade domain.ApprovalCascade) (domain.DecisionResult, error)
	RejectClaim(ctx context.Context, claimID string, reason string, penalty *domain.TrustEventSpec) (domain.Claim, *domain.TrustApplication, error)
	WithdrawClaim(ctx context.Context, claimID string) (domain.Claim, error)
	MarkReturned(ctx context.Context, itemID string, finderID string) (domain.Item, domain.TrustApplication, error)
}

// EventPublisher fans change events out to per-user streams.
type EventPublisher interface {
	PublishToUsers(ctx context.Context, userIDs []string, event trove.Event)
}

// StorageResolver decorates payloads with viewable image URLs.
type StorageResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

type ClaimUsecase struct {
	repo    ClaimRepository
	signal  EventPublisher
	storage StorageResolver
}

func NewClaimUsecase(repo ClaimRepository, signal EventPublisher, storage StorageResolver) *ClaimUsecase {
	return &ClaimUsecase{repo: repo, signal: signal, storage: storage}
}

// CreateItemInput is the validated input for posting a found item.
type CreateItemInput struct {
	FinderID    string
	Title       string
	Description string
	ImageRef    string
}

func (uc *ClaimUsecase) CreateItem(ctx context.Context, input CreateItemInput) (domain.Item, error) {
	if input.Title == "" {
		return domain.Item{}, domain.InvalidInputError{Field: "title", Reason: "must not be empty"}
	}

	item, err := uc.repo.CreateItem(ctx, domain.Item{
		ID:          uuid.NewString(),
		FinderID:    input.FinderID,
		Title:       input.Title,
		Description: input.Description,
		ImageRef:    input.ImageRef,
	})
	if err != nil {
		return domain.Item{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{item.FinderID},
		trove.NewEvent(trove.ResourceItem, trove.ActionInsert, item.ID, item))

	return uc.decorateItem(ctx, item), nil
}

func (uc *ClaimUsecase) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	item, err := uc.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	return uc.decorateItem(ctx, item), nil
}

// ListClaims returns the claims on an item visible to the requester: the
// finder sees all of them, a claimant only their own.
func (uc *ClaimUsecase) ListClaims(ctx context.Context, itemID string, requesterID string) ([]domain.Claim, error) {
	item, err := uc.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	claims, err := uc.repo.ListClaimsByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	visible := make([]domain.Claim, 0, len(claims))
	for _, claim := range claims {
		if requesterID != item.FinderID && claim.ClaimantID != requesterID {
			continue
		}
		visible = append(visible, uc.decorateClaim(ctx, claim))
	}
	return visible, nil
}

// SubmitInput is the validated input for asserting ownership of an item.
type SubmitInput struct {
	ItemID        string
	ClaimantID    string
	ProofText     string
	ProofImageRef string
}

// Submit persists a pending claim. Submission has no trust or chat side
// effects.
func (uc *ClaimUsecase) Submit(ctx context.Context, input SubmitInput) (domain.Claim, error) {
	if input.ProofText == "" {
		return domain.Claim{}, domain.InvalidInputError{Field: "proof", Reason: "must not be empty"}
	}

	item, err := uc.repo.GetItem(ctx, input.ItemID)
	if err != nil {
		return domain.Claim{}, err
	}
	if item.FinderID == input.ClaimantID {
		return domain.Claim{}, domain.ForbiddenError{Actor: input.ClaimantID, Operation: "claim their own item"}
	}
	if !item.Claimable() {
		return domain.Claim{}, domain.InvalidStateError{Entity: "item", State: string(item.Status)}
	}

	existing, err := uc.repo.ListClaimsByItem(ctx, input.ItemID)
	if err != nil {
		return domain.Claim{}, err
	}
	held := 0
	for _, claim := range existing {
		if claim.ClaimantID == input.ClaimantID {
			held++
		}
	}
	if held >= domain.MaxClaimsPerItem {
		return domain.Claim{}, domain.LimitExceededError{Limit: domain.MaxClaimsPerItem, What: "claims per item"}
	}

	claim, err := uc.repo.SubmitClaim(ctx, domain.Claim{
		ID:            uuid.NewString(),
		ItemID:        input.ItemID,
		ClaimantID:    input.ClaimantID,
		ProofText:     input.ProofText,
		ProofImageRef: input.ProofImageRef,
	})
	if err != nil {
		return domain.Claim{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{item.FinderID, claim.ClaimantID},
		trove.NewEvent(trove.ResourceClaim, trove.ActionInsert, claim.ID, claimDocument(claim)))

	return claim, nil
}

// Decide applies the finder's verdict. Approval runs the full cascade as
// one atomic unit; rejection posts the claimant's penalty only when this
// was their last live claim on the item.
func (uc *ClaimUsecase) Decide(ctx context.Context, claimID string, decision domain.Decision, actorID string) (domain.DecisionResult, error) {
	claim, err := uc.repo.GetClaim(ctx, claimID)
	if err != nil {
		return domain.DecisionResult{}, err
	}

	item, err := uc.repo.GetItem(ctx, claim.ItemID)
	if err != nil {
		return domain.DecisionResult{}, err
	}
	if item.FinderID != actorID {
		return domain.DecisionResult{}, domain.ForbiddenError{Actor: actorID, Operation: "decide claims on this item"}
	}
	if claim.Terminal() {
		return domain.DecisionResult{}, domain.InvalidStateError{Entity: "claim", State: string(claim.Status)}
	}

	switch decision {
	case domain.DecisionApprove:
		return uc.approve(ctx, item, claim)
	case domain.DecisionReject:
		return uc.reject(ctx, item, claim)
	default:
		return domain.DecisionResult{}, domain.InvalidInputError{Field: "decision", Reason: "must be approved or rejected"}
	}
}

func (uc *ClaimUsecase) approve(ctx context.Context, item domain.Item, claim domain.Claim) (domain.DecisionResult, error) {
	all, err := uc.repo.ListClaimsByItem(ctx, item.ID)
	if err != nil {
		return domain.DecisionResult{}, err
	}

	cascade := domain.BuildApprovalCascade(item, claim, all)
	result, err := uc.repo.ExecuteDecision(ctx, cascade)
	if err != nil {
		return domain.DecisionResult{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{item.FinderID, claim.ClaimantID},
		trove.NewEvent(trove.ResourceClaim, trove.ActionUpdate, result.Claim.ID, claimDocument(result.Claim)))
	for _, sibling := range result.RejectedSiblings {
		uc.signal.PublishToUsers(ctx, []string{item.FinderID, sibling.ClaimantID},
			trove.NewEvent(trove.ResourceClaim, trove.ActionUpdate, sibling.ID, claimDocument(sibling)))
	}
	uc.signal.PublishToUsers(ctx, []string{item.FinderID},
		trove.NewEvent(trove.ResourceItem, trove.ActionUpdate, item.ID, result.Item))
	if result.Chat != nil {
		uc.signal.PublishToUsers(ctx, []string{result.Chat.FinderID, result.Chat.ClaimantID},
			trove.NewEvent(trove.ResourceChat, trove.ActionInsert, result.Chat.ID, chatDocument(*result.Chat)))
	}
	for _, app := range result.Ledger {
		uc.signal.PublishToUsers(ctx, []string{app.Entry.UserID},
			trove.NewEvent(trove.ResourceProfile, trove.ActionUpdate, app.Entry.UserID, profileDocument(app)))
	}

	return result, nil
}

func (uc *ClaimUsecase) reject(ctx context.Context, item domain.Item, claim domain.Claim) (domain.DecisionResult, error) {
	all, err := uc.repo.ListClaimsByItem(ctx, item.ID)
	if err != nil {
		return domain.DecisionResult{}, err
	}

	penalty := domain.RejectionPenalty(claim, all)
	rejected, penaltyApp, err := uc.repo.RejectClaim(ctx, claim.ID, "claim rejected by finder", penalty)
	if err != nil {
		return domain.DecisionResult{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{item.FinderID, claim.ClaimantID},
		trove.NewEvent(trove.ResourceClaim, trove.ActionUpdate, rejected.ID, claimDocument(rejected)))
	if penaltyApp != nil {
		uc.signal.PublishToUsers(ctx, []string{claim.ClaimantID},
			trove.NewEvent(trove.ResourceProfile, trove.ActionUpdate, claim.ClaimantID, profileDocument(*penaltyApp)))
	}

	return domain.DecisionResult{Claim: rejected, Item: item}, nil
}

// Withdraw lets the claimant retract a still-pending claim. No trust
// effect; the item is untouched.
func (uc *ClaimUsecase) Withdraw(ctx context.Context, claimID string, actorID string) (domain.Claim, error) {
	claim, err := uc.repo.GetClaim(ctx, claimID)
	if err != nil {
		return domain.Claim{}, err
	}
	if claim.ClaimantID != actorID {
		return domain.Claim{}, domain.ForbiddenError{Actor: actorID, Operation: "withdraw this claim"}
	}
	if claim.Terminal() {
		return domain.Claim{}, domain.InvalidStateError{Entity: "claim", State: string(claim.Status)}
	}

	withdrawn, err := uc.repo.WithdrawClaim(ctx, claimID)
	if err != nil {
		return domain.Claim{}, err
	}

	item, err := uc.repo.GetItem(ctx, claim.ItemID)
	if err == nil {
		uc.signal.PublishToUsers(ctx, []string{item.FinderID, claim.ClaimantID},
			trove.NewEvent(trove.ResourceClaim, trove.ActionUpdate, withdrawn.ID, claimDocument(withdrawn)))
	}

	return withdrawn, nil
}

// MarkReturned is the terminal success path of the workflow.
func (uc *ClaimUsecase) MarkReturned(ctx context.Context, itemID string, actorID string) (domain.Item, error) {
	item, err := uc.repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if item.FinderID != actorID {
		return domain.Item{}, domain.ForbiddenError{Actor: actorID, Operation: "mark this item returned"}
	}
	if item.Status != domain.ItemClaimed {
		return domain.Item{}, domain.InvalidStateError{Entity: "item", State: string(item.Status)}
	}

	returned, app, err := uc.repo.MarkReturned(ctx, itemID, actorID)
	if err != nil {
		return domain.Item{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{item.FinderID},
		trove.NewEvent(trove.ResourceItem, trove.ActionUpdate, returned.ID, returned))
	uc.signal.PublishToUsers(ctx, []string{app.Entry.UserID},
		trove.NewEvent(trove.ResourceProfile, trove.ActionUpdate, app.Entry.UserID, profileDocument(app)))

	return returned, nil
}

func (uc *ClaimUsecase) decorateItem(ctx context.Context, item domain.Item) domain.Item {
	if uc.storage == nil || item.ImageRef == "" {
		return item
	}
	if resolved, err := uc.storage.ResolveURL(ctx, item.ImageRef); err == nil {
		item.ImageURL = resolved
	}
	return item
}

func (uc *ClaimUsecase) decorateClaim(ctx context.Context, claim domain.Claim) domain.Claim {
	if uc.storage == nil || claim.ProofImageRef == "" {
		return claim
	}
	if resolved, err := uc.storage.ResolveURL(ctx, claim.ProofImageRef); err == nil {
		claim.ProofImageURL = resolved
	}
	return claim
}

func claimDocument(claim domain.Claim) trove.ClaimDocument {
	doc := trove.ClaimDocument{
		ID:         claim.ID,
		ItemID:     claim.ItemID,
		ClaimantID: claim.ClaimantID,
		Status:     string(claim.Status),
	}
	if claim.ChatID != nil {
		doc.ChatID = *claim.ChatID
	}
	return doc
}

func chatDocument(chat domain.Chat) trove.ChatDocument {
	return trove.ChatDocument{
		ID:             chat.ID,
		ItemID:         chat.ItemID,
		ClaimID:        chat.ClaimID,
		FinderID:       chat.FinderID,
		ClaimantID:     chat.ClaimantID,
		FinderUnread:   chat.FinderUnread,
		ClaimantUnread: chat.ClaimantUnread,
		IsFrozen:       chat.IsFrozen,
		IsClosed:       chat.IsClosed,
	}
}

func profileDocument(app domain.TrustApplication) trove.ProfileDocument {
	return trove.ProfileDocument{
		UserID:     app.Entry.UserID,
		TrustScore: app.NewScore,
		TrustTier:  app.NewTier,
	}
}
