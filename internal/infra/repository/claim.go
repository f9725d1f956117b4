package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trovehq/trove/internal/domain"
	"github.com/trovehq/trove/internal/infra/database/models"
	"github.com/trovehq/trove/internal/usecase"
)

type ClaimRepository struct {
	db *gorm.DB
}

var _ usecase.ClaimRepository = (*ClaimRepository)(nil)

func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

func (r *ClaimRepository) CreateItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	row := models.Item{
		ID:          item.ID,
		FinderID:    item.FinderID,
		Title:       item.Title,
		Description: item.Description,
		ImageRef:    item.ImageRef,
		Status:      string(domain.ItemActive),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return bumpProfileCounter(tx, item.FinderID, "items_found")
	})
	if err != nil {
		return domain.Item{}, err
	}
	return itemToDomain(row), nil
}

func (r *ClaimRepository) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	var row models.Item
	err := r.db.WithContext(ctx).
		Where("id = ?", itemID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Item{}, domain.NotFoundError{Resource: "item"}
	}
	if err != nil {
		return domain.Item{}, err
	}
	return itemToDomain(row), nil
}

func (r *ClaimRepository) GetClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	var row models.Claim
	err := r.db.WithContext(ctx).
		Where("id = ?", claimID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Claim{}, domain.NotFoundError{Resource: "claim"}
	}
	if err != nil {
		return domain.Claim{}, err
	}
	return claimToDomain(row), nil
}

func (r *ClaimRepository) ListClaimsByItem(ctx context.Context, itemID string) ([]domain.Claim, error) {
	var rows []models.Claim
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("c_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	claims := make([]domain.Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, claimToDomain(row))
	}
	return claims, nil
}

// SubmitClaim persists a pending claim. The claim-count cache on the item is
// maintained by a conditional increment so it can only move together with an
// item that is still active, and the per-claimant cap is rechecked under the
// item row lock.
func (r *ClaimRepository) SubmitClaim(ctx context.Context, claim domain.Claim) (domain.Claim, error) {
	row := models.Claim{
		ID:            claim.ID,
		ItemID:        claim.ItemID,
		ClaimantID:    claim.ClaimantID,
		Status:        string(domain.ClaimPending),
		ProofText:     claim.ProofText,
		ProofImageRef: claim.ProofImageRef,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.Item
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", claim.ItemID).
			Take(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.NotFoundError{Resource: "item"}
		}
		if err != nil {
			return err
		}
		if item.Status != string(domain.ItemActive) {
			return domain.InvalidStateError{Entity: "item", State: item.Status}
		}

		var held int64
		err = tx.Model(&models.Claim{}).
			Where("item_id = ? AND claimant_id = ?", claim.ItemID, claim.ClaimantID).
			Count(&held).Error
		if err != nil {
			return err
		}
		if held >= domain.MaxClaimsPerItem {
			return domain.LimitExceededError{Limit: domain.MaxClaimsPerItem, What: "claims per item"}
		}

		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Item{}).
			Where("id = ? AND status = ?", claim.ItemID, string(domain.ItemActive)).
			Updates(map[string]any{
				"claim_count": gorm.Expr("claim_count + 1"),
				"m_date":      gorm.Expr("clock_timestamp()"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.InvalidStateError{Entity: "item", State: item.Status}
		}

		return bumpProfileCounter(tx, claim.ClaimantID, "claims_made")
	})
	if err != nil {
		return domain.Claim{}, err
	}

	var created models.Claim
	if err := r.db.WithContext(ctx).Where("id = ?", row.ID).Take(&created).Error; err != nil {
		return claimToDomain(row), nil
	}
	return claimToDomain(created), nil
}

// ExecuteDecision runs the full approval cascade as one transaction, in
// order: approve the target claim, reject sibling pending claims, flip the
// item to claimed, provision the chat, append ledger entries. Each step is
// a conditional update, so the first concurrent approval wins and every
// later one fails with InvalidState.
func (r *ClaimRepository) ExecuteDecision(ctx context.Context, cascade domain.ApprovalCascade) (domain.DecisionResult, error) {
	var result domain.DecisionResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		res := tx.Model(&models.Claim{}).
			Where("id = ? AND status = ?", cascade.ClaimID, string(domain.ClaimPending)).
			Updates(map[string]any{
				"status":     string(domain.ClaimApproved),
				"decided_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.InvalidStateError{Entity: "claim", State: "not pending"}
		}

		if len(cascade.SiblingIDs) > 0 {
			err := tx.Model(&models.Claim{}).
				Where("id IN ? AND status = ?", cascade.SiblingIDs, string(domain.ClaimPending)).
				Updates(map[string]any{
					"status":           string(domain.ClaimRejected),
					"rejection_reason": domain.SiblingRejectionReason,
					"decided_at":       now,
				}).Error
			if err != nil {
				return err
			}
		}

		res = tx.Model(&models.Item{}).
			Where("id = ? AND status = ?", cascade.ItemID, string(domain.ItemActive)).
			Updates(map[string]any{
				"status": string(domain.ItemClaimed),
				"m_date": gorm.Expr("clock_timestamp()"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.InvalidStateError{Entity: "item", State: "already claimed"}
		}

		chat, err := provisionChatTx(tx, models.Chat{
			ID:         uuid.NewString(),
			ItemID:     cascade.ItemID,
			ClaimID:    cascade.ClaimID,
			FinderID:   cascade.FinderID,
			ClaimantID: cascade.ClaimantID,
		})
		if err != nil {
			return err
		}

		err = tx.Model(&models.Claim{}).
			Where("id = ?", cascade.ClaimID).
			Update("chat_id", chat.ID).Error
		if err != nil {
			return err
		}

		for _, spec := range cascade.Ledger {
			app, err := applyTrustEvent(tx, spec)
			if err != nil {
				return err
			}
			result.Ledger = append(result.Ledger, app)
		}

		// Finder stats credit for an honored claim; no score change.
		if err := bumpProfileCounter(tx, cascade.FinderID, "claims_honored"); err != nil {
			return err
		}

		var claimRow models.Claim
		if err := tx.Where("id = ?", cascade.ClaimID).Take(&claimRow).Error; err != nil {
			return err
		}
		var itemRow models.Item
		if err := tx.Where("id = ?", cascade.ItemID).Take(&itemRow).Error; err != nil {
			return err
		}
		var siblingRows []models.Claim
		if len(cascade.SiblingIDs) > 0 {
			if err := tx.Where("id IN ?", cascade.SiblingIDs).Find(&siblingRows).Error; err != nil {
				return err
			}
		}

		result.Claim = claimToDomain(claimRow)
		result.Item = itemToDomain(itemRow)
		chatDomain := chatToDomain(chat)
		result.Chat = &chatDomain
		for _, row := range siblingRows {
			result.RejectedSiblings = append(result.RejectedSiblings, claimToDomain(row))
		}
		return nil
	})
	if err != nil {
		return domain.DecisionResult{}, err
	}
	return result, nil
}

// RejectClaim flips a pending claim to rejected and, when penalty is
// non-nil, posts the claimant's ledger entry in the same transaction and
// returns the resulting application for the event stream.
func (r *ClaimRepository) RejectClaim(ctx context.Context, claimID string, reason string, penalty *domain.TrustEventSpec) (domain.Claim, *domain.TrustApplication, error) {
	var rejected models.Claim
	var penaltyApp *domain.TrustApplication
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Claim{}).
			Where("id = ? AND status = ?", claimID, string(domain.ClaimPending)).
			Updates(map[string]any{
				"status":           string(domain.ClaimRejected),
				"rejection_reason": reason,
				"decided_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.InvalidStateError{Entity: "claim", State: "not pending"}
		}

		if penalty != nil {
			app, err := applyTrustEvent(tx, *penalty)
			if err != nil {
				return err
			}
			penaltyApp = &app
		}

		return tx.Where("id = ?", claimID).Take(&rejected).Error
	})
	if err != nil {
		return domain.Claim{}, nil, err
	}
	return claimToDomain(rejected), penaltyApp, nil
}

func (r *ClaimRepository) WithdrawClaim(ctx context.Context, claimID string) (domain.Claim, error) {
	var withdrawn models.Claim
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Claim{}).
			Where("id = ? AND status = ?", claimID, string(domain.ClaimPending)).
			Updates(map[string]any{
				"status":     string(domain.ClaimWithdrawn),
				"decided_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.InvalidStateError{Entity: "claim", State: "not pending"}
		}
		return tx.Where("id = ?", claimID).Take(&withdrawn).Error
	})
	if err != nil {
		return domain.Claim{}, err
	}
	return claimToDomain(withdrawn), nil
}

// MarkReturned moves a claimed item to returned and credits the finder.
func (r *ClaimRepository) MarkReturned(ctx context.Context, itemID string, finderID string) (domain.Item, domain.TrustApplication, error) {
	var item models.Item
	var app domain.TrustApplication
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Item{}).
			Where("id = ? AND status = ?", itemID, string(domain.ItemClaimed)).
			Updates(map[string]any{
				"status": string(domain.ItemReturned),
				"m_date": gorm.Expr("clock_timestamp()"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.InvalidStateError{Entity: "item", State: "not claimed"}
		}

		var err error
		app, err = applyTrustEvent(tx, domain.TrustEventSpec{
			UserID:    finderID,
			Action:    domain.ActionItemReturned,
			Reference: itemID,
			Reason:    "item returned to owner",
		})
		if err != nil {
			return err
		}

		return tx.Where("id = ?", itemID).Take(&item).Error
	})
	if err != nil {
		return domain.Item{}, domain.TrustApplication{}, err
	}
	return itemToDomain(item), app, nil
}

func itemToDomain(row models.Item) domain.Item {
	return domain.Item{
		ID:          row.ID,
		FinderID:    row.FinderID,
		Title:       row.Title,
		Description: row.Description,
		ImageRef:    row.ImageRef,
		Status:      domain.ItemStatus(row.Status),
		ClaimCount:  row.ClaimCount,
		CreatedAt:   row.CDate,
		UpdatedAt:   row.MDate,
	}
}

func claimToDomain(row models.Claim) domain.Claim {
	return domain.Claim{
		ID:              row.ID,
		ItemID:          row.ItemID,
		ClaimantID:      row.ClaimantID,
		Status:          domain.ClaimStatus(row.Status),
		ProofText:       row.ProofText,
		ProofImageRef:   row.ProofImageRef,
		RejectionReason: row.RejectionReason,
		DecidedAt:       row.DecidedAt,
		ChatID:          row.ChatID,
		CreatedAt:       row.CDate,
	}
}
