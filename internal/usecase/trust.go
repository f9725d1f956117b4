package usecase

import (
	"context"

	"github.com/trovehq/trove"
	"github.com/trovehq/trove/internal/domain"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// TrustRepository defines storage operations for trust profiles and the
// append-only trust ledger.
type TrustRepository interface {
	Apply(ctx context.Context, spec domain.TrustEventSpec) (domain.TrustApplication, error)
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	GetProfileReconciled(ctx context.Context, userID string) (domain.Profile, error)
	ListLogs(ctx context.Context, userID string, limit int) ([]domain.TrustLogEntry, error)
}

type TrustUsecase struct {
	repo   TrustRepository
	signal EventPublisher
}

func NewTrustUsecase(repo TrustRepository, signal EventPublisher) *TrustUsecase {
	return &TrustUsecase{repo: repo, signal: signal}
}

// ApplyEvent records a trust event and publishes the resulting profile
// change. It backs the ingestion endpoint collaborator services post
// ambient actions to, email_verified and profile_completed among them;
// claim-driven entries are folded into the decision cascade instead, and
// overrides have their own audited operation. Duplicate references are
// absorbed silently.
func (uc *TrustUsecase) ApplyEvent(ctx context.Context, spec domain.TrustEventSpec) (domain.TrustApplication, error) {
	if !spec.Action.Known() {
		return domain.TrustApplication{}, domain.InvalidInputError{Field: "action", Reason: "unknown trust action"}
	}
	if spec.Action == domain.ActionAdminOverride {
		return domain.TrustApplication{}, domain.InvalidInputError{Field: "action", Reason: "overrides use the dedicated override operation"}
	}

	app, err := uc.repo.Apply(ctx, spec)
	if err != nil {
		return domain.TrustApplication{}, err
	}

	if !app.Duplicate {
		uc.signal.PublishToUsers(ctx, []string{spec.UserID},
			trove.NewEvent(trove.ResourceProfile, trove.ActionUpdate, spec.UserID, profileDocument(app)))
	}

	return app, nil
}

// GetMyScore returns the requester's profile with the score recomputed from
// the ledger, repairing any drift between the cached score and the log.
func (uc *TrustUsecase) GetMyScore(ctx context.Context, userID string) (domain.Profile, error) {
	return uc.repo.GetProfileReconciled(ctx, userID)
}

// GetProfile returns the public view of any user's profile.
func (uc *TrustUsecase) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	return uc.repo.GetProfile(ctx, userID)
}

// GetMyLogs returns the requester's ledger entries, newest first.
func (uc *TrustUsecase) GetMyLogs(ctx context.Context, userID string, limit int) ([]domain.TrustLogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return uc.repo.ListLogs(ctx, userID, limit)
}

// AdminOverride pins a user's score to an explicit value. The acting admin
// and a non-trivial reason are required for the audit trail.
func (uc *TrustUsecase) AdminOverride(ctx context.Context, actorID string, isAdmin bool, userID string, newScore int, reason string) (domain.TrustApplication, error) {
	if !isAdmin {
		return domain.TrustApplication{}, domain.ForbiddenError{Actor: actorID, Operation: "override trust scores"}
	}
	if len(reason) < domain.MinOverrideReasonLen {
		return domain.TrustApplication{}, domain.InvalidInputError{Field: "reason", Reason: "too short for an audit record"}
	}
	if newScore < domain.MinTrustScore || newScore > domain.MaxTrustScore {
		return domain.TrustApplication{}, domain.InvalidInputError{Field: "newScore", Reason: "outside the valid score range"}
	}

	app, err := uc.repo.Apply(ctx, domain.TrustEventSpec{
		UserID:        userID,
		Action:        domain.ActionAdminOverride,
		Reason:        reason,
		ActorID:       actorID,
		OverrideScore: newScore,
	})
	if err != nil {
		return domain.TrustApplication{}, err
	}

	uc.signal.PublishToUsers(ctx, []string{userID},
		trove.NewEvent(trove.ResourceProfile, trove.ActionUpdate, userID, profileDocument(app)))

	return app, nil
}
