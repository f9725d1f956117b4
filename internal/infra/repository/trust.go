package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trovehq/trove/internal/domain"
	"github.com/trovehq/trove/internal/infra/database/models"
	"github.com/trovehq/trove/internal/usecase"
)

const profileCacheTTL = 300 // seconds

type TrustRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

var _ usecase.TrustRepository = (*TrustRepository)(nil)

func NewTrustRepository(db *gorm.DB, mc *memcache.Client) *TrustRepository {
	return &TrustRepository{db: db, mc: mc}
}

// Apply appends one ledger entry and updates the cached profile score in a
// single transaction. Reference-bound events are deduplicated.
func (r *TrustRepository) Apply(ctx context.Context, spec domain.TrustEventSpec) (domain.TrustApplication, error) {
	var app domain.TrustApplication
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		app, err = applyTrustEvent(tx, spec)
		return err
	})
	if err != nil {
		return domain.TrustApplication{}, err
	}
	r.invalidate(spec.UserID)
	return app, nil
}

// GetProfile reads a profile through memcache. A missing profile yields the
// initial standing without persisting it.
func (r *TrustRepository) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	if cached, ok := r.cacheGet(userID); ok {
		return cached, nil
	}

	var row models.Profile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return freshProfile(userID), nil
	}
	if err != nil {
		return domain.Profile{}, err
	}

	profile := profileToDomain(row)
	r.cacheSet(profile)
	return profile, nil
}

// GetProfileReconciled reads the profile and verifies the cached score
// against the ledger sum, repairing the row when they diverge. Entries
// record effective post-clamp deltas, so the sum plus the initial score is
// the authoritative value.
func (r *TrustRepository) GetProfileReconciled(ctx context.Context, userID string) (domain.Profile, error) {
	var profile domain.Profile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockProfile(tx, userID)
		if err != nil {
			return err
		}

		var sum int64
		err = tx.Model(&models.TrustLog{}).
			Where("user_id = ?", userID).
			Select("COALESCE(SUM(points_change), 0)").
			Scan(&sum).Error
		if err != nil {
			return err
		}

		authoritative := domain.ClampScore(domain.InitialTrustScore + int(sum))
		if row.TrustScore != authoritative {
			slog.Warn(
				"trust score drift repaired",
				slog.String("user", userID),
				slog.Int("cached", row.TrustScore),
				slog.Int("authoritative", authoritative),
				slog.String("module", "trust"),
			)
			err = tx.Model(&models.Profile{}).
				Where("user_id = ?", userID).
				Updates(map[string]any{
					"trust_score": authoritative,
					"trust_tier":  domain.TierForScore(authoritative),
					"m_date":      gorm.Expr("clock_timestamp()"),
				}).Error
			if err != nil {
				return err
			}
			row.TrustScore = authoritative
			row.TrustTier = domain.TierForScore(authoritative)
		}

		profile = profileToDomain(row)
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	r.cacheSet(profile)
	return profile, nil
}

func (r *TrustRepository) ListLogs(ctx context.Context, userID string, limit int) ([]domain.TrustLogEntry, error) {
	var rows []models.TrustLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("c_date DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.TrustLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, trustLogToDomain(row))
	}
	return entries, nil
}

func (r *TrustRepository) cacheKey(userID string) string {
	return "profile:" + userID
}

func (r *TrustRepository) cacheGet(userID string) (domain.Profile, bool) {
	if r.mc == nil {
		return domain.Profile{}, false
	}
	item, err := r.mc.Get(r.cacheKey(userID))
	if err != nil {
		return domain.Profile{}, false
	}
	var profile domain.Profile
	if err := json.Unmarshal(item.Value, &profile); err != nil {
		return domain.Profile{}, false
	}
	return profile, true
}

func (r *TrustRepository) cacheSet(profile domain.Profile) {
	if r.mc == nil {
		return
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	_ = r.mc.Set(&memcache.Item{
		Key:        r.cacheKey(profile.UserID),
		Value:      raw,
		Expiration: profileCacheTTL,
	})
}

func (r *TrustRepository) invalidate(userID string) {
	if r.mc == nil {
		return
	}
	_ = r.mc.Delete(r.cacheKey(userID))
}

// applyTrustEvent runs inside an existing transaction so a claim decision
// can fold its ledger writes into the cascade. The profile row is locked for
// the duration, the (user, action, reference) triple is checked for a prior
// entry, and the recorded delta is the effective change after clamping.
func applyTrustEvent(tx *gorm.DB, spec domain.TrustEventSpec) (domain.TrustApplication, error) {
	if !spec.Action.Known() {
		return domain.TrustApplication{}, domain.InvalidInputError{Field: "action", Reason: "unknown trust action"}
	}

	row, err := lockProfile(tx, spec.UserID)
	if err != nil {
		return domain.TrustApplication{}, err
	}

	if spec.Reference != "" {
		var existing models.TrustLog
		err := tx.
			Where("user_id = ? AND action = ? AND reference = ?", spec.UserID, string(spec.Action), spec.Reference).
			Take(&existing).Error
		if err == nil {
			return domain.TrustApplication{
				PreviousScore: existing.PreviousScore,
				NewScore:      existing.NewScore,
				NewTier:       domain.TierForScore(existing.NewScore),
				Entry:         trustLogToDomain(existing),
				Duplicate:     true,
			}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TrustApplication{}, err
		}
	}

	previous := row.TrustScore
	next, err := domain.NextScore(spec, previous)
	if err != nil {
		return domain.TrustApplication{}, err
	}

	entry := models.TrustLog{
		ID:            uuid.NewString(),
		UserID:        spec.UserID,
		Action:        string(spec.Action),
		PointsChange:  next - previous,
		PreviousScore: previous,
		NewScore:      next,
		Reference:     spec.Reference,
		ActorID:       spec.ActorID,
		Reason:        spec.Reason,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return domain.TrustApplication{}, err
	}

	updates := map[string]any{
		"trust_score": next,
		"trust_tier":  domain.TierForScore(next),
		"m_date":      gorm.Expr("clock_timestamp()"),
	}
	switch spec.Action {
	case domain.ActionItemReturned:
		updates["items_returned"] = gorm.Expr("items_returned + 1")
	case domain.ActionClaimApproved:
		updates["claims_succeeded"] = gorm.Expr("claims_succeeded + 1")
	}
	err = tx.Model(&models.Profile{}).
		Where("user_id = ?", spec.UserID).
		Updates(updates).Error
	if err != nil {
		return domain.TrustApplication{}, err
	}

	return domain.TrustApplication{
		PreviousScore: previous,
		NewScore:      next,
		NewTier:       domain.TierForScore(next),
		Entry:         trustLogToDomain(entry),
	}, nil
}

// lockProfile takes the profile row for update, creating it with the
// initial standing on first touch.
func lockProfile(tx *gorm.DB, userID string) (models.Profile, error) {
	seed := models.Profile{
		UserID:     userID,
		TrustScore: domain.InitialTrustScore,
		TrustTier:  domain.TierForScore(domain.InitialTrustScore),
	}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
	if err != nil {
		return models.Profile{}, err
	}

	var row models.Profile
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&row).Error
	if err != nil {
		return models.Profile{}, err
	}
	return row, nil
}

// bumpProfileCounter increments a single lifetime counter without touching
// the score.
func bumpProfileCounter(tx *gorm.DB, userID string, column string) error {
	if _, err := lockProfile(tx, userID); err != nil {
		return err
	}
	return tx.Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			column:   gorm.Expr(column + " + 1"),
			"m_date": gorm.Expr("clock_timestamp()"),
		}).Error
}

func freshProfile(userID string) domain.Profile {
	return domain.Profile{
		UserID:     userID,
		TrustScore: domain.InitialTrustScore,
		TrustTier:  domain.TierForScore(domain.InitialTrustScore),
	}
}

func profileToDomain(row models.Profile) domain.Profile {
	return domain.Profile{
		UserID:          row.UserID,
		DisplayName:     row.DisplayName,
		TrustScore:      row.TrustScore,
		TrustTier:       row.TrustTier,
		ItemsFound:      row.ItemsFound,
		ItemsReturned:   row.ItemsReturned,
		ClaimsMade:      row.ClaimsMade,
		ClaimsSucceeded: row.ClaimsSucceeded,
		ClaimsHonored:   row.ClaimsHonored,
		UpdatedAt:       row.MDate,
	}
}

func trustLogToDomain(row models.TrustLog) domain.TrustLogEntry {
	return domain.TrustLogEntry{
		ID:            row.ID,
		UserID:        row.UserID,
		Action:        domain.TrustAction(row.Action),
		PointsChange:  row.PointsChange,
		PreviousScore: row.PreviousScore,
		NewScore:      row.NewScore,
		Reference:     row.Reference,
		ActorID:       row.ActorID,
		Reason:        row.Reason,
		CreatedAt:     row.CDate,
	}
}
