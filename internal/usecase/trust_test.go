package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/trovehq/trove"
	"github.com/trovehq/trove/internal/domain"
)

type mockTrustRepo struct {
	applied  []domain.TrustEventSpec
	score    int
	dupRefs  map[string]bool
	listed   int
	profiles map[string]domain.Profile
}

func newMockTrustRepo() *mockTrustRepo {
	return &mockTrustRepo{
		score:    domain.InitialTrustScore,
		dupRefs:  map[string]bool{},
		profiles: map[string]domain.Profile{},
	}
}

func (m *mockTrustRepo) Apply(ctx context.Context, spec domain.TrustEventSpec) (domain.TrustApplication, error) {
	if spec.Reference != "" && m.dupRefs[spec.Reference] {
		return domain.TrustApplication{
			PreviousScore: m.score,
			NewScore:      m.score,
			Duplicate:     true,
		}, nil
	}
	if spec.Reference != "" {
		m.dupRefs[spec.Reference] = true
	}
	m.applied = append(m.applied, spec)

	previous := m.score
	next, err := domain.NextScore(spec, previous)
	if err != nil {
		return domain.TrustApplication{}, err
	}
	m.score = next
	return domain.TrustApplication{
		PreviousScore: previous,
		NewScore:      m.score,
		NewTier:       domain.TierForScore(m.score),
		Entry: domain.TrustLogEntry{
			UserID:       spec.UserID,
			Action:       spec.Action,
			PointsChange: m.score - previous,
		},
	}, nil
}

func (m *mockTrustRepo) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return domain.Profile{UserID: userID, TrustScore: m.score, TrustTier: domain.TierForScore(m.score)}, nil
}

func (m *mockTrustRepo) GetProfileReconciled(ctx context.Context, userID string) (domain.Profile, error) {
	return m.GetProfile(ctx, userID)
}

func (m *mockTrustRepo) ListLogs(ctx context.Context, userID string, limit int) ([]domain.TrustLogEntry, error) {
	m.listed = limit
	return nil, nil
}

func newTrustFixture() (*TrustUsecase, *mockTrustRepo, *mockPublisher) {
	repo := newMockTrustRepo()
	signal := &mockPublisher{}
	return NewTrustUsecase(repo, signal), repo, signal
}

func TestApplyEventUnknownAction(t *testing.T) {
	uc, _, _ := newTrustFixture()

	_, err := uc.ApplyEvent(context.Background(), domain.TrustEventSpec{
		UserID: "alice",
		Action: domain.TrustAction("mystery_bonus"),
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestApplyEventRejectsOverride(t *testing.T) {
	uc, repo, _ := newTrustFixture()

	_, err := uc.ApplyEvent(context.Background(), domain.TrustEventSpec{
		UserID:        "alice",
		Action:        domain.ActionAdminOverride,
		OverrideScore: 0,
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if len(repo.applied) != 0 {
		t.Fatal("override must not reach the ledger through event ingestion")
	}
}

func TestApplyEventPublishesProfile(t *testing.T) {
	uc, _, signal := newTrustFixture()

	app, err := uc.ApplyEvent(context.Background(), domain.TrustEventSpec{
		UserID:    "alice",
		Action:    domain.ActionClaimApproved,
		Reference: "c1",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if app.NewScore != domain.InitialTrustScore+10 {
		t.Fatalf("unexpected score: %d", app.NewScore)
	}
	if n := signal.countByResource(trove.ResourceProfile); n != 1 {
		t.Fatalf("expected 1 profile event, got %d", n)
	}
}

func TestApplyEventDuplicateIsSilent(t *testing.T) {
	uc, repo, signal := newTrustFixture()

	spec := domain.TrustEventSpec{UserID: "alice", Action: domain.ActionClaimApproved, Reference: "c1"}
	if _, err := uc.ApplyEvent(context.Background(), spec); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	app, err := uc.ApplyEvent(context.Background(), spec)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if !app.Duplicate {
		t.Fatal("expected duplicate application")
	}
	if len(repo.applied) != 1 {
		t.Fatalf("expected 1 applied event, got %d", len(repo.applied))
	}
	if n := signal.countByResource(trove.ResourceProfile); n != 1 {
		t.Fatalf("duplicate should not republish, got %d events", n)
	}
}

func TestGetMyLogsLimitClamp(t *testing.T) {
	uc, repo, _ := newTrustFixture()

	if _, err := uc.GetMyLogs(context.Background(), "alice", 0); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if repo.listed != defaultLogLimit {
		t.Fatalf("expected default limit, got %d", repo.listed)
	}

	if _, err := uc.GetMyLogs(context.Background(), "alice", 10000); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if repo.listed != maxLogLimit {
		t.Fatalf("expected max limit, got %d", repo.listed)
	}
}

func TestAdminOverrideRequiresAdmin(t *testing.T) {
	uc, _, _ := newTrustFixture()

	_, err := uc.AdminOverride(context.Background(), "alice", false, "bob", 80, "fraud investigation closed")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestAdminOverrideReasonTooShort(t *testing.T) {
	uc, _, _ := newTrustFixture()

	_, err := uc.AdminOverride(context.Background(), "admin", true, "bob", 80, "short")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestAdminOverrideOutOfRange(t *testing.T) {
	uc, _, _ := newTrustFixture()

	_, err := uc.AdminOverride(context.Background(), "admin", true, "bob", 150, "score pinned after appeal review")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestAdminOverridePinsScore(t *testing.T) {
	uc, repo, signal := newTrustFixture()

	app, err := uc.AdminOverride(context.Background(), "admin", true, "bob", 5, "repeat abuse confirmed by review")
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if app.NewScore != 5 {
		t.Fatalf("expected pinned score 5, got %d", app.NewScore)
	}
	if len(repo.applied) != 1 || repo.applied[0].Action != domain.ActionAdminOverride {
		t.Fatalf("unexpected applied events: %+v", repo.applied)
	}
	if repo.applied[0].ActorID != "admin" {
		t.Fatalf("actor not recorded: %+v", repo.applied[0])
	}
	if n := signal.countByResource(trove.ResourceProfile); n != 1 {
		t.Fatalf("expected 1 profile event, got %d", n)
	}
}
