package domain

import "testing"

func TestClampScore(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-10, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{140, 100},
	}
	for _, tc := range cases {
		if got := ClampScore(tc.in); got != tc.want {
			t.Fatalf("ClampScore(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score int
		tier  string
	}{
		{0, TierRisky},
		{30, TierRisky},
		{31, TierFair},
		{50, TierFair},
		{51, TierGood},
		{70, TierGood},
		{71, TierHigh},
		{85, TierHigh},
		{86, TierVerified},
		{97, TierVerified},
		{100, TierVerified},
	}
	for _, tc := range cases {
		if got := TierForScore(tc.score); got != tc.tier {
			t.Fatalf("TierForScore(%d) = %q, want %q", tc.score, got, tc.tier)
		}
	}
}

func TestTrustActionDeltas(t *testing.T) {
	cases := []struct {
		action TrustAction
		delta  int
	}{
		{ActionEmailVerified, 5},
		{ActionProfileCompleted, 5},
		{ActionItemReturned, 15},
		{ActionClaimApproved, 10},
		{ActionClaimRejected, -2},
		{ActionSpamItemDetected, -15},
		{ActionAbuseConfirmed, -20},
		{ActionAdminOverride, 0},
	}
	for _, tc := range cases {
		if !tc.action.Known() {
			t.Fatalf("action %s should be known", tc.action)
		}
		if got := tc.action.Delta(); got != tc.delta {
			t.Fatalf("Delta(%s) = %d, want %d", tc.action, got, tc.delta)
		}
	}
	if TrustAction("made_up").Known() {
		t.Fatalf("unknown action must not be known")
	}
}

func TestNextScoreSequence(t *testing.T) {
	score := 82

	next, err := NextScore(TrustEventSpec{UserID: "finder", Action: ActionItemReturned}, score)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if next != 97 || TierForScore(next) != TierVerified {
		t.Fatalf("expected 97 %q, got %d %q", TierVerified, next, TierForScore(next))
	}
	score = next

	// Another credit clamps at the ceiling; the effective delta shrinks.
	next, err = NextScore(TrustEventSpec{UserID: "finder", Action: ActionClaimApproved}, score)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if next != MaxTrustScore {
		t.Fatalf("expected clamp at %d, got %d", MaxTrustScore, next)
	}
	if next-score != 3 {
		t.Fatalf("expected effective delta 3, got %d", next-score)
	}
	score = next

	next, err = NextScore(TrustEventSpec{
		UserID:        "finder",
		Action:        ActionAdminOverride,
		ActorID:       "admin",
		OverrideScore: 40,
	}, score)
	if err != nil {
		t.Fatalf("override failed: %v", err)
	}
	if next != 40 || TierForScore(next) != TierFair {
		t.Fatalf("expected 40 %q, got %d %q", TierFair, next, TierForScore(next))
	}

	_, err = NextScore(TrustEventSpec{Action: ActionAdminOverride, OverrideScore: 101}, next)
	if err == nil {
		t.Fatal("expected out-of-range override to fail")
	}
}
