package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"ctf-scoreboard-system/testutil"

	"gorm.io/gorm"
)

// seedPlayer creates a user and gives them a single flag worth the given
// points, so total_score equals points.
func seedPlayer(t *testing.T, db *gorm.DB, username string, points int64) {
	t.Helper()

	testutil.CreateTestUser(t, db, username)
	ledger := NewLedgerService(db, false)
	if _, err := ledger.Unlock(username, "seed-"+username, points); err != nil {
		t.Fatalf("Failed to seed score for %s: %v", username, err)
	}
}

func TestGetRankWithTies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)

	seedPlayer(t, db, "alice", 100)
	seedPlayer(t, db, "bob", 100)
	seedPlayer(t, db, "carol", 50)

	cases := map[string]int64{"alice": 1, "bob": 1, "carol": 3}
	for username, want := range cases {
		rank, err := svc.GetRank(username)
		if err != nil {
			t.Fatalf("rank lookup for %s failed: %v", username, err)
		}
		if rank != want {
			t.Errorf("expected rank %d for %s, got %d", want, username, rank)
		}
	}
}

func TestGetRankUnknownUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)

	if _, err := svc.GetRank("ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLeaderboardOrderingAndCounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)

	seedPlayer(t, db, "bob", 100)
	seedPlayer(t, db, "alice", 100)
	seedPlayer(t, db, "carol", 50)

	// carol picks up a second flag, total 50 + 10.
	ledger := NewLedgerService(db, false)
	if _, err := ledger.Unlock("carol", "extra", 10); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	rows, err := svc.Leaderboard()
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	// Ties break alphabetically, so alice precedes bob.
	wantOrder := []string{"alice", "bob", "carol"}
	wantRanks := []int64{1, 1, 3}
	wantFlags := []int64{1, 1, 2}
	for i, row := range rows {
		if row.Username != wantOrder[i] {
			t.Errorf("row %d: expected username %s, got %s", i, wantOrder[i], row.Username)
		}
		if row.Rank != wantRanks[i] {
			t.Errorf("row %d: expected rank %d, got %d", i, wantRanks[i], row.Rank)
		}
		if row.FlagsCount != wantFlags[i] {
			t.Errorf("row %d: expected flags_count %d, got %d", i, wantFlags[i], row.FlagsCount)
		}
		if row.HasClaimedPrize {
			t.Errorf("row %d: expected unclaimed prize", i)
		}
	}
}

func TestClaimPrizeOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)
	seedPlayer(t, db, "alice", 100)

	if err := svc.ClaimPrize("alice"); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if !testutil.GetTestUser(t, db, "alice").HasClaimedPrize {
		t.Fatal("expected has_claimed_prize set after claim")
	}

	if err := svc.ClaimPrize("alice"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed on second claim, got %v", err)
	}
	if !testutil.GetTestUser(t, db, "alice").HasClaimedPrize {
		t.Fatal("expected has_claimed_prize to stay set")
	}
}

func TestClaimPrizeUnknownUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)

	if err := svc.ClaimPrize("ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

// TestConcurrentClaims hammers ClaimPrize from many goroutines. Exactly one
// must win; every other caller must see ErrAlreadyClaimed.
func TestConcurrentClaims(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)
	seedPlayer(t, db, "alice", 100)

	const workers = 20
	var accepted, alreadyClaimed, unexpected int64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := svc.ClaimPrize("alice"); {
			case err == nil:
				atomic.AddInt64(&accepted, 1)
			case errors.Is(err, ErrAlreadyClaimed):
				atomic.AddInt64(&alreadyClaimed, 1)
			default:
				atomic.AddInt64(&unexpected, 1)
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("expected exactly 1 accepted claim, got %d", accepted)
	}
	if alreadyClaimed != workers-1 {
		t.Errorf("expected %d ErrAlreadyClaimed, got %d", workers-1, alreadyClaimed)
	}
	if unexpected != 0 {
		t.Errorf("expected no unexpected errors, got %d", unexpected)
	}
}

func TestClaimDoesNotChangeRank(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)

	seedPlayer(t, db, "alice", 100)
	seedPlayer(t, db, "bob", 50)

	if err := svc.ClaimPrize("alice"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	rank, err := svc.GetRank("alice")
	if err != nil {
		t.Fatalf("rank lookup failed: %v", err)
	}
	if rank != 1 {
		t.Errorf("expected rank 1 after claiming, got %d", rank)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)

	// Empty board: nothing to persist.
	batchID, err := svc.TakeSnapshot()
	if err != nil {
		t.Fatalf("snapshot of empty board failed: %v", err)
	}
	if batchID != "" {
		t.Errorf("expected empty batch id for empty board, got %s", batchID)
	}

	seedPlayer(t, db, "alice", 100)
	seedPlayer(t, db, "bob", 50)

	batchID, err = svc.TakeSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if batchID == "" {
		t.Fatal("expected non-empty batch id")
	}

	snapshots, err := svc.LatestSnapshot()
	if err != nil {
		t.Fatalf("latest snapshot failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshot rows, got %d", len(snapshots))
	}
	if snapshots[0].Username != "alice" || snapshots[0].Rank != 1 {
		t.Errorf("expected alice at rank 1, got %s at rank %d", snapshots[0].Username, snapshots[0].Rank)
	}
	if snapshots[1].Username != "bob" || snapshots[1].Rank != 2 {
		t.Errorf("expected bob at rank 2, got %s at rank %d", snapshots[1].Username, snapshots[1].Rank)
	}
	for _, snap := range snapshots {
		if snap.BatchID != batchID {
			t.Errorf("expected all rows in batch %s, got %s", batchID, snap.BatchID)
		}
	}
}

func TestLatestSnapshotEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewScoreboardService(db)

	snapshots, err := svc.LatestSnapshot()
	if err != nil {
		t.Fatalf("latest snapshot failed: %v", err)
	}
	if len(snapshots) != 0 {
		t.Errorf("expected empty result without snapshots, got %d rows", len(snapshots))
	}
}
