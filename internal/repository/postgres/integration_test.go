//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/internal/repository"
	"github.com/mtkocz/AdLands-sub002/internal/testutil"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

func TestSponsorRepo_SaveListDelete(t *testing.T) {
	db := testutil.SetupDB(t)
	testutil.CleanupDB(t, db)
	repo := NewSponsorRepo(db)
	ctx := context.Background()

	capturedAt := time.Now().UTC().Truncate(time.Millisecond)
	stored := repository.StoredSponsor{
		Record: sphere.SponsorRecord{
			ID:           "acme",
			ClusterID:    3,
			ClaimedTiles: []int{10, 11, 12},
			Owner:        sphere.Rust,
			CapturedAt:   capturedAt,
			HoldDuration: 45 * time.Minute,
		},
		Visual: protocol.ClusterVisual{Color: "#b7410e", Pattern: "solid"},
	}
	if err := repo.Save(ctx, stored); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d sponsors, want 1", len(got))
	}
	s := got[0]
	if s.Record.ID != "acme" || s.Record.ClusterID != 3 {
		t.Errorf("record = %+v", s.Record)
	}
	if len(s.Record.ClaimedTiles) != 3 || s.Record.ClaimedTiles[0] != 10 {
		t.Errorf("tiles = %v, want [10 11 12]", s.Record.ClaimedTiles)
	}
	if s.Record.Owner != sphere.Rust {
		t.Errorf("owner = %v, want rust", s.Record.Owner)
	}
	if !s.Record.CapturedAt.Equal(capturedAt) {
		t.Errorf("capturedAt = %v, want %v", s.Record.CapturedAt, capturedAt)
	}
	if s.Record.HoldDuration != 45*time.Minute {
		t.Errorf("hold = %v, want 45m", s.Record.HoldDuration)
	}
	if s.Visual.Color != "#b7410e" || s.Visual.Pattern != "solid" {
		t.Errorf("visual = %+v", s.Visual)
	}

	if err := repo.Delete(ctx, "acme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d sponsors after delete, want 0", len(got))
	}

	// Deleting a missing record is not an error.
	if err := repo.Delete(ctx, "nobody"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestSponsorRepo_SaveUpserts(t *testing.T) {
	db := testutil.SetupDB(t)
	testutil.CleanupDB(t, db)
	repo := NewSponsorRepo(db)
	ctx := context.Background()

	stored := repository.StoredSponsor{
		Record: sphere.SponsorRecord{ID: "acme", ClusterID: 1, ClaimedTiles: []int{5}},
		Visual: protocol.ClusterVisual{Color: "#111111"},
	}
	if err := repo.Save(ctx, stored); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored.Record.ClusterID = 9
	stored.Record.Owner = sphere.Viridian
	if err := repo.Save(ctx, stored); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d sponsors, want 1 after upsert", len(got))
	}
	if got[0].Record.ClusterID != 9 || got[0].Record.Owner != sphere.Viridian {
		t.Errorf("upserted record = %+v", got[0].Record)
	}
}

func TestSponsorRepo_ListOrdersByCreation(t *testing.T) {
	db := testutil.SetupDB(t)
	testutil.CleanupDB(t, db)
	repo := NewSponsorRepo(db)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		err := repo.Save(ctx, repository.StoredSponsor{
			Record: sphere.SponsorRecord{ID: id, ClaimedTiles: []int{1}},
		})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	got, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, id := range want {
		if got[i].Record.ID != id {
			t.Errorf("list[%d] = %s, want %s", i, got[i].Record.ID, id)
		}
	}
}
