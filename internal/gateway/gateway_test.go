package gateway

import (
	"reflect"
	"testing"

	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	m := sphere.GenerateMesh(10, 12)
	g := sphere.BuildAdjacency(m.Tiles)
	sphere.MarkPortalBorders(m.Tiles, g)
	p := sphere.NewPartition(m.Tiles, g)
	p.Initialize(sphere.ExcludedTiles(m.Tiles))
	return New(p)
}

// claimSome claims n background tiles for the sponsor.
func claimSome(t *testing.T, gw *Gateway, sponsorID string, n int) int {
	t.Helper()
	var tiles []int
	for i := range gw.Partition().Tiles() {
		if gw.Partition().ClusterOf(i) == sphere.BackgroundClusterID {
			tiles = append(tiles, i)
			if len(tiles) == n {
				break
			}
		}
	}
	id, ok := gw.ClaimSponsor(tiles, sponsorID, protocol.ClusterVisual{Color: "#b7410e", Pattern: "solid"})
	if !ok {
		t.Fatalf("claim %s failed", sponsorID)
	}
	return id
}

func TestGateway_SnapshotRoundTrip(t *testing.T) {
	server := newTestGateway(t)
	id := claimSome(t, server, "acme", 4)
	ws := server.BuildWorldSnapshot()

	client := newTestGateway(t)
	if err := client.ApplyWorldSnapshot(ws); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	if !reflect.DeepEqual(client.Partition().Snapshot(), server.Partition().Snapshot()) {
		t.Error("client partition should equal server partition after snapshot apply")
	}
	if client.Partition().Capture(id) == nil {
		t.Error("sponsor cluster should be capturable after snapshot apply")
	}

	// Idempotence: applying the identical snapshot again changes nothing.
	before := client.Partition().Snapshot()
	if err := client.ApplyWorldSnapshot(ws); err != nil {
		t.Fatalf("re-apply snapshot: %v", err)
	}
	if !reflect.DeepEqual(before, client.Partition().Snapshot()) {
		t.Error("applying the same snapshot twice must be idempotent")
	}
}

func TestGateway_SnapshotOverridesSpeculativeEdits(t *testing.T) {
	server := newTestGateway(t)
	claimSome(t, server, "acme", 4)
	ws := server.BuildWorldSnapshot()

	client := newTestGateway(t)
	claimSome(t, client, "local-speculation", 3)
	if err := client.ApplyWorldSnapshot(ws); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
	if client.Partition().Sponsor("local-speculation") != nil {
		t.Error("snapshot apply must discard local speculative sponsor edits")
	}
	if client.Partition().Sponsor("acme") == nil {
		t.Error("snapshot apply must install the server's sponsors")
	}
}

func TestGateway_SnapshotSizeMismatch(t *testing.T) {
	client := newTestGateway(t)
	if err := client.ApplyWorldSnapshot(protocol.WorldSnapshot{TileClusterMap: []int{0, 1}}); err == nil {
		t.Error("snapshot over the wrong tile count must be rejected")
	}
}

func TestGateway_TerritoryUpdateEvents(t *testing.T) {
	server := newTestGateway(t)
	id := claimSome(t, server, "acme", 4)
	server.Partition().Capture(id).ApplyAuthoritative(sphere.Rust, map[sphere.Faction]int{sphere.Rust: 3})
	tu, ok := server.BuildTerritoryUpdate(id)
	if !ok {
		t.Fatal("territory update for sponsor cluster should exist")
	}

	client := newTestGateway(t)
	if err := client.ApplyWorldSnapshot(server.BuildWorldSnapshot()); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	var events []Event
	client.SetHandler(func(ev Event) { events = append(events, ev) })

	client.ApplyTerritoryUpdate(tu)
	client.ApplyTerritoryUpdate(tu) // duplicate delivery
	client.ApplyTerritoryUpdate(tu)

	owned := 0
	for _, ev := range events {
		if ev.Kind == EventOwnerChanged {
			owned++
			if ev.To != sphere.Rust || ev.ClusterID != id {
				t.Errorf("event = %+v, want rust on cluster %d", ev, id)
			}
		}
	}
	if owned != 1 {
		t.Errorf("got %d owner-changed events for repeated identical updates, want exactly 1", owned)
	}
	if got := client.Partition().Capture(id).Tics(sphere.Rust); got != 3 {
		t.Errorf("tics = %d, want 3", got)
	}
}

func TestGateway_TerritoryUpdateUnknownCluster(t *testing.T) {
	client := newTestGateway(t)
	// A delta racing ahead of the snapshot: dropped, not fatal.
	client.ApplyTerritoryUpdate(protocol.TerritoryUpdate{ClusterID: 99, Owner: "rust"})
}

func TestGateway_ContributeEmitsOnce(t *testing.T) {
	gw := newTestGateway(t)
	id := claimSome(t, gw, "acme", 2) // capacity 10

	var events []Event
	gw.SetHandler(func(ev Event) { events = append(events, ev) })

	if gw.Contribute(id, sphere.Viridian, 9) {
		t.Fatal("9/10 tics should not flip")
	}
	if !gw.Contribute(id, sphere.Viridian, 1) {
		t.Fatal("10/10 tics should flip")
	}
	owned := 0
	for _, ev := range events {
		if ev.Kind == EventOwnerChanged {
			owned++
		}
	}
	if owned != 1 {
		t.Errorf("got %d owner events, want 1", owned)
	}
}

func TestGateway_SponsorLifecycleEvents(t *testing.T) {
	gw := newTestGateway(t)
	var events []Event
	gw.SetHandler(func(ev Event) { events = append(events, ev) })

	id := claimSome(t, gw, "acme", 3)
	if gw.RemoveSponsors([]string{"acme", "nobody"}) != 1 {
		t.Fatal("exactly one sponsor should be removed")
	}

	want := []EventKind{EventSponsorClaimed, EventSponsorRemoved}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Kind != want[i] || ev.SponsorID != "acme" || ev.ClusterID != id {
			t.Errorf("event[%d] = %+v", i, ev)
		}
	}

	ws := gw.BuildWorldSnapshot()
	if _, ok := ws.ClusterVisuals[id]; ok {
		t.Error("removed sponsor's visual should not linger in snapshots")
	}
}

func TestGateway_SnapshotSpecialTileSets(t *testing.T) {
	gw := newTestGateway(t)
	ws := gw.BuildWorldSnapshot()
	if len(ws.PolarTileIndices) == 0 {
		t.Error("snapshot should list polar tiles")
	}
	if len(ws.PortalCenterIndices) == 0 {
		t.Error("snapshot should list portal centers")
	}
	for _, idx := range ws.PortalCenterIndices {
		if ws.TileClusterMap[idx] != sphere.Unassigned {
			t.Errorf("portal tile %d must be unassigned", idx)
		}
	}
}
