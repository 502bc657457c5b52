package client

import (
	"reflect"
	"testing"

	"github.com/mtkocz/AdLands-sub002/internal/gateway"
	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

// serverWorld builds an initialized server-side gateway over its own
// mesh, standing in for the world the welcome message describes.
func serverWorld(t *testing.T) *gateway.Gateway {
	t.Helper()
	m := sphere.GenerateMesh(10, 12)
	g := sphere.BuildAdjacency(m.Tiles)
	sphere.MarkPortalBorders(m.Tiles, g)
	p := sphere.NewPartition(m.Tiles, g)
	p.Initialize(sphere.ExcludedTiles(m.Tiles))
	return gateway.New(p)
}

func TestClient_ApplyWelcome(t *testing.T) {
	server := serverWorld(t)
	c := New(Config{Mesh: sphere.GenerateMesh(10, 12)})

	welcome := protocol.Welcome{
		PlayerID: "p1",
		Faction:  "rust",
		TickRate: protocol.ServerTickHz,
		World:    server.BuildWorldSnapshot(),
	}
	if err := c.applyWelcome(welcome); err != nil {
		t.Fatalf("apply welcome: %v", err)
	}

	if c.PlayerID() != "p1" {
		t.Errorf("player id = %q, want p1", c.PlayerID())
	}
	if c.Faction() != sphere.Rust {
		t.Errorf("faction = %v, want %v", c.Faction(), sphere.Rust)
	}
	got := c.Gateway().Partition().Snapshot()
	want := server.Partition().Snapshot()
	if !reflect.DeepEqual(got, want) {
		t.Error("client partition should mirror the welcome snapshot")
	}
}

func TestClient_ApplyWelcomeRejectsMismatchedWorld(t *testing.T) {
	server := serverWorld(t)
	// A client built over a differently sized mesh cannot accept the
	// snapshot; identity must stay unset.
	c := New(Config{Mesh: sphere.GenerateMesh(6, 8)})

	err := c.applyWelcome(protocol.Welcome{
		PlayerID: "p1",
		Faction:  "rust",
		World:    server.BuildWorldSnapshot(),
	})
	if err == nil {
		t.Fatal("expected snapshot over a mismatched mesh to be rejected")
	}
	if c.PlayerID() != "" || c.Faction() != sphere.FactionNone {
		t.Errorf("identity set despite rejected welcome: id=%q faction=%v",
			c.PlayerID(), c.Faction())
	}
}
