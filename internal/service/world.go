// Package service runs the authoritative world: a single fixed-rate tick
// loop that owns every mutation of the partition and capture state. All
// commands arrive through one inbox channel, so there is exactly one
// writer and no locking inside the territory core.
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mtkocz/AdLands-sub002/internal/gateway"
	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/internal/repository"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

// Broadcaster is the fan-out surface the handler layer implements.
// Sends are fire-and-forget; a slow client loses messages, not the tick.
type Broadcaster interface {
	Broadcast(data []byte)
	SendTo(playerID string, data []byte)
}

// Join registers a player. The reply carries everything the handler
// needs to compose the welcome message.
type Join struct {
	PlayerID string
	Reply    chan JoinResult
}

// JoinResult is the world's answer to a Join.
type JoinResult struct {
	Faction  sphere.Faction
	TickRate int
	World    protocol.WorldSnapshot
}

// Leave discards a player's server-side state.
type Leave struct {
	PlayerID string
}

// InputCmd delivers a movement input. Each input carries full key state,
// so only the latest one per player matters.
type InputCmd struct {
	PlayerID string
	Input    protocol.Input
}

// ClaimSponsor carves out a sponsor cluster.
type ClaimSponsor struct {
	SponsorID string
	Tiles     []int
	Visual    protocol.ClusterVisual
	Hold      time.Duration
	Reply     chan ClaimResult
}

// ClaimResult reports the allocated cluster id, or OK false for the
// documented claim-nothing no-op.
type ClaimResult struct {
	ClusterID int
	OK        bool
}

// RemoveSponsor removes a sponsor cluster.
type RemoveSponsor struct {
	SponsorID string
}

// Scramble regenerates the background partition.
type Scramble struct {
	Seed int64
}

type player struct {
	id      string
	faction sphere.Faction
	pose    sphere.Pose
	latest  protocol.Input
	lastSeq int
}

// World is the authoritative game world.
type World struct {
	Inbox chan any

	mesh     *sphere.Mesh
	gw       *gateway.Gateway
	bc       Broadcaster
	sponsors repository.SponsorRepository
	store    repository.WorldStateStore

	tickRate  int
	players   map[string]*player
	joined    int
	dirty     map[int]bool // capturable clusters touched this tick
	restoring bool         // true while Bootstrap replays stored state
}

// NewWorld creates a world over the given mesh and gateway. Repositories
// may be nil in tests; persistence is then skipped.
func NewWorld(mesh *sphere.Mesh, gw *gateway.Gateway, bc Broadcaster,
	sponsors repository.SponsorRepository, store repository.WorldStateStore, tickRate int) *World {
	if tickRate <= 0 {
		tickRate = protocol.ServerTickHz
	}
	w := &World{
		Inbox:    make(chan any, 256),
		mesh:     mesh,
		gw:       gw,
		bc:       bc,
		sponsors: sponsors,
		store:    store,
		tickRate: tickRate,
		players:  make(map[string]*player),
		dirty:    make(map[int]bool),
	}
	gw.SetHandler(w.onEvent)
	return w
}

// Bootstrap prepares the partition: rehydrate from the live store if a
// snapshot exists, otherwise build a fresh background partition and
// replay the durable sponsor records onto it.
func (w *World) Bootstrap(ctx context.Context) error {
	w.restoring = true
	defer func() { w.restoring = false }()

	if w.store != nil {
		ws, err := w.store.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("load world snapshot: %w", err)
		}
		if ws != nil {
			if err := w.gw.ApplyWorldSnapshot(*ws); err != nil {
				return fmt.Errorf("rehydrate world: %w", err)
			}
			if err := w.restoreSponsorState(ctx); err != nil {
				return err
			}
			territories, err := w.store.LoadTerritories(ctx)
			if err != nil {
				return fmt.Errorf("load territories: %w", err)
			}
			for _, tu := range territories {
				w.gw.ApplyTerritoryUpdate(tu)
			}
			log.Info().Int("clusters", len(ws.Clusters)).Msg("World rehydrated from live store")
			return nil
		}
	}

	w.gw.Partition().Initialize(sphere.ExcludedTiles(w.mesh.Tiles))
	if w.store != nil {
		// A missing snapshot does not imply an empty territory hash; drop
		// whatever a previous run left so cluster ids can't cross wires.
		if err := w.store.Clear(ctx); err != nil {
			return fmt.Errorf("clear stale world state: %w", err)
		}
	}
	if w.sponsors != nil {
		stored, err := w.sponsors.List(ctx)
		if err != nil {
			return fmt.Errorf("list sponsors: %w", err)
		}
		for _, s := range stored {
			if _, ok := w.gw.ClaimSponsor(s.Record.ClaimedTiles, s.Record.ID, s.Visual); !ok {
				log.Warn().Str("sponsorId", s.Record.ID).Msg("Stored sponsor claim had no claimable tiles")
				continue
			}
			rec := w.gw.Partition().Sponsor(s.Record.ID)
			rec.Owner = s.Record.Owner
			rec.CapturedAt = s.Record.CapturedAt
			rec.HoldDuration = s.Record.HoldDuration
		}
		log.Info().Int("sponsors", len(stored)).Msg("World generated, sponsors replayed")
	}
	w.persistSnapshot(ctx)
	return nil
}

// restoreSponsorState overlays the durable sponsor fields onto the
// rehydrated partition. The snapshot carries geometry only; owner and
// hold timer live in the sponsor repository and must survive a restart
// so captured clusters keep counting down.
func (w *World) restoreSponsorState(ctx context.Context) error {
	if w.sponsors == nil {
		return nil
	}
	stored, err := w.sponsors.List(ctx)
	if err != nil {
		return fmt.Errorf("list sponsors: %w", err)
	}
	for _, s := range stored {
		rec := w.gw.Partition().Sponsor(s.Record.ID)
		if rec == nil {
			log.Warn().Str("sponsorId", s.Record.ID).Msg("Stored sponsor missing from rehydrated world")
			continue
		}
		rec.Owner = s.Record.Owner
		rec.CapturedAt = s.Record.CapturedAt
		rec.HoldDuration = s.Record.HoldDuration
	}
	return nil
}

// Run drives the world at the configured tick rate until ctx is
// canceled. Commands interleave with ticks on the same goroutine; every
// mutation of territory state happens here.
func (w *World) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(w.tickRate))
	defer ticker.Stop()
	log.Info().Int("tickRate", w.tickRate).Msg("World loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("World loop stopped")
			return
		case cmd := <-w.Inbox:
			w.handleCommand(ctx, cmd)
		case <-ticker.C:
			w.tick(ctx, time.Now())
		}
	}
}

func (w *World) handleCommand(ctx context.Context, cmd any) {
	switch c := cmd.(type) {
	case Join:
		c.Reply <- w.join(c.PlayerID)
	case Leave:
		delete(w.players, c.PlayerID)
		log.Info().Str("playerId", c.PlayerID).Msg("Player left")
	case InputCmd:
		if p, ok := w.players[c.PlayerID]; ok && c.Input.Seq > p.latest.Seq {
			p.latest = c.Input
		}
	case ClaimSponsor:
		c.Reply <- w.claimSponsor(ctx, c)
	case RemoveSponsor:
		w.removeSponsors(ctx, []string{c.SponsorID})
	case Scramble:
		w.gw.Scramble(c.Seed)
		w.resetTerritoryStore(ctx)
		w.broadcastWorld(ctx)
	}
}

// join assigns the player a faction round-robin and a spawn pose spread
// around the equator.
func (w *World) join(playerID string) JoinResult {
	factions := sphere.AllFactions()
	f := factions[w.joined%len(factions)]
	w.joined++
	w.players[playerID] = &player{
		id:      playerID,
		faction: f,
		pose: sphere.Pose{
			Theta: math.Pi / 2,
			Phi:   math.Mod(float64(w.joined)*2.39996, 2*math.Pi),
		},
	}
	log.Info().Str("playerId", playerID).Str("faction", f.String()).Msg("Player joined")
	return JoinResult{
		Faction:  f,
		TickRate: w.tickRate,
		World:    w.gw.BuildWorldSnapshot(),
	}
}

func (w *World) claimSponsor(ctx context.Context, c ClaimSponsor) ClaimResult {
	id, ok := w.gw.ClaimSponsor(c.Tiles, c.SponsorID, c.Visual)
	if !ok {
		return ClaimResult{}
	}
	rec := w.gw.Partition().Sponsor(c.SponsorID)
	rec.HoldDuration = c.Hold
	if w.sponsors != nil {
		if err := w.sponsors.Save(ctx, repository.StoredSponsor{Record: *rec, Visual: c.Visual}); err != nil {
			log.Error().Err(err).Str("sponsorId", c.SponsorID).Msg("Failed to persist sponsor")
		}
	}
	w.broadcastWorld(ctx)
	return ClaimResult{ClusterID: id, OK: true}
}

func (w *World) removeSponsors(ctx context.Context, ids []string) {
	clusters := make([]int, 0, len(ids))
	for _, id := range ids {
		if rec := w.gw.Partition().Sponsor(id); rec != nil {
			clusters = append(clusters, rec.ClusterID)
		}
	}
	if w.gw.RemoveSponsors(ids) == 0 {
		return
	}
	if w.sponsors != nil {
		for _, id := range ids {
			if err := w.sponsors.Delete(ctx, id); err != nil {
				log.Error().Err(err).Str("sponsorId", id).Msg("Failed to delete sponsor record")
			}
		}
	}
	if w.store != nil {
		for _, cid := range clusters {
			delete(w.dirty, cid)
			if err := w.store.DeleteTerritory(ctx, cid); err != nil {
				log.Error().Err(err).Int("clusterId", cid).Msg("Failed to delete territory state")
			}
		}
	}
	w.broadcastWorld(ctx)
}

// resetTerritoryStore rebuilds the cached per-cluster capture state
// after a scramble. Cluster ids are reallocated, so entries keyed by the
// old ids would rehydrate onto the wrong sponsors; drop the cache and
// re-key it from the post-scramble partition.
func (w *World) resetTerritoryStore(ctx context.Context) {
	clear(w.dirty)
	if w.store == nil {
		return
	}
	if err := w.store.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear world state store")
		return
	}
	for _, rec := range w.gw.Partition().Sponsors() {
		tu, ok := w.gw.BuildTerritoryUpdate(rec.ClusterID)
		if !ok {
			continue
		}
		if err := w.store.SaveTerritory(ctx, tu); err != nil {
			log.Error().Err(err).Int("clusterId", rec.ClusterID).Msg("Failed to persist territory")
		}
	}
}

// tick advances every actor one step, credits capture contribution for
// actors standing on capturable clusters, enforces sponsor hold timers,
// and broadcasts the results.
func (w *World) tick(ctx context.Context, now time.Time) {
	dt := 1.0 / float64(w.tickRate)
	part := w.gw.Partition()

	for _, p := range w.players {
		in := sphere.InputState{
			Forward: p.latest.Keys.W,
			Back:    p.latest.Keys.S,
			Left:    p.latest.Keys.A,
			Right:   p.latest.Keys.D,
			Boost:   p.latest.Keys.Shift,
		}
		// The server does not simulate fine-grained terrain: clients own
		// that correction locally, so the collision hook stays nil here.
		p.pose = sphere.StepPose(p.pose, in, dt, nil)
		p.lastSeq = p.latest.Seq

		tile := w.mesh.TileAt(p.pose.Theta, p.pose.Phi)
		if cid := part.ClusterOf(tile); cid != sphere.Unassigned {
			if part.Capture(cid) != nil {
				w.gw.Contribute(cid, p.faction, 1)
				w.dirty[cid] = true
			}
		}
	}

	w.expireHolds(ctx, now)
	w.flushTerritory(ctx)
	w.broadcastStates()
}

// expireHolds removes sponsor clusters whose hold timer has lapsed.
func (w *World) expireHolds(ctx context.Context, now time.Time) {
	var lapsed []string
	for _, rec := range w.gw.Partition().Sponsors() {
		if rec.HoldExpired(now) {
			lapsed = append(lapsed, rec.ID)
		}
	}
	if len(lapsed) > 0 {
		log.Info().Strs("sponsorIds", lapsed).Msg("Sponsor holds expired")
		w.removeSponsors(ctx, lapsed)
	}
}

// flushTerritory broadcasts and persists every cluster whose capture
// state changed this tick.
func (w *World) flushTerritory(ctx context.Context) {
	for cid := range w.dirty {
		tu, ok := w.gw.BuildTerritoryUpdate(cid)
		if !ok {
			continue
		}
		if b, err := protocol.Encode(protocol.MsgTerritoryUpdate, tu); err == nil {
			w.bc.Broadcast(b)
		}
		if w.store != nil {
			if err := w.store.SaveTerritory(ctx, tu); err != nil {
				log.Error().Err(err).Int("clusterId", cid).Msg("Failed to persist territory")
			}
		}
	}
	clear(w.dirty)
}

// broadcastStates sends each player its authoritative pose and the last
// input sequence incorporated into it.
func (w *World) broadcastStates() {
	for _, p := range w.players {
		st := protocol.State{
			T:   p.pose.Theta,
			P:   p.pose.Phi,
			H:   p.pose.Heading,
			S:   p.pose.Speed,
			Seq: p.lastSeq,
		}
		if b, err := protocol.Encode(protocol.MsgState, st); err == nil {
			w.bc.SendTo(p.id, b)
		}
	}
}

// broadcastWorld pushes a fresh full snapshot to everyone and persists
// it. Full snapshots fully replace client state, so this is also the
// desync recovery path.
func (w *World) broadcastWorld(ctx context.Context) {
	ws := w.gw.BuildWorldSnapshot()
	if b, err := protocol.Encode(protocol.MsgWorldSnapshot, ws); err == nil {
		w.bc.Broadcast(b)
	}
	w.persistSnapshot(ctx)
}

func (w *World) persistSnapshot(ctx context.Context) {
	if w.store == nil {
		return
	}
	if err := w.store.SaveSnapshot(ctx, w.gw.BuildWorldSnapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to persist world snapshot")
	}
}

// onEvent reacts to territory events on the tick goroutine: ownership
// flips stamp the sponsor's hold timer and are pushed out immediately.
func (w *World) onEvent(ev gateway.Event) {
	if ev.Kind != gateway.EventOwnerChanged {
		return
	}
	// Replayed flips during bootstrap are history, not news: the stored
	// capture timestamp stands, and nothing needs re-persisting.
	if w.restoring {
		return
	}
	log.Info().Int("clusterId", ev.ClusterID).
		Str("from", ev.From.String()).Str("to", ev.To.String()).
		Msg("Cluster ownership changed")
	for _, rec := range w.gw.Partition().Sponsors() {
		if rec.ClusterID == ev.ClusterID {
			rec.Owner = ev.To
			rec.CapturedAt = time.Now()
			if w.sponsors != nil {
				visual, _ := w.gw.Visual(ev.ClusterID)
				if err := w.sponsors.Save(context.Background(), repository.StoredSponsor{Record: *rec, Visual: visual}); err != nil {
					log.Error().Err(err).Str("sponsorId", rec.ID).Msg("Failed to persist capture")
				}
			}
			break
		}
	}
	w.dirty[ev.ClusterID] = true
}
