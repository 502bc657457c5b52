package client

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mtkocz/AdLands-sub002/internal/gateway"
	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

// DrivePolicy produces the key state for one simulation tick. The
// input/camera layer implements this in the real client; bots script it.
type DrivePolicy func(tick int) (protocol.KeyState, float64)

// Config holds what a client needs to connect and simulate.
type Config struct {
	URL   string // ws:// endpoint
	Token string // JWT passed as ?token=
	Mesh  *sphere.Mesh
}

// Client is a headless game client: it connects, applies authoritative
// world state through a local gateway, and keeps its own actor smooth
// through the predictor.
type Client struct {
	cfg       Config
	gw        *gateway.Gateway
	predictor *Predictor
	playerID  string
	faction   sphere.Faction
}

// New creates a client over the given mesh. The local partition starts
// empty; the welcome snapshot populates it.
func New(cfg Config) *Client {
	g := sphere.BuildAdjacency(cfg.Mesh.Tiles)
	sphere.MarkPortalBorders(cfg.Mesh.Tiles, g)
	p := sphere.NewPartition(cfg.Mesh.Tiles, g)
	return &Client{
		cfg:       cfg,
		gw:        gateway.New(p),
		predictor: NewPredictor(sphere.Pose{Theta: math.Pi / 2}, nil),
	}
}

// Gateway exposes the client's territory view (for rendering layers and
// tests).
func (c *Client) Gateway() *gateway.Gateway { return c.gw }

// Predictor exposes the movement predictor.
func (c *Client) Predictor() *Predictor { return c.predictor }

// PlayerID returns the id assigned by the welcome message.
func (c *Client) PlayerID() string { return c.playerID }

// Faction returns the faction assigned by the welcome message.
func (c *Client) Faction() sphere.Faction { return c.faction }

// Run connects and drives the client until ctx is canceled or the
// connection drops. The local simulation runs at ClientSimHz; input
// transmission is throttled to the server tick rate advertised in the
// welcome message.
func (c *Client) Run(ctx context.Context, drive DrivePolicy) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL+"?token="+c.cfg.Token, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	welcome, err := c.readWelcome(conn)
	if err != nil {
		return err
	}
	log.Info().Str("playerId", c.playerID).Str("faction", welcome.Faction).
		Int("tickRate", welcome.TickRate).Msg("Connected")

	recvErr := make(chan error, 1)
	go c.readPump(conn, recvErr)

	simTicker := time.NewTicker(time.Second / protocol.ClientSimHz)
	defer simTicker.Stop()
	tickRate := welcome.TickRate
	if tickRate <= 0 {
		tickRate = protocol.ServerTickHz
	}
	sendTicker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer sendTicker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case err := <-recvErr:
			return err
		case <-simTicker.C:
			tick++
			keys, turret := drive(tick)
			c.predictor.Step(keys, turret, 1.0/protocol.ClientSimHz)
		case <-sendTicker.C:
			in, ok := c.predictor.LatestInput()
			if !ok {
				continue
			}
			b, err := protocol.Encode(protocol.MsgInput, in)
			if err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return fmt.Errorf("send input: %w", err)
			}
		}
	}
}

// readWelcome blocks for the welcome message and applies its snapshot.
func (c *Client) readWelcome(conn *websocket.Conn) (*protocol.Welcome, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if env.T != protocol.MsgWelcome {
		return nil, fmt.Errorf("expected welcome, got %q", env.T)
	}
	welcome, err := protocol.DecodePayload[protocol.Welcome](env)
	if err != nil {
		return nil, err
	}
	if err := c.applyWelcome(welcome); err != nil {
		return nil, err
	}
	return &welcome, nil
}

// applyWelcome seeds the local world and identity from the welcome
// payload.
func (c *Client) applyWelcome(welcome protocol.Welcome) error {
	if err := c.gw.ApplyWorldSnapshot(welcome.World); err != nil {
		return fmt.Errorf("apply welcome snapshot: %w", err)
	}
	c.playerID = welcome.PlayerID
	c.faction = sphere.ParseFaction(welcome.Faction)
	return nil
}

// readPump applies authoritative messages as they arrive. State updates
// go through the predictor (which serializes against the simulation
// tick); territory messages go through the gateway.
func (c *Client) readPump(conn *websocket.Conn, done chan<- error) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			done <- fmt.Errorf("read: %w", err)
			return
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping malformed message")
			continue
		}
		switch env.T {
		case protocol.MsgState:
			st, err := protocol.DecodePayload[protocol.State](env)
			if err != nil {
				continue
			}
			c.predictor.Reconcile(st)
		case protocol.MsgTerritoryUpdate:
			tu, err := protocol.DecodePayload[protocol.TerritoryUpdate](env)
			if err != nil {
				continue
			}
			c.gw.ApplyTerritoryUpdate(tu)
		case protocol.MsgWorldSnapshot:
			ws, err := protocol.DecodePayload[protocol.WorldSnapshot](env)
			if err != nil {
				continue
			}
			if err := c.gw.ApplyWorldSnapshot(ws); err != nil {
				log.Warn().Err(err).Msg("Rejecting world snapshot")
			}
		}
	}
}
