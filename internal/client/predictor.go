// Package client implements the client side of the game protocol: local
// movement prediction with server reconciliation, and the WebSocket loop
// that feeds it.
package client

import (
	"sync"

	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

const (
	// Angular error below which reconciliation blends instead of
	// snapping, hiding floating-point drift between client and server.
	blendThreshold = 0.01
	// Convergence per reconciliation when blending.
	blendFactor = 0.25
)

// PendingInput is one locally simulated input awaiting server
// acknowledgment. DT is the delta time of the original simulation step;
// replay uses it, not the current frame's delta, so the replayed
// integration reproduces the original exactly.
type PendingInput struct {
	Seq         int
	Keys        protocol.KeyState
	TurretAngle float64
	DT          float64
}

// Predictor keeps the locally controlled actor moving every render frame
// without waiting for a round trip, and reconciles the speculative state
// against authoritative server snapshots. The local simulation tick and
// the network receive callback both touch the actor state, so every
// operation is a single atomic unit under one mutex.
type Predictor struct {
	mu         sync.Mutex
	pose       sphere.Pose
	pending    []PendingInput
	nextSeq    int
	lastSent   int
	lastKeys   protocol.KeyState
	lastTurret float64
	collide    sphere.CollisionFunc
}

// NewPredictor creates a predictor starting at the given pose. The
// collision function models client-local terrain; the server does not
// simulate fine-grained terrain, so replay applies it locally too.
func NewPredictor(start sphere.Pose, collide sphere.CollisionFunc) *Predictor {
	return &Predictor{pose: start, collide: collide}
}

func inputState(k protocol.KeyState) sphere.InputState {
	return sphere.InputState{
		Forward: k.W,
		Back:    k.S,
		Left:    k.A,
		Right:   k.D,
		Boost:   k.Shift,
	}
}

// Step runs one local simulation step: assigns the next sequence number,
// buffers the input, and applies it to the speculative pose immediately.
func (p *Predictor) Step(keys protocol.KeyState, turretAngle, dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSeq++
	p.pending = append(p.pending, PendingInput{
		Seq:         p.nextSeq,
		Keys:        keys,
		TurretAngle: turretAngle,
		DT:          dt,
	})
	p.lastKeys = keys
	p.lastTurret = turretAngle
	p.pose = sphere.StepPose(p.pose, inputState(keys), dt, p.collide)
}

// LatestInput returns the most recent input for transmission, or false
// if nothing new happened since the last call. Each input carries full
// key state, so the server only needs the latest one per transmission
// window; older un-sent inputs are never retransmitted.
func (p *Predictor) LatestInput() (protocol.Input, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nextSeq == 0 || p.nextSeq == p.lastSent {
		return protocol.Input{}, false
	}
	p.lastSent = p.nextSeq
	return protocol.Input{Keys: p.lastKeys, TurretAngle: p.lastTurret, Seq: p.nextSeq}, true
}

// Reconcile applies an authoritative server state: discards inputs the
// server has incorporated, hard-sets the pose to the authoritative
// values, and replays the remaining buffered inputs in original order
// with their original delta times. A stale acknowledgment (older than
// every buffered input) discards nothing but still reconciles, so
// out-of-order snapshots cannot lose inputs.
func (p *Predictor) Reconcile(st protocol.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.pending[:0]
	for _, in := range p.pending {
		if in.Seq > st.Seq {
			kept = append(kept, in)
		}
	}
	p.pending = kept

	pre := p.pose
	p.pose = sphere.Pose{Theta: st.T, Phi: st.P, Heading: st.H, Speed: st.S}
	for _, in := range p.pending {
		p.pose = sphere.StepPose(p.pose, inputState(in.Keys), in.DT, p.collide)
	}

	err := sphere.AngularDistance(pre.Theta, pre.Phi, p.pose.Theta, p.pose.Phi)
	if err > 0 && err < blendThreshold {
		p.pose = sphere.BlendPose(pre, p.pose, blendFactor)
	}
}

// Pose returns the current speculative pose.
func (p *Predictor) Pose() sphere.Pose {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pose
}

// PendingSeqs returns the sequence numbers currently buffered, oldest
// first.
func (p *Predictor) PendingSeqs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.pending))
	for i, in := range p.pending {
		out[i] = in.Seq
	}
	return out
}

// Reset discards all prediction state. Used on disconnect; a reconnect
// starts from a fresh full snapshot with no partial-state carryover.
func (p *Predictor) Reset(start sphere.Pose) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pose = start
	p.pending = nil
	p.nextSeq = 0
	p.lastSent = 0
	p.lastKeys = protocol.KeyState{}
	p.lastTurret = 0
}
