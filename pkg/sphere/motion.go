package sphere

import "math"

// Movement tuning shared by the authoritative server step and the client
// prediction step. Both sides must integrate identically or reconciliation
// replay cannot reproduce the server's result.
const (
	maxSpeed   = 0.35 // rad/s over the unit sphere
	boostScale = 1.8
	accelRate  = 0.6 // rad/s^2
	brakeRate  = 1.2
	dragRate   = 0.4
	turnRate   = 2.4 // rad/s

	poleMargin = 1e-3
)

// InputState is one frame of movement intent.
type InputState struct {
	Forward bool
	Back    bool
	Left    bool
	Right   bool
	Boost   bool
}

// Pose is an actor's simulation state on the sphere: colatitude theta,
// longitude phi, heading (0 = toward the north pole), and scalar speed.
type Pose struct {
	Theta   float64
	Phi     float64
	Heading float64
	Speed   float64
}

// CollisionFunc reports whether a position is blocked by local terrain.
// Terrain collision is purely client-local; the server passes nil.
type CollisionFunc func(theta, phi float64) bool

// StepPose advances a pose by one fixed simulation step. Pure and
// deterministic: replaying the same inputs with the same delta times from
// the same base pose reproduces the same trajectory bit for bit.
func StepPose(p Pose, in InputState, dt float64, blocked CollisionFunc) Pose {
	if in.Left {
		p.Heading -= turnRate * dt
	}
	if in.Right {
		p.Heading += turnRate * dt
	}
	p.Heading = wrapAngle(p.Heading)

	limit := maxSpeed
	if in.Boost {
		limit *= boostScale
	}
	switch {
	case in.Forward:
		p.Speed += accelRate * dt
	case in.Back:
		p.Speed -= brakeRate * dt
	default:
		drag := dragRate * dt
		switch {
		case p.Speed > drag:
			p.Speed -= drag
		case p.Speed < -drag:
			p.Speed += drag
		default:
			p.Speed = 0
		}
	}
	if p.Speed > limit {
		p.Speed = limit
	}
	if p.Speed < -limit/2 {
		p.Speed = -limit / 2
	}

	step := p.Speed * dt
	theta := p.Theta - step*math.Cos(p.Heading)
	sin := math.Sin(p.Theta)
	if sin < poleMargin {
		sin = poleMargin
	}
	phi := wrapLongitude(p.Phi + step*math.Sin(p.Heading)/sin)
	theta = clamp(theta, poleMargin, math.Pi-poleMargin)

	if blocked != nil && blocked(theta, phi) {
		p.Speed = 0
		return p
	}
	p.Theta = theta
	p.Phi = phi
	return p
}

// AngularDistance returns the great-circle distance between two angular
// positions on the unit sphere.
func AngularDistance(aTheta, aPhi, bTheta, bPhi float64) float64 {
	cos := math.Cos(aTheta)*math.Cos(bTheta) +
		math.Sin(aTheta)*math.Sin(bTheta)*math.Cos(aPhi-bPhi)
	return math.Acos(clamp(cos, -1, 1))
}

// BlendPose moves from toward to by fraction t, taking the short way
// around in longitude and heading. Speed adopts the target immediately;
// only the visible position and orientation are smoothed.
func BlendPose(from, to Pose, t float64) Pose {
	return Pose{
		Theta:   from.Theta + (to.Theta-from.Theta)*t,
		Phi:     wrapLongitude(from.Phi + shortestDelta(from.Phi, to.Phi)*t),
		Heading: wrapAngle(from.Heading + shortestDelta(from.Heading, to.Heading)*t),
		Speed:   to.Speed,
	}
}

func shortestDelta(from, to float64) float64 {
	d := math.Mod(to-from, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	}
	if d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func wrapLongitude(phi float64) float64 { return wrapAngle(phi) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
