// Package ptz simulates the pan-tilt-zoom head of the camera.
//
// Position is never advanced by a background ticker. The engine stores an
// anchor position, the velocity applied since the anchor and the anchor time,
// and integrates on every read.
package ptz

import (
	"math"
	"time"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// Vector is a normalized pan/tilt/zoom triple. It is used for positions,
// velocities and relative translations alike.
type Vector struct {
	Pan  float64 `json:"pan" yaml:"pan"`
	Tilt float64 `json:"tilt" yaml:"tilt"`
	Zoom float64 `json:"zoom" yaml:"zoom"`
}

// IsZero reports whether every component is zero
func (v Vector) IsZero() bool {
	return v.Pan == 0 && v.Tilt == 0 && v.Zoom == 0
}

// Add returns the component-wise sum of v and o
func (v Vector) Add(o Vector) Vector {
	return Vector{Pan: v.Pan + o.Pan, Tilt: v.Tilt + o.Tilt, Zoom: v.Zoom + o.Zoom}
}

// Scale returns v multiplied by f
func (v Vector) Scale(f float64) Vector {
	return Vector{Pan: v.Pan * f, Tilt: v.Tilt * f, Zoom: v.Zoom * f}
}

// Axes is a position or speed where any axis may be omitted
type Axes struct {
	Pan  *float64
	Tilt *float64
	Zoom *float64
}

// Over returns base with every given axis replaced
func (a Axes) Over(base Vector) Vector {
	if a.Pan != nil {
		base.Pan = *a.Pan
	}
	if a.Tilt != nil {
		base.Tilt = *a.Tilt
	}
	if a.Zoom != nil {
		base.Zoom = *a.Zoom
	}
	return base
}

// Limits are the soft ranges of the simulated head
type Limits struct {
	Pan      onvif.Range `yaml:"pan"`
	Tilt     onvif.Range `yaml:"tilt"`
	Zoom     onvif.Range `yaml:"zoom"`
	Velocity onvif.Range `yaml:"velocity"`
}

// DefaultLimits returns the generic ONVIF spaces: pan and tilt in [-1,1],
// zoom in [0,1], speeds in [-1,1]
func DefaultLimits() Limits {
	return Limits{
		Pan:      onvif.Range{Min: -1, Max: 1},
		Tilt:     onvif.Range{Min: -1, Max: 1},
		Zoom:     onvif.Range{Min: 0, Max: 1},
		Velocity: onvif.Range{Min: -1, Max: 1},
	}
}

// ClampPosition limits every component of p into its range
func (l Limits) ClampPosition(p Vector) Vector {
	return Vector{
		Pan:  l.Pan.Clamp(p.Pan),
		Tilt: l.Tilt.Clamp(p.Tilt),
		Zoom: l.Zoom.Clamp(p.Zoom),
	}
}

// ClampVelocity limits every component of v into the velocity range. A
// NaN component is taken as 0.
func (l Limits) ClampVelocity(v Vector) Vector {
	speed := func(s float64) float64 {
		if math.IsNaN(s) {
			return 0
		}
		return l.Velocity.Clamp(s)
	}
	return Vector{Pan: speed(v.Pan), Tilt: speed(v.Tilt), Zoom: speed(v.Zoom)}
}

// Authority says where the reported position comes from
type Authority int

const (
	// LocalSimulation integrates velocity over time inside the engine
	LocalSimulation Authority = iota
	// ExternallyFed reports whatever the actuator last fed back
	ExternallyFed
)

func (a Authority) String() string {
	if a == ExternallyFed {
		return "externally-fed"
	}
	return "local-simulation"
}

// MoveStatus mirrors tt:MoveStatus
type MoveStatus string

const (
	MoveIdle   MoveStatus = "IDLE"
	MoveMoving MoveStatus = "MOVING"
)

// Status is a snapshot of the head as returned by GetStatus
type Status struct {
	Position  Vector
	Velocity  Vector
	Move      MoveStatus
	Authority Authority
	UTCTime   time.Time
}
