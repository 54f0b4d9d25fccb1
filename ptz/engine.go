package ptz

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures an Engine
type Options struct {
	Limits Limits
	// Home is the target of GotoHome. It is clamped into Limits.
	Home Vector
	// Forwarder receives every command after the state change is applied.
	// Nil disables forwarding.
	Forwarder Forwarder
	Logger    zerolog.Logger
	// Now is the clock used for integration. Defaults to time.Now.
	Now func() time.Time
}

// Engine owns the PTZ state of the device.
//
// Between commands the head moves at a constant velocity from an anchor,
// so the position at time t is clamp(anchor + velocity*(t-anchoredAt)).
// A continuous move with a timeout stops integrating at its deadline.
type Engine struct {
	mu sync.Mutex

	limits Limits
	home   Vector
	fwd    Forwarder
	log    zerolog.Logger
	now    func() time.Time

	anchor     Vector
	velocity   Vector
	anchoredAt time.Time
	deadline   time.Time

	authority Authority
	fed       Vector
}

// NewEngine creates an engine resting at the home position
func NewEngine(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	home := opts.Limits.ClampPosition(opts.Home)
	return &Engine{
		limits:     opts.Limits,
		home:       home,
		fwd:        opts.Forwarder,
		log:        opts.Logger.With().Str("component", "ptz").Logger(),
		now:        opts.Now,
		anchor:     home,
		anchoredAt: opts.Now(),
	}
}

// Limits returns the ranges the engine clamps into
func (e *Engine) Limits() Limits {
	return e.limits
}

// Home returns the clamped home position
func (e *Engine) Home() Vector {
	return e.home
}

// AbsoluteMove jumps to target, clamped into range, and cancels any
// continuous motion. It returns the position actually applied.
func (e *Engine) AbsoluteMove(target Vector) Vector {
	return e.AbsoluteMoveAxes(Axes{Pan: &target.Pan, Tilt: &target.Tilt, Zoom: &target.Zoom})
}

// AbsoluteMoveAxes is AbsoluteMove where omitted axes keep the position
// they have at the time of the move
func (e *Engine) AbsoluteMoveAxes(target Axes) Vector {
	e.mu.Lock()
	pos := e.absoluteLocked(target.Over(e.currentLocked(e.now())))
	e.mu.Unlock()

	e.log.Info().Float64("pan", pos.Pan).Float64("tilt", pos.Tilt).Float64("zoom", pos.Zoom).Msg("absolute move")
	e.forward(AbsoluteCommand(pos))
	return pos
}

// RelativeMove translates the current position by delta
func (e *Engine) RelativeMove(delta Vector) Vector {
	e.mu.Lock()
	pos := e.absoluteLocked(e.currentLocked(e.now()).Add(delta))
	e.mu.Unlock()

	e.log.Info().Float64("pan", pos.Pan).Float64("tilt", pos.Tilt).Float64("zoom", pos.Zoom).Msg("relative move")
	e.forward(AbsoluteCommand(pos))
	return pos
}

// GotoHome moves to the configured home position
func (e *Engine) GotoHome() Vector {
	e.mu.Lock()
	pos := e.absoluteLocked(e.home)
	e.mu.Unlock()

	e.log.Info().Msg("goto home")
	e.forward(AbsoluteCommand(pos))
	return pos
}

// ContinuousMove starts moving at velocity v, clamped per component. A
// positive timeout stops the motion once it has elapsed. A zero vector is
// equivalent to Stop.
func (e *Engine) ContinuousMove(v Vector, timeout time.Duration) Vector {
	e.mu.Lock()
	now := e.now()
	e.rebaseLocked(now)
	e.velocity = e.limits.ClampVelocity(v)
	e.deadline = time.Time{}
	if timeout > 0 && !e.velocity.IsZero() {
		e.deadline = now.Add(timeout)
	}
	vel := e.velocity
	e.mu.Unlock()

	e.log.Info().Float64("pan_speed", vel.Pan).Float64("tilt_speed", vel.Tilt).Float64("zoom_speed", vel.Zoom).
		Dur("timeout", timeout).Msg("continuous move")
	e.forward(ContinuousCommand(vel))
	return vel
}

// Stop freezes the head at its current computed position
func (e *Engine) Stop() Vector {
	e.mu.Lock()
	now := e.now()
	e.rebaseLocked(now)
	e.velocity = Vector{}
	e.deadline = time.Time{}
	pos := e.currentLocked(now)
	e.mu.Unlock()

	e.log.Info().Msg("stop")
	e.forward(StopCommand())
	return pos
}

// Status reports the current position. In externally fed mode it is the
// last position fed back by the actuator; otherwise it is integrated from
// the anchor without mutating stored state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	st := Status{
		Position:  e.currentLocked(now),
		Move:      MoveIdle,
		Authority: e.authority,
		UTCTime:   now.UTC(),
	}
	if e.movingLocked(now) {
		st.Velocity = e.velocity
		st.Move = MoveMoving
	}
	return st
}

// ApplyFeedback records a position reported by the external actuator and
// makes it authoritative. Absent fields keep their last known value.
func (e *Engine) ApplyFeedback(f Feedback) Vector {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	pos := e.limits.ClampPosition(Axes(f).Over(e.currentLocked(now)))

	e.rebaseLocked(now)
	e.anchor = pos
	e.fed = pos
	e.authority = ExternallyFed
	return pos
}

func (e *Engine) absoluteLocked(target Vector) Vector {
	e.anchor = e.limits.ClampPosition(target)
	e.anchoredAt = e.now()
	e.velocity = Vector{}
	e.deadline = time.Time{}
	return e.anchor
}

// rebaseLocked moves the anchor to the position integrated up to now
func (e *Engine) rebaseLocked(now time.Time) {
	e.anchor = e.integrateLocked(now)
	e.anchoredAt = now
	if !e.deadline.IsZero() && !now.Before(e.deadline) {
		e.velocity = Vector{}
		e.deadline = time.Time{}
	}
}

func (e *Engine) currentLocked(now time.Time) Vector {
	if e.authority == ExternallyFed {
		return e.fed
	}
	return e.integrateLocked(now)
}

func (e *Engine) integrateLocked(now time.Time) Vector {
	if e.velocity.IsZero() {
		return e.anchor
	}
	end := now
	if !e.deadline.IsZero() && e.deadline.Before(end) {
		end = e.deadline
	}
	dt := end.Sub(e.anchoredAt).Seconds()
	if dt <= 0 {
		return e.anchor
	}
	return e.limits.ClampPosition(e.anchor.Add(e.velocity.Scale(dt)))
}

func (e *Engine) movingLocked(now time.Time) bool {
	if e.velocity.IsZero() {
		return false
	}
	return e.deadline.IsZero() || now.Before(e.deadline)
}

func (e *Engine) forward(cmd Command) {
	if e.fwd == nil {
		return
	}
	e.fwd.Forward(cmd)
}
