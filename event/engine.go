package event

import (
	"context"
	"sync"
	"time"

	"github.com/elgs/gostrgen"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

const tokenLength = 20

type subscription struct {
	token   string
	created time.Time
	expires time.Time
	queue   []MotionEvent
	// lastState is the motion state of the newest delivered event
	lastState bool
	// wake is closed and replaced whenever a waiting puller should
	// re-evaluate the subscription
	wake chan struct{}
}

func (s *subscription) notify() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *subscription) info() Subscription {
	return Subscription{Token: s.token, Created: s.created, Expires: s.expires, LastState: s.lastState}
}

// Engine owns the subscription table and the motion state
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	subs   map[string]*subscription
	motion bool

	log zerolog.Logger
	now func() time.Time
}

// NewEngine creates an engine. Zero fields of cfg take their defaults; now
// may be nil to use time.Now.
func NewEngine(cfg Config, log zerolog.Logger, now func() time.Time) *Engine {
	def := DefaultConfig()
	if cfg.MotionInterval <= 0 {
		cfg.MotionInterval = def.MotionInterval
	}
	if cfg.DefaultTermination <= 0 {
		cfg.DefaultTermination = def.DefaultTermination
	}
	if cfg.MaxTermination <= 0 {
		cfg.MaxTermination = def.MaxTermination
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxPullTimeout <= 0 {
		cfg.MaxPullTimeout = def.MaxPullTimeout
	}
	if cfg.SourceToken == "" {
		cfg.SourceToken = def.SourceToken
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:  cfg,
		subs: make(map[string]*subscription),
		log:  log.With().Str("component", "events").Logger(),
		now:  now,
	}
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Now is the engine clock
func (e *Engine) Now() time.Time {
	return e.now()
}

// Create allocates a pull point living for the requested duration, clamped
// to the configured maximum
func (e *Engine) Create(requested time.Duration) (Subscription, error) {
	token, err := gostrgen.RandGen(tokenLength, gostrgen.LowerUpperDigit, "", "")
	if err != nil {
		return Subscription{}, errors.Annotate(err, "generating subscription token")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sub := &subscription{
		token:   token,
		created: now,
		expires: now.Add(e.lifetime(requested)),
		wake:    make(chan struct{}),
	}
	e.subs[token] = sub
	e.log.Info().Str("token", token).Time("expires", sub.expires).Msg("subscription created")
	return sub.info(), nil
}

// Renew moves the expiration of a live subscription
func (e *Engine) Renew(token string, requested time.Duration) (Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sub, err := e.lookupLocked(token, now)
	if err != nil {
		return Subscription{}, err
	}
	sub.expires = now.Add(e.lifetime(requested))
	sub.notify()
	e.log.Debug().Str("token", token).Time("expires", sub.expires).Msg("subscription renewed")
	return sub.info(), nil
}

// Unsubscribe removes a live subscription
func (e *Engine) Unsubscribe(token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub, err := e.lookupLocked(token, e.now())
	if err != nil {
		return err
	}
	e.removeLocked(sub)
	e.log.Info().Str("token", token).Msg("unsubscribed")
	return nil
}

// Synchronize queues the current motion state on the subscription so the
// client can resynchronize its view
func (e *Engine) Synchronize(token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sub, err := e.lookupLocked(token, now)
	if err != nil {
		return err
	}
	e.enqueueLocked(sub, e.newEvent(now, OperationInitialized))
	return nil
}

// Pull waits until the subscription has events, the timeout elapses, the
// subscription expires or ctx is cancelled. At most limit events are
// returned oldest first; limit <= 0 means one. Cancellation leaves the
// queue untouched.
func (e *Engine) Pull(ctx context.Context, token string, timeout time.Duration, limit int) (PullResult, error) {
	if limit <= 0 {
		limit = 1
	}
	timeout = lo.Clamp(timeout, 0, e.cfg.MaxPullTimeout)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		e.mu.Lock()
		now := e.now()
		sub, err := e.lookupLocked(token, now)
		if err != nil {
			e.mu.Unlock()
			return PullResult{}, err
		}
		res := PullResult{CurrentTime: now, TerminationTime: sub.expires}
		if len(sub.queue) > 0 {
			n := lo.Min([]int{limit, len(sub.queue)})
			res.Events = append([]MotionEvent(nil), sub.queue[:n]...)
			sub.queue = sub.queue[n:]
			sub.lastState = res.Events[n-1].State
			e.mu.Unlock()
			return res, nil
		}
		wake := sub.wake
		expires := sub.expires
		e.mu.Unlock()

		expiry := time.NewTimer(expires.Sub(now))
		select {
		case <-ctx.Done():
			expiry.Stop()
			return PullResult{}, errors.Trace(ctx.Err())
		case <-deadline.C:
			expiry.Stop()
			return res, nil
		case <-wake:
			expiry.Stop()
		case <-expiry.C:
			if e.expireIfUnchanged(token, expires) {
				return PullResult{}, errors.Annotatef(onvif.ErrInvalidSubscription, "subscription %q expired", token)
			}
		}
	}
}

// Emit toggles the motion state and appends the change to every live
// subscription
func (e *Engine) Emit() MotionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.sweepLocked(now)
	e.motion = !e.motion
	ev := e.newEvent(now, OperationChanged)
	for _, sub := range e.subs {
		e.enqueueLocked(sub, ev)
	}
	e.log.Debug().Bool("motion", ev.State).Int("subscribers", len(e.subs)).Msg("motion event")
	return ev
}

// Motion reports the current motion state
func (e *Engine) Motion() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.motion
}

// Len returns the number of live subscriptions
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweepLocked(e.now())
	return len(e.subs)
}

// Run emits a motion event every MotionInterval until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.MotionInterval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", e.cfg.MotionInterval).Msg("motion generator started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Emit()
		}
	}
}

func (e *Engine) lifetime(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = e.cfg.DefaultTermination
	}
	return lo.Min([]time.Duration{requested, e.cfg.MaxTermination})
}

func (e *Engine) newEvent(now time.Time, op string) MotionEvent {
	return MotionEvent{
		Time:      now.UTC(),
		State:     e.motion,
		Topic:     TopicMotionAlarm,
		Source:    e.cfg.SourceToken,
		Operation: op,
	}
}

func (e *Engine) enqueueLocked(sub *subscription, ev MotionEvent) {
	if len(sub.queue) >= e.cfg.QueueSize {
		dropped := len(sub.queue) - e.cfg.QueueSize + 1
		sub.queue = sub.queue[dropped:]
		e.log.Debug().Str("token", sub.token).Int("dropped", dropped).Msg("queue full, dropping oldest")
	}
	sub.queue = append(sub.queue, ev)
	sub.notify()
}

func (e *Engine) lookupLocked(token string, now time.Time) (*subscription, error) {
	sub, ok := e.subs[token]
	if !ok {
		return nil, errors.Annotatef(onvif.ErrInvalidSubscription, "unknown subscription %q", token)
	}
	if !now.Before(sub.expires) {
		e.removeLocked(sub)
		return nil, errors.Annotatef(onvif.ErrInvalidSubscription, "subscription %q expired", token)
	}
	return sub, nil
}

func (e *Engine) removeLocked(sub *subscription) {
	delete(e.subs, sub.token)
	sub.notify()
}

func (e *Engine) sweepLocked(now time.Time) {
	for _, sub := range lo.Values(e.subs) {
		if !now.Before(sub.expires) {
			e.log.Debug().Str("token", sub.token).Msg("subscription expired")
			e.removeLocked(sub)
		}
	}
}

// expireIfUnchanged removes the subscription when its expiration is still
// the one a puller waited on
func (e *Engine) expireIfUnchanged(token string, expires time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub, ok := e.subs[token]
	if !ok {
		return true
	}
	if !sub.expires.Equal(expires) {
		return false
	}
	e.removeLocked(sub)
	return true
}
