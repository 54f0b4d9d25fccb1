package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(cfg Config) (*Engine, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	return NewEngine(cfg, zerolog.Nop(), clock.Now), clock
}

func TestCreateClampsLifetime(t *testing.T) {
	e, clock := newTestEngine(Config{MaxTermination: 5 * time.Minute})
	start := clock.Now()

	sub, err := e.Create(time.Hour)
	require.NoError(t, err)
	assert.Len(t, sub.Token, tokenLength)
	assert.Equal(t, start.Add(5*time.Minute), sub.Expires)

	sub, err = e.Create(0)
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Minute), sub.Expires)

	other, err := e.Create(time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, sub.Token, other.Token)
	assert.Equal(t, 3, e.Len())
}

func TestSubscriptionExpiry(t *testing.T) {
	e, clock := newTestEngine(DefaultConfig())
	sub, err := e.Create(60 * time.Second)
	require.NoError(t, err)

	for _, at := range []time.Duration{0, 30 * time.Second, 59 * time.Second} {
		clock.Advance(at - clock.Now().Sub(sub.Created))
		_, err := e.Pull(context.Background(), sub.Token, 0, 10)
		assert.NoError(t, err, "at %s", at)
	}

	clock.Advance(2 * time.Second)
	_, err = e.Pull(context.Background(), sub.Token, 0, 10)
	assert.True(t, errors.Is(err, onvif.ErrInvalidSubscription))
	assert.Equal(t, 0, e.Len())
}

func TestUnknownSubscription(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig())

	_, err := e.Pull(context.Background(), "nope", time.Second, 1)
	assert.True(t, errors.Is(err, onvif.ErrInvalidSubscription))
	_, err = e.Renew("nope", time.Minute)
	assert.True(t, errors.Is(err, onvif.ErrInvalidSubscription))
	assert.True(t, errors.Is(e.Unsubscribe("nope"), onvif.ErrInvalidSubscription))
	assert.True(t, errors.Is(e.Synchronize("nope"), onvif.ErrInvalidSubscription))
}

func TestRenewAndUnsubscribe(t *testing.T) {
	e, clock := newTestEngine(DefaultConfig())
	sub, err := e.Create(time.Minute)
	require.NoError(t, err)

	clock.Advance(50 * time.Second)
	renewed, err := e.Renew(sub.Token, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(2*time.Minute), renewed.Expires)

	clock.Advance(90 * time.Second)
	_, err = e.Pull(context.Background(), sub.Token, 0, 1)
	require.NoError(t, err)

	require.NoError(t, e.Unsubscribe(sub.Token))
	_, err = e.Pull(context.Background(), sub.Token, 0, 1)
	assert.True(t, errors.Is(err, onvif.ErrInvalidSubscription))
}

func TestAlternatingEventsDeliveredOnce(t *testing.T) {
	e, clock := newTestEngine(DefaultConfig())
	sub, err := e.Create(10 * time.Minute)
	require.NoError(t, err)

	var states []bool
	for i := 0; i < 4; i++ {
		clock.Advance(31 * time.Second)
		e.Emit()

		res, err := e.Pull(context.Background(), sub.Token, time.Second, 10)
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		assert.Equal(t, TopicMotionAlarm, res.Events[0].Topic)
		assert.Equal(t, OperationChanged, res.Events[0].Operation)
		assert.Equal(t, onvif.DefaultVideoSourceToken, res.Events[0].Source)
		states = append(states, res.Events[0].State)

		info, err := e.Renew(sub.Token, 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, res.Events[0].State, info.LastState)
	}
	assert.Equal(t, []bool{true, false, true, false}, states)

	res, err := e.Pull(context.Background(), sub.Token, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}

func TestPullLimitOldestFirst(t *testing.T) {
	e, clock := newTestEngine(DefaultConfig())
	sub, err := e.Create(time.Hour)
	require.NoError(t, err)

	var emitted []MotionEvent
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		emitted = append(emitted, e.Emit())
	}

	res, err := e.Pull(context.Background(), sub.Token, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, emitted[:2], res.Events)

	res, err = e.Pull(context.Background(), sub.Token, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, emitted[2:3], res.Events)

	res, err = e.Pull(context.Background(), sub.Token, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, emitted[3:], res.Events)
}

func TestSubscriptionsAreIsolated(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig())
	a, err := e.Create(time.Hour)
	require.NoError(t, err)
	b, err := e.Create(time.Hour)
	require.NoError(t, err)

	e.Emit()

	res, err := e.Pull(context.Background(), a.Token, 0, 10)
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)

	res, err = e.Pull(context.Background(), a.Token, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	res, err = e.Pull(context.Background(), b.Token, 0, 10)
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
}

func TestQueueDropsOldest(t *testing.T) {
	e, clock := newTestEngine(Config{QueueSize: 3})
	sub, err := e.Create(time.Hour)
	require.NoError(t, err)

	var emitted []MotionEvent
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		emitted = append(emitted, e.Emit())
	}

	res, err := e.Pull(context.Background(), sub.Token, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, emitted[2:], res.Events)
}

func TestPullWakesOnEmit(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig())
	sub, err := e.Create(time.Hour)
	require.NoError(t, err)

	done := make(chan PullResult, 1)
	go func() {
		res, err := e.Pull(context.Background(), sub.Token, 10*time.Second, 5)
		assert.NoError(t, err)
		done <- res
	}()

	time.Sleep(50 * time.Millisecond)
	e.Emit()

	select {
	case res := <-done:
		assert.Len(t, res.Events, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("pull did not wake up")
	}
}

func TestPullTimesOut(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig())
	sub, err := e.Create(time.Hour)
	require.NoError(t, err)

	start := time.Now()
	res, err := e.Pull(context.Background(), sub.Token, 100*time.Millisecond, 5)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Equal(t, sub.Expires, res.TerminationTime)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestPullFailsWhenSubscriptionExpiresDuringWait(t *testing.T) {
	e := NewEngine(DefaultConfig(), zerolog.Nop(), nil)
	sub, err := e.Create(150 * time.Millisecond)
	require.NoError(t, err)

	_, err = e.Pull(context.Background(), sub.Token, 5*time.Second, 1)
	assert.True(t, errors.Is(err, onvif.ErrInvalidSubscription))
}

func TestPullFailsWhenUnsubscribedDuringWait(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig())
	sub, err := e.Create(time.Hour)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.Pull(context.Background(), sub.Token, 10*time.Second, 1)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, e.Unsubscribe(sub.Token))

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, onvif.ErrInvalidSubscription))
	case <-time.After(5 * time.Second):
		t.Fatal("pull did not return")
	}
}

func TestCancelledPullKeepsQueue(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig())
	sub, err := e.Create(time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Pull(ctx, sub.Token, 10*time.Second, 1)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("pull ignored cancellation")
	}

	ev := e.Emit()
	res, err := e.Pull(context.Background(), sub.Token, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []MotionEvent{ev}, res.Events)
}

func TestSynchronizeQueuesCurrentState(t *testing.T) {
	e, _ := newTestEngine(DefaultConfig())
	sub, err := e.Create(time.Hour)
	require.NoError(t, err)
	e.Emit()

	res, err := e.Pull(context.Background(), sub.Token, 0, 10)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	require.NoError(t, e.Synchronize(sub.Token))
	res, err = e.Pull(context.Background(), sub.Token, 0, 10)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, OperationInitialized, res.Events[0].Operation)
	assert.True(t, res.Events[0].State)
}

func TestRunEmitsUntilCancelled(t *testing.T) {
	e := NewEngine(Config{MotionInterval: 20 * time.Millisecond}, zerolog.Nop(), nil)
	sub, err := e.Create(time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	res, err := e.Pull(context.Background(), sub.Token, 5*time.Second, 1)
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)

	cancel()
	assert.NoError(t, <-done)
}
