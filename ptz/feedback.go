package ptz

import (
	"context"
	"encoding/json"
	"net"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Feedback is a position report from the external actuator. A nil field
// was not reported.
type Feedback struct {
	Pan  *float64 `json:"pan"`
	Tilt *float64 `json:"tilt"`
	Zoom *float64 `json:"zoom"`
}

// FeedbackListener applies actuator position reports to an Engine
type FeedbackListener struct {
	conn   net.PacketConn
	engine *Engine
	log    zerolog.Logger
}

// ListenFeedback binds addr (for example ":50002") for actuator feedback
func ListenFeedback(addr string, engine *Engine, log zerolog.Logger) (*FeedbackListener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "listening for PTZ feedback on %q", addr)
	}
	return &FeedbackListener{
		conn:   conn,
		engine: engine,
		log:    log.With().Str("component", "ptz-feedback").Logger(),
	}, nil
}

// Addr is the bound local address
func (l *FeedbackListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Run reads datagrams until ctx is cancelled. Bad datagrams are logged and
// skipped.
func (l *FeedbackListener) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	l.log.Info().Str("addr", l.Addr().String()).Msg("listening for PTZ feedback")
	buf := make([]byte, 1024)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.Error().Err(err).Msg("feedback read failed")
			continue
		}
		if err := l.handle(buf[:n]); err != nil {
			l.log.Warn().Err(err).Str("from", from.String()).Msg("dropping feedback datagram")
		}
	}
}

func (l *FeedbackListener) handle(data []byte) error {
	var f Feedback
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Annotate(err, "decoding feedback")
	}
	if f.Pan == nil && f.Tilt == nil && f.Zoom == nil {
		return errors.New("feedback carries no position")
	}
	pos := l.engine.ApplyFeedback(f)
	l.log.Debug().Float64("pan", pos.Pan).Float64("tilt", pos.Tilt).Float64("zoom", pos.Zoom).Msg("feedback applied")
	return nil
}
