package ptz

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Command types of the actuator wire protocol
const (
	CommandAbsolute   = "absolute"
	CommandContinuous = "continuous"
	CommandStop       = "stop"
)

// Command is one datagram sent to the external actuator
type Command struct {
	Type      string   `json:"type"`
	Pan       *float64 `json:"pan,omitempty"`
	Tilt      *float64 `json:"tilt,omitempty"`
	Zoom      *float64 `json:"zoom,omitempty"`
	PanSpeed  *float64 `json:"pan_speed,omitempty"`
	TiltSpeed *float64 `json:"tilt_speed,omitempty"`
	ZoomSpeed *float64 `json:"zoom_speed,omitempty"`
}

// AbsoluteCommand asks the actuator to jump to p
func AbsoluteCommand(p Vector) Command {
	return Command{Type: CommandAbsolute, Pan: lo.ToPtr(p.Pan), Tilt: lo.ToPtr(p.Tilt), Zoom: lo.ToPtr(p.Zoom)}
}

// ContinuousCommand asks the actuator to move at velocity v
func ContinuousCommand(v Vector) Command {
	return Command{
		Type:      CommandContinuous,
		PanSpeed:  lo.ToPtr(v.Pan),
		TiltSpeed: lo.ToPtr(v.Tilt),
		ZoomSpeed: lo.ToPtr(v.Zoom),
	}
}

// StopCommand asks the actuator to stop
func StopCommand() Command {
	return Command{Type: CommandStop}
}

// Forwarder hands commands to an external actuator. Forward must not block.
type Forwarder interface {
	Forward(cmd Command)
}

const (
	forwardQueueSize    = 32
	forwardWriteTimeout = 500 * time.Millisecond
)

// UDPForwarder sends commands as JSON datagrams. Forward only enqueues;
// Run drains the queue. When the queue is full the command is dropped,
// since only the most recent intent matters to the actuator.
type UDPForwarder struct {
	addr  string
	conn  net.Conn
	queue chan Command
	log   zerolog.Logger
}

// NewUDPForwarder prepares a forwarder for addr (host:port)
func NewUDPForwarder(addr string, log zerolog.Logger) (*UDPForwarder, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "forwarding address %q", addr)
	}
	return &UDPForwarder{
		addr:  addr,
		conn:  conn,
		queue: make(chan Command, forwardQueueSize),
		log:   log.With().Str("component", "ptz-forwarder").Str("addr", addr).Logger(),
	}, nil
}

// Forward enqueues cmd without blocking
func (f *UDPForwarder) Forward(cmd Command) {
	select {
	case f.queue <- cmd:
	default:
		f.log.Warn().Str("type", cmd.Type).Msg("forward queue full, dropping command")
	}
}

// Run sends queued commands until ctx is cancelled
func (f *UDPForwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-f.queue:
			if err := f.send(cmd); err != nil {
				f.log.Error().Err(err).Str("type", cmd.Type).Msg("failed to forward PTZ command")
				continue
			}
			f.log.Debug().Str("type", cmd.Type).Msg("forwarded PTZ command")
		}
	}
}

// Close releases the socket
func (f *UDPForwarder) Close() error {
	return f.conn.Close()
}

func (f *UDPForwarder) send(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return errors.Trace(err)
	}
	if err := f.conn.SetWriteDeadline(time.Now().Add(forwardWriteTimeout)); err != nil {
		return errors.Trace(err)
	}
	_, err = f.conn.Write(data)
	return errors.Trace(err)
}
