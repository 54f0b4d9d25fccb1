package discovery

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

// Options configures a multicast Responder
type Options struct {
	// MulticastAddr is the group and port, default 239.255.255.250:3702
	MulticastAddr string
	// Interface restricts the group join to one interface by name
	Interface string
	Logger    zerolog.Logger
}

// Responder answers WS-Discovery probes for one device
type Responder struct {
	identity *onvif.DeviceIdentity
	conn     net.PacketConn
	group    *net.UDPAddr
	log      zerolog.Logger

	mu  sync.Mutex
	seq sequence
}

// NewResponder binds the discovery port and joins the multicast group
func NewResponder(id *onvif.DeviceIdentity, opts Options) (*Responder, error) {
	if opts.MulticastAddr == "" {
		opts.MulticastAddr = onvif.DefaultMulticastAddr
	}
	group, err := net.ResolveUDPAddr("udp4", opts.MulticastAddr)
	if err != nil {
		return nil, errors.Annotatef(err, "resolving multicast address %q", opts.MulticastAddr)
	}

	conn, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(group.Port)))
	if err != nil {
		return nil, errors.Annotate(err, "binding discovery port")
	}

	ifaces, err := multicastInterfaces(opts.Interface)
	if err != nil {
		conn.Close()
		return nil, errors.Trace(err)
	}

	pc := ipv4.NewPacketConn(conn)
	joined := 0
	for i := range ifaces {
		if err := pc.JoinGroup(&ifaces[i], &net.UDPAddr{IP: group.IP}); err != nil {
			opts.Logger.Warn().Err(err).Str("interface", ifaces[i].Name).Msg("failed to join multicast group")
			continue
		}
		joined++
	}
	if joined == 0 {
		conn.Close()
		return nil, errors.Errorf("could not join %s on any interface", group.IP)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		opts.Logger.Warn().Err(err).Msg("failed to enable multicast loopback")
	}

	return newResponder(id, conn, group, opts.Logger), nil
}

// newResponder wraps an already bound socket. A nil group disables the
// Hello and Bye announcements.
func newResponder(id *onvif.DeviceIdentity, conn net.PacketConn, group *net.UDPAddr, log zerolog.Logger) *Responder {
	return &Responder{
		identity: id,
		conn:     conn,
		group:    group,
		log:      log.With().Str("component", "discovery").Logger(),
		seq:      sequence{instanceID: time.Now().Unix()},
	}
}

func multicastInterfaces(name string) ([]net.Interface, error) {
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, errors.Annotatef(err, "interface %q", name)
		}
		return []net.Interface{*iface}, nil
	}
	all, err := net.Interfaces()
	if err != nil {
		return nil, errors.Annotate(err, "listing interfaces")
	}
	var out []net.Interface
	for _, iface := range all {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 {
			out = append(out, iface)
		}
	}
	return out, nil
}

// Addr is the bound local address
func (r *Responder) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Run answers probes until ctx is cancelled, announcing the device with
// Hello on start and Bye on the way out. A bad datagram never stops it.
func (r *Responder) Run(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		r.announce("bye")
		r.conn.Close()
	}()

	r.announce("hello")
	r.log.Info().Str("addr", r.Addr().String()).Str("endpoint", r.identity.URN()).Msg("discovery responder started")

	buf := make([]byte, 65536)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				<-stopped
				return nil
			}
			r.log.Error().Err(err).Msg("discovery read failed")
			continue
		}
		resp := r.Handle(buf[:n])
		if resp == nil {
			continue
		}
		if _, err := r.conn.WriteTo(resp, from); err != nil {
			r.log.Warn().Err(err).Str("to", from.String()).Msg("failed to send ProbeMatches")
			continue
		}
		r.log.Debug().Str("to", from.String()).Msg("sent ProbeMatches")
	}
}

// Handle processes one datagram and returns the ProbeMatches to send back,
// or nil when the datagram is not a matching probe
func (r *Responder) Handle(data []byte) []byte {
	p, err := parseProbe(data)
	if err != nil {
		r.log.Debug().Err(err).Msg("ignoring discovery datagram")
		return nil
	}
	if !p.matches(r.identity) {
		r.log.Debug().Str("message_id", p.MessageID).Msg("probe does not match")
		return nil
	}

	r.mu.Lock()
	env := buildProbeMatches(r.identity, &r.seq, p.MessageID)
	r.mu.Unlock()

	out, err := env.Bytes()
	if err != nil {
		r.log.Error().Err(err).Msg("encoding ProbeMatches")
		return nil
	}
	return out
}

func (r *Responder) announce(kind string) {
	if r.group == nil {
		return
	}
	r.mu.Lock()
	var env *soap.Envelope
	if kind == "bye" {
		env = buildBye(r.identity, &r.seq)
	} else {
		env = buildHello(r.identity, &r.seq)
	}
	r.mu.Unlock()

	out, err := env.Bytes()
	if err == nil {
		_, err = r.conn.WriteTo(out, r.group)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("kind", kind).Msg("discovery announcement failed")
	}
}
