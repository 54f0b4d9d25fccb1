package discovery

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// mDNS service parameters
const (
	ServiceTypeONVIF   = "_onvif._tcp"
	Domain             = "local."
	maxInstanceNameLen = 63
)

// MDNSOptions configures the mDNS advertisement
type MDNSOptions struct {
	Port int
	// Interface limits the advertisement to one interface by name
	Interface string
	TTL       time.Duration
	Logger    zerolog.Logger
}

// MDNSAdvertiser publishes the device service over DNS-SD, for clients
// that browse instead of sending WS-Discovery probes
type MDNSAdvertiser struct {
	mu     sync.Mutex
	id     *onvif.DeviceIdentity
	opts   MDNSOptions
	server *zeroconf.Server
	log    zerolog.Logger
}

// NewMDNSAdvertiser creates an advertiser; nothing is published until Run
func NewMDNSAdvertiser(id *onvif.DeviceIdentity, opts MDNSOptions) *MDNSAdvertiser {
	if opts.Port == 0 {
		opts.Port = onvif.DefaultSOAPPort
	}
	return &MDNSAdvertiser{
		id:   id,
		opts: opts,
		log:  opts.Logger.With().Str("component", "mdns").Logger(),
	}
}

// TXT returns the TXT records of the advertised service
func (a *MDNSAdvertiser) TXT() []string {
	return []string{
		"uuid=" + a.id.UUID.String(),
		"path=" + onvif.ServiceDevice.Path(),
		"name=" + a.id.Name,
		"xaddr=" + a.id.ServiceAddr(onvif.ServiceDevice),
	}
}

// InstanceName is the DNS-SD instance label
func (a *MDNSAdvertiser) InstanceName() string {
	name := a.id.Name
	if name == "" {
		name = "ONVIF"
	}
	name += "-" + a.id.UUID.String()[:8]
	if len(name) > maxInstanceNameLen {
		name = name[:maxInstanceNameLen]
	}
	return name
}

// Start registers the service
func (a *MDNSAdvertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	var opts []zeroconf.ServerOption
	if a.opts.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.opts.TTL.Seconds())))
	}
	var ifaces []net.Interface
	if a.opts.Interface != "" {
		iface, err := net.InterfaceByName(a.opts.Interface)
		if err != nil {
			return errors.Annotatef(err, "interface %q", a.opts.Interface)
		}
		ifaces = []net.Interface{*iface}
	}

	server, err := zeroconf.Register(a.InstanceName(), ServiceTypeONVIF, Domain, a.opts.Port, a.TXT(), ifaces, opts...)
	if err != nil {
		return errors.Annotate(err, "failed to register mDNS service")
	}
	a.server = server
	a.log.Info().Str("instance", a.InstanceName()).Int("port", a.opts.Port).Msg("advertising over mDNS")
	return nil
}

// Stop withdraws the service
func (a *MDNSAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Run advertises until ctx is cancelled
func (a *MDNSAdvertiser) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.Stop()
	return nil
}
