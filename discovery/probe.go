package discovery

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/juju/errors"
	"github.com/samber/lo"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

// ProbeOptions configures Probe
type ProbeOptions struct {
	Timeout time.Duration
	// MulticastAddr is where the probe is sent. A unicast address probes a
	// single device.
	MulticastAddr string
	Types         []onvif.QName
	Scopes        []string
}

// Match is one device that answered a probe
type Match struct {
	Endpoint        string
	Types           []string
	Scopes          []string
	XAddrs          []string
	MetadataVersion int

	Name     string
	Location string
	Hardware string
	Profiles []string
}

// Probe sends a WS-Discovery Probe and collects the ProbeMatches that
// arrive before the timeout or ctx is done
func Probe(ctx context.Context, opts *ProbeOptions) ([]Match, error) {
	if opts == nil {
		opts = &ProbeOptions{Types: []onvif.QName{onvif.TypeNetworkVideoTransmitter}}
	}
	if opts.MulticastAddr == "" {
		opts.MulticastAddr = onvif.DefaultMulticastAddr
	}
	if opts.Timeout == 0 {
		opts.Timeout = onvif.DefaultTimeout
	}

	addr, err := net.ResolveUDPAddr("udp4", opts.MulticastAddr)
	if err != nil {
		return nil, errors.Annotate(err, "failed to resolve multicast address")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, errors.Annotate(err, "failed to create UDP connection")
	}
	defer conn.Close()

	deadline := time.Now().Add(opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, errors.Annotate(err, "failed to set read deadline")
	}
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	messageID := soap.NewMessageID()
	msg, err := buildProbe(messageID, opts.Types, opts.Scopes).Bytes()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := conn.WriteToUDP(msg, addr); err != nil {
		return nil, errors.Annotate(err, "failed to send probe message")
	}

	var matches []Match
	buffer := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		matches = append(matches, parseProbeMatches(buffer[:n], messageID)...)
	}

	return lo.UniqBy(matches, func(m Match) string { return m.Endpoint }), nil
}

func parseProbeMatches(data []byte, messageID string) []Match {
	resp, err := soap.ParseRequest(data)
	if err != nil || resp.Operation != "ProbeMatches" || resp.RelatesTo != messageID {
		return nil
	}

	var matches []Match
	for _, el := range resp.Payload.SelectElements("ProbeMatch") {
		m := Match{
			Types:  strings.Fields(childText(el, "Types")),
			Scopes: strings.Fields(childText(el, "Scopes")),
			XAddrs: strings.Fields(childText(el, "XAddrs")),
		}
		if epr := el.SelectElement("EndpointReference"); epr != nil {
			m.Endpoint = childText(epr, "Address")
		}
		if m.Endpoint == "" && len(m.XAddrs) > 0 {
			m.Endpoint = m.XAddrs[0]
		}
		m.MetadataVersion, _ = strconv.Atoi(childText(el, "MetadataVersion"))
		m.Name, m.Location, m.Hardware = parseScopes(m.Scopes)
		m.Profiles = parseProfiles(m.Types, m.Scopes)
		matches = append(matches, m)
	}
	return matches
}

func parseScopes(scopes []string) (name, location, hardware string) {
	value := func(scope, kind string) (string, bool) {
		v, ok := strings.CutPrefix(scope, onvif.ScopePrefix+kind+"/")
		return strings.ReplaceAll(v, "_", " "), ok
	}
	for _, scope := range scopes {
		if v, ok := value(scope, "name"); ok {
			name = v
		} else if v, ok := value(scope, "location"); ok {
			location = v
		} else if v, ok := value(scope, "hardware"); ok {
			hardware = v
		}
	}
	return
}

func parseProfiles(types, scopes []string) []string {
	var profiles []string
	for _, t := range types {
		switch {
		case strings.HasSuffix(t, "NetworkVideoTransmitter"):
			profiles = append(profiles, "Network Video Transmitter")
		case strings.HasSuffix(t, "Device"):
			profiles = append(profiles, "Device")
		}
	}
	for _, s := range scopes {
		if p, ok := strings.CutPrefix(s, onvif.ScopePrefix+"Profile/"); ok {
			profiles = append(profiles, "Profile "+p)
		}
	}
	return profiles
}

func childText(el *etree.Element, tag string) string {
	c := el.SelectElement(tag)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text())
}
