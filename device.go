package onvif

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/juju/errors"
)

// ScopePrefix is the common prefix of every ONVIF scope URI
const ScopePrefix = "onvif://www.onvif.org/"

// IdentityOptions configures NewDeviceIdentity
type IdentityOptions struct {
	UUID     uuid.UUID
	Scheme   string
	Host     string
	Port     int
	Info     DeviceInfo
	Name     string
	Location string
	Hardware string
	PTZ      bool
}

// DeviceIdentity is the immutable description of the simulated camera
type DeviceIdentity struct {
	UUID   uuid.UUID
	Info   DeviceInfo
	Name   string
	Types  []QName
	Scopes []string

	baseURL string
}

// NewDeviceIdentity builds the identity, generating a UUID when none is given
func NewDeviceIdentity(opts IdentityOptions) (*DeviceIdentity, error) {
	id := opts.UUID
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV4(); err != nil {
			return nil, errors.Annotate(err, "generating device uuid")
		}
	}

	if opts.Host == "" {
		return nil, errors.NotValidf("empty host")
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "http"
	}
	if scheme != "http" && scheme != "https" {
		return nil, errors.NotValidf("scheme %q", scheme)
	}
	port := opts.Port
	if port == 0 {
		port = DefaultSOAPPort
	}

	info := opts.Info
	if info.SerialNumber == "" {
		info.SerialNumber = id.String()
	}

	name := opts.Name
	if name == "" {
		name = info.Model
	}

	scopes := []string{
		ScopePrefix + "Profile/T",
		ScopePrefix + "Profile/Streaming",
		ScopePrefix + "type/video_encoder",
	}
	if opts.PTZ {
		scopes = append(scopes, ScopePrefix+"type/ptz")
	}
	if name != "" {
		scopes = append(scopes, ScopePrefix+"name/"+scopeValue(name))
	}
	if opts.Hardware != "" {
		scopes = append(scopes, ScopePrefix+"hardware/"+scopeValue(opts.Hardware))
	}
	if opts.Location != "" {
		scopes = append(scopes, ScopePrefix+"location/"+scopeValue(opts.Location))
	}

	return &DeviceIdentity{
		UUID:    id,
		Info:    info,
		Name:    name,
		Types:   []QName{TypeNetworkVideoTransmitter, TypeDevice},
		Scopes:  scopes,
		baseURL: fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(opts.Host, strconv.Itoa(port))),
	}, nil
}

// scopeValue encodes a free-text value as a single scope path segment
func scopeValue(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}

// URN returns the WS-Addressing endpoint reference of the device
func (d *DeviceIdentity) URN() string {
	return "urn:uuid:" + d.UUID.String()
}

// BaseURL returns scheme://host:port of the protocol gateway
func (d *DeviceIdentity) BaseURL() string {
	return d.baseURL
}

// ServiceAddr returns the advertised endpoint of a service
func (d *DeviceIdentity) ServiceAddr(s Service) string {
	return d.baseURL + s.Path()
}

// XAddrs returns the addresses advertised in discovery messages
func (d *DeviceIdentity) XAddrs() []string {
	return []string{d.ServiceAddr(ServiceDevice)}
}

// PullPointAddr returns the endpoint of a pull-point subscription
func (d *DeviceIdentity) PullPointAddr(token string) string {
	return d.baseURL + PullPointPath + "/" + token
}

// TypesString renders the device types as a discovery Types list
func (d *DeviceIdentity) TypesString() string {
	names := make([]string, 0, len(d.Types))
	for _, t := range d.Types {
		names = append(names, t.String())
	}
	return strings.Join(names, " ")
}
