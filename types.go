// Package onvif describes the identity and capabilities of a simulated
// ONVIF Profile T camera
package onvif

import (
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
)

// XML namespaces spoken by the simulator
const (
	NamespaceSOAP         = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceAddressing   = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	NamespaceWSA          = "http://www.w3.org/2005/08/addressing"
	NamespaceDiscovery    = "http://schemas.xmlsoap.org/ws/2005/04/discovery"
	NamespaceNetwork      = "http://www.onvif.org/ver10/network/wsdl"
	NamespaceDevice       = "http://www.onvif.org/ver10/device/wsdl"
	NamespaceMedia        = "http://www.onvif.org/ver10/media/wsdl"
	NamespacePTZ          = "http://www.onvif.org/ver20/ptz/wsdl"
	NamespaceImaging      = "http://www.onvif.org/ver20/imaging/wsdl"
	NamespaceEvents       = "http://www.onvif.org/ver10/events/wsdl"
	NamespaceSchema       = "http://www.onvif.org/ver10/schema"
	NamespaceTopics       = "http://www.onvif.org/ver10/topics"
	NamespaceNotification = "http://docs.oasis-open.org/wsn/b-2"
	NamespaceTopicDialect = "http://docs.oasis-open.org/wsn/t-1"
	NamespaceError        = "http://www.onvif.org/ver10/error"
	NamespaceSecurity     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
)

// Service is one ONVIF service exposed by the gateway
type Service string

const (
	ServiceDevice  Service = "device"
	ServiceMedia   Service = "media"
	ServicePTZ     Service = "ptz"
	ServiceImaging Service = "imaging"
	ServiceEvents  Service = "events"
)

// Services lists every service in the order capabilities are advertised
var Services = []Service{ServiceDevice, ServiceMedia, ServicePTZ, ServiceImaging, ServiceEvents}

var servicePaths = map[Service]string{
	ServiceDevice:  "/onvif/device_service",
	ServiceMedia:   "/onvif/media_service",
	ServicePTZ:     "/onvif/ptz_service",
	ServiceImaging: "/onvif/imaging_service",
	ServiceEvents:  "/onvif/events_service",
}

var serviceNamespaces = map[Service]string{
	ServiceDevice:  NamespaceDevice,
	ServiceMedia:   NamespaceMedia,
	ServicePTZ:     NamespacePTZ,
	ServiceImaging: NamespaceImaging,
	ServiceEvents:  NamespaceEvents,
}

// PullPointPath is the path prefix of pull-point subscription endpoints
const PullPointPath = "/onvif/events/pullpoint"

// Path returns the HTTP path the service is served on
func (s Service) Path() string {
	return servicePaths[s]
}

// Namespace returns the WSDL namespace of the service
func (s Service) Namespace() string {
	return serviceNamespaces[s]
}

// ServiceForPath maps a request path back to its service
func ServiceForPath(path string) (Service, bool) {
	if strings.HasPrefix(path, PullPointPath) {
		return ServiceEvents, true
	}
	for svc, p := range servicePaths {
		if p == path {
			return svc, true
		}
	}
	return "", false
}

// DeviceInfo holds the static strings returned by GetDeviceInformation
type DeviceInfo struct {
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareId      string
}

// QName is a namespace-qualified XML name
type QName struct {
	Space  string
	Local  string
	Prefix string
}

// String renders the name the way it appears in discovery messages
func (q QName) String() string {
	if q.Prefix == "" {
		return q.Local
	}
	return q.Prefix + ":" + q.Local
}

// Device types advertised over WS-Discovery
var (
	TypeNetworkVideoTransmitter = QName{Space: NamespaceNetwork, Local: "NetworkVideoTransmitter", Prefix: "dn"}
	TypeDevice                  = QName{Space: NamespaceDevice, Local: "Device", Prefix: "tds"}
)

// Range is a closed numeric interval
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Clamp returns v limited to the range. NaN clamps to Min.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return r.Min
	}
	return lo.Clamp(v, r.Min, r.Max)
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// IrCutFilterMode represents the IR cut filter (day/night) mode
type IrCutFilterMode string

const (
	IrCutFilterOn   IrCutFilterMode = "ON"
	IrCutFilterOff  IrCutFilterMode = "OFF"
	IrCutFilterAuto IrCutFilterMode = "AUTO"
)

// IrCutFilterModes lists the modes the simulated sensor supports
var IrCutFilterModes = []IrCutFilterMode{IrCutFilterOn, IrCutFilterOff, IrCutFilterAuto}

// Valid reports whether the mode is one the sensor supports
func (m IrCutFilterMode) Valid() bool {
	return lo.Contains(IrCutFilterModes, m)
}

// Resolution represents video resolution
type Resolution struct {
	Width  int
	Height int
}

// Common resolutions
var (
	Resolution640x480   = Resolution{640, 480}
	Resolution1280x720  = Resolution{1280, 720}
	Resolution1920x1080 = Resolution{1920, 1080}
)

// VideoEncoderConfig represents the encoder attached to a media profile
type VideoEncoderConfig struct {
	Token          string
	Name           string
	Encoding       string
	Resolution     Resolution
	Quality        float32
	FrameRateLimit int
	BitrateLimit   int
	GovLength      int
}

// MediaProfile is one streaming profile advertised by the media service
type MediaProfile struct {
	Token             string
	Name              string
	VideoSourceToken  string
	VideoEncoder      VideoEncoderConfig
	PTZConfigToken    string
	PTZNodeToken      string
	StreamURI         string
	SessionTimeout    time.Duration
	VideoSourceBounds Resolution
}

// Entity tokens shared between the media, PTZ, imaging and event services
const (
	DefaultProfileToken      = "Profile_T_1"
	DefaultProfileName       = "ProfileT_H265"
	DefaultVideoSourceToken  = "VideoSource_1"
	DefaultVideoEncoderToken = "VideoEncoder_H265_1"
	DefaultPTZNodeToken      = "PTZNode_1"
	DefaultPTZConfigToken    = "PTZConfiguration_1"
)

// Default configuration
const (
	DefaultMulticastAddr = "239.255.255.250:3702"
	DefaultTimeout       = 5 * time.Second
	DefaultSOAPPort      = 8080
)
