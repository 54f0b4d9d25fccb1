// Package config loads the simulator settings from a YAML file and the
// environment.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/event"
	"github.com/SridarDhandapani/onvif-simulator/imaging"
	"github.com/SridarDhandapani/onvif-simulator/ptz"
)

// EnvPrefix prefixes every environment override, e.g. ONVIF_SIM_SERVER_PORT
const EnvPrefix = "ONVIF_SIM_"

// Config is the complete simulator configuration
type Config struct {
	Server    Server       `yaml:"server" envPrefix:"SERVER_"`
	Device    Device       `yaml:"device" envPrefix:"DEVICE_"`
	Media     Media        `yaml:"media" envPrefix:"MEDIA_"`
	PTZ       PTZ          `yaml:"ptz" envPrefix:"PTZ_"`
	Imaging   Imaging      `yaml:"imaging"`
	Events    event.Config `yaml:"events" envPrefix:"EVENTS_"`
	Discovery Discovery    `yaml:"discovery" envPrefix:"DISCOVERY_"`
	Log       Log          `yaml:"log" envPrefix:"LOG_"`
}

// Server configures the SOAP gateway listener
type Server struct {
	// Host is the listen host; empty listens on all interfaces
	Host string `yaml:"host" env:"HOST"`
	// AdvertiseIP is the address put into XAddrs; empty means autodetect
	AdvertiseIP string `yaml:"advertise_ip" env:"ADVERTISE_IP"`
	Port        int    `yaml:"port" env:"PORT"`
	HTTPS       bool   `yaml:"https" env:"HTTPS"`
	CertFile    string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile     string `yaml:"key_file" env:"KEY_FILE"`
}

// Device holds the identity strings of the simulated camera
type Device struct {
	// UUID is fixed across restarts when set
	UUID            string `yaml:"uuid" env:"UUID"`
	Manufacturer    string `yaml:"manufacturer" env:"MANUFACTURER"`
	Model           string `yaml:"model" env:"MODEL"`
	FirmwareVersion string `yaml:"firmware_version" env:"FIRMWARE_VERSION"`
	SerialNumber    string `yaml:"serial_number" env:"SERIAL_NUMBER"`
	HardwareID      string `yaml:"hardware_id" env:"HARDWARE_ID"`
	Name            string `yaml:"name" env:"NAME"`
	Location        string `yaml:"location" env:"LOCATION"`
	Hardware        string `yaml:"hardware" env:"HARDWARE"`
}

// Media describes the single advertised stream
type Media struct {
	// StreamURI is returned verbatim by GetStreamUri
	StreamURI string `yaml:"stream_uri" env:"STREAM_URI"`
	Encoding  string `yaml:"encoding" env:"ENCODING"`
	Width     int    `yaml:"width" env:"WIDTH"`
	Height    int    `yaml:"height" env:"HEIGHT"`
	FrameRate int    `yaml:"frame_rate" env:"FRAME_RATE"`
	Bitrate   int    `yaml:"bitrate" env:"BITRATE"`
	Quality   int    `yaml:"quality" env:"QUALITY"`
	GovLength int    `yaml:"gov_length" env:"GOV_LENGTH"`
}

// PTZ configures the simulated head and the optional actuator link
type PTZ struct {
	Limits ptz.Limits `yaml:"limits"`
	Home   ptz.Vector `yaml:"home"`

	Forwarding bool `yaml:"forwarding" env:"FORWARDING"`
	// ForwardAddr receives JSON commands over UDP
	ForwardAddr string `yaml:"forward_addr" env:"FORWARD_ADDR"`
	// FeedbackAddr is where actual positions are received
	FeedbackAddr string `yaml:"feedback_addr" env:"FEEDBACK_ADDR"`
}

// Imaging holds the initial sensor settings and their ranges
type Imaging struct {
	Ranges   imaging.Ranges   `yaml:"ranges"`
	Defaults imaging.Settings `yaml:"defaults"`
}

// Discovery configures WS-Discovery and mDNS
type Discovery struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	MulticastAddr string `yaml:"multicast_addr" env:"MULTICAST_ADDR"`
	Interface     string `yaml:"interface" env:"INTERFACE"`
	MDNS          bool   `yaml:"mdns" env:"MDNS"`
}

// Log selects the log level and output format
type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var encodings = []string{"H264", "H265"}

// Default returns the settings of the reference device
func Default() *Config {
	return &Config{
		Server: Server{Port: onvif.DefaultSOAPPort},
		Device: Device{
			Manufacturer:    "ONVIF Simulator",
			Model:           "Profile-T-Sim",
			FirmwareVersion: "1.0.0",
			HardwareID:      "SIM-PT-1",
			Name:            "ONVIF-Simulator",
			Hardware:        "Simulator-v2",
		},
		Media: Media{
			Encoding:  "H265",
			Width:     onvif.Resolution1920x1080.Width,
			Height:    onvif.Resolution1920x1080.Height,
			FrameRate: 30,
			Bitrate:   4096,
			Quality:   5,
			GovLength: 30,
		},
		PTZ: PTZ{
			Limits:       ptz.DefaultLimits(),
			ForwardAddr:  "127.0.0.1:50001",
			FeedbackAddr: ":50002",
		},
		Imaging: Imaging{
			Ranges:   imaging.DefaultRanges(),
			Defaults: imaging.DefaultSettings(),
		},
		Events: event.DefaultConfig(),
		Discovery: Discovery{
			Enabled:       true,
			MulticastAddr: onvif.DefaultMulticastAddr,
		},
		Log: Log{Level: "info", Format: FormatConsole},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Annotate(err, "reading config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Annotatef(err, "parsing %s", path)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Annotate(err, "reading environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills values derived from others
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NotValidf("server port %d", c.Server.Port)
	}
	if c.Server.HTTPS {
		if c.Server.CertFile == "" {
			c.Server.CertFile = "cert.pem"
		}
		if c.Server.KeyFile == "" {
			c.Server.KeyFile = "key.pem"
		}
	}

	if c.Device.UUID != "" {
		if _, err := uuid.FromString(c.Device.UUID); err != nil {
			return errors.NotValidf("device uuid %q", c.Device.UUID)
		}
	}

	c.Media.Encoding = strings.ToUpper(c.Media.Encoding)
	if !lo.Contains(encodings, c.Media.Encoding) {
		return errors.NotValidf("media encoding %q", c.Media.Encoding)
	}
	if c.Media.Width <= 0 || c.Media.Height <= 0 {
		return errors.NotValidf("media resolution %dx%d", c.Media.Width, c.Media.Height)
	}

	ranges := map[string]onvif.Range{
		"ptz pan":            c.PTZ.Limits.Pan,
		"ptz tilt":           c.PTZ.Limits.Tilt,
		"ptz zoom":           c.PTZ.Limits.Zoom,
		"ptz velocity":       c.PTZ.Limits.Velocity,
		"imaging brightness": c.Imaging.Ranges.Brightness,
		"imaging contrast":   c.Imaging.Ranges.Contrast,
		"imaging saturation": c.Imaging.Ranges.Saturation,
		"imaging sharpness":  c.Imaging.Ranges.Sharpness,
	}
	for name, r := range ranges {
		if r.Min > r.Max {
			return errors.NotValidf("%s range [%g, %g]", name, r.Min, r.Max)
		}
	}
	if c.PTZ.Forwarding && (c.PTZ.ForwardAddr == "" || c.PTZ.FeedbackAddr == "") {
		return errors.NotValidf("ptz forwarding without forward and feedback addresses")
	}
	if c.Imaging.Defaults.IrCutFilter != "" && !c.Imaging.Defaults.IrCutFilter.Valid() {
		return errors.NotValidf("IR cut filter mode %q", c.Imaging.Defaults.IrCutFilter)
	}

	if c.Events.QueueSize < 0 {
		return errors.NotValidf("events queue size %d", c.Events.QueueSize)
	}
	if c.Discovery.Enabled && c.Discovery.MulticastAddr == "" {
		c.Discovery.MulticastAddr = onvif.DefaultMulticastAddr
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return errors.NotValidf("log level %q", c.Log.Level)
	}
	if c.Log.Format != FormatConsole && c.Log.Format != FormatJSON {
		return errors.NotValidf("log format %q", c.Log.Format)
	}
	return nil
}

// Scheme returns the URL scheme the gateway serves
func (c *Config) Scheme() string {
	if c.Server.HTTPS {
		return "https"
	}
	return "http"
}

// ListenAddr returns host:port for the gateway
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
