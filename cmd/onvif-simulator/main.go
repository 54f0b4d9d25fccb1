package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/uuid"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/config"
	"github.com/SridarDhandapani/onvif-simulator/discovery"
	"github.com/SridarDhandapani/onvif-simulator/event"
	"github.com/SridarDhandapani/onvif-simulator/gateway"
	"github.com/SridarDhandapani/onvif-simulator/imaging"
	"github.com/SridarDhandapani/onvif-simulator/ptz"
)

func main() {
	var configPath, rtspURL, forwardAddr, ip string
	var port int
	var https, forwarding bool

	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.IntVar(&port, "port", onvif.DefaultSOAPPort, "SOAP service port")
	flag.StringVar(&rtspURL, "rtsp-url", "", "RTSP URL returned by GetStreamUri")
	flag.BoolVar(&https, "https", false, "Serve HTTPS (cert.pem and key.pem unless configured)")
	flag.BoolVar(&forwarding, "enable-ptz-forwarding", false, "Forward PTZ commands over UDP")
	flag.StringVar(&forwardAddr, "ptz-forwarding-address", "127.0.0.1:50001", "Destination of forwarded PTZ commands (IP:PORT)")
	flag.StringVar(&ip, "ip", "", "Address advertised to clients (autodetected when empty)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(2)
	}

	// explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = port
		case "rtsp-url":
			cfg.Media.StreamURI = rtspURL
		case "https":
			cfg.Server.HTTPS = https
		case "enable-ptz-forwarding":
			cfg.PTZ.Forwarding = forwarding
		case "ptz-forwarding-address":
			cfg.PTZ.ForwardAddr = forwardAddr
		case "ip":
			cfg.Server.AdvertiseIP = ip
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(2)
	}

	log := newLogger(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("simulator stopped")
		os.Exit(1)
	}
	log.Info().Msg("simulator stopped")
}

func newLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == config.FormatJSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.With().Timestamp().Logger()
}

// outboundIP finds the local address used to reach other hosts. No packet
// is sent.
func outboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	host := cfg.Server.AdvertiseIP
	if host == "" {
		host = outboundIP()
	}

	var devUUID uuid.UUID
	if cfg.Device.UUID != "" {
		devUUID = uuid.FromStringOrNil(cfg.Device.UUID)
	}
	identity, err := onvif.NewDeviceIdentity(onvif.IdentityOptions{
		UUID:   devUUID,
		Scheme: cfg.Scheme(),
		Host:   host,
		Port:   cfg.Server.Port,
		Info: onvif.DeviceInfo{
			Manufacturer:    cfg.Device.Manufacturer,
			Model:           cfg.Device.Model,
			FirmwareVersion: cfg.Device.FirmwareVersion,
			SerialNumber:    cfg.Device.SerialNumber,
			HardwareId:      cfg.Device.HardwareID,
		},
		Name:     cfg.Device.Name,
		Location: cfg.Device.Location,
		Hardware: cfg.Device.Hardware,
		PTZ:      true,
	})
	if err != nil {
		return errors.Annotate(err, "device identity")
	}

	var fwd ptz.Forwarder
	var udpFwd *ptz.UDPForwarder
	if cfg.PTZ.Forwarding {
		udpFwd, err = ptz.NewUDPForwarder(cfg.PTZ.ForwardAddr, log)
		if err != nil {
			return errors.Trace(err)
		}
		defer udpFwd.Close()
		fwd = udpFwd
	}

	ptzEngine := ptz.NewEngine(ptz.Options{
		Limits:    cfg.PTZ.Limits,
		Home:      cfg.PTZ.Home,
		Forwarder: fwd,
		Logger:    log,
	})
	events := event.NewEngine(cfg.Events, log, nil)
	store := imaging.NewStore(cfg.Imaging.Defaults, cfg.Imaging.Ranges, log)

	srv, err := gateway.NewServer(gateway.Options{
		Addr:     cfg.ListenAddr(),
		Identity: identity,
		Profiles: []onvif.MediaProfile{mediaProfile(cfg.Media, cfg.Events.SourceToken)},
		PTZ:      ptzEngine,
		Events:   events,
		Imaging:  store,
		Logger:   log,
		CertFile: certFile(cfg),
		KeyFile:  keyFile(cfg),
	})
	if err != nil {
		return errors.Trace(err)
	}

	var feedback *ptz.FeedbackListener
	if udpFwd != nil {
		if feedback, err = ptz.ListenFeedback(cfg.PTZ.FeedbackAddr, ptzEngine, log); err != nil {
			return errors.Trace(err)
		}
	}

	var responder *discovery.Responder
	if cfg.Discovery.Enabled {
		responder, err = discovery.NewResponder(identity, discovery.Options{
			MulticastAddr: cfg.Discovery.MulticastAddr,
			Interface:     cfg.Discovery.Interface,
			Logger:        log,
		})
		if err != nil {
			// the SOAP services stay usable by address
			log.Warn().Err(err).Msg("WS-Discovery disabled")
			responder = nil
		}
	}

	log.Info().
		Str("uuid", identity.UUID.String()).
		Str("xaddr", identity.ServiceAddr(onvif.ServiceDevice)).
		Str("stream_uri", cfg.Media.StreamURI).
		Bool("ptz_forwarding", cfg.PTZ.Forwarding).
		Msg("starting ONVIF Profile T simulator")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return events.Run(ctx) })
	if udpFwd != nil {
		g.Go(func() error { return udpFwd.Run(ctx) })
		g.Go(func() error { return feedback.Run(ctx) })
	}
	if responder != nil {
		g.Go(func() error { return responder.Run(ctx) })
	}
	if cfg.Discovery.MDNS {
		mdns := discovery.NewMDNSAdvertiser(identity, discovery.MDNSOptions{
			Port:      cfg.Server.Port,
			Interface: cfg.Discovery.Interface,
			Logger:    log,
		})
		g.Go(func() error { return mdns.Run(ctx) })
	}

	return g.Wait()
}

func mediaProfile(m config.Media, sourceToken string) onvif.MediaProfile {
	res := onvif.Resolution{Width: m.Width, Height: m.Height}
	return onvif.MediaProfile{
		Token:            onvif.DefaultProfileToken,
		Name:             onvif.DefaultProfileName,
		VideoSourceToken: sourceToken,
		VideoEncoder: onvif.VideoEncoderConfig{
			Token:          onvif.DefaultVideoEncoderToken,
			Name:           "VideoEncoder_" + m.Encoding,
			Encoding:       m.Encoding,
			Resolution:     res,
			Quality:        float32(m.Quality),
			FrameRateLimit: m.FrameRate,
			BitrateLimit:   m.Bitrate,
			GovLength:      m.GovLength,
		},
		PTZConfigToken:    onvif.DefaultPTZConfigToken,
		PTZNodeToken:      onvif.DefaultPTZNodeToken,
		StreamURI:         m.StreamURI,
		SessionTimeout:    time.Minute,
		VideoSourceBounds: res,
	}
}

func certFile(cfg *config.Config) string {
	if !cfg.Server.HTTPS {
		return ""
	}
	return cfg.Server.CertFile
}

func keyFile(cfg *config.Config) string {
	if !cfg.Server.HTTPS {
		return ""
	}
	return cfg.Server.KeyFile
}
