// Package gateway serves the ONVIF SOAP services of the simulated device
// over HTTP or HTTPS.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/event"
	"github.com/SridarDhandapani/onvif-simulator/imaging"
	"github.com/SridarDhandapani/onvif-simulator/ptz"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

const shutdownTimeout = 5 * time.Second

// Options wires the gateway to the device state it serves
type Options struct {
	// Addr is the listen address, for example ":8080"
	Addr string
	// CertFile and KeyFile enable HTTPS when both are set
	CertFile string
	KeyFile  string

	Identity *onvif.DeviceIdentity
	Profiles []onvif.MediaProfile
	PTZ      *ptz.Engine
	Events   *event.Engine
	Imaging  *imaging.Store
	Logger   zerolog.Logger
}

// Server is the protocol gateway. Handlers never own device state; they
// go through the engines, which do their own locking.
type Server struct {
	opts   Options
	routes map[route]handlerFunc
	engine *gin.Engine
	log    zerolog.Logger
}

// NewServer builds the router. It does not listen until Run.
func NewServer(opts Options) (*Server, error) {
	if opts.Identity == nil || opts.PTZ == nil || opts.Events == nil || opts.Imaging == nil {
		return nil, errors.NotValidf("gateway options without device state")
	}
	if len(opts.Profiles) == 0 {
		return nil, errors.NotValidf("gateway options without media profiles")
	}
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf(":%d", onvif.DefaultSOAPPort)
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		opts: opts,
		log:  opts.Logger.With().Str("component", "gateway").Logger(),
	}
	s.routes = s.buildRoutes()

	r := gin.New()
	r.Use(s.recovery(), s.requestLogger())
	for _, svc := range onvif.Services {
		r.POST(svc.Path(), s.dispatch)
	}
	r.POST(onvif.PullPointPath, s.dispatch)
	r.POST(onvif.PullPointPath+"/:token", s.dispatch)
	s.engine = r
	return s, nil
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		tls := s.opts.CertFile != "" && s.opts.KeyFile != ""
		s.log.Info().Str("addr", s.opts.Addr).Bool("https", tls).
			Str("device_service", s.opts.Identity.ServiceAddr(onvif.ServiceDevice)).Msg("SOAP gateway listening")
		var err error
		if tls {
			err = srv.ListenAndServeTLS(s.opts.CertFile, s.opts.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()

	select {
	case err := <-errc:
		return errors.Annotate(err, "SOAP gateway")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("graceful shutdown failed")
		srv.Close()
	}
	return errors.Trace(<-errc)
}

// recovery turns a handler panic into a Receiver fault so the client still
// gets a well-formed envelope
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("handler panicked")
				s.writeFault(c, errors.Errorf("internal error: %v", r))
				c.Abort()
			}
		}()
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("operation", c.GetString(operationKey)).
			Int("status", c.Writer.Status()).
			Str("remote", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) writeFault(c *gin.Context, err error) {
	f := soap.FaultFor(err)
	ev := s.log.Info()
	if f.Code == soap.CodeReceiver {
		ev = s.log.Error()
	}
	ev.Str("code", string(f.Code)).Str("subcode", f.Subcode).Str("reason", f.Reason).Msg("fault")
	s.write(c, f.HTTPStatus(), f.Envelope())
}

func (s *Server) write(c *gin.Context, status int, env *soap.Envelope) {
	out, err := env.Bytes()
	if err != nil {
		s.log.Error().Err(err).Msg("encoding response")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, soap.ContentType, out)
}
