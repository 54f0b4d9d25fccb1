package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/gin-gonic/gin"
	"github.com/juju/errors"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

const operationKey = "onvif.operation"

// MaxRequestBytes bounds the size of an accepted SOAP envelope
const MaxRequestBytes = 1 << 20

// route identifies an operation by the namespace of its body element
type route struct {
	namespace string
	operation string
}

// call is one decoded request handed to a handler
type call struct {
	ctx     context.Context
	req     *soap.Request
	service onvif.Service
	// token is the pull point subscription addressed by the request
	token string
}

// handlerFunc returns the response payload or an error classified by
// soap.FaultFor
type handlerFunc func(*call) (*etree.Element, error)

func (s *Server) buildRoutes() map[route]handlerFunc {
	dev := onvif.NamespaceDevice
	media := onvif.NamespaceMedia
	ptz := onvif.NamespacePTZ
	img := onvif.NamespaceImaging
	ev := onvif.NamespaceEvents
	wsnt := onvif.NamespaceNotification

	return map[route]handlerFunc{
		{dev, "GetCapabilities"}:      s.getCapabilities,
		{dev, "GetDeviceInformation"}: s.getDeviceInformation,
		{dev, "GetServices"}:          s.getServices,
		{dev, "GetSystemDateAndTime"}: s.getSystemDateAndTime,
		{dev, "GetScopes"}:            s.getScopes,
		{dev, "GetHostname"}:          s.getHostname,

		{media, "GetProfiles"}:                   s.getProfiles,
		{media, "GetProfile"}:                    s.getProfile,
		{media, "GetStreamUri"}:                  s.getStreamURI,
		{media, "GetVideoSources"}:               s.getVideoSources,
		{media, "GetVideoEncoderConfigurations"}: s.getVideoEncoderConfigurations,

		{ptz, "AbsoluteMove"}:      s.absoluteMove,
		{ptz, "ContinuousMove"}:    s.continuousMove,
		{ptz, "RelativeMove"}:      s.relativeMove,
		{ptz, "Stop"}:              s.stop,
		{ptz, "GetStatus"}:         s.getStatus,
		{ptz, "GetNodes"}:          s.getNodes,
		{ptz, "GetConfigurations"}: s.getConfigurations,
		{ptz, "GotoHomePosition"}:  s.gotoHomePosition,

		{img, "GetImagingSettings"}: s.getImagingSettings,
		{img, "SetImagingSettings"}: s.setImagingSettings,
		{img, "GetOptions"}:         s.getImagingOptions,

		{ev, "CreatePullPointSubscription"}: s.createPullPointSubscription,
		{ev, "PullMessages"}:                s.pullMessages,
		{ev, "GetEventProperties"}:          s.getEventProperties,
		{ev, "SetSynchronizationPoint"}:     s.setSynchronizationPoint,
		{wsnt, "Renew"}:                     s.renew,
		{wsnt, "Unsubscribe"}:               s.unsubscribe,
	}
}

// dispatch is the single entry point of every service path
func (s *Server) dispatch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBytes)
	body, err := c.GetRawData()
	if err != nil {
		s.writeFault(c, errors.Annotate(onvif.ErrMalformedRequest, err.Error()))
		return
	}
	req, err := soap.ParseRequest(body)
	if err != nil {
		s.writeFault(c, err)
		return
	}
	c.Set(operationKey, req.Operation)

	svc, _ := onvif.ServiceForPath(c.Request.URL.Path)
	h, ok := s.lookup(req, svc)
	if !ok {
		s.writeFault(c, errors.Annotatef(onvif.ErrActionNotSupported, "%s in %q", req.Operation, req.Namespace))
		return
	}

	token := c.Param("token")
	if token == "" {
		token = tokenFromAddress(req.To)
	}
	payload, err := h(&call{ctx: c.Request.Context(), req: req, service: svc, token: token})
	if err != nil {
		s.writeFault(c, err)
		return
	}

	env := soap.Wrap(payload)
	if req.MessageID != "" {
		env.Header.CreateElement("wsa:RelatesTo").SetText(req.MessageID)
	}
	s.write(c, http.StatusOK, env)
}

// lookup resolves the handler. An unqualified operation element takes the
// namespace of the service the request was posted to.
func (s *Server) lookup(req *soap.Request, svc onvif.Service) (handlerFunc, bool) {
	if req.Namespace != "" {
		h, ok := s.routes[route{req.Namespace, req.Operation}]
		return h, ok
	}
	if svc == "" {
		return nil, false
	}
	if h, ok := s.routes[route{svc.Namespace(), req.Operation}]; ok {
		return h, true
	}
	if svc == onvif.ServiceEvents {
		h, ok := s.routes[route{onvif.NamespaceNotification, req.Operation}]
		return h, ok
	}
	return nil, false
}

// tokenFromAddress extracts the subscription token from a pull point
// address such as http://host/onvif/events/pullpoint/abc
func tokenFromAddress(addr string) string {
	i := strings.Index(addr, onvif.PullPointPath+"/")
	if i < 0 {
		return ""
	}
	token := addr[i+len(onvif.PullPointPath)+1:]
	if j := strings.IndexAny(token, "/?#"); j >= 0 {
		token = token[:j]
	}
	return token
}
