package gateway

import (
	"github.com/beevik/etree"
	"github.com/juju/errors"
	"github.com/samber/lo"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

func errInvalidArg(format string, args ...interface{}) error {
	return errors.Annotatef(onvif.ErrInvalidArgs, format, args...)
}

// profile resolves a ProfileToken. An empty token selects the first
// profile.
func (s *Server) profile(token string) (onvif.MediaProfile, error) {
	if token == "" {
		return s.opts.Profiles[0], nil
	}
	p, ok := lo.Find(s.opts.Profiles, func(p onvif.MediaProfile) bool { return p.Token == token })
	if !ok {
		return onvif.MediaProfile{}, errInvalidArg("no profile %q", token)
	}
	return p, nil
}

func (s *Server) getProfiles(*call) (*etree.Element, error) {
	resp := etree.NewElement("trt:GetProfilesResponse")
	for _, p := range s.opts.Profiles {
		writeProfile(resp, "trt:Profiles", p)
	}
	return resp, nil
}

func (s *Server) getProfile(c *call) (*etree.Element, error) {
	token := c.req.Text("ProfileToken")
	if token == "" {
		return nil, errInvalidArg("missing ProfileToken")
	}
	p, err := s.profile(token)
	if err != nil {
		return nil, err
	}
	resp := etree.NewElement("trt:GetProfileResponse")
	writeProfile(resp, "trt:Profile", p)
	return resp, nil
}

func writeProfile(parent *etree.Element, tag string, p onvif.MediaProfile) {
	el := parent.CreateElement(tag)
	el.CreateAttr("token", p.Token)
	el.CreateAttr("fixed", "true")
	text(el, "tt:Name", p.Name)

	src := el.CreateElement("tt:VideoSourceConfiguration")
	src.CreateAttr("token", p.VideoSourceToken)
	text(src, "tt:Name", "VideoSourceConfig")
	intText(src, "tt:UseCount", 1)
	text(src, "tt:SourceToken", p.VideoSourceToken)
	bounds := src.CreateElement("tt:Bounds")
	bounds.CreateAttr("x", "0")
	bounds.CreateAttr("y", "0")
	bounds.CreateAttr("width", formatFloat(float64(p.VideoSourceBounds.Width)))
	bounds.CreateAttr("height", formatFloat(float64(p.VideoSourceBounds.Height)))

	writeEncoder(el, "tt:VideoEncoderConfiguration", p)

	if p.PTZConfigToken != "" {
		cfg := el.CreateElement("tt:PTZConfiguration")
		cfg.CreateAttr("token", p.PTZConfigToken)
		text(cfg, "tt:Name", p.PTZConfigToken)
		intText(cfg, "tt:UseCount", 1)
		text(cfg, "tt:NodeToken", p.PTZNodeToken)
	}
}

func writeEncoder(parent *etree.Element, tag string, p onvif.MediaProfile) {
	enc := p.VideoEncoder
	el := parent.CreateElement(tag)
	el.CreateAttr("token", enc.Token)
	text(el, "tt:Name", enc.Name)
	intText(el, "tt:UseCount", 1)
	text(el, "tt:Encoding", enc.Encoding)
	resolution(el, "tt:Resolution", enc.Resolution)
	floatText(el, "tt:Quality", float64(enc.Quality))

	rate := el.CreateElement("tt:RateControl")
	intText(rate, "tt:FrameRateLimit", enc.FrameRateLimit)
	intText(rate, "tt:EncodingInterval", 1)
	intText(rate, "tt:BitrateLimit", enc.BitrateLimit)
	if enc.Encoding == "H264" && enc.GovLength > 0 {
		intText(el.CreateElement("tt:H264"), "tt:GovLength", enc.GovLength)
	}

	mc := el.CreateElement("tt:Multicast")
	addr := mc.CreateElement("tt:Address")
	text(addr, "tt:Type", "IPv4")
	text(addr, "tt:IPv4Address", "0.0.0.0")
	intText(mc, "tt:Port", 0)
	intText(mc, "tt:TTL", 0)
	boolText(mc, "tt:AutoStart", false)

	text(el, "tt:SessionTimeout", soap.FormatDuration(p.SessionTimeout))
}

func (s *Server) getStreamURI(c *call) (*etree.Element, error) {
	p, err := s.profile(c.req.Text("ProfileToken"))
	if err != nil {
		return nil, err
	}
	resp := etree.NewElement("trt:GetStreamUriResponse")
	uri := resp.CreateElement("trt:MediaUri")
	text(uri, "tt:Uri", p.StreamURI)
	boolText(uri, "tt:InvalidAfterConnect", false)
	boolText(uri, "tt:InvalidAfterReboot", false)
	text(uri, "tt:Timeout", soap.FormatDuration(p.SessionTimeout))
	return resp, nil
}

func (s *Server) getVideoSources(*call) (*etree.Element, error) {
	resp := etree.NewElement("trt:GetVideoSourcesResponse")
	sources := lo.UniqBy(s.opts.Profiles, func(p onvif.MediaProfile) string { return p.VideoSourceToken })
	for _, p := range sources {
		el := resp.CreateElement("trt:VideoSources")
		el.CreateAttr("token", p.VideoSourceToken)
		floatText(el, "tt:Framerate", float64(p.VideoEncoder.FrameRateLimit))
		resolution(el, "tt:Resolution", p.VideoSourceBounds)
	}
	return resp, nil
}

func (s *Server) getVideoEncoderConfigurations(*call) (*etree.Element, error) {
	resp := etree.NewElement("trt:GetVideoEncoderConfigurationsResponse")
	for _, p := range s.opts.Profiles {
		writeEncoder(resp, "trt:Configurations", p)
	}
	return resp, nil
}
