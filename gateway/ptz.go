package gateway

import (
	"time"

	"github.com/beevik/etree"
	"github.com/juju/errors"
	"github.com/samber/lo"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/ptz"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

// parseVector reads a PTZVector or PTZSpeed argument. Omitted axes stay nil.
func parseVector(el *etree.Element) (ptz.Axes, error) {
	var a ptz.Axes
	if el == nil {
		return a, nil
	}
	pt := el.SelectElement("PanTilt")
	axes := []struct {
		el  *etree.Element
		key string
		dst **float64
	}{
		{pt, "x", &a.Pan},
		{pt, "y", &a.Tilt},
		{el.SelectElement("Zoom"), "x", &a.Zoom},
	}
	for _, ax := range axes {
		v, ok, err := soap.FloatAttr(ax.el, ax.key)
		if err != nil {
			return a, err
		}
		if ok {
			*ax.dst = lo.ToPtr(v)
		}
	}
	return a, nil
}

func (s *Server) checkPTZProfile(c *call) error {
	token := c.req.Text("ProfileToken")
	if token == "" {
		return nil
	}
	p, err := s.profile(token)
	if err != nil {
		return err
	}
	if p.PTZConfigToken == "" {
		return errInvalidArg("profile %q has no PTZ configuration", token)
	}
	return nil
}

func (s *Server) absoluteMove(c *call) (*etree.Element, error) {
	if err := s.checkPTZProfile(c); err != nil {
		return nil, err
	}
	target, err := parseVector(c.req.Find("Position"))
	if err != nil {
		return nil, err
	}
	s.opts.PTZ.AbsoluteMoveAxes(target)
	return etree.NewElement("tptz:AbsoluteMoveResponse"), nil
}

func (s *Server) relativeMove(c *call) (*etree.Element, error) {
	if err := s.checkPTZProfile(c); err != nil {
		return nil, err
	}
	delta, err := parseVector(c.req.Find("Translation"))
	if err != nil {
		return nil, err
	}
	s.opts.PTZ.RelativeMove(delta.Over(ptz.Vector{}))
	return etree.NewElement("tptz:RelativeMoveResponse"), nil
}

func (s *Server) continuousMove(c *call) (*etree.Element, error) {
	if err := s.checkPTZProfile(c); err != nil {
		return nil, err
	}
	velocity, err := parseVector(c.req.Find("Velocity"))
	if err != nil {
		return nil, err
	}
	var timeout time.Duration
	if t := c.req.Text("Timeout"); t != "" {
		if timeout, err = soap.ParseDuration(t); err != nil {
			return nil, errors.Trace(err)
		}
	}
	s.opts.PTZ.ContinuousMove(velocity.Over(ptz.Vector{}), timeout)
	return etree.NewElement("tptz:ContinuousMoveResponse"), nil
}

func (s *Server) stop(c *call) (*etree.Element, error) {
	if err := s.checkPTZProfile(c); err != nil {
		return nil, err
	}
	s.opts.PTZ.Stop()
	return etree.NewElement("tptz:StopResponse"), nil
}

func (s *Server) gotoHomePosition(c *call) (*etree.Element, error) {
	if err := s.checkPTZProfile(c); err != nil {
		return nil, err
	}
	s.opts.PTZ.GotoHome()
	return etree.NewElement("tptz:GotoHomePositionResponse"), nil
}

func (s *Server) getStatus(c *call) (*etree.Element, error) {
	if err := s.checkPTZProfile(c); err != nil {
		return nil, err
	}
	st := s.opts.PTZ.Status()

	resp := etree.NewElement("tptz:GetStatusResponse")
	status := resp.CreateElement("tptz:PTZStatus")
	pos := status.CreateElement("tt:Position")
	pt := pos.CreateElement("tt:PanTilt")
	pt.CreateAttr("x", formatFloat(st.Position.Pan))
	pt.CreateAttr("y", formatFloat(st.Position.Tilt))
	pt.CreateAttr("space", spacePanTiltPosition)
	zoom := pos.CreateElement("tt:Zoom")
	zoom.CreateAttr("x", formatFloat(st.Position.Zoom))
	zoom.CreateAttr("space", spaceZoomPosition)

	move := status.CreateElement("tt:MoveStatus")
	panTiltStatus, zoomStatus := ptz.MoveIdle, ptz.MoveIdle
	if st.Move == ptz.MoveMoving {
		if st.Velocity.Pan != 0 || st.Velocity.Tilt != 0 {
			panTiltStatus = ptz.MoveMoving
		}
		if st.Velocity.Zoom != 0 {
			zoomStatus = ptz.MoveMoving
		}
	}
	text(move, "tt:PanTilt", string(panTiltStatus))
	text(move, "tt:Zoom", string(zoomStatus))
	text(status, "tt:UtcTime", soap.FormatTime(st.UTCTime))
	return resp, nil
}

func (s *Server) getNodes(*call) (*etree.Element, error) {
	resp := etree.NewElement("tptz:GetNodesResponse")
	s.writeNode(resp, "tptz:PTZNode")
	return resp, nil
}

func (s *Server) writeNode(parent *etree.Element, tag string) {
	limits := s.opts.PTZ.Limits()
	node := parent.CreateElement(tag)
	node.CreateAttr("token", s.opts.Profiles[0].PTZNodeToken)
	node.CreateAttr("FixedHomePosition", "true")
	text(node, "tt:Name", s.opts.Profiles[0].PTZNodeToken)

	spaces := node.CreateElement("tt:SupportedPTZSpaces")
	space2D(spaces, "tt:AbsolutePanTiltPositionSpace", spacePanTiltPosition, limits.Pan, limits.Tilt)
	space1D(spaces, "tt:AbsoluteZoomPositionSpace", spaceZoomPosition, limits.Zoom)
	translation := onvif.Range{Min: -1, Max: 1}
	space2D(spaces, "tt:RelativePanTiltTranslationSpace", spacePanTiltTranslation, translation, translation)
	space1D(spaces, "tt:RelativeZoomTranslationSpace", spaceZoomTranslation, translation)
	space2D(spaces, "tt:ContinuousPanTiltVelocitySpace", spacePanTiltVelocity, limits.Velocity, limits.Velocity)
	space1D(spaces, "tt:ContinuousZoomVelocitySpace", spaceZoomVelocity, limits.Velocity)
	speed := onvif.Range{Min: 0, Max: 1}
	space1D(spaces, "tt:PanTiltSpeedSpace", spacePanTiltSpeed, speed)
	space1D(spaces, "tt:ZoomSpeedSpace", spaceZoomSpeed, speed)

	intText(node, "tt:MaximumNumberOfPresets", 0)
	boolText(node, "tt:HomeSupported", true)
}

func (s *Server) getConfigurations(*call) (*etree.Element, error) {
	resp := etree.NewElement("tptz:GetConfigurationsResponse")
	for _, p := range s.opts.Profiles {
		if p.PTZConfigToken == "" {
			continue
		}
		cfg := resp.CreateElement("tptz:PTZConfiguration")
		cfg.CreateAttr("token", p.PTZConfigToken)
		text(cfg, "tt:Name", p.PTZConfigToken)
		intText(cfg, "tt:UseCount", 1)
		text(cfg, "tt:NodeToken", p.PTZNodeToken)
		text(cfg, "tt:DefaultAbsolutePantTiltPositionSpace", spacePanTiltPosition)
		text(cfg, "tt:DefaultAbsoluteZoomPositionSpace", spaceZoomPosition)
		text(cfg, "tt:DefaultContinuousPanTiltVelocitySpace", spacePanTiltVelocity)
		text(cfg, "tt:DefaultContinuousZoomVelocitySpace", spaceZoomVelocity)
		text(cfg, "tt:DefaultPTZTimeout", "PT10S")
	}
	return resp, nil
}
