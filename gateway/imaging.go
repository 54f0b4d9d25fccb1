package gateway

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/lo"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/imaging"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

func (s *Server) checkVideoSource(c *call) error {
	token := c.req.Text("VideoSourceToken")
	if token == "" {
		return nil
	}
	if !lo.ContainsBy(s.opts.Profiles, func(p onvif.MediaProfile) bool { return p.VideoSourceToken == token }) {
		return errInvalidArg("no video source %q", token)
	}
	return nil
}

func (s *Server) getImagingSettings(c *call) (*etree.Element, error) {
	if err := s.checkVideoSource(c); err != nil {
		return nil, err
	}
	cur := s.opts.Imaging.Get()
	resp := etree.NewElement("timg:GetImagingSettingsResponse")
	settings := resp.CreateElement("timg:ImagingSettings")
	floatText(settings, "tt:Brightness", cur.Brightness)
	floatText(settings, "tt:ColorSaturation", cur.Saturation)
	floatText(settings, "tt:Contrast", cur.Contrast)
	text(settings, "tt:IrCutFilter", string(cur.IrCutFilter))
	floatText(settings, "tt:Sharpness", cur.Sharpness)
	return resp, nil
}

// floatField reads an optional numeric child of settings into a patch field
func floatField(settings *etree.Element, dst **float64, tags ...string) error {
	for _, tag := range tags {
		v, ok, err := soap.FloatText(settings.SelectElement(tag))
		if err != nil {
			return err
		}
		if ok {
			*dst = &v
			return nil
		}
	}
	return nil
}

func (s *Server) setImagingSettings(c *call) (*etree.Element, error) {
	if err := s.checkVideoSource(c); err != nil {
		return nil, err
	}
	settings := c.req.Find("ImagingSettings")
	if settings == nil {
		return nil, errInvalidArg("missing ImagingSettings")
	}

	var patch imaging.Patch
	if err := floatField(settings, &patch.Brightness, "Brightness"); err != nil {
		return nil, err
	}
	if err := floatField(settings, &patch.Contrast, "Contrast"); err != nil {
		return nil, err
	}
	if err := floatField(settings, &patch.Saturation, "ColorSaturation", "Saturation"); err != nil {
		return nil, err
	}
	if err := floatField(settings, &patch.Sharpness, "Sharpness"); err != nil {
		return nil, err
	}
	if el := settings.SelectElement("IrCutFilter"); el != nil {
		patch.IrCutFilter = lo.ToPtr(onvif.IrCutFilterMode(strings.TrimSpace(el.Text())))
	}

	if _, err := s.opts.Imaging.Set(patch); err != nil {
		return nil, err
	}
	return etree.NewElement("timg:SetImagingSettingsResponse"), nil
}

func (s *Server) getImagingOptions(c *call) (*etree.Element, error) {
	if err := s.checkVideoSource(c); err != nil {
		return nil, err
	}
	opts := s.opts.Imaging.Options()
	resp := etree.NewElement("timg:GetOptionsResponse")
	el := resp.CreateElement("timg:ImagingOptions")
	rangeElement(el, "tt:Brightness", opts.Ranges.Brightness)
	rangeElement(el, "tt:ColorSaturation", opts.Ranges.Saturation)
	rangeElement(el, "tt:Contrast", opts.Ranges.Contrast)
	for _, mode := range opts.IrCutFilters {
		text(el, "tt:IrCutFilterModes", string(mode))
	}
	rangeElement(el, "tt:Sharpness", opts.Ranges.Sharpness)
	return resp, nil
}
