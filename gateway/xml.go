package gateway

import (
	"strconv"

	"github.com/beevik/etree"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// Generic PTZ coordinate spaces
const (
	spacePanTiltPosition    = "http://www.onvif.org/ver10/tptz/PanTiltSpaces/PositionGenericSpace"
	spaceZoomPosition       = "http://www.onvif.org/ver10/tptz/ZoomSpaces/PositionGenericSpace"
	spacePanTiltVelocity    = "http://www.onvif.org/ver10/tptz/PanTiltSpaces/VelocityGenericSpace"
	spaceZoomVelocity       = "http://www.onvif.org/ver10/tptz/ZoomSpaces/VelocityGenericSpace"
	spacePanTiltTranslation = "http://www.onvif.org/ver10/tptz/PanTiltSpaces/TranslationGenericSpace"
	spaceZoomTranslation    = "http://www.onvif.org/ver10/tptz/ZoomSpaces/TranslationGenericSpace"
	spacePanTiltSpeed       = "http://www.onvif.org/ver10/tptz/PanTiltSpaces/GenericSpeedSpace"
	spaceZoomSpeed          = "http://www.onvif.org/ver10/tptz/ZoomSpaces/ZoomGenericSpeedSpace"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func text(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

func boolText(parent *etree.Element, tag string, v bool) *etree.Element {
	return text(parent, tag, strconv.FormatBool(v))
}

func intText(parent *etree.Element, tag string, v int) *etree.Element {
	return text(parent, tag, strconv.Itoa(v))
}

func floatText(parent *etree.Element, tag string, v float64) *etree.Element {
	return text(parent, tag, formatFloat(v))
}

// rangeElement writes <tag><tt:Min/><tt:Max/></tag>
func rangeElement(parent *etree.Element, tag string, r onvif.Range) *etree.Element {
	el := parent.CreateElement(tag)
	floatText(el, "tt:Min", r.Min)
	floatText(el, "tt:Max", r.Max)
	return el
}

// space2D writes a tt:Space2DDescription
func space2D(parent *etree.Element, tag, uri string, x, y onvif.Range) {
	el := parent.CreateElement(tag)
	text(el, "tt:URI", uri)
	rangeElement(el, "tt:XRange", x)
	rangeElement(el, "tt:YRange", y)
}

// space1D writes a tt:Space1DDescription
func space1D(parent *etree.Element, tag, uri string, x onvif.Range) {
	el := parent.CreateElement(tag)
	text(el, "tt:URI", uri)
	rangeElement(el, "tt:XRange", x)
}

func resolution(parent *etree.Element, tag string, r onvif.Resolution) {
	el := parent.CreateElement(tag)
	intText(el, "tt:Width", r.Width)
	intText(el, "tt:Height", r.Height)
}
