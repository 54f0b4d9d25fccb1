package gateway

import (
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/samber/lo"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// capability categories of GetCapabilities
var categories = []string{"All", "Analytics", "Device", "Events", "Imaging", "Media", "PTZ"}

func (s *Server) getCapabilities(c *call) (*etree.Element, error) {
	id := s.opts.Identity
	requested := lo.Map(c.req.Payload.SelectElements("Category"), func(el *etree.Element, _ int) string {
		return strings.TrimSpace(el.Text())
	})
	for _, cat := range requested {
		if !lo.Contains(categories, cat) {
			return nil, errInvalidArg("unknown capability category %q", cat)
		}
	}
	want := func(cat string) bool {
		return len(requested) == 0 || lo.Contains(requested, "All") || lo.Contains(requested, cat)
	}

	resp := etree.NewElement("tds:GetCapabilitiesResponse")
	caps := resp.CreateElement("tds:Capabilities")
	if want("Device") {
		dev := caps.CreateElement("tt:Device")
		text(dev, "tt:XAddr", id.ServiceAddr(onvif.ServiceDevice))
		sys := dev.CreateElement("tt:System")
		boolText(sys, "tt:DiscoveryResolve", false)
		boolText(sys, "tt:DiscoveryBye", true)
		boolText(sys, "tt:RemoteDiscovery", false)
		boolText(sys, "tt:SystemBackup", false)
		boolText(sys, "tt:SystemLogging", false)
		boolText(sys, "tt:FirmwareUpgrade", false)
	}
	if want("Events") {
		ev := caps.CreateElement("tt:Events")
		text(ev, "tt:XAddr", id.ServiceAddr(onvif.ServiceEvents))
		boolText(ev, "tt:WSSubscriptionPolicySupport", true)
		boolText(ev, "tt:WSPullPointSupport", true)
		boolText(ev, "tt:WSPausableSubscriptionManagerInterfaceSupport", false)
	}
	if want("Imaging") {
		text(caps.CreateElement("tt:Imaging"), "tt:XAddr", id.ServiceAddr(onvif.ServiceImaging))
	}
	if want("Media") {
		media := caps.CreateElement("tt:Media")
		text(media, "tt:XAddr", id.ServiceAddr(onvif.ServiceMedia))
		streaming := media.CreateElement("tt:StreamingCapabilities")
		boolText(streaming, "tt:RTPMulticast", false)
		boolText(streaming, "tt:RTP_TCP", true)
		boolText(streaming, "tt:RTP_RTSP_TCP", true)
	}
	if want("PTZ") {
		text(caps.CreateElement("tt:PTZ"), "tt:XAddr", id.ServiceAddr(onvif.ServicePTZ))
	}
	return resp, nil
}

func (s *Server) getDeviceInformation(*call) (*etree.Element, error) {
	info := s.opts.Identity.Info
	resp := etree.NewElement("tds:GetDeviceInformationResponse")
	text(resp, "tds:Manufacturer", info.Manufacturer)
	text(resp, "tds:Model", info.Model)
	text(resp, "tds:FirmwareVersion", info.FirmwareVersion)
	text(resp, "tds:SerialNumber", info.SerialNumber)
	text(resp, "tds:HardwareId", info.HardwareId)
	return resp, nil
}

func (s *Server) getServices(*call) (*etree.Element, error) {
	resp := etree.NewElement("tds:GetServicesResponse")
	for _, svc := range onvif.Services {
		el := resp.CreateElement("tds:Service")
		text(el, "tds:Namespace", svc.Namespace())
		text(el, "tds:XAddr", s.opts.Identity.ServiceAddr(svc))
		ver := el.CreateElement("tds:Version")
		intText(ver, "tt:Major", 2)
		intText(ver, "tt:Minor", 0)
	}
	return resp, nil
}

func (s *Server) getSystemDateAndTime(c *call) (*etree.Element, error) {
	now := time.Now().UTC()
	resp := etree.NewElement("tds:GetSystemDateAndTimeResponse")
	dt := resp.CreateElement("tds:SystemDateAndTime")
	text(dt, "tt:DateTimeType", "Manual")
	boolText(dt, "tt:DaylightSavings", false)
	text(dt.CreateElement("tt:TimeZone"), "tt:TZ", "UTC")

	utc := dt.CreateElement("tt:UTCDateTime")
	date := utc.CreateElement("tt:Date")
	intText(date, "tt:Year", now.Year())
	intText(date, "tt:Month", int(now.Month()))
	intText(date, "tt:Day", now.Day())
	clock := utc.CreateElement("tt:Time")
	intText(clock, "tt:Hour", now.Hour())
	intText(clock, "tt:Minute", now.Minute())
	intText(clock, "tt:Second", now.Second())
	return resp, nil
}

func (s *Server) getScopes(*call) (*etree.Element, error) {
	resp := etree.NewElement("tds:GetScopesResponse")
	for _, scope := range s.opts.Identity.Scopes {
		el := resp.CreateElement("tds:Scopes")
		text(el, "tt:ScopeDef", "Fixed")
		text(el, "tt:ScopeItem", scope)
	}
	return resp, nil
}

func (s *Server) getHostname(*call) (*etree.Element, error) {
	name := strings.ReplaceAll(strings.TrimSpace(s.opts.Identity.Name), " ", "-")
	resp := etree.NewElement("tds:GetHostnameResponse")
	info := resp.CreateElement("tds:HostnameInformation")
	boolText(info, "tt:FromDHCP", false)
	text(info, "tt:Name", name)
	return resp, nil
}
