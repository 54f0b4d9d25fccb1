package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// StreamConfig summarizes one media profile and its stream
type StreamConfig struct {
	ProfileName  string
	ProfileToken string
	EncoderToken string
	SourceToken  string
	PTZConfig    string
	Resolution   onvif.Resolution
	Framerate    int
	Bitrate      int
	Encoding     string
	StreamURI    string
	// Quality is Main or Sub, judged from the resolution
	Quality string
}

// IsMainStream checks if a stream configuration is likely the main stream
func IsMainStream(config StreamConfig) bool {
	return config.Quality == "Main" ||
		strings.Contains(strings.ToLower(config.ProfileName), "main") ||
		strings.Contains(strings.ToLower(config.ProfileName), "stream1")
}

// IsSubStream checks if a stream configuration is likely the sub stream
func IsSubStream(config StreamConfig) bool {
	return config.Quality == "Sub" ||
		strings.Contains(strings.ToLower(config.ProfileName), "sub") ||
		strings.Contains(strings.ToLower(config.ProfileName), "stream2")
}

// GetStreamProfiles fetches all profiles carrying a video encoder together
// with their stream URIs
func (c *Client) GetStreamProfiles(ctx context.Context, d *Device) ([]StreamConfig, error) {
	resp, err := c.call(ctx, d.serviceURL(onvif.ServiceMedia), onvif.ServiceMedia, "GetProfiles", `<trt:GetProfiles/>`)
	if err != nil {
		return nil, err
	}

	var streams []StreamConfig
	for _, p := range resp.SelectElements("Profiles") {
		enc := p.SelectElement("VideoEncoderConfiguration")
		if enc == nil {
			continue
		}
		cfg := StreamConfig{
			ProfileName:  childText(p, "Name"),
			ProfileToken: p.SelectAttrValue("token", ""),
			EncoderToken: enc.SelectAttrValue("token", ""),
			SourceToken:  pathText(p, "VideoSourceConfiguration/SourceToken"),
			Resolution: onvif.Resolution{
				Width:  atoi(pathText(enc, "Resolution/Width")),
				Height: atoi(pathText(enc, "Resolution/Height")),
			},
			Framerate: atoi(pathText(enc, "RateControl/FrameRateLimit")),
			Bitrate:   atoi(pathText(enc, "RateControl/BitrateLimit")),
			Encoding:  childText(enc, "Encoding"),
			Quality:   "Sub",
		}
		if ptz := p.SelectElement("PTZConfiguration"); ptz != nil {
			cfg.PTZConfig = ptz.SelectAttrValue("token", "")
		}
		if cfg.Resolution.Width >= 1280 {
			cfg.Quality = "Main"
		}
		if uri, err := c.GetStreamURI(ctx, d, cfg.ProfileToken); err == nil {
			cfg.StreamURI = uri
		}
		streams = append(streams, cfg)
	}
	return streams, nil
}

// GetStreamURI retrieves the RTSP stream URI of a profile
func (c *Client) GetStreamURI(ctx context.Context, d *Device, profileToken string) (string, error) {
	body := fmt.Sprintf(`<trt:GetStreamUri>
		<trt:StreamSetup>
			<tt:Stream>RTP-Unicast</tt:Stream>
			<tt:Transport><tt:Protocol>RTSP</tt:Protocol></tt:Transport>
		</trt:StreamSetup>
		<trt:ProfileToken>%s</trt:ProfileToken>
	</trt:GetStreamUri>`, escape(profileToken))

	resp, err := c.call(ctx, d.serviceURL(onvif.ServiceMedia), onvif.ServiceMedia, "GetStreamUri", body)
	if err != nil {
		return "", err
	}
	return pathText(resp, "MediaUri/Uri"), nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// escape makes s safe as XML character data
func escape(s string) string {
	return xmlEscaper.Replace(s)
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
