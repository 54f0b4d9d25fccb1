package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/ptz"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

// PTZStatus is the reported state of the PTZ head
type PTZStatus struct {
	Position      ptz.Vector
	PanTiltMoving bool
	ZoomMoving    bool
	UTCTime       string
}

func vectorXML(tag string, v ptz.Vector) string {
	return fmt.Sprintf(`<tptz:%[1]s><tt:PanTilt x="%[2]s" y="%[3]s"/><tt:Zoom x="%[4]s"/></tptz:%[1]s>`,
		tag, ff(v.Pan), ff(v.Tilt), ff(v.Zoom))
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (c *Client) ptzCall(ctx context.Context, d *Device, operation, profileToken, args string) (*etree.Element, error) {
	body := fmt.Sprintf(`<tptz:%[1]s><tptz:ProfileToken>%[2]s</tptz:ProfileToken>%[3]s</tptz:%[1]s>`,
		operation, escape(profileToken), args)
	return c.call(ctx, d.serviceURL(onvif.ServicePTZ), onvif.ServicePTZ, operation, body)
}

// AbsoluteMove moves the head to position
func (c *Client) AbsoluteMove(ctx context.Context, d *Device, profileToken string, position ptz.Vector) error {
	_, err := c.ptzCall(ctx, d, "AbsoluteMove", profileToken, vectorXML("Position", position))
	return err
}

// RelativeMove moves the head by translation
func (c *Client) RelativeMove(ctx context.Context, d *Device, profileToken string, translation ptz.Vector) error {
	_, err := c.ptzCall(ctx, d, "RelativeMove", profileToken, vectorXML("Translation", translation))
	return err
}

// ContinuousMove starts moving at velocity. A zero timeout moves until Stop.
func (c *Client) ContinuousMove(ctx context.Context, d *Device, profileToken string, velocity ptz.Vector, timeout time.Duration) error {
	args := vectorXML("Velocity", velocity)
	if timeout > 0 {
		args += "<tptz:Timeout>" + soap.FormatDuration(timeout) + "</tptz:Timeout>"
	}
	_, err := c.ptzCall(ctx, d, "ContinuousMove", profileToken, args)
	return err
}

// Stop halts any motion
func (c *Client) Stop(ctx context.Context, d *Device, profileToken string) error {
	_, err := c.ptzCall(ctx, d, "Stop", profileToken, "<tptz:PanTilt>true</tptz:PanTilt><tptz:Zoom>true</tptz:Zoom>")
	return err
}

// GotoHomePosition moves the head to its home position
func (c *Client) GotoHomePosition(ctx context.Context, d *Device, profileToken string) error {
	_, err := c.ptzCall(ctx, d, "GotoHomePosition", profileToken, "")
	return err
}

// GetPTZStatus reads the position and move status
func (c *Client) GetPTZStatus(ctx context.Context, d *Device, profileToken string) (*PTZStatus, error) {
	resp, err := c.ptzCall(ctx, d, "GetStatus", profileToken, "")
	if err != nil {
		return nil, err
	}
	st := &PTZStatus{
		PanTiltMoving: pathText(resp, "PTZStatus/MoveStatus/PanTilt") == string(ptz.MoveMoving),
		ZoomMoving:    pathText(resp, "PTZStatus/MoveStatus/Zoom") == string(ptz.MoveMoving),
		UTCTime:       pathText(resp, "PTZStatus/UtcTime"),
	}
	if pt := resp.FindElement("PTZStatus/Position/PanTilt"); pt != nil {
		st.Position.Pan = floatAttr(pt, "x")
		st.Position.Tilt = floatAttr(pt, "y")
	}
	if z := resp.FindElement("PTZStatus/Position/Zoom"); z != nil {
		st.Position.Zoom = floatAttr(z, "x")
	}
	return st, nil
}

func floatAttr(el *etree.Element, key string) float64 {
	v, _ := strconv.ParseFloat(el.SelectAttrValue(key, ""), 64)
	return v
}
