// Package client talks to ONVIF devices, such as a running simulator, over
// SOAP
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/juju/errors"
	"github.com/samber/lo"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

// Device is an ONVIF device as seen by a client. Service URLs are filled by
// GetCapabilities; until then they are derived from Address.
type Device struct {
	Address string

	MediaURL   string
	PTZURL     string
	ImagingURL string
	EventsURL  string

	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareID      string
	Hostname        string
	DateTime        string
	TimeZone        string

	// Name is the discovery name scope, if known
	Name string
}

// Client issues typed ONVIF requests
type Client struct {
	soap *soap.Client
}

// New creates a client. Empty credentials send no WS-Security header.
func New(username, password string, timeout time.Duration) *Client {
	return &Client{soap: soap.NewClient(username, password, timeout)}
}

// SetInsecureTLS skips TLS certificate verification
func (c *Client) SetInsecureTLS(insecure bool) {
	c.soap.SetInsecureTLS(insecure)
}

func (c *Client) call(ctx context.Context, endpoint string, svc onvif.Service, operation, body string) (*etree.Element, error) {
	resp, err := c.soap.Call(ctx, endpoint, svc.Namespace()+"/"+operation, body)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", operation)
	}
	return resp, nil
}

// serviceURL returns the known URL of svc or derives it from the device
// service address
func (d *Device) serviceURL(svc onvif.Service) string {
	known := map[onvif.Service]string{
		onvif.ServiceMedia:   d.MediaURL,
		onvif.ServicePTZ:     d.PTZURL,
		onvif.ServiceImaging: d.ImagingURL,
		onvif.ServiceEvents:  d.EventsURL,
	}
	if u := known[svc]; u != "" {
		return u
	}
	address := firstAddress(d.Address)
	if svc == onvif.ServiceDevice {
		return address
	}
	return strings.Replace(address, onvif.ServiceDevice.Path(), svc.Path(), 1)
}

// GetDeviceInformation fills the identity strings, hostname, clock and
// service URLs of d
func (c *Client) GetDeviceInformation(ctx context.Context, d *Device) error {
	resp, err := c.call(ctx, d.serviceURL(onvif.ServiceDevice), onvif.ServiceDevice, "GetDeviceInformation", `<tds:GetDeviceInformation/>`)
	if err != nil {
		return err
	}
	d.Manufacturer = childText(resp, "Manufacturer")
	d.Model = childText(resp, "Model")
	d.FirmwareVersion = childText(resp, "FirmwareVersion")
	d.SerialNumber = childText(resp, "SerialNumber")
	d.HardwareID = childText(resp, "HardwareId")

	if err := c.GetHostname(ctx, d); err != nil {
		return err
	}
	if err := c.GetSystemDateTime(ctx, d); err != nil {
		return err
	}
	return c.GetCapabilities(ctx, d)
}

// GetHostname fetches the device hostname
func (c *Client) GetHostname(ctx context.Context, d *Device) error {
	resp, err := c.call(ctx, d.serviceURL(onvif.ServiceDevice), onvif.ServiceDevice, "GetHostname", `<tds:GetHostname/>`)
	if err != nil {
		return err
	}
	d.Hostname = pathText(resp, "HostnameInformation/Name")
	return nil
}

// GetSystemDateTime fetches the device clock
func (c *Client) GetSystemDateTime(ctx context.Context, d *Device) error {
	resp, err := c.call(ctx, d.serviceURL(onvif.ServiceDevice), onvif.ServiceDevice, "GetSystemDateAndTime", `<tds:GetSystemDateAndTime/>`)
	if err != nil {
		return err
	}
	d.TimeZone = pathText(resp, "SystemDateAndTime/TimeZone/TZ")
	utc := resp.FindElement("SystemDateAndTime/UTCDateTime")
	if utc == nil {
		return nil
	}
	d.DateTime = fmt.Sprintf("%s-%s-%s %s:%s:%s UTC",
		pathText(utc, "Date/Year"), pad(pathText(utc, "Date/Month")), pad(pathText(utc, "Date/Day")),
		pad(pathText(utc, "Time/Hour")), pad(pathText(utc, "Time/Minute")), pad(pathText(utc, "Time/Second")))
	return nil
}

// GetCapabilities records the advertised service URLs
func (c *Client) GetCapabilities(ctx context.Context, d *Device) error {
	resp, err := c.call(ctx, d.serviceURL(onvif.ServiceDevice), onvif.ServiceDevice, "GetCapabilities",
		`<tds:GetCapabilities><tds:Category>All</tds:Category></tds:GetCapabilities>`)
	if err != nil {
		return err
	}
	d.MediaURL = pathText(resp, "Capabilities/Media/XAddr")
	d.PTZURL = pathText(resp, "Capabilities/PTZ/XAddr")
	d.ImagingURL = pathText(resp, "Capabilities/Imaging/XAddr")
	d.EventsURL = pathText(resp, "Capabilities/Events/XAddr")
	return nil
}

// GetScopes returns the configured scope URIs
func (c *Client) GetScopes(ctx context.Context, d *Device) ([]string, error) {
	resp, err := c.call(ctx, d.serviceURL(onvif.ServiceDevice), onvif.ServiceDevice, "GetScopes", `<tds:GetScopes/>`)
	if err != nil {
		return nil, err
	}
	return lo.Map(resp.FindElements("Scopes/ScopeItem"), func(el *etree.Element, _ int) string {
		return strings.TrimSpace(el.Text())
	}), nil
}

// DisplayName returns the best available name for the device
func (d *Device) DisplayName() string {
	switch {
	case d.Manufacturer != "" && d.Model != "":
		return d.Manufacturer + " " + d.Model
	case d.Hostname != "":
		return d.Hostname
	case d.Name != "":
		return d.Name
	case d.Model != "":
		return d.Model
	}
	return firstAddress(d.Address)
}

// firstAddress extracts the first of a space separated XAddrs list
func firstAddress(address string) string {
	if fields := strings.Fields(address); len(fields) > 0 {
		return fields[0]
	}
	return address
}

func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

func pathText(el *etree.Element, path string) string {
	found := el.FindElement(path)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.Text())
}

func pad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
