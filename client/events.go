package client

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/juju/errors"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

// PullPoint is a subscription created with CreatePullPoint
type PullPoint struct {
	Address         string
	TerminationTime string
}

// Notification is one received event message
type Notification struct {
	Topic     string
	UTCTime   string
	Operation string
	Source    map[string]string
	Data      map[string]string
}

// CreatePullPoint subscribes to the device events. A zero lifetime takes
// the device default.
func (c *Client) CreatePullPoint(ctx context.Context, d *Device, lifetime time.Duration) (*PullPoint, error) {
	args := ""
	if lifetime > 0 {
		args = "<tev:InitialTerminationTime>" + soap.FormatDuration(lifetime) + "</tev:InitialTerminationTime>"
	}
	body := "<tev:CreatePullPointSubscription>" + args + "</tev:CreatePullPointSubscription>"
	resp, err := c.call(ctx, d.serviceURL(onvif.ServiceEvents), onvif.ServiceEvents, "CreatePullPointSubscription", body)
	if err != nil {
		return nil, err
	}
	pp := &PullPoint{
		Address:         pathText(resp, "SubscriptionReference/Address"),
		TerminationTime: childText(resp, "TerminationTime"),
	}
	if pp.Address == "" {
		return nil, errors.NotFoundf("subscription address in response")
	}
	return pp, nil
}

// PullMessages waits up to timeout for at most limit notifications
func (c *Client) PullMessages(ctx context.Context, pp *PullPoint, timeout time.Duration, limit int) ([]Notification, error) {
	body := fmt.Sprintf(`<tev:PullMessages><tev:Timeout>%s</tev:Timeout><tev:MessageLimit>%d</tev:MessageLimit></tev:PullMessages>`,
		soap.FormatDuration(timeout), limit)
	resp, err := c.call(ctx, pp.Address, onvif.ServiceEvents, "PullMessages", body)
	if err != nil {
		return nil, err
	}
	if t := childText(resp, "TerminationTime"); t != "" {
		pp.TerminationTime = t
	}

	var out []Notification
	for _, msg := range resp.SelectElements("NotificationMessage") {
		n := Notification{Topic: childText(msg, "Topic")}
		if m := msg.FindElement("Message/Message"); m != nil {
			n.UTCTime = m.SelectAttrValue("UtcTime", "")
			n.Operation = m.SelectAttrValue("PropertyOperation", "")
			n.Source = simpleItems(m.SelectElement("Source"))
			n.Data = simpleItems(m.SelectElement("Data"))
		}
		out = append(out, n)
	}
	return out, nil
}

// Renew extends the subscription lifetime
func (c *Client) Renew(ctx context.Context, pp *PullPoint, lifetime time.Duration) error {
	body := "<wsnt:Renew><wsnt:TerminationTime>" + soap.FormatDuration(lifetime) + "</wsnt:TerminationTime></wsnt:Renew>"
	resp, err := c.soap.Call(ctx, pp.Address, onvif.NamespaceNotification+"/Renew", body)
	if err != nil {
		return errors.Annotate(err, "Renew")
	}
	pp.TerminationTime = childText(resp, "TerminationTime")
	return nil
}

// Unsubscribe ends the subscription
func (c *Client) Unsubscribe(ctx context.Context, pp *PullPoint) error {
	_, err := c.soap.Call(ctx, pp.Address, onvif.NamespaceNotification+"/Unsubscribe", "<wsnt:Unsubscribe/>")
	return errors.Annotate(err, "Unsubscribe")
}

func simpleItems(parent *etree.Element) map[string]string {
	items := make(map[string]string)
	if parent == nil {
		return items
	}
	for _, item := range parent.SelectElements("SimpleItem") {
		items[item.SelectAttrValue("Name", "")] = item.SelectAttrValue("Value", "")
	}
	return items
}
