package gateway

import (
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/juju/errors"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/event"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

const dialectConcreteSet = "http://www.onvif.org/ver10/tev/topicExpression/ConcreteSet"

// termination reads an optional WS-BaseNotification termination time. An
// absent value yields 0, which the engine replaces by its default lifetime.
func (s *Server) termination(c *call, path string) (time.Duration, error) {
	raw := c.req.Text(path)
	if raw == "" {
		return 0, nil
	}
	d, err := soap.ParseTermination(raw, s.opts.Events.Now())
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errInvalidArg("termination time %q is not in the future", raw)
	}
	return d, nil
}

func (s *Server) subscriptionToken(c *call) (string, error) {
	if c.token == "" {
		return "", errors.Annotate(onvif.ErrInvalidSubscription, "request does not address a pull point")
	}
	return c.token, nil
}

func (s *Server) createPullPointSubscription(c *call) (*etree.Element, error) {
	lifetime, err := s.termination(c, "InitialTerminationTime")
	if err != nil {
		return nil, err
	}
	sub, err := s.opts.Events.Create(lifetime)
	if err != nil {
		return nil, err
	}

	resp := etree.NewElement("tev:CreatePullPointSubscriptionResponse")
	ref := resp.CreateElement("tev:SubscriptionReference")
	text(ref, "wsa:Address", s.opts.Identity.PullPointAddr(sub.Token))
	text(resp, "wsnt:CurrentTime", soap.FormatTime(sub.Created))
	text(resp, "wsnt:TerminationTime", soap.FormatTime(sub.Expires))
	return resp, nil
}

func (s *Server) pullMessages(c *call) (*etree.Element, error) {
	token, err := s.subscriptionToken(c)
	if err != nil {
		return nil, err
	}
	var timeout time.Duration
	if raw := c.req.Text("Timeout"); raw != "" {
		if timeout, err = soap.ParseDuration(raw); err != nil {
			return nil, err
		}
	}
	limit := 0
	if raw := c.req.Text("MessageLimit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			return nil, errInvalidArg("MessageLimit %q", raw)
		}
	}

	res, err := s.opts.Events.Pull(c.ctx, token, timeout, limit)
	if err != nil {
		return nil, err
	}

	resp := etree.NewElement("tev:PullMessagesResponse")
	text(resp, "tev:CurrentTime", soap.FormatTime(res.CurrentTime))
	text(resp, "tev:TerminationTime", soap.FormatTime(res.TerminationTime))
	for _, ev := range res.Events {
		writeNotification(resp, ev)
	}
	return resp, nil
}

func writeNotification(parent *etree.Element, ev event.MotionEvent) {
	msg := parent.CreateElement("wsnt:NotificationMessage")
	topic := text(msg, "wsnt:Topic", ev.Topic)
	topic.CreateAttr("Dialect", dialectConcreteSet)

	body := msg.CreateElement("wsnt:Message").CreateElement("tt:Message")
	body.CreateAttr("UtcTime", soap.FormatTime(ev.Time))
	body.CreateAttr("PropertyOperation", ev.Operation)

	src := body.CreateElement("tt:Source").CreateElement("tt:SimpleItem")
	src.CreateAttr("Name", "VideoSourceConfigurationToken")
	src.CreateAttr("Value", ev.Source)

	data := body.CreateElement("tt:Data").CreateElement("tt:SimpleItem")
	data.CreateAttr("Name", "State")
	data.CreateAttr("Value", strconv.FormatBool(ev.State))
}

func (s *Server) getEventProperties(*call) (*etree.Element, error) {
	resp := etree.NewElement("tev:GetEventPropertiesResponse")
	text(resp, "tev:TopicNamespaceLocation", "http://www.onvif.org/onvif/ver10/topics/topicns.xml")
	boolText(resp, "wsnt:FixedTopicSet", true)

	set := resp.CreateElement("wstop:TopicSet")
	motion := set.CreateElement("tns1:VideoSource").CreateElement("MotionAlarm")
	motion.CreateAttr("wstop:topic", "true")
	desc := motion.CreateElement("tt:MessageDescription")
	desc.CreateAttr("IsProperty", "true")
	item := desc.CreateElement("tt:Source").CreateElement("tt:SimpleItemDescription")
	item.CreateAttr("Name", "VideoSourceConfigurationToken")
	item.CreateAttr("Type", "tt:ReferenceToken")
	item = desc.CreateElement("tt:Data").CreateElement("tt:SimpleItemDescription")
	item.CreateAttr("Name", "State")
	item.CreateAttr("Type", "xs:boolean")

	text(resp, "wsnt:TopicExpressionDialect", dialectConcreteSet)
	text(resp, "tev:MessageContentFilterDialect", "http://www.onvif.org/ver10/tev/messageContentFilter/ItemFilter")
	text(resp, "tev:MessageContentSchemaLocation", "http://www.onvif.org/onvif/ver10/schema/onvif.xsd")
	return resp, nil
}

func (s *Server) setSynchronizationPoint(c *call) (*etree.Element, error) {
	token, err := s.subscriptionToken(c)
	if err != nil {
		return nil, err
	}
	if err := s.opts.Events.Synchronize(token); err != nil {
		return nil, err
	}
	return etree.NewElement("tev:SetSynchronizationPointResponse"), nil
}

func (s *Server) renew(c *call) (*etree.Element, error) {
	token, err := s.subscriptionToken(c)
	if err != nil {
		return nil, err
	}
	lifetime, err := s.termination(c, "TerminationTime")
	if err != nil {
		return nil, err
	}
	sub, err := s.opts.Events.Renew(token, lifetime)
	if err != nil {
		return nil, err
	}
	resp := etree.NewElement("wsnt:RenewResponse")
	text(resp, "wsnt:TerminationTime", soap.FormatTime(sub.Expires))
	text(resp, "wsnt:CurrentTime", soap.FormatTime(s.opts.Events.Now()))
	return resp, nil
}

func (s *Server) unsubscribe(c *call) (*etree.Element, error) {
	token, err := s.subscriptionToken(c)
	if err != nil {
		return nil, err
	}
	if err := s.opts.Events.Unsubscribe(token); err != nil {
		return nil, err
	}
	return etree.NewElement("wsnt:UnsubscribeResponse"), nil
}
