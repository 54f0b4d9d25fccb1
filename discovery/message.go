// Package discovery implements WS-Discovery for the simulated device: a
// multicast responder, a probe client and an optional mDNS advertisement.
package discovery

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/juju/errors"

	onvif "github.com/SridarDhandapani/onvif-simulator"
	"github.com/SridarDhandapani/onvif-simulator/soap"
)

// WS-Discovery actions and well-known addresses
const (
	ActionProbe        = onvif.NamespaceDiscovery + "/Probe"
	ActionProbeMatches = onvif.NamespaceDiscovery + "/ProbeMatches"
	ActionHello        = onvif.NamespaceDiscovery + "/Hello"
	ActionBye          = onvif.NamespaceDiscovery + "/Bye"

	AddressDiscovery = "urn:schemas-xmlsoap-org:ws:2005:04:discovery"
	AddressAnonymous = onvif.NamespaceAddressing + "/role/anonymous"

	MatchByRFC3986 = onvif.NamespaceDiscovery + "/rfc3986"
	MatchByStrcmp0 = onvif.NamespaceDiscovery + "/strcmp0"
)

const errNotProbe = errors.ConstError("not a probe")

// probe is a decoded Probe request
type probe struct {
	MessageID string
	Types     []onvif.QName
	Scopes    []string
	MatchBy   string
}

func parseProbe(data []byte) (*probe, error) {
	req, err := soap.ParseRequest(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if req.Operation != "Probe" {
		return nil, errors.Annotatef(errNotProbe, "body holds %s", req.Operation)
	}
	p := &probe{MessageID: req.MessageID}
	if types := req.Payload.SelectElement("Types"); types != nil {
		for _, name := range strings.Fields(types.Text()) {
			p.Types = append(p.Types, resolveQName(types, name))
		}
	}
	if scopes := req.Payload.SelectElement("Scopes"); scopes != nil {
		p.Scopes = strings.Fields(scopes.Text())
		p.MatchBy = strings.TrimSpace(scopes.SelectAttrValue("MatchBy", ""))
	}
	return p, nil
}

// resolveQName resolves a prefixed name against the namespace declarations
// in scope at el. An unknown prefix leaves Space empty.
func resolveQName(el *etree.Element, name string) onvif.QName {
	prefix, local := "", name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		prefix, local = name[:i], name[i+1:]
	}
	return onvif.QName{Space: lookupNamespace(el, prefix), Local: local, Prefix: prefix}
}

func lookupNamespace(el *etree.Element, prefix string) string {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if prefix == "" && a.Space == "" && a.Key == "xmlns" {
				return a.Value
			}
			if prefix != "" && a.Space == "xmlns" && a.Key == prefix {
				return a.Value
			}
		}
	}
	return ""
}

// sequence numbers outgoing announcements per WS-Discovery AppSequence
type sequence struct {
	instanceID int64
	number     int64
}

func (s *sequence) next(env *soap.Envelope) {
	s.number++
	seq := env.Header.CreateElement("d:AppSequence")
	seq.CreateAttr("InstanceId", strconv.FormatInt(s.instanceID, 10))
	seq.CreateAttr("MessageNumber", strconv.FormatInt(s.number, 10))
}

// writeEndpoint appends the endpoint description shared by ProbeMatch and
// Hello
func writeEndpoint(parent *etree.Element, id *onvif.DeviceIdentity, full bool) {
	parent.CreateElement("a:EndpointReference").CreateElement("a:Address").SetText(id.URN())
	if !full {
		return
	}
	parent.CreateElement("d:Types").SetText(id.TypesString())
	parent.CreateElement("d:Scopes").SetText(strings.Join(id.Scopes, " "))
	parent.CreateElement("d:XAddrs").SetText(strings.Join(id.XAddrs(), " "))
	parent.CreateElement("d:MetadataVersion").SetText("1")
}

func buildProbeMatches(id *onvif.DeviceIdentity, seq *sequence, relatesTo string) *soap.Envelope {
	env := soap.NewEnvelope()
	env.SetAddressing(soap.Addressing{
		Action:    ActionProbeMatches,
		MessageID: soap.NewMessageID(),
		RelatesTo: relatesTo,
		To:        AddressAnonymous,
	})
	seq.next(env)
	writeEndpoint(env.Body.CreateElement("d:ProbeMatches").CreateElement("d:ProbeMatch"), id, true)
	return env
}

func buildHello(id *onvif.DeviceIdentity, seq *sequence) *soap.Envelope {
	env := soap.NewEnvelope()
	env.SetAddressing(soap.Addressing{Action: ActionHello, MessageID: soap.NewMessageID(), To: AddressDiscovery})
	seq.next(env)
	writeEndpoint(env.Body.CreateElement("d:Hello"), id, true)
	return env
}

func buildBye(id *onvif.DeviceIdentity, seq *sequence) *soap.Envelope {
	env := soap.NewEnvelope()
	env.SetAddressing(soap.Addressing{Action: ActionBye, MessageID: soap.NewMessageID(), To: AddressDiscovery})
	seq.next(env)
	writeEndpoint(env.Body.CreateElement("d:Bye"), id, false)
	return env
}

func buildProbe(messageID string, types []onvif.QName, scopes []string) *soap.Envelope {
	env := soap.NewEnvelope()
	env.SetAddressing(soap.Addressing{Action: ActionProbe, MessageID: messageID, To: AddressDiscovery})
	p := env.Body.CreateElement("d:Probe")
	if len(types) > 0 {
		el := p.CreateElement("d:Types")
		names := make([]string, 0, len(types))
		for i, t := range types {
			prefix := t.Prefix
			if prefix == "" {
				prefix = "t" + strconv.Itoa(i)
			}
			if el.SelectAttr("xmlns:"+prefix) == nil && lookupNamespace(el, prefix) != t.Space {
				el.CreateAttr("xmlns:"+prefix, t.Space)
			}
			names = append(names, prefix+":"+t.Local)
		}
		el.SetText(strings.Join(names, " "))
	}
	if len(scopes) > 0 {
		p.CreateElement("d:Scopes").SetText(strings.Join(scopes, " "))
	}
	return env
}
