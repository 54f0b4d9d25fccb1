// Package soap reads and writes the SOAP 1.2 envelopes exchanged with ONVIF
// clients.
package soap

import (
	"time"

	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// ContentType is the media type of every envelope the simulator sends
const ContentType = "application/soap+xml; charset=utf-8"

// TimeLayout formats xsd:dateTime values in UTC
const TimeLayout = "2006-01-02T15:04:05.000Z"

// prefixes declared on the root of every outgoing envelope
var prefixes = []struct{ prefix, uri string }{
	{"s", onvif.NamespaceSOAP},
	{"a", onvif.NamespaceAddressing},
	{"wsa", onvif.NamespaceWSA},
	{"d", onvif.NamespaceDiscovery},
	{"dn", onvif.NamespaceNetwork},
	{"tds", onvif.NamespaceDevice},
	{"trt", onvif.NamespaceMedia},
	{"tptz", onvif.NamespacePTZ},
	{"timg", onvif.NamespaceImaging},
	{"tev", onvif.NamespaceEvents},
	{"wsnt", onvif.NamespaceNotification},
	{"wstop", onvif.NamespaceTopicDialect},
	{"tt", onvif.NamespaceSchema},
	{"tns1", onvif.NamespaceTopics},
	{"ter", onvif.NamespaceError},
	{"xs", "http://www.w3.org/2001/XMLSchema"},
}

// Envelope is an outgoing SOAP message under construction
type Envelope struct {
	doc    *etree.Document
	Header *etree.Element
	Body   *etree.Element
}

// NewEnvelope creates an empty envelope with all ONVIF prefixes declared
func NewEnvelope() *Envelope {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("s:Envelope")
	for _, p := range prefixes {
		root.CreateAttr("xmlns:"+p.prefix, p.uri)
	}
	return &Envelope{
		doc:    doc,
		Header: root.CreateElement("s:Header"),
		Body:   root.CreateElement("s:Body"),
	}
}

// Wrap returns an envelope whose body carries payload
func Wrap(payload *etree.Element) *Envelope {
	env := NewEnvelope()
	if payload != nil {
		env.Body.AddChild(payload)
	}
	return env
}

// Addressing holds the WS-Addressing header fields of a message
type Addressing struct {
	Action    string
	MessageID string
	RelatesTo string
	To        string
}

// SetAddressing writes the WS-Addressing header block using the 2004/08
// namespace that WS-Discovery requires
func (e *Envelope) SetAddressing(a Addressing) {
	if a.Action != "" {
		e.Header.CreateElement("a:Action").SetText(a.Action)
	}
	if a.MessageID != "" {
		e.Header.CreateElement("a:MessageID").SetText(a.MessageID)
	}
	if a.RelatesTo != "" {
		e.Header.CreateElement("a:RelatesTo").SetText(a.RelatesTo)
	}
	if a.To != "" {
		e.Header.CreateElement("a:To").SetText(a.To)
	}
}

// Bytes serializes the envelope
func (e *Envelope) Bytes() ([]byte, error) {
	b, err := e.doc.WriteToBytes()
	return b, errors.Trace(err)
}

// NewMessageID returns a fresh urn:uuid message identifier
func NewMessageID() string {
	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.Must(uuid.NewV1())
	}
	return "urn:uuid:" + id.String()
}

// FormatTime renders t as an xsd:dateTime in UTC
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
