package soap

import (
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/juju/errors"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// Request is a parsed inbound SOAP envelope
type Request struct {
	// Namespace is the namespace URI of the operation element
	Namespace string
	// Operation is the local name of the first element in the body
	Operation string
	// Payload is the operation element itself
	Payload *etree.Element

	MessageID string
	RelatesTo string
	Action    string
	To        string
}

// ParseRequest parses an envelope. Every failure wraps onvif.ErrMalformedRequest.
func ParseRequest(data []byte) (*Request, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Annotatef(onvif.ErrMalformedRequest, "%v", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return nil, errors.Annotate(onvif.ErrMalformedRequest, "no Envelope element")
	}
	body := root.SelectElement("Body")
	if body == nil {
		return nil, errors.Annotate(onvif.ErrMalformedRequest, "no Body element")
	}
	children := body.ChildElements()
	if len(children) == 0 {
		return nil, errors.Annotate(onvif.ErrMalformedRequest, "empty Body")
	}

	op := children[0]
	req := &Request{
		Namespace: op.NamespaceURI(),
		Operation: op.Tag,
		Payload:   op,
	}
	if header := root.SelectElement("Header"); header != nil {
		req.MessageID = childText(header, "MessageID")
		req.RelatesTo = childText(header, "RelatesTo")
		req.Action = childText(header, "Action")
		req.To = childText(header, "To")
	}
	return req, nil
}

// Find returns the first element under the payload matching a slash
// separated path of local names, or nil
func (r *Request) Find(path string) *etree.Element {
	return r.Payload.FindElement("./" + path)
}

// Text returns the trimmed text of the element at path, or ""
func (r *Request) Text(path string) string {
	el := r.Find(path)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// FloatAttr reads a numeric attribute. ok is false when the element or
// attribute is absent; a present value that is not a finite number is
// ErrInvalidArgs.
func FloatAttr(el *etree.Element, key string) (v float64, ok bool, err error) {
	if el == nil {
		return 0, false, nil
	}
	attr := el.SelectAttr(key)
	if attr == nil {
		return 0, false, nil
	}
	v, err = parseFinite(attr.Value)
	if err != nil {
		return 0, false, errors.Annotatef(onvif.ErrInvalidArgs, "%s@%s=%q", el.Tag, key, attr.Value)
	}
	return v, true, nil
}

// FloatText reads the numeric text of el with the same conventions as FloatAttr
func FloatText(el *etree.Element) (v float64, ok bool, err error) {
	if el == nil {
		return 0, false, nil
	}
	text := strings.TrimSpace(el.Text())
	v, err = parseFinite(text)
	if err != nil {
		return 0, false, errors.Annotatef(onvif.ErrInvalidArgs, "%s=%q", el.Tag, text)
	}
	return v, true, nil
}

// parseFinite parses a float and rejects NaN and the infinities
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.NotValidf("non-finite number %q", s)
	}
	return v, nil
}

func childText(parent *etree.Element, tag string) string {
	el := parent.SelectElement(tag)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}
