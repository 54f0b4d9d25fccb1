package soap

import (
	"fmt"
	"net/http"

	"github.com/juju/errors"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// FaultCode classifies who is to blame for a fault
type FaultCode string

const (
	CodeSender   FaultCode = "s:Sender"
	CodeReceiver FaultCode = "s:Receiver"
)

// ONVIF fault subcodes
const (
	SubcodeWellFormed         = "ter:WellFormed"
	SubcodeActionNotSupported = "ter:ActionNotSupported"
	SubcodeInvalidArgVal      = "ter:InvalidArgVal"
	SubcodeAction             = "ter:Action"
)

// Fault is a SOAP 1.2 fault, usable as an error
type Fault struct {
	Code    FaultCode
	Subcode string
	Reason  string
}

func (f *Fault) Error() string {
	if f.Subcode == "" {
		return fmt.Sprintf("soap fault %s: %s", f.Code, f.Reason)
	}
	return fmt.Sprintf("soap fault %s/%s: %s", f.Code, f.Subcode, f.Reason)
}

// FaultFor classifies err into the fault a client should see
func FaultFor(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, onvif.ErrMalformedRequest):
		return &Fault{Code: CodeSender, Subcode: SubcodeWellFormed, Reason: err.Error()}
	case errors.Is(err, onvif.ErrActionNotSupported):
		return &Fault{Code: CodeSender, Subcode: SubcodeActionNotSupported, Reason: err.Error()}
	case errors.Is(err, onvif.ErrInvalidSubscription):
		return &Fault{Code: CodeSender, Subcode: SubcodeInvalidArgVal, Reason: err.Error()}
	case errors.Is(err, onvif.ErrInvalidArgs):
		return &Fault{Code: CodeSender, Subcode: SubcodeInvalidArgVal, Reason: err.Error()}
	default:
		return &Fault{Code: CodeReceiver, Subcode: SubcodeAction, Reason: err.Error()}
	}
}

// HTTPStatus follows the SOAP 1.2 HTTP binding
func (f *Fault) HTTPStatus() int {
	if f.Code == CodeSender {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Envelope renders the fault as a complete response envelope
func (f *Fault) Envelope() *Envelope {
	env := NewEnvelope()
	fault := env.Body.CreateElement("s:Fault")

	code := fault.CreateElement("s:Code")
	code.CreateElement("s:Value").SetText(string(f.Code))
	if f.Subcode != "" {
		code.CreateElement("s:Subcode").CreateElement("s:Value").SetText(f.Subcode)
	}

	text := fault.CreateElement("s:Reason").CreateElement("s:Text")
	text.CreateAttr("xml:lang", "en")
	text.SetText(f.Reason)
	return env
}

// parseFault extracts a fault from a response envelope, or returns nil
func parseFault(data []byte) *Fault {
	req, err := ParseRequest(data)
	if err != nil || req.Operation != "Fault" {
		return nil
	}
	return &Fault{
		Code:    FaultCode(req.Text("Code/Value")),
		Subcode: req.Text("Code/Subcode/Value"),
		Reason:  req.Text("Reason/Text"),
	}
}
