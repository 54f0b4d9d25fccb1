package onvif

import "github.com/juju/errors"

// Error taxonomy shared by every service. Callers wrap these with
// errors.Annotatef and classify with errors.Is.
const (
	// ErrMalformedRequest means the envelope could not be parsed.
	ErrMalformedRequest = errors.ConstError("malformed request")

	// ErrActionNotSupported means no handler is routed for the operation.
	ErrActionNotSupported = errors.ConstError("action not supported")

	// ErrInvalidSubscription means the subscription is unknown or expired.
	ErrInvalidSubscription = errors.ConstError("invalid subscription")

	// ErrInvalidArgs means a parameter could not be interpreted at all.
	// Numbers outside their range are clamped instead.
	ErrInvalidArgs = errors.ConstError("invalid argument value")
)
