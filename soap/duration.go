package soap

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sosodev/duration"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// calendar units of an xsd:duration, with years and months taken as 365
// and 30 days
const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

// ParseDuration parses an xsd:duration such as PT60S. Values beyond the
// range of time.Duration saturate instead of wrapping.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	body := strings.TrimPrefix(s, "-")
	if !strings.HasPrefix(body, "P") || body == "P" || body == "PT" || !strings.ContainsRune("YMWDHS", rune(body[len(body)-1])) {
		return 0, errors.Annotatef(onvif.ErrInvalidArgs, "duration %q", s)
	}
	d, err := duration.Parse(body)
	if err != nil {
		return 0, errors.Annotatef(onvif.ErrInvalidArgs, "duration %q: %v", s, err)
	}

	ns := d.Years*float64(year) + d.Months*float64(month) + d.Weeks*float64(week) +
		d.Days*float64(day) + d.Hours*float64(time.Hour) + d.Minutes*float64(time.Minute) +
		d.Seconds*float64(time.Second)
	var out time.Duration
	if ns >= math.MaxInt64 {
		out = math.MaxInt64
	} else {
		out = time.Duration(ns)
	}
	if strings.HasPrefix(s, "-") {
		out = -out
	}
	return out, nil
}

// FormatDuration renders d as an xsd:duration in whole seconds
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("PT%dS", int64(d.Round(time.Second)/time.Second))
}

// ParseTermination reads a WS-BaseNotification termination time, which is
// either a relative xsd:duration or an absolute xsd:dateTime, and returns
// the requested lifetime relative to now
func ParseTermination(s string, now time.Time) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "P") || strings.HasPrefix(s, "-P") {
		return ParseDuration(s)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, errors.Annotatef(onvif.ErrInvalidArgs, "termination time %q", s)
	}
	return t.Sub(now), nil
}
