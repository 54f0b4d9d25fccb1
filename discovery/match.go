package discovery

import (
	"net/url"
	"strings"

	"github.com/samber/lo"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// matches reports whether the probe filter selects the device. An empty
// filter selects every device.
func (p *probe) matches(id *onvif.DeviceIdentity) bool {
	return matchTypes(p.Types, id.Types) && matchScopes(p.Scopes, id.Scopes, p.MatchBy)
}

// matchTypes requires every requested type to be one of the device types.
// A type whose prefix could not be resolved is compared by local name.
func matchTypes(requested, device []onvif.QName) bool {
	for _, r := range requested {
		ok := lo.ContainsBy(device, func(d onvif.QName) bool {
			return d.Local == r.Local && (r.Space == "" || r.Space == d.Space)
		})
		if !ok {
			return false
		}
	}
	return true
}

// matchScopes requires every requested scope to match some device scope
// under the given rule. Unknown rules never match.
func matchScopes(requested, device []string, matchBy string) bool {
	if len(requested) == 0 {
		return true
	}
	var rule func(req, dev string) bool
	switch matchBy {
	case "", MatchByRFC3986:
		rule = matchRFC3986
	case MatchByStrcmp0:
		rule = func(req, dev string) bool { return req == dev }
	default:
		return false
	}
	for _, r := range requested {
		if !lo.ContainsBy(device, func(d string) bool { return rule(r, d) }) {
			return false
		}
	}
	return true
}

// matchRFC3986 compares scheme and authority case-insensitively and
// requires the request path segments to be a prefix of the device's
func matchRFC3986(req, dev string) bool {
	if req == dev {
		return true
	}
	r, err := url.Parse(req)
	if err != nil {
		return false
	}
	d, err := url.Parse(dev)
	if err != nil {
		return false
	}
	if !strings.EqualFold(r.Scheme, d.Scheme) || !strings.EqualFold(r.Host, d.Host) {
		return false
	}
	rs, ds := segments(r.Path), segments(d.Path)
	if len(rs) > len(ds) {
		return false
	}
	for i := range rs {
		if rs[i] != ds[i] {
			return false
		}
	}
	return true
}

func segments(path string) []string {
	return lo.Filter(strings.Split(path, "/"), func(s string, _ int) bool { return s != "" })
}
