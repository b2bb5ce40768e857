// Package header strips transport-scoped headers at the gateway boundary.
package header

import (
	"net/http"
	"strings"
)

// denylist holds lowercased names that are never relayed in either direction:
// the hop-by-hop set plus the transport identity headers Host and Content-Length.
var denylist = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
	"content-length":      true,
}

// Denied reports whether name is on the denylist, ignoring case.
func Denied(name string) bool {
	return denylist[strings.ToLower(name)]
}

// Sanitize returns a copy of src without denylisted headers. src is not
// modified and the values of every retained header keep their order.
func Sanitize(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if Denied(key) {
			continue
		}
		dst[key] = append([]string(nil), vals...)
	}
	return dst
}

// CopyTo sets every header of src on dst, replacing values dst already
// holds for the same name.
func CopyTo(dst, src http.Header) {
	for key, vals := range src {
		dst[http.CanonicalHeaderKey(key)] = append([]string(nil), vals...)
	}
}
