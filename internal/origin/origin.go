// Package origin canonicalizes the configured backend origin.
//
// The origin is computed once during bootstrap and injected into the
// forwarding service; nothing re-reads configuration per request.
package origin

import (
	"net/url"
	"regexp"
	"strings"
)

// Default is used when no origin is configured.
const Default = "http://127.0.0.1:8000"

// bareHostPattern matches host[:port][/path] without a scheme.
var bareHostPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9.\-]*|\[[0-9A-Fa-f:.]+\])(:[0-9]+)?(/.*)?$`)

// Origin is a normalized absolute base URL. It never ends with "/".
type Origin string

// Normalize returns the canonical form of raw: scheme://host[:port]path with
// no trailing slash. "localhost" is rewritten to 127.0.0.1. Strings that do
// not parse as an absolute URL are kept as-is apart from trailing slashes.
// Normalize is idempotent.
func Normalize(raw string) string {
	s := trimEdges(raw)
	if s == "" {
		return Default
	}

	candidate := s
	if !strings.Contains(s, "://") && bareHostPattern.MatchString(s) {
		candidate = "http://" + s
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return s
	}

	host := u.Host
	if strings.EqualFold(u.Hostname(), "localhost") {
		host = "127.0.0.1"
		if port := u.Port(); port != "" {
			host += ":" + port
		}
	}

	return u.Scheme + "://" + host + strings.TrimRight(u.EscapedPath(), "/")
}

// trimEdges strips surrounding whitespace and trailing slashes until neither
// remains, so "host:8000 /" and "host:8000" normalize alike.
func trimEdges(s string) string {
	for {
		t := strings.TrimRight(strings.TrimSpace(s), "/")
		if t == s {
			return t
		}
		s = t
	}
}

// Resolve picks the first non-empty value among explicit and the named
// lookups, in order, and normalizes it. With nothing configured it returns
// the normalized Default.
func Resolve(explicit string, names []string, lookup func(string) (string, bool)) Origin {
	raw := strings.TrimSpace(explicit)
	if raw == "" && lookup != nil {
		for _, name := range names {
			if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
				raw = v
				break
			}
		}
	}
	return Origin(Normalize(raw))
}

// Target builds the upstream URL for the given escaped path segments and raw
// query string (without the leading "?"). Zero segments address the origin root.
func (o Origin) Target(segments []string, rawQuery string) string {
	var b strings.Builder
	b.WriteString(string(o))
	b.WriteByte('/')
	b.WriteString(strings.Join(segments, "/"))
	if rawQuery != "" {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	return b.String()
}

func (o Origin) String() string {
	return string(o)
}
