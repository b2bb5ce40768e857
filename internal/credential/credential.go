// Package credential resolves the image-provider API token from an ordered
// chain of named configuration sources.
package credential

import "strings"

// LookupFunc returns the value of a named source and whether it is set.
type LookupFunc func(name string) (string, bool)

// Token is a resolved credential together with the source that supplied it.
type Token struct {
	Value  string
	Source string
}

// Resolver evaluates its sources in order; the first present, non-empty one wins.
type Resolver struct {
	sources []string
	lookup  LookupFunc
}

// NewResolver creates a Resolver over the given source names. Order encodes
// precedence and is kept as given.
func NewResolver(sources []string, lookup LookupFunc) *Resolver {
	return &Resolver{
		sources: append([]string(nil), sources...),
		lookup:  lookup,
	}
}

// Resolve returns the first configured token, or false when every source is
// absent or blank.
func (r *Resolver) Resolve() (Token, bool) {
	if r == nil || r.lookup == nil {
		return Token{}, false
	}
	for _, name := range r.sources {
		v, ok := r.lookup(name)
		if !ok {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return Token{Value: v, Source: name}, true
		}
	}
	return Token{}, false
}

// Sources returns the source names in precedence order.
func (r *Resolver) Sources() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.sources...)
}
