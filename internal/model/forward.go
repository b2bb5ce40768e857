// Package model defines shared types for the gateway.
package model

import (
	"io"
	"net/http"
)

// ForwardRequest is an inbound request to be forwarded to the backend origin.
type ForwardRequest struct {
	Method string
	// Segments are the escaped path segments below the proxy prefix. Empty
	// means the origin root.
	Segments []string
	// RawQuery is passed through verbatim, without the leading "?".
	RawQuery      string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// HasBody reports whether a body should be attached upstream. GET and HEAD
// never carry one.
func (r *ForwardRequest) HasBody() bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return false
	}
	return r.Body != nil && r.Body != http.NoBody
}

// ForwardResponse is the upstream response to be streamed back.
type ForwardResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
