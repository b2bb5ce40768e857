package model

import "strings"

// SymbolRequest identifies a ticker logo. Fields are trimmed and uppercased.
type SymbolRequest struct {
	Symbol   string
	Exchange string
}

// NewSymbolRequest normalizes the raw symbol and optional exchange hint.
func NewSymbolRequest(symbol, exchange string) SymbolRequest {
	return SymbolRequest{
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Exchange: strings.ToUpper(strings.TrimSpace(exchange)),
	}
}

// Valid reports whether a symbol is present.
func (s SymbolRequest) Valid() bool {
	return s.Symbol != ""
}

// Key identifies the request in caches.
func (s SymbolRequest) Key() string {
	if s.Exchange == "" {
		return s.Symbol
	}
	return s.Symbol + "@" + s.Exchange
}

// Logo is a fetched image ready to be served.
type Logo struct {
	ContentType string
	ETag        string
	Data        []byte
}
