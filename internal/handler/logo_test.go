package handler

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

var logoBytes = []byte("\x89PNG\r\n\x1a\nlogo")

func newLogoUpstream(t *testing.T, hits *atomic.Int32, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func serveLogo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(logoBytes)
}

func maxAge(cacheControl string) int {
	for _, d := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(d), "=")
		if ok && name == "max-age" {
			n, _ := strconv.Atoi(value)
			return n
		}
	}
	return 0
}

func TestLogo_Success(t *testing.T) {
	var hits atomic.Int32
	var gotPath, gotKey string
	upstream := newLogoUpstream(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("apikey")
		serveLogo(w, r)
	})
	e := newTestGateway(t, testConfig(t, "", upstream.URL), map[string]string{"FMP_API_KEY": "k1"})

	req := httptest.NewRequest(http.MethodGet, "/api/logo?symbol=%20aapl%20", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if gotPath != "/image-stock/AAPL.png" {
		t.Errorf("upstream path = %q", gotPath)
	}
	if gotKey != "k1" {
		t.Errorf("upstream apikey = %q, want k1", gotKey)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if got := maxAge(rec.Header().Get("Cache-Control")); got < 86400 {
		t.Errorf("Cache-Control %q allows %d seconds, want at least 86400", rec.Header().Get("Cache-Control"), got)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag is missing")
	}
	if rec.Body.String() != string(logoBytes) {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestLogo_TickerAlias(t *testing.T) {
	var hits atomic.Int32
	var gotPath string
	upstream := newLogoUpstream(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		serveLogo(w, r)
	})
	e := newTestGateway(t, testConfig(t, "", upstream.URL), map[string]string{"FMP_API_KEY": "k1"})

	req := httptest.NewRequest(http.MethodGet, "/api/logo?ticker=msft", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotPath != "/image-stock/MSFT.png" {
		t.Errorf("upstream path = %q", gotPath)
	}
}

func TestLogo_Failures(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		env        map[string]string
		upstream   http.HandlerFunc
		wantStatus int
		wantError  string
		wantHits   int32
	}{
		{
			name:       "missing symbol",
			query:      "",
			env:        map[string]string{"FMP_API_KEY": "k1"},
			upstream:   serveLogo,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing required query parameter: symbol",
			wantHits:   0,
		},
		{
			name:       "blank symbol",
			query:      "?symbol=%20%20",
			env:        map[string]string{"FMP_API_KEY": "k1"},
			upstream:   serveLogo,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing required query parameter: symbol",
			wantHits:   0,
		},
		{
			name:       "no credential",
			query:      "?symbol=AAPL",
			env:        map[string]string{},
			upstream:   serveLogo,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Logo service is not configured",
			wantHits:   0,
		},
		{
			name:  "upstream not found",
			query: "?symbol=nope",
			env:   map[string]string{"FMP_API_KEY": "k1"},
			upstream: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantError:  "Logo not available for NOPE",
			wantHits:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			upstream := newLogoUpstream(t, &hits, tt.upstream)
			e := newTestGateway(t, testConfig(t, "", upstream.URL), tt.env)

			req := httptest.NewRequest(http.MethodGet, "/api/logo"+tt.query, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body := decodeFailure(t, rec); body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
			if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", cc)
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("upstream hits = %d, want %d", got, tt.wantHits)
			}
		})
	}
}

func TestLogo_UnreachableIsDistinctFromMisconfiguration(t *testing.T) {
	e := newTestGateway(t, testConfig(t, "", "http://127.0.0.1:1"), map[string]string{"FMP_API_KEY": "k1"})

	req := httptest.NewRequest(http.MethodGet, "/api/logo?symbol=AAPL", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	body := decodeFailure(t, rec)
	if body["error"] != "Failed to retrieve logo" {
		t.Errorf("error = %q", body["error"])
	}
	if strings.Contains(rec.Body.String(), "k1") {
		t.Error("response leaked the API key")
	}
}

func TestLogo_NotModified(t *testing.T) {
	var hits atomic.Int32
	upstream := newLogoUpstream(t, &hits, serveLogo)
	e := newTestGateway(t, testConfig(t, "", upstream.URL), map[string]string{"FMP_API_KEY": "k1"})

	first := httptest.NewRecorder()
	e.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/logo?symbol=AAPL", http.NoBody))
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("first response has no ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/logo?symbol=AAPL", http.NoBody)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotModified)
	}
	if rec.Body.Len() != 0 {
		t.Error("304 response has a body")
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Error("304 response lacks Cache-Control")
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		name        string
		ifNoneMatch string
		etag        string
		want        bool
	}{
		{"exact", `"abc"`, `"abc"`, true},
		{"weak", `W/"abc"`, `"abc"`, true},
		{"list", `"x", "abc"`, `"abc"`, true},
		{"wildcard", `*`, `"abc"`, true},
		{"mismatch", `"x"`, `"abc"`, false},
		{"empty header", ``, `"abc"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := etagMatches(tt.ifNoneMatch, tt.etag); got != tt.want {
				t.Errorf("etagMatches(%q, %q) = %v, want %v", tt.ifNoneMatch, tt.etag, got, tt.want)
			}
		})
	}
}
