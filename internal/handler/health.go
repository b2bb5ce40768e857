package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"dashboard-gateway/internal/credential"
	"dashboard-gateway/internal/origin"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	origin      origin.Origin
	credentials *credential.Resolver
	version     Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(o origin.Origin, r *credential.Resolver, v Version) *HealthHandler {
	return &HealthHandler{origin: o, credentials: r, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type logoCredentialStatus struct {
	Configured bool   `json:"configured"`
	Source     string `json:"source,omitempty"`
}

type statusResponse struct {
	Status         string               `json:"status"`
	Version        string               `json:"version"`
	BackendOrigin  string               `json:"backend_origin"`
	LogoCredential logoCredentialStatus `json:"logo_credential"`
}

// Status reports the version, the backend origin and where the logo API key
// comes from. The key itself is never included.
func (h *HealthHandler) Status(c echo.Context) error {
	token, ok := h.credentials.Resolve()
	return c.JSON(http.StatusOK, statusResponse{
		Status:        "ok",
		Version:       string(h.version),
		BackendOrigin: h.origin.String(),
		LogoCredential: logoCredentialStatus{
			Configured: ok,
			Source:     token.Source,
		},
	})
}
