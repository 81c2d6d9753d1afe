package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/celldl/flatmap-engine/pkg/config"
)

// PingResponse describes the running engine: version, environment, and
// where it serves flatmaps from.
type PingResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
	MapsRoot    string `json:"maps_root"`
	TLS         bool   `json:"tls"`
}

// HealthHandler answers deployment health checks and the ping probe.
type HealthHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewHealthHandler creates a health handler for the loaded configuration.
func NewHealthHandler(cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, logger: logger}
}

// RegisterRoutes registers the health endpoints on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. A bare "ok" body keeps load-balancer checks
// cheap; /ping carries the detail.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping with engine identity and serving configuration.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	response := PingResponse{
		Status:      "ok",
		Service:     "flatmap-engine",
		Version:     h.cfg.Version,
		Environment: h.cfg.Env,
		MapsRoot:    h.cfg.Flatmap.MapsRoot,
		TLS:         h.cfg.TLSCertPath != "",
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
