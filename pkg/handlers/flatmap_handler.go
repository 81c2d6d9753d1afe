package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/celldl/flatmap-engine/pkg/apperrors"
	"github.com/celldl/flatmap-engine/pkg/auth"
	"github.com/celldl/flatmap-engine/pkg/models"
	"github.com/celldl/flatmap-engine/pkg/paint"
	"github.com/celldl/flatmap-engine/pkg/services"
)

// SetAnnotationRequest for PUT /api/flatmap/{map}/annotations/{fid}.
// Empty text deletes the feature's annotation.
type SetAnnotationRequest struct {
	Layer string `json:"layer"`
	Text  string `json:"text"`
}

// ResolveStyleRequest for POST /api/flatmap/{map}/style/resolve.
type ResolveStyleRequest struct {
	Feature     models.Feature      `json:"feature"`
	LayerActive bool                `json:"layerActive"`
	Annotating  bool                `json:"annotating"`
	State       models.FeatureState `json:"state"`
}

// FlatmapHandler handles flatmap annotation and style HTTP requests.
type FlatmapHandler struct {
	flatmapService services.FlatmapService
	logger         *zap.Logger
}

// NewFlatmapHandler creates a new flatmap handler.
func NewFlatmapHandler(flatmapService services.FlatmapService, logger *zap.Logger) *FlatmapHandler {
	return &FlatmapHandler{
		flatmapService: flatmapService,
		logger:         logger,
	}
}

// RegisterRoutes registers the flatmap handler's routes on the given mux.
// Annotation writes require an authenticated annotator.
func (h *FlatmapHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/flatmap/{map}"

	mux.HandleFunc("GET "+base+"/manifest", h.GetManifest)
	mux.HandleFunc("GET "+base+"/annotations", h.ListAnnotations)
	mux.HandleFunc("GET "+base+"/annotations/{fid}", h.GetAnnotation)
	mux.HandleFunc("PUT "+base+"/annotations/{fid}",
		authMiddleware.RequireAnnotator(h.SetAnnotation))
	mux.HandleFunc("POST "+base+"/style/resolve", h.ResolveStyle)
	mux.HandleFunc("GET "+base+"/patterns", h.GetPatterns)
}

// GetManifest handles GET /api/flatmap/{map}/manifest
func (h *FlatmapHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	mapID := r.PathValue("map")

	manifest, err := h.flatmapService.Manifest(r.Context(), mapID)
	if err != nil {
		h.serviceError(w, mapID, "Failed to get manifest", err)
		return
	}

	h.writeSuccess(w, manifest)
}

// ListAnnotations handles GET /api/flatmap/{map}/annotations
func (h *FlatmapHandler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	mapID := r.PathValue("map")

	annotations, err := h.flatmapService.Annotations(r.Context(), mapID)
	if err != nil {
		h.serviceError(w, mapID, "Failed to list annotations", err)
		return
	}

	h.writeSuccess(w, annotations)
}

// GetAnnotation handles GET /api/flatmap/{map}/annotations/{fid}
func (h *FlatmapHandler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	mapID := r.PathValue("map")
	featureID := r.PathValue("fid")

	rec, err := h.flatmapService.Annotation(r.Context(), mapID, featureID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Feature has no annotation")
			return
		}
		h.serviceError(w, mapID, "Failed to get annotation", err)
		return
	}

	h.writeSuccess(w, rec)
}

// SetAnnotation handles PUT /api/flatmap/{map}/annotations/{fid}
func (h *FlatmapHandler) SetAnnotation(w http.ResponseWriter, r *http.Request) {
	mapID := r.PathValue("map")
	featureID := r.PathValue("fid")

	var req SetAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Layer == "" && req.Text != "" {
		h.writeError(w, http.StatusBadRequest, "missing_layer", "Annotation layer is required")
		return
	}

	rec, err := h.flatmapService.SetAnnotation(r.Context(), mapID, featureID, req.Layer, req.Text)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateAnnotationID) {
			// The UI prompts for re-entry on this marker.
			h.writeError(w, http.StatusConflict, "duplicate-id", err.Error())
			return
		}
		if errors.Is(err, apperrors.ErrUnknownLayer) {
			h.writeError(w, http.StatusBadRequest, "unknown_layer", err.Error())
			return
		}
		h.serviceError(w, mapID, "Failed to set annotation", err)
		return
	}

	h.writeSuccess(w, rec)
}

// ResolveStyle handles POST /api/flatmap/{map}/style/resolve
func (h *FlatmapHandler) ResolveStyle(w http.ResponseWriter, r *http.Request) {
	mapID := r.PathValue("map")

	var req ResolveStyleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Feature.ID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_feature", "Feature id is required")
		return
	}
	if req.Feature.GeometryType != "" && !req.Feature.GeometryType.IsValid() {
		h.writeError(w, http.StatusBadRequest, "invalid_geometry", "Unknown geometry type")
		return
	}

	opts := paint.Options{LayerActive: req.LayerActive, Annotating: req.Annotating}
	result, err := h.flatmapService.ResolveStyle(r.Context(), mapID, req.Feature, opts, req.State)
	if err != nil {
		h.serviceError(w, mapID, "Failed to resolve style", err)
		return
	}

	h.writeSuccess(w, result)
}

// GetPatterns handles GET /api/flatmap/{map}/patterns
func (h *FlatmapHandler) GetPatterns(w http.ResponseWriter, r *http.Request) {
	mapID := r.PathValue("map")

	patterns, err := h.flatmapService.Patterns(r.Context(), mapID)
	if err != nil {
		h.serviceError(w, mapID, "Failed to get patterns", err)
		return
	}

	h.writeSuccess(w, patterns)
}

// serviceError maps service failures onto HTTP status codes.
func (h *FlatmapHandler) serviceError(w http.ResponseWriter, mapID, message string, err error) {
	h.logger.Error(message, zap.String("map", mapID), zap.Error(err))
	if errors.Is(err, apperrors.ErrMapNotLoaded) {
		h.writeError(w, http.StatusNotFound, "map_not_found", "Flatmap not found or failed to load")
		return
	}
	h.writeError(w, http.StatusInternalServerError, "internal_error", message)
}

func (h *FlatmapHandler) writeSuccess(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *FlatmapHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
