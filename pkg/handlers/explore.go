package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// ExploreHandler serves the public browse endpoints. No authentication.
type ExploreHandler struct {
	explore services.ExploreService
	logger  *zap.Logger
}

// NewExploreHandler creates a new explore handler.
func NewExploreHandler(explore services.ExploreService, logger *zap.Logger) *ExploreHandler {
	return &ExploreHandler{explore: explore, logger: logger}
}

// RegisterRoutes registers the explore handler's routes on the given mux.
func (h *ExploreHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/explore", h.List)
	mux.HandleFunc("GET /v1/explore/tags/popular", h.PopularTags)
	mux.HandleFunc("GET /v1/explore/{id}", h.Get)
}

// List handles GET /v1/explore?type=&tag=&limit=&offset=
func (h *ExploreHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntQuery(w, r, "limit", 0, h.logger)
	if !ok {
		return
	}
	offset, ok := parseIntQuery(w, r, "offset", 0, h.logger)
	if !ok {
		return
	}

	page, err := h.explore.List(r.Context(), models.ExploreFilter{
		Type:   models.PostType(r.URL.Query().Get("type")),
		Tag:    r.URL.Query().Get("tag"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		WriteError(w, h.logger, "explore posts", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, page); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /v1/explore/{id}
func (h *ExploreHandler) Get(w http.ResponseWriter, r *http.Request) {
	postID, ok := ParsePostID(w, r, h.logger)
	if !ok {
		return
	}

	post, err := h.explore.Get(r.Context(), postID)
	if err != nil {
		WriteError(w, h.logger, "explore post", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, post); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// PopularTags handles GET /v1/explore/tags/popular
func (h *ExploreHandler) PopularTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.explore.PopularTags(r.Context())
	if err != nil {
		WriteError(w, h.logger, "popular tags", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"tags": tags}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
