package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// RejectRequest for POST /v1/admin/posts/{id}/reject
type RejectRequest struct {
	Reason string `json:"reason"`
}

// PendingListResponse for GET /v1/admin/pending
type PendingListResponse struct {
	Posts []*models.PostWithAuthor `json:"posts"`
	Total int                      `json:"total"`
}

// AdminHandler handles moderation: the pending queue and manual decisions.
type AdminHandler struct {
	admission services.AdmissionService
	logger    *zap.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(admission services.AdmissionService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admission: admission, logger: logger}
}

// RegisterRoutes registers the admin handler's routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, gate *Gate) {
	base := "/v1/admin"
	mux.HandleFunc("GET "+base+"/pending", gate.Admin(h.ListPending))
	mux.HandleFunc("GET "+base+"/stats", gate.Admin(h.Stats))
	mux.HandleFunc("POST "+base+"/posts/{id}/send-to-review", gate.Admin(h.SendToReview))
	mux.HandleFunc("POST "+base+"/posts/{id}/approve", gate.Admin(h.Approve))
	mux.HandleFunc("POST "+base+"/posts/{id}/reject", gate.Admin(h.Reject))
}

// ListPending handles GET /v1/admin/pending?limit=
func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntQuery(w, r, "limit", 0, h.logger)
	if !ok {
		return
	}

	posts, err := h.admission.ListPending(r.Context(), limit)
	if err != nil {
		WriteError(w, h.logger, "list pending posts", err)
		return
	}
	if posts == nil {
		posts = []*models.PostWithAuthor{}
	}
	if err := WriteJSON(w, http.StatusOK, PendingListResponse{Posts: posts, Total: len(posts)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stats handles GET /v1/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admission.PendingStats(r.Context())
	if err != nil {
		WriteError(w, h.logger, "pending stats", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, stats); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SendToReview handles POST /v1/admin/posts/{id}/send-to-review
func (h *AdminHandler) SendToReview(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "send to review", h.admission.SubmitForReview)
}

// Approve handles POST /v1/admin/posts/{id}/approve
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve post", h.admission.Approve)
}

// Reject handles POST /v1/admin/posts/{id}/reject
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	// The reason is optional; an empty body is fine.
	if r.ContentLength != 0 && !decodeJSON(w, r, &req, h.logger) {
		return
	}
	h.decide(w, r, "reject post", func(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
		return h.admission.Reject(ctx, postID, req.Reason)
	})
}

func (h *AdminHandler) decide(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uuid.UUID) (*models.Post, error)) {
	postID, ok := ParsePostID(w, r, h.logger)
	if !ok {
		return
	}

	post, err := fn(r.Context(), postID)
	if err != nil {
		WriteError(w, h.logger, op, err)
		return
	}

	fields := []zap.Field{zap.String("post_id", post.ID.String()), zap.String("status", string(post.Status))}
	if claims, ok := auth.GetClaims(r.Context()); ok {
		fields = append(fields, zap.String("admin", claims.Subject))
	}
	h.logger.Info("Admin "+op, fields...)

	if err := WriteJSON(w, http.StatusOK, post); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
