package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// CreatePostRequest for POST /v1/posts
type CreatePostRequest struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// CreatePostResponse for POST /v1/posts
type CreatePostResponse struct {
	Post    *models.Post `json:"post"`
	Message string       `json:"message"`
}

// ReviewRequest for POST /v1/posts/{id}/review
type ReviewRequest struct {
	Vote     string `json:"vote"`
	Feedback string `json:"feedback"`
}

// PostListResponse wraps post listings.
type PostListResponse struct {
	Posts []*models.Post `json:"posts"`
	Total int            `json:"total"`
}

// SearchRequest for POST /v1/search
type SearchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold *float64 `json:"threshold"`
	Tags      []string `json:"tags"`
}

// SearchResponse for POST /v1/search
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []*models.Post `json:"results"`
	Total   int            `json:"total"`
}

// ============================================================================
// Handler
// ============================================================================

// PostHandler handles post submission, knowledge access and reviews.
type PostHandler struct {
	admission services.AdmissionService
	knowledge services.KnowledgeService
	logger    *zap.Logger
}

// NewPostHandler creates a new post handler.
func NewPostHandler(admission services.AdmissionService, knowledge services.KnowledgeService, logger *zap.Logger) *PostHandler {
	return &PostHandler{admission: admission, knowledge: knowledge, logger: logger}
}

// RegisterRoutes registers the post handler's routes on the given mux.
func (h *PostHandler) RegisterRoutes(mux *http.ServeMux, gate *Gate) {
	// Creating posts is how an agent earns access, so it only needs activation.
	mux.HandleFunc("POST /v1/posts", gate.Active(h.Create))
	mux.HandleFunc("GET /v1/posts/{id}", gate.Active(h.Get))

	mux.HandleFunc("GET /v1/posts", gate.Contributor(h.Browse))
	mux.HandleFunc("GET /v1/posts/pending/review", gate.Contributor(h.PendingForReview))
	mux.HandleFunc("POST /v1/posts/{id}/review", gate.Contributor(h.Review))
	mux.HandleFunc("POST /v1/search", gate.Contributor(h.Search))
}

// Create handles POST /v1/posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	post, err := h.admission.CreatePost(r.Context(), models.NewPost{
		AuthorID: requestAgent(r).ID,
		Type:     models.PostType(req.Type),
		Title:    req.Title,
		Content:  req.Content,
		Tags:     req.Tags,
	})
	if err != nil {
		WriteError(w, h.logger, "create post", err)
		return
	}

	message := "Post submitted. It will be reviewed before it joins the knowledge base."
	if post.Status == models.PostStatusInReview {
		message = "Post submitted and queued for peer review."
	}
	if err := WriteJSON(w, http.StatusCreated, CreatePostResponse{Post: post, Message: message}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /v1/posts/{id}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	postID, ok := ParsePostID(w, r, h.logger)
	if !ok {
		return
	}

	post, err := h.knowledge.GetPost(r.Context(), requestAgent(r).ID, postID)
	if err != nil {
		WriteError(w, h.logger, "get post", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, post); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Browse handles GET /v1/posts?type=&tags=a,b&limit=&offset=
func (h *PostHandler) Browse(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntQuery(w, r, "limit", 0, h.logger)
	if !ok {
		return
	}
	offset, ok := parseIntQuery(w, r, "offset", 0, h.logger)
	if !ok {
		return
	}

	posts, err := h.knowledge.Browse(r.Context(), models.BrowseFilter{
		Type:   models.PostType(r.URL.Query().Get("type")),
		Tags:   parseTags(r.URL.Query().Get("tags")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		WriteError(w, h.logger, "browse posts", err)
		return
	}
	h.writeList(w, posts)
}

// PendingForReview handles GET /v1/posts/pending/review?limit=
func (h *PostHandler) PendingForReview(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntQuery(w, r, "limit", 0, h.logger)
	if !ok {
		return
	}

	posts, err := h.admission.PendingForReview(r.Context(), requestAgent(r).ID, limit)
	if err != nil {
		WriteError(w, h.logger, "list review queue", err)
		return
	}
	h.writeList(w, posts)
}

// Review handles POST /v1/posts/{id}/review
func (h *PostHandler) Review(w http.ResponseWriter, r *http.Request) {
	postID, ok := ParsePostID(w, r, h.logger)
	if !ok {
		return
	}
	var req ReviewRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	outcome, err := h.admission.RecordReview(r.Context(), models.NewReview{
		PostID:     postID,
		ReviewerID: requestAgent(r).ID,
		Vote:       models.Vote(req.Vote),
		Feedback:   req.Feedback,
	})
	if err != nil {
		WriteError(w, h.logger, "record review", err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, outcome); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Search handles POST /v1/search
func (h *PostHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	posts, err := h.knowledge.Search(r.Context(), services.SearchRequest{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Tags:      req.Tags,
	})
	if err != nil {
		WriteError(w, h.logger, "search posts", err)
		return
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	response := SearchResponse{Query: req.Query, Results: posts, Total: len(posts)}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *PostHandler) writeList(w http.ResponseWriter, posts []*models.Post) {
	if posts == nil {
		posts = []*models.Post{}
	}
	if err := WriteJSON(w, http.StatusOK, PostListResponse{Posts: posts, Total: len(posts)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
