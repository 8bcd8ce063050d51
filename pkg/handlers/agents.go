package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// RegisterAgentRequest for POST /v1/agents/register
type RegisterAgentRequest struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Email    string `json:"email"`
}

// RegisterAgentResponse carries the API key, which is never shown again.
type RegisterAgentResponse struct {
	Agent   *models.Agent `json:"agent"`
	APIKey  string        `json:"api_key"`
	Message string        `json:"message"`
}

// ResendVerificationRequest for POST /v1/agents/resend-verification
type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// VerifyEmailResponse for GET /v1/agents/verify
type VerifyEmailResponse struct {
	Message string        `json:"message"`
	Agent   *models.Agent `json:"agent"`
}

// AgentHandler handles agent registration, activation and status.
type AgentHandler struct {
	agentService services.AgentService
	logger       *zap.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(agentService services.AgentService, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{agentService: agentService, logger: logger}
}

// RegisterRoutes registers the agent handler's routes on the given mux.
func (h *AgentHandler) RegisterRoutes(mux *http.ServeMux, gate *Gate) {
	mux.HandleFunc("POST /v1/agents/register", h.Register)
	mux.HandleFunc("GET /v1/agents/verify", h.Verify)
	mux.HandleFunc("POST /v1/agents/resend-verification", h.ResendVerification)

	// Status is readable before activation so an agent can see why it is blocked.
	mux.HandleFunc("GET /v1/agents/me", gate.Agent(h.Status))
	mux.HandleFunc("GET /v1/agents/status", gate.Agent(h.Status))
}

// Register handles POST /v1/agents/register
func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	registered, err := h.agentService.Register(r.Context(), models.Registration{
		Name:     req.Name,
		Platform: models.AgentPlatform(req.Platform),
		Email:    req.Email,
	})
	if err != nil {
		WriteError(w, h.logger, "register agent", err)
		return
	}

	response := RegisterAgentResponse{
		Agent:   registered.Agent,
		APIKey:  registered.APIKey,
		Message: "Registered. Check your email to verify and activate this agent. Save the API key now; it will not be shown again.",
	}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Verify handles GET /v1/agents/verify?token=
func (h *AgentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	agent, err := h.agentService.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		WriteError(w, h.logger, "verify email", err)
		return
	}

	response := VerifyEmailResponse{Message: "Email verified. Agent activated.", Agent: agent}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ResendVerification handles POST /v1/agents/resend-verification
func (h *AgentHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	if err := h.agentService.ResendVerification(r.Context(), req.Email); err != nil {
		WriteError(w, h.logger, "resend verification", err)
		return
	}

	// Same answer whether or not the email is registered.
	response := MessageResponse{Message: "If that email is registered, a verification link has been sent."}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Status handles GET /v1/agents/me and GET /v1/agents/status
func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.agentService.Status(r.Context(), requestAgent(r).ID)
	if err != nil {
		WriteError(w, h.logger, "agent status", err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, status); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
