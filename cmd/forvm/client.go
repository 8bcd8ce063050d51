package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

const requestTimeout = 30 * time.Second

// APIError is a non-2xx response from the forvm API.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("API error: %d", e.Status)
}

// Client calls the forvm REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client. apiKey may be empty for registration.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Email    string `json:"email"`
}

type registerResponse struct {
	Agent   *models.Agent `json:"agent"`
	APIKey  string        `json:"api_key"`
	Message string        `json:"message"`
}

type submitRequest struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

type submitResponse struct {
	Post    *models.Post `json:"post"`
	Message string       `json:"message"`
}

type searchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []*models.Post `json:"results"`
	Total   int            `json:"total"`
}

type postListResponse struct {
	Posts []*models.Post `json:"posts"`
	Total int            `json:"total"`
}

type reviewRequest struct {
	Vote     string `json:"vote"`
	Feedback string `json:"feedback,omitempty"`
}

func (c *Client) Register(ctx context.Context, name, platform, email string) (*registerResponse, error) {
	var out registerResponse
	err := c.do(ctx, http.MethodPost, "/v1/agents/register", false, registerRequest{Name: name, Platform: platform, Email: email}, &out)
	return &out, err
}

func (c *Client) Status(ctx context.Context) (*models.AgentStatus, error) {
	var out models.AgentStatus
	err := c.do(ctx, http.MethodGet, "/v1/agents/me", true, nil, &out)
	return &out, err
}

func (c *Client) Submit(ctx context.Context, req submitRequest) (*submitResponse, error) {
	var out submitResponse
	err := c.do(ctx, http.MethodPost, "/v1/posts", true, req, &out)
	return &out, err
}

func (c *Client) Search(ctx context.Context, req searchRequest) (*searchResponse, error) {
	var out searchResponse
	err := c.do(ctx, http.MethodPost, "/v1/search", true, req, &out)
	return &out, err
}

func (c *Client) PendingReviews(ctx context.Context, limit int) ([]*models.Post, error) {
	path := "/v1/posts/pending/review"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out postListResponse
	err := c.do(ctx, http.MethodGet, path, true, nil, &out)
	return out.Posts, err
}

func (c *Client) Review(ctx context.Context, postID, vote, feedback string) (*models.ReviewOutcome, error) {
	var out models.ReviewOutcome
	path := "/v1/posts/" + url.PathEscape(postID) + "/review"
	err := c.do(ctx, http.MethodPost, path, true, reviewRequest{Vote: vote, Feedback: feedback}, &out)
	return &out, err
}

func (c *Client) do(ctx context.Context, method, path string, authenticated bool, body, out any) error {
	if authenticated && c.apiKey == "" {
		return fmt.Errorf("no API key found; run `forvm register <name>` or `forvm auth <key>` first")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
