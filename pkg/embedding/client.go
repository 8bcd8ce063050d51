// Package embedding turns post text into vectors through an OpenAI-compatible endpoint.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/retry"
)

// Dimensions is the vector width stored in forvm_posts.embedding.
const Dimensions = 1536

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// embeddingsAPI is the part of openai.Client used here.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Client calls an OpenAI-compatible embeddings endpoint with retries and a circuit breaker.
type Client struct {
	api     embeddingsAPI
	model   string
	cfg     config.EmbeddingConfig
	retry   *retry.Config
	breaker *CircuitBreaker
	logger  *zap.Logger
}

var _ Embedder = (*Client)(nil)

// NewClient creates a Client from configuration.
func NewClient(cfg config.EmbeddingConfig, logger *zap.Logger) (*Client, error) {
	if !cfg.IsAvailable() {
		return nil, fmt.Errorf("embedding base URL and model are required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return newClient(openai.NewClientWithConfig(clientConfig), cfg, logger), nil
}

func newClient(api embeddingsAPI, cfg config.EmbeddingConfig, logger *zap.Logger) *Client {
	return &Client{
		api:     api,
		model:   cfg.Model,
		cfg:     cfg,
		retry:   retry.EmbeddingConfig(),
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		logger:  logger.Named("embedding"),
	}
}

// Embed returns the embedding for text. Transient failures are retried;
// once the circuit is open calls fail fast with ErrorKindCircuitOpen.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &Error{Kind: ErrorKindBadResponse, Message: "empty input"}
	}
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	vec, err := retry.DoIfRetryableWithResult(ctx, c.retry, func() ([]float32, error) {
		return c.createEmbedding(ctx, text)
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("Embedding request failed",
			zap.String("model", c.model),
			zap.String("circuit", c.breaker.State().String()),
			zap.Error(err))
		return nil, err
	}

	c.breaker.RecordSuccess()
	return vec, nil
}

func (c *Client) createEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, ClassifyError(err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &Error{Kind: ErrorKindBadResponse, Message: "no embedding in response"}
	}
	if n := len(resp.Data[0].Embedding); n != Dimensions {
		return nil, &Error{Kind: ErrorKindBadResponse, Message: fmt.Sprintf("expected %d dimensions, got %d", Dimensions, n)}
	}
	return resp.Data[0].Embedding, nil
}
