package openai

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ragchat/internal/domain"
)

// Client is an OpenAI-compatible embeddings client. Any provider exposing
// /embeddings in the OpenAI shape works (OpenAI, DashScope compatible mode, Ollama).
type Client struct {
	client    *goopenai.Client
	model     string
	timeout   time.Duration
	batchSize int
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// RequestsPerSecond paces requests; zero means unlimited.
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// NewClient creates a client, reading the API key from cfg.APIKeyEnv.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.Errorf(domain.ErrConfig, "openai.embeddings", "missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = string(goopenai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	oc := goopenai.DefaultConfig(key)
	oc.BaseURL = cfg.BaseURL
	return &Client{
		client:    goopenai.NewClientWithConfig(oc),
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		batchSize: cfg.BatchSize,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Embed embeds texts in batches, preserving input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.Classify(domain.ErrEmbedding, "openai.embeddings", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: batch,
		Model: goopenai.EmbeddingModel(c.model),
	})
	if err != nil {
		c.logger.Warn("embedding request failed", zap.String("model", c.model), zap.Int("batch", len(batch)), zap.Error(err))
		return nil, domain.Classify(domain.ErrEmbedding, "openai.embeddings", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, domain.Errorf(domain.ErrEmbedding, "openai.embeddings", "got %d embeddings for %d inputs", len(resp.Data), len(batch))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, domain.Errorf(domain.ErrEmbedding, "openai.embeddings", "empty embedding at %d", i)
		}
		vecs[i] = d.Embedding
	}
	c.logger.Debug("embedded batch", zap.String("model", c.model), zap.Int("batch", len(batch)), zap.Int("dim", len(vecs[0])))
	return vecs, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("openai embeddings (%s)", c.model)
}
