package openai

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"ragchat/internal/domain"
)

// Config configures the chat model.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout bounds the whole call, first token to last.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Chat streams completions from an OpenAI-compatible chat endpoint.
type Chat struct {
	client      *goopenai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

func NewChat(cfg Config) (*Chat, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.Errorf(domain.ErrConfig, "openai.chat", "missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Chat{
		client:      goopenai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Model returns the configured model name.
func (c *Chat) Model() string { return c.model }

// Stream starts a completion. The returned channel is closed when the answer
// ends, the call fails (a final Delta carries the error) or ctx is cancelled.
func (c *Chat) Stream(ctx context.Context, messages []domain.Message) (<-chan domain.Delta, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)

	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAI(messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	}
	stream, err := c.client.CreateChatCompletionStream(callCtx, req)
	if err != nil {
		err = classify(callCtx, err)
		cancel()
		c.logger.Warn("chat stream failed", zap.String("model", c.model), zap.Error(err))
		return nil, err
	}

	out := make(chan domain.Delta)
	go func() {
		defer close(out)
		defer cancel()
		defer stream.Close()

		send := func(d domain.Delta) bool {
			select {
			case out <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("chat stream interrupted", zap.String("model", c.model), zap.Error(err))
					send(domain.Delta{Err: classify(callCtx, err)})
				}
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(domain.Delta{Content: resp.Choices[0].Delta.Content}) {
				return
			}
		}
	}()
	return out, nil
}

// classify reports an expired call deadline as a timeout even when the
// transport surfaces it as a plain read error.
func classify(callCtx context.Context, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return domain.Wrap(domain.ErrTimeout, "openai.chat", err)
	}
	return domain.Classify(domain.ErrGeneration, "openai.chat", err)
}

func toOpenAI(messages []domain.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := goopenai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleSystem:
			role = goopenai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			role = goopenai.ChatMessageRoleAssistant
		}
		out[i] = goopenai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}
