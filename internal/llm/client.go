// Package llm wraps the OpenAI-compatible chat-completions and embeddings
// APIs (C11 transport), question classification, and natural-language to
// SQL translation.
//
// Grounded on Nox-HQ-nox/assist/openai.go for the client/options shape
// (WithBaseURL enabling any OpenAI-compatible endpoint, including this
// system's BRAIN_URL), and on original_source/intelligence/core/classifier.py
// + sql_engine.py for the prompts and JSON-tolerant parsing behavior.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Role mirrors chat-completion message roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a chat-completion request.
type Message struct {
	Role    Role
	Content string
}

// Completion is the normalized result of a chat-completion call.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client talks to an OpenAI-compatible endpoint for both chat completions
// and embeddings.
type Client struct {
	raw            openai.Client
	chatModel      string
	embeddingModel string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	apiKey         string
	baseURL        string
	chatModel      string
	embeddingModel string
	timeout        time.Duration
}

// WithAPIKey sets the API key. If empty, the SDK falls back to OPENAI_API_KEY.
func WithAPIKey(key string) Option { return func(c *config) { c.apiKey = key } }

// WithBaseURL targets an OpenAI-compatible endpoint (e.g. BRAIN_URL).
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithChatModel sets the chat-completion model (default "gpt-4o-mini").
func WithChatModel(model string) Option { return func(c *config) { c.chatModel = model } }

// WithEmbeddingModel sets the embedding model (default "text-embedding-3-small").
func WithEmbeddingModel(model string) Option { return func(c *config) { c.embeddingModel = model } }

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// New constructs a Client.
func New(opts ...Option) *Client {
	cfg := config{chatModel: "gpt-4o-mini", embeddingModel: "text-embedding-3-small"}
	for _, o := range opts {
		o(&cfg)
	}

	var clientOpts []option.RequestOption
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.timeout))
	}

	return &Client{
		raw:            openai.NewClient(clientOpts...),
		chatModel:      cfg.chatModel,
		embeddingModel: cfg.embeddingModel,
	}
}

// Complete sends a chat-completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.chatModel,
		Messages: toOpenAIMessages(messages),
	}
	if temperature > 0 {
		params.Temperature = openai.Float(temperature)
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	completion, err := c.raw.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	return &Completion{
		Content:          completion.Choices[0].Message.Content,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

// Embed generates one embedding vector per input text, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.raw.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// EmbeddingModel reports the configured embedding model name.
func (c *Client) EmbeddingModel() string { return c.embeddingModel }

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		case RoleAssistant:
			out[i] = openai.AssistantMessage(m.Content)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}
