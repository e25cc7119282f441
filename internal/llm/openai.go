package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gpt-oss:120b"

// Config configures an OpenAI-compatible chat endpoint. Ollama (local or
// ollama.com) is reached through its /v1 compatibility API.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxRetries  int
	HTTPClient  *http.Client
}

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// OpenAI is a Client backed by the OpenAI chat completions API.
type OpenAI struct {
	completions chatCompletions
	model       string
	temperature *float64
}

// NewOpenAI builds a Client for cfg.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, errors.New("llm: api key required")
		}
		// Local Ollama ignores the key but the client requires one.
		apiKey = "ollama"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	client := openai.NewClient(opts...)
	return &OpenAI{completions: &client.Chat.Completions, model: model, temperature: cfg.Temperature}, nil
}

// Chat implements Client.
func (o *OpenAI) Chat(ctx context.Context, messages []Message, onChunk func(string)) (string, error) {
	params := o.params(messages)
	if onChunk == nil {
		completion, err := o.completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", errors.New("chat completion: no choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	}

	stream := o.completions.NewStreaming(ctx, params)
	if stream == nil {
		return "", errors.New("chat completion: stream not available")
	}
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			text.WriteString(choice.Delta.Content)
			onChunk(choice.Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return text.String(), fmt.Errorf("chat completion stream: %w", err)
	}
	return text.String(), nil
}

func (o *OpenAI) params(messages []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessages(messages),
	}
	if o.temperature != nil {
		params.Temperature = openai.Float(*o.temperature)
	}
	return params
}

func convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
