package fallback

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/warintorn/shoptalk/bot/routing"
)

// OpenAIConfig configures one OpenAI-compatible backend. Any provider
// speaking the chat-completions protocol works (openai, deepseek,
// siliconflow, ollama, openrouter, ...).
type OpenAIConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     int // seconds
}

// Provider defaults applied when base URL or model are not set.
var providerDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai":      {BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
	"deepseek":    {BaseURL: "https://api.deepseek.com", Model: "deepseek-chat"},
	"siliconflow": {BaseURL: "https://api.siliconflow.cn/v1", Model: "Qwen/Qwen2.5-72B-Instruct"},
	"openrouter":  {BaseURL: "https://openrouter.ai/api/v1", Model: "deepseek/deepseek-chat"},
	"ollama":      {BaseURL: "http://localhost:11434/v1", Model: "llama3.1"},
}

type openAIBackend struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewOpenAIBackend creates a Backend over an OpenAI-compatible API.
func NewOpenAIBackend(cfg OpenAIConfig) (Backend, error) {
	if cfg.Provider == "" {
		return nil, errors.New("provider required")
	}
	baseURL := cfg.BaseURL
	model := cfg.Model
	if defaults, ok := providerDefaults[cfg.Provider]; ok {
		if baseURL == "" {
			baseURL = defaults.BaseURL
		}
		if model == "" {
			model = defaults.Model
		}
	}
	if model == "" {
		return nil, errors.Errorf("no model configured for provider %s", cfg.Provider)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	return &openAIBackend{
		client:      openai.NewClientWithConfig(clientConfig),
		name:        cfg.Provider,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     time.Duration(timeout) * time.Second,
	}, nil
}

func (b *openAIBackend) Name() string { return b.name }

func (b *openAIBackend) Complete(ctx context.Context, p *Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.client.CreateChatCompletion(ctx, b.request(p))
	if err != nil {
		return "", errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *openAIBackend) Stream(ctx context.Context, p *Prompt) (<-chan string, <-chan error, error) {
	req := b.request(p)
	stream, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create completion stream failed")
	}

	contentChan := make(chan string, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)
		defer func() { _ = stream.Close() }()

		for {
			response, err := stream.Recv()
			if err != nil {
				if strings.Contains(err.Error(), "EOF") {
					return
				}
				slog.Warn("fallback.stream_recv_error", "backend", b.name, "error", err)
				select {
				case errChan <- err:
				case <-ctx.Done():
				}
				return
			}
			// Chunks without a usable delta are dropped, not surfaced.
			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case contentChan <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()

	return contentChan, errChan, nil
}

func (b *openAIBackend) request(p *Prompt) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(p.History)+2)
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.System,
		})
	}
	for _, m := range p.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    roleFor(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: p.Message,
	})

	return openai.ChatCompletionRequest{
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		Temperature: b.temperature,
		Messages:    messages,
	}
}

func roleFor(r routing.Role) string {
	switch r {
	case routing.RoleSystem:
		return openai.ChatMessageRoleSystem
	case routing.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
