package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAICompatProvider is the alternative backend: any service exposing
// the chat-completions wire format. It carries no web-search tool.
type OpenAICompatProvider struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int64
	client    *http.Client
}

// NewOpenAICompatProvider builds the backend from configuration.
func NewOpenAICompatProvider(baseURL, apiKey, model string, maxTokens int64) *OpenAICompatProvider {
	return &OpenAICompatProvider{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAICompatProvider) Name() string { return "openai_compat" }

func (p *OpenAICompatProvider) SupportsWebSearch() bool { return false }

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int64         `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete performs one chat call with the configured retry tables.
func (p *OpenAICompatProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return withRetry(ctx, p.Name(), func() (*Response, error) {
		return p.complete(ctx, req)
	})
}

func (p *OpenAICompatProvider) complete(ctx context.Context, req Request) (*Response, error) {
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{
			Role:    "system",
			Content: []contentPart{{Type: "text", Text: req.System}},
		})
	}
	var parts []contentPart
	for _, img := range req.Images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Base64)},
		})
	}
	if req.Text != "" {
		parts = append(parts, contentPart{Type: "text", Text: req.Text})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: parts})

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	body, err := json.Marshal(chatRequest{Model: p.model, Messages: msgs, MaxTokens: maxTokens})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	case 529, http.StatusServiceUnavailable, http.StatusBadGateway:
		return nil, fmt.Errorf("%w: HTTP %d", ErrOverloaded, resp.StatusCode)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("chat completion HTTP %d: %s", resp.StatusCode, b)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("resposta do modelo sem conteúdo")
	}
	return &Response{
		Text: out.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}, nil
}
