package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

// AnthropicProvider is the default analysis backend.
type AnthropicProvider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicProvider builds the backend from configuration.
func NewAnthropicProvider(apiKey, model string, maxTokens int64) *AnthropicProvider {
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) SupportsWebSearch() bool { return true }

// Complete performs one message call with the configured retry tables.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	return withRetry(ctx, p.Name(), func() (*Response, error) {
		return p.complete(ctx, req)
	})
}

func (p *AnthropicProvider) complete(ctx context.Context, req Request) (*Response, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, img.Base64))
	}
	if req.Text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(req.Text))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.WebSearch {
		params.Tools = []anthropic.ToolUnionParam{{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				MaxUses: anthropic.Int(3),
			},
		}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicErr(err)
	}

	var sb strings.Builder
	for _, blk := range msg.Content {
		if blk.Type == "text" {
			sb.WriteString(blk.Text)
		}
	}

	log.Debug().
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Msg("anthropic message completed")

	return &Response{
		Text: sb.String(),
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

// classifyAnthropicErr maps provider errors onto the retryable
// families: 429 is rate limiting; 529, 503 and 502 are overload.
func classifyAnthropicErr(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case 529, 503, 502:
			return fmt.Errorf("%w: %v", ErrOverloaded, err)
		}
	}
	return err
}
