// Package analysis turns a quotation input (text and/or label photos)
// into the structured item analysis that routes and parameterizes the
// rest of the pipeline. Two LLM backends are supported behind one
// provider interface; which one runs is a runtime configuration.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Image is one input photograph, already base64-encoded.
type Image struct {
	MediaType string // image/jpeg, image/png, image/webp
	Base64    string
}

// Request is one provider call: ordered content blocks plus a system
// prompt.
type Request struct {
	System    string
	Text      string
	Images    []Image
	MaxTokens int64
	// WebSearch asks the provider to allow its web-search tool for
	// this call; providers without the capability ignore it.
	WebSearch bool
}

// Usage is the provider-reported token accounting of one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the provider output.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is the capability set the pipeline depends on: messages,
// images in messages, token usage reporting, optional web search.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	SupportsWebSearch() bool
	Name() string
}

// WithoutWebSearch disables a provider's web-search capability while
// keeping everything else; deployments that forbid the tool wrap their
// provider with it.
func WithoutWebSearch(p Provider) Provider { return noWebSearch{p} }

type noWebSearch struct{ Provider }

func (noWebSearch) SupportsWebSearch() bool { return false }

// Error families the retry tables key on.
var (
	ErrRateLimited = errors.New("provedor limitou a taxa de chamadas")
	ErrOverloaded  = errors.New("provedor sobrecarregado")
)

// ExtractJSON returns the first top-level JSON object embedded in the
// model output. Providers are prompted to answer with one object, but
// prose around it is tolerated.
func ExtractJSON(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("resposta do modelo sem objeto JSON")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("objeto JSON truncado na resposta do modelo")
}
