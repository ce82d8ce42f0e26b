package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/meddy-health/meddy/internal/core"
)

// Router dispatches a request to the backend serving its api identifier.
// Nil backends are reported as unconfigured.
type Router struct {
	OpenAI  core.LLMProvider
	Mistral core.LLMProvider
	Gemini  core.LLMProvider
}

func (r *Router) backend(model string) (core.LLMProvider, error) {
	var (
		p    core.LLMProvider
		name string
	)
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "mistral"), strings.Contains(m, "ministral"):
		p, name = r.Mistral, "mistral"
	case strings.HasPrefix(m, "gemini"):
		p, name = r.Gemini, "gemini"
	default:
		p, name = r.OpenAI, "openai"
	}
	if p == nil {
		return nil, fmt.Errorf("llm backend %q for model %q is not configured", name, model)
	}
	return p, nil
}

func (r *Router) Generate(ctx context.Context, req *core.CompletionRequest) (string, error) {
	p, err := r.backend(req.Model)
	if err != nil {
		return "", err
	}
	return p.Generate(ctx, req)
}

func (r *Router) Stream(ctx context.Context, req *core.CompletionRequest, onDelta func(string) error) (*core.StepResult, error) {
	p, err := r.backend(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, req, onDelta)
}

var _ core.LLMProvider = (*Router)(nil)
