package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/meddy-health/meddy/internal/core"
)

type GeminiLLM struct {
	client *genai.Client
}

func NewGeminiLLM(ctx context.Context, apiKey string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiLLM{client: cl}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) model(req *core.CompletionRequest) *genai.GenerativeModel {
	name := req.Model
	if name == "" {
		name = "gemini-1.5-flash"
	}
	m := g.client.GenerativeModel(name)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.Temperature != nil {
		m.SetTemperature(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		m.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.ResponseSchema != nil {
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = toGenaiSchema(req.ResponseSchema)
	}
	return m
}

// toGenaiSchema converts the shared schema into Gemini's typed schema.
func toGenaiSchema(s *core.Schema) *genai.Schema {
	if s == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	switch s.Type {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
		out.Items = toGenaiSchema(s.Items)
	default:
		out.Type = genai.TypeObject
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	return out
}

// toGenaiContents maps the history to Gemini contents. Consecutive entries
// with the same role are merged since the API expects alternating turns.
func toGenaiContents(msgs []core.Message) []*genai.Content {
	var out []*genai.Content
	push := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	for _, m := range msgs {
		switch m.Role {
		case core.RoleAssistant:
			var parts []genai.Part
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: decodeObject(tc.Args)})
			}
			push("model", parts...)
		case core.RoleTool:
			var parts []genai.Part
			for _, tr := range m.ToolResults {
				parts = append(parts, genai.FunctionResponse{Name: tr.ToolName, Response: decodeObject(tr.Result)})
			}
			push("user", parts...)
		default:
			if m.Content != "" {
				push("user", genai.Text(m.Content))
			}
		}
	}
	return out
}

// decodeObject returns a JSON object as a map; non-objects are wrapped.
func decodeObject(raw json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil && m != nil {
		return m
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		v = string(raw)
	}
	return map[string]any{"result": v}
}

func (g *GeminiLLM) Generate(ctx context.Context, req *core.CompletionRequest) (string, error) {
	contents := toGenaiContents(req.Messages)
	if len(contents) == 0 {
		return "", errors.New("gemini generate: empty conversation")
	}
	cs := g.model(req).StartChat()
	last := contents[len(contents)-1]
	cs.History = contents[:len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func (g *GeminiLLM) Stream(ctx context.Context, req *core.CompletionRequest, onDelta func(string) error) (*core.StepResult, error) {
	contents := toGenaiContents(req.Messages)
	if len(contents) == 0 {
		return nil, errors.New("gemini stream: empty conversation")
	}
	cs := g.model(req).StartChat()
	last := contents[len(contents)-1]
	cs.History = contents[:len(contents)-1]

	var (
		text   strings.Builder
		result = &core.StepResult{FinishReason: core.FinishOther}
	)
	iter := cs.SendMessageStream(ctx, last.Parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini stream: %w", err)
		}
		if resp.UsageMetadata != nil {
			result.Usage = core.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		cand := resp.Candidates[0]
		if cand.Content != nil {
			for _, p := range cand.Content.Parts {
				switch v := p.(type) {
				case genai.Text:
					text.WriteString(string(v))
					if err := onDelta(string(v)); err != nil {
						return nil, err
					}
				case genai.FunctionCall:
					args, err := json.Marshal(v.Args)
					if err != nil || v.Args == nil {
						args = []byte("{}")
					}
					result.ToolCalls = append(result.ToolCalls, core.ToolCall{
						ID:   uuid.NewString(),
						Name: v.Name,
						Args: args,
					})
				}
			}
		}
		switch cand.FinishReason {
		case genai.FinishReasonStop:
			result.FinishReason = core.FinishStop
		case genai.FinishReasonMaxTokens:
			result.FinishReason = core.FinishLength
		}
	}

	result.Text = text.String()
	if len(result.ToolCalls) > 0 {
		result.FinishReason = core.FinishToolCalls
	}
	return result, nil
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
