package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meddy-health/meddy/internal/core"
)

// OpenAIChat talks to any OpenAI-compatible chat completion API. It serves
// OpenAI directly and Mistral through its compatible endpoint.
type OpenAIChat struct {
	client       *openai.Client
	name         string
	includeUsage bool
}

func NewOpenAIChat(apiKey string) *OpenAIChat {
	return &OpenAIChat{client: openai.NewClient(apiKey), name: "openai", includeUsage: true}
}

// NewMistralChat points the OpenAI client at Mistral's base URL.
func NewMistralChat(apiKey, baseURL string) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIChat{client: openai.NewClientWithConfig(cfg), name: "mistral"}
}

func (c *OpenAIChat) buildRequest(req *core.CompletionRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.System, req.Messages),
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters.JSON(),
			},
		})
	}
	if req.ResponseSchema != nil {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

func toOpenAIMessages(system string, msgs []core.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case core.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			out = append(out, msg)
		case core.RoleTool:
			for _, tr := range m.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    string(tr.Result),
					Name:       tr.ToolName,
					ToolCallID: tr.ToolCallID,
				})
			}
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

func (c *OpenAIChat) Generate(ctx context.Context, req *core.CompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream forwards content deltas and assembles tool-call fragments by index.
func (c *OpenAIChat) Stream(ctx context.Context, req *core.CompletionRequest, onDelta func(string) error) (*core.StepResult, error) {
	r := c.buildRequest(req)
	r.Stream = true
	if c.includeUsage {
		r.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", c.name, err)
	}
	defer stream.Close()

	var (
		text   strings.Builder
		calls  = map[int]*toolCallBuilder{}
		result = &core.StepResult{FinishReason: core.FinishOther}
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s stream recv: %w", c.name, err)
		}
		if resp.Usage != nil {
			result.Usage = core.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}
		}
		for _, ch := range resp.Choices {
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				if err := onDelta(ch.Delta.Content); err != nil {
					return nil, err
				}
			}
			for i, tc := range ch.Delta.ToolCalls {
				idx := i
				if tc.Index != nil {
					idx = *tc.Index
				}
				b, ok := calls[idx]
				if !ok {
					b = &toolCallBuilder{}
					calls[idx] = b
				}
				b.add(tc)
			}
			if ch.FinishReason != "" {
				result.FinishReason = mapOpenAIFinish(ch.FinishReason)
			}
		}
	}

	result.Text = text.String()
	result.ToolCalls = assembleToolCalls(calls)
	if len(result.ToolCalls) > 0 {
		result.FinishReason = core.FinishToolCalls
	}
	return result, nil
}

type toolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

func (b *toolCallBuilder) add(tc openai.ToolCall) {
	if tc.ID != "" {
		b.id = tc.ID
	}
	if tc.Function.Name != "" {
		b.name = tc.Function.Name
	}
	b.args.WriteString(tc.Function.Arguments)
}

func assembleToolCalls(calls map[int]*toolCallBuilder) []core.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	idx := make([]int, 0, len(calls))
	for i := range calls {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]core.ToolCall, 0, len(idx))
	for _, i := range idx {
		b := calls[i]
		args := strings.TrimSpace(b.args.String())
		if args == "" {
			args = "{}"
		}
		out = append(out, core.ToolCall{ID: b.id, Name: b.name, Args: []byte(args)})
	}
	return out
}

func mapOpenAIFinish(r openai.FinishReason) core.FinishReason {
	switch r {
	case openai.FinishReasonStop:
		return core.FinishStop
	case openai.FinishReasonLength:
		return core.FinishLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return core.FinishToolCalls
	default:
		return core.FinishOther
	}
}

var _ core.LLMProvider = (*OpenAIChat)(nil)
