package core

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued invocation of a declared tool.
type ToolCall struct {
	ID   string          `json:"toolCallId"`
	Name string          `json:"toolName"`
	Args json.RawMessage `json:"args"`
}

// ToolResult is the output of an executed tool call.
type ToolResult struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Result     json.RawMessage `json:"result"`
}

// Message is a provider-neutral conversation message.
//
// Assistant messages may carry ToolCalls next to Content; tool messages carry
// only ToolResults.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolSpec declares a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}

type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool-calls"
	FinishError     FinishReason = "error"
	FinishOther     FinishReason = "other"
)

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

// CompletionRequest is one model call. ResponseSchema switches the provider
// into JSON output mode.
type CompletionRequest struct {
	Model          string
	System         string
	Messages       []Message
	Tools          []ToolSpec
	ResponseSchema *Schema
	Temperature    *float32
}

// StepResult is the outcome of a single streamed model call.
type StepResult struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, req *CompletionRequest) (string, error)
	// Stream calls onDelta for every text delta as it arrives and returns the
	// assembled step once the provider finishes.
	Stream(ctx context.Context, req *CompletionRequest, onDelta func(string) error) (*StepResult, error)
}

// PromptRequest builds a single-turn request with no tools.
func PromptRequest(model, system, prompt string) *CompletionRequest {
	return &CompletionRequest{
		Model:    model,
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	}
}
