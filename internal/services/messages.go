package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/models"
)

// UIMessage is the message shape exchanged with the chat UI.
type UIMessage struct {
	ID              string            `json:"id"`
	Role            string            `json:"role"`
	Content         string            `json:"content"`
	ToolInvocations []ToolInvocation  `json:"toolInvocations,omitempty"`
	Annotations     []json.RawMessage `json:"annotations,omitempty"`
	CreatedAt       *time.Time        `json:"createdAt,omitempty"`
}

const (
	InvocationPartialCall = "partial-call"
	InvocationCall        = "call"
	InvocationResult      = "result"
)

type ToolInvocation struct {
	State      string          `json:"state"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// contentPart is one element of an array-valued message content.
type contentPart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// ConvertToCoreMessages turns UI messages into model messages. Tool
// invocations without a result are dropped.
func ConvertToCoreMessages(ui []UIMessage) []core.Message {
	out := make([]core.Message, 0, len(ui))
	for _, m := range ui {
		switch m.Role {
		case "system":
			out = append(out, core.Message{Role: core.RoleSystem, Content: m.Content})
		case "user":
			out = append(out, core.Message{Role: core.RoleUser, Content: m.Content})
		case "assistant":
			var (
				calls   []core.ToolCall
				results []core.ToolResult
			)
			for _, inv := range m.ToolInvocations {
				if inv.State != InvocationResult {
					continue
				}
				args := inv.Args
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				calls = append(calls, core.ToolCall{ID: inv.ToolCallID, Name: inv.ToolName, Args: args})
				results = append(results, core.ToolResult{ToolCallID: inv.ToolCallID, ToolName: inv.ToolName, Result: inv.Result})
			}
			if len(calls) == 0 {
				if m.Content != "" {
					out = append(out, core.Message{Role: core.RoleAssistant, Content: m.Content})
				}
				continue
			}
			out = append(out,
				core.Message{Role: core.RoleAssistant, Content: m.Content, ToolCalls: calls},
				core.Message{Role: core.RoleTool, ToolResults: results},
			)
		}
	}
	return out
}

// MostRecentUserMessage returns a pointer into msgs, or nil.
func MostRecentUserMessage(msgs []core.Message) *core.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return &msgs[i]
		}
	}
	return nil
}

var (
	inlineToolJSON = regexp.MustCompile(`\{[\s\S]*?"content":[\s\S]*?\}`)
	blankLines     = regexp.MustCompile(`(?m)^\s*[\r\n]`)
)

func isPlain(m core.Message) bool {
	return len(m.ToolCalls) == 0 && len(m.ToolResults) == 0
}

// SanitizeResponseMessages strips tool output echoed inline as JSON and
// blank lines from plain messages, and drops plain messages left empty.
func SanitizeResponseMessages(msgs []core.Message) []core.Message {
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if isPlain(m) {
			c := inlineToolJSON.ReplaceAllString(m.Content, "")
			c = blankLines.ReplaceAllString(c, "")
			if strings.TrimSpace(c) == "" {
				continue
			}
			m.Content = c
		}
		out = append(out, m)
	}
	return out
}

func isInternalResult(raw json.RawMessage) bool {
	var v struct {
		InternalOnly bool `json:"internalOnly"`
	}
	return json.Unmarshal(raw, &v) == nil && v.InternalOnly
}

// FilterInternalMessages drops internal-only tool results along with their
// tool calls. Messages left without content are removed.
func FilterInternalMessages(msgs []core.Message) []core.Message {
	internal := map[string]bool{}
	for _, m := range msgs {
		for _, r := range m.ToolResults {
			if isInternalResult(r.Result) {
				internal[r.ToolCallID] = true
			}
		}
	}
	if len(internal) == 0 {
		return msgs
	}

	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		hadParts := !isPlain(m)
		if len(m.ToolCalls) > 0 {
			var calls []core.ToolCall
			for _, c := range m.ToolCalls {
				if !internal[c.ID] {
					calls = append(calls, c)
				}
			}
			m.ToolCalls = calls
		}
		if len(m.ToolResults) > 0 {
			var results []core.ToolResult
			for _, r := range m.ToolResults {
				if !internal[r.ToolCallID] {
					results = append(results, r)
				}
			}
			m.ToolResults = results
		}
		if hadParts && isPlain(m) && strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// EncodeContent serializes a message for the jsonb content column: a JSON
// string for plain text, otherwise an array of typed parts.
func EncodeContent(m core.Message) (json.RawMessage, error) {
	if isPlain(m) {
		return json.Marshal(m.Content)
	}
	var parts []contentPart
	if m.Content != "" {
		parts = append(parts, contentPart{Type: "text", Text: m.Content})
	}
	for _, c := range m.ToolCalls {
		parts = append(parts, contentPart{Type: "tool-call", ToolCallID: c.ID, ToolName: c.Name, Args: c.Args})
	}
	for _, r := range m.ToolResults {
		parts = append(parts, contentPart{Type: "tool-result", ToolCallID: r.ToolCallID, ToolName: r.ToolName, Result: r.Result})
	}
	return json.Marshal(parts)
}

// DecodeContent is the inverse of EncodeContent.
func DecodeContent(role string, raw json.RawMessage) (core.Message, error) {
	m := core.Message{Role: core.Role(role)}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return m, nil
	}
	if trimmed[0] == '"' {
		if err := json.Unmarshal(raw, &m.Content); err != nil {
			return m, fmt.Errorf("decode content: %w", err)
		}
		return m, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return m, fmt.Errorf("decode content parts: %w", err)
	}
	var text strings.Builder
	for _, p := range parts {
		switch p.Type {
		case "text":
			text.WriteString(p.Text)
		case "tool-call":
			m.ToolCalls = append(m.ToolCalls, core.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Args: p.Args})
		case "tool-result":
			m.ToolResults = append(m.ToolResults, core.ToolResult{ToolCallID: p.ToolCallID, ToolName: p.ToolName, Result: p.Result})
		}
	}
	m.Content = text.String()
	return m, nil
}

// ConvertToUIMessages folds stored tool messages into the tool invocations of
// the preceding assistant messages.
func ConvertToUIMessages(stored []models.Message) ([]UIMessage, error) {
	out := make([]UIMessage, 0, len(stored))
	for _, sm := range stored {
		m, err := DecodeContent(sm.Role, sm.Content)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", sm.ID, err)
		}

		if m.Role == core.RoleTool {
			for _, r := range m.ToolResults {
				attachResult(out, r)
			}
			continue
		}

		created := sm.CreatedAt
		ui := UIMessage{ID: sm.ID, Role: sm.Role, Content: m.Content, CreatedAt: &created}
		for _, c := range m.ToolCalls {
			ui.ToolInvocations = append(ui.ToolInvocations, ToolInvocation{
				State:      InvocationCall,
				ToolCallID: c.ID,
				ToolName:   c.Name,
				Args:       c.Args,
			})
		}
		out = append(out, ui)
	}
	return out, nil
}

func attachResult(msgs []UIMessage, r core.ToolResult) {
	for i := len(msgs) - 1; i >= 0; i-- {
		for j := range msgs[i].ToolInvocations {
			inv := &msgs[i].ToolInvocations[j]
			if inv.ToolCallID == r.ToolCallID {
				inv.State = InvocationResult
				inv.Result = r.Result
				return
			}
		}
	}
}
