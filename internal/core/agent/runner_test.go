package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/core/datastream"
)

// scriptedLLM replays one StepResult per Stream call.
type scriptedLLM struct {
	steps    []*core.StepResult
	err      error
	requests []*core.CompletionRequest
}

func (s *scriptedLLM) Generate(ctx context.Context, req *core.CompletionRequest) (string, error) {
	return "", errors.New("not used")
}

func (s *scriptedLLM) Stream(ctx context.Context, req *core.CompletionRequest, onDelta func(string) error) (*core.StepResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.steps) {
		return &core.StepResult{FinishReason: core.FinishStop}, nil
	}
	st := s.steps[i]
	if st.Text != "" {
		if err := onDelta(st.Text); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
}

func weatherTool(calls *int) Tool {
	return Tool{
		Name:       "getWeather",
		Parameters: core.Object(map[string]*core.Schema{"latitude": core.Number("")}, "latitude"),
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			*calls++
			return map[string]float64{"temperature": 21.5}, nil
		},
	}
}

func TestRunTextOnly(t *testing.T) {
	llm := &scriptedLLM{steps: []*core.StepResult{
		{Text: "Hello", FinishReason: core.FinishStop, Usage: core.Usage{PromptTokens: 4, CompletionTokens: 1}},
	}}
	var buf bytes.Buffer
	var finished *RunResult

	res, err := NewRunner(llm).Run(context.Background(), datastream.NewWriter(&buf), RunRequest{
		Model:    "gpt-4o",
		Messages: []core.Message{{Role: core.RoleUser, Content: "hi"}},
		OnFinish: func(ctx context.Context, r *RunResult) error {
			finished = r
			return nil
		},
	})
	require.NoError(t, err)
	require.NotNil(t, finished)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, "Hello", res.Text)
	require.Len(t, res.ResponseMessages, 1)
	assert.Equal(t, core.RoleAssistant, res.ResponseMessages[0].Role)

	l := lines(&buf)
	require.Len(t, l, 4)
	assert.True(t, strings.HasPrefix(l[0], "f:"))
	assert.Equal(t, `0:"Hello"`, l[1])
	assert.Equal(t, `e:{"finishReason":"stop","usage":{"promptTokens":4,"completionTokens":1},"isContinued":false}`, l[2])
	assert.Equal(t, `d:{"finishReason":"stop","usage":{"promptTokens":4,"completionTokens":1}}`, l[3])
}

func TestRunToolLoop(t *testing.T) {
	llm := &scriptedLLM{steps: []*core.StepResult{
		{
			ToolCalls:    []core.ToolCall{{ID: "c1", Name: "getWeather", Args: json.RawMessage(`{"latitude":52.5}`)}},
			FinishReason: core.FinishToolCalls,
			Usage:        core.Usage{PromptTokens: 10, CompletionTokens: 5},
		},
		{Text: "It is warm.", FinishReason: core.FinishStop, Usage: core.Usage{PromptTokens: 20, CompletionTokens: 4}},
	}}
	calls := 0
	var buf bytes.Buffer

	res, err := NewRunner(llm).Run(context.Background(), datastream.NewWriter(&buf), RunRequest{
		Model:    "gpt-4o",
		Messages: []core.Message{{Role: core.RoleUser, Content: "weather?"}},
		Tools:    []Tool{weatherTool(&calls)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, core.Usage{PromptTokens: 30, CompletionTokens: 9}, res.Usage)
	require.Len(t, res.ResponseMessages, 3)
	assert.Equal(t, core.RoleTool, res.ResponseMessages[1].Role)
	assert.JSONEq(t, `{"temperature":21.5}`, string(res.ResponseMessages[1].ToolResults[0].Result))

	// second request sees the tool round trip
	require.Len(t, llm.requests, 2)
	assert.Len(t, llm.requests[1].Messages, 3)
	assert.Equal(t, "getWeather", llm.requests[0].Tools[0].Name)

	out := buf.String()
	assert.Contains(t, out, `9:{"toolCallId":"c1","toolName":"getWeather","args":{"latitude":52.5}}`)
	assert.Contains(t, out, `a:{"toolCallId":"c1","result":{"temperature":21.5}}`)
	assert.Contains(t, out, `e:{"finishReason":"tool-calls","usage":{"promptTokens":10,"completionTokens":5},"isContinued":false}`)
	assert.NotContains(t, out, `"isContinued":true`)
	assert.Contains(t, out, `d:{"finishReason":"stop","usage":{"promptTokens":30,"completionTokens":9}}`)
}

func TestRunStopsAtMaxSteps(t *testing.T) {
	call := &core.StepResult{
		ToolCalls:    []core.ToolCall{{ID: "c", Name: "getWeather", Args: json.RawMessage(`{"latitude":1}`)}},
		FinishReason: core.FinishToolCalls,
	}
	llm := &scriptedLLM{steps: []*core.StepResult{call, call, call}}
	calls := 0
	var buf bytes.Buffer

	res, err := NewRunner(llm).Run(context.Background(), datastream.NewWriter(&buf), RunRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: "loop"}},
		Tools:    []Tool{weatherTool(&calls)},
		MaxSteps: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 2, calls)
	assert.Len(t, llm.requests, 2)
	assert.Equal(t, core.FinishToolCalls, res.FinishReason)
}

func TestRunToolProblemsBecomeErrorResults(t *testing.T) {
	failing := Tool{
		Name: "updateUserInfo",
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("db down")
		},
	}
	calls := 0
	llm := &scriptedLLM{steps: []*core.StepResult{{
		ToolCalls: []core.ToolCall{
			{ID: "1", Name: "nope", Args: json.RawMessage(`{}`)},
			{ID: "2", Name: "getWeather", Args: json.RawMessage(`{}`)},
			{ID: "3", Name: "updateUserInfo", Args: json.RawMessage(`{"name":"A"}`)},
		},
		FinishReason: core.FinishToolCalls,
	}}}
	var buf bytes.Buffer

	res, err := NewRunner(llm).Run(context.Background(), datastream.NewWriter(&buf), RunRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: "x"}},
		Tools:    []Tool{weatherTool(&calls), failing},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	results := res.ResponseMessages[1].ToolResults
	require.Len(t, results, 3)
	assert.Contains(t, string(results[0].Result), "unknown tool")
	assert.Contains(t, string(results[1].Result), "latitude")
	assert.JSONEq(t, `{"error":"db down"}`, string(results[2].Result))
}

func TestRunProviderError(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("rate limited")}
	var buf bytes.Buffer
	finished := false

	_, err := NewRunner(llm).Run(context.Background(), datastream.NewWriter(&buf), RunRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: "x"}},
		OnFinish: func(ctx context.Context, r *RunResult) error {
			finished = true
			return nil
		},
	})
	require.Error(t, err)
	assert.False(t, finished)
	assert.Contains(t, buf.String(), `3:"step 0: rate limited"`)
}

func TestEncodeResult(t *testing.T) {
	assert.Equal(t, `null`, string(encodeResult(nil)))
	assert.Equal(t, `{"a":1}`, string(encodeResult(json.RawMessage(`{"a":1}`))))
	assert.Equal(t, `"plain"`, string(encodeResult("plain")))
}
