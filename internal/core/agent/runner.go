// Package agent runs a streamed, multi-step tool calling conversation with
// an LLM and mirrors every step onto a data stream.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/core/datastream"
)

const DefaultMaxSteps = 5

// Tool is a declared function together with its implementation.
type Tool struct {
	Name        string
	Description string
	Parameters  *core.Schema
	Execute     func(ctx context.Context, args json.RawMessage) (any, error)
}

func (t Tool) Spec() core.ToolSpec {
	return core.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

type RunRequest struct {
	Model    string
	System   string
	Messages []core.Message
	Tools    []Tool
	MaxSteps int
	// OnFinish receives the result before the finish part is written.
	OnFinish func(ctx context.Context, res *RunResult) error
}

type RunResult struct {
	// ResponseMessages holds the assistant and tool messages produced by the run.
	ResponseMessages []core.Message
	Text             string
	FinishReason     core.FinishReason
	Usage            core.Usage
	Steps            int
}

type Runner struct {
	llm    core.LLMProvider
	tracer trace.Tracer
}

func NewRunner(llm core.LLMProvider) *Runner {
	return &Runner{llm: llm, tracer: otel.Tracer("github.com/meddy-health/meddy/agent")}
}

// Run loops model steps while the model keeps calling tools, up to MaxSteps.
func (r *Runner) Run(ctx context.Context, w *datastream.Writer, req RunRequest) (*RunResult, error) {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	toolNames := make([]string, 0, len(req.Tools))
	specs := make([]core.ToolSpec, 0, len(req.Tools))
	byName := make(map[string]Tool, len(req.Tools))
	for _, t := range req.Tools {
		toolNames = append(toolNames, t.Name)
		specs = append(specs, t.Spec())
		byName[t.Name] = t
	}

	ctx, span := r.tracer.Start(ctx, "stream-text", trace.WithAttributes(
		attribute.String("ai.model.id", req.Model),
		attribute.StringSlice("ai.tools", toolNames),
		attribute.Int("ai.max_steps", maxSteps),
	))
	defer span.End()

	history := append([]core.Message(nil), req.Messages...)
	res := &RunResult{FinishReason: core.FinishOther}

	for res.Steps < maxSteps {
		step, err := r.step(ctx, w, &req, specs, byName, history, res.Steps)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			_ = w.Error(err.Error())
			return nil, err
		}
		res.Steps++
		res.Usage = res.Usage.Add(step.usage)
		res.FinishReason = step.finishReason
		res.Text += step.text
		history = append(history, step.messages...)
		res.ResponseMessages = append(res.ResponseMessages, step.messages...)

		// isContinued marks text continuation after a length cut-off; tool steps never set it.
		if err := w.FinishStep(step.finishReason, step.usage, false); err != nil {
			return nil, err
		}
		if len(step.toolCalls) == 0 || res.Steps >= maxSteps {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("ai.steps", res.Steps),
		attribute.String("ai.finish_reason", string(res.FinishReason)),
		attribute.Int("ai.usage.prompt_tokens", res.Usage.PromptTokens),
		attribute.Int("ai.usage.completion_tokens", res.Usage.CompletionTokens),
	)

	if req.OnFinish != nil {
		if err := req.OnFinish(ctx, res); err != nil {
			log.Printf("agent: on-finish failed: %v", err)
		}
	}
	if err := w.FinishMessage(res.FinishReason, res.Usage); err != nil {
		return nil, err
	}
	return res, nil
}

type stepOutput struct {
	text         string
	toolCalls    []core.ToolCall
	messages     []core.Message
	finishReason core.FinishReason
	usage        core.Usage
}

func (r *Runner) step(
	ctx context.Context,
	w *datastream.Writer,
	req *RunRequest,
	specs []core.ToolSpec,
	byName map[string]Tool,
	history []core.Message,
	n int,
) (*stepOutput, error) {
	ctx, span := r.tracer.Start(ctx, "step", trace.WithAttributes(attribute.Int("ai.step", n)))
	defer span.End()

	if err := w.StartStep(uuid.NewString()); err != nil {
		return nil, err
	}

	sr, err := r.llm.Stream(ctx, &core.CompletionRequest{
		Model:    req.Model,
		System:   req.System,
		Messages: history,
		Tools:    specs,
	}, w.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("step %d: %w", n, err)
	}

	out := &stepOutput{text: sr.Text, finishReason: sr.FinishReason, usage: sr.Usage}
	if len(sr.ToolCalls) == 0 {
		if sr.Text != "" {
			out.messages = []core.Message{{Role: core.RoleAssistant, Content: sr.Text}}
		}
		return out, nil
	}

	calls := make([]core.ToolCall, 0, len(sr.ToolCalls))
	results := make([]core.ToolResult, 0, len(sr.ToolCalls))
	for _, tc := range sr.ToolCalls {
		if tc.ID == "" {
			tc.ID = uuid.NewString()
		}
		if len(tc.Args) == 0 {
			tc.Args = json.RawMessage("{}")
		}
		if err := w.ToolCall(tc); err != nil {
			return nil, err
		}
		span.AddEvent("tool-call", trace.WithAttributes(attribute.String("ai.tool.name", tc.Name)))

		result := r.execute(ctx, byName, tc)
		if err := w.ToolResult(tc.ID, result); err != nil {
			return nil, err
		}
		calls = append(calls, tc)
		results = append(results, core.ToolResult{ToolCallID: tc.ID, ToolName: tc.Name, Result: result})
	}

	out.toolCalls = calls
	out.messages = []core.Message{
		{Role: core.RoleAssistant, Content: sr.Text, ToolCalls: calls},
		{Role: core.RoleTool, ToolResults: results},
	}
	return out, nil
}

// execute never fails; problems become an {"error": ...} result the model can read.
func (r *Runner) execute(ctx context.Context, byName map[string]Tool, tc core.ToolCall) json.RawMessage {
	t, ok := byName[tc.Name]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", tc.Name))
	}
	if !json.Valid(tc.Args) {
		return errorResult(fmt.Sprintf("invalid arguments for %s", tc.Name))
	}
	if missing, bad := t.Parameters.MissingRequired(tc.Args); bad {
		return errorResult(fmt.Sprintf("missing required argument %q for %s", missing, tc.Name))
	}

	v, err := t.Execute(ctx, tc.Args)
	if err != nil {
		log.Printf("agent: tool %s failed: %v", tc.Name, err)
		return errorResult(err.Error())
	}
	return encodeResult(v)
}

func encodeResult(v any) json.RawMessage {
	switch x := v.(type) {
	case nil:
		return json.RawMessage("null")
	case json.RawMessage:
		if json.Valid(x) {
			return x
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return b
}

func errorResult(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
