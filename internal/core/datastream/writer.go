// Package datastream writes the line-oriented data stream protocol consumed
// by the chat UI. Every part is "<code>:<json>\n" and is flushed at once.
package datastream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/meddy-health/meddy/internal/core"
)

const (
	codeText        = "0"
	codeData        = "2"
	codeError       = "3"
	codeAnnotations = "8"
	codeToolCall    = "9"
	codeToolResult  = "a"
	codeFinishMsg   = "d"
	codeFinishStep  = "e"
	codeStartStep   = "f"
)

// SetHeaders marks an HTTP response as a v1 data stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Vercel-AI-Data-Stream", "v1")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
}

// Writer serializes parts onto the underlying writer. Safe for concurrent use.
// After the first failed write the client is assumed gone: later parts are
// dropped and Err reports the failure.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	err     error
}

func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

func (s *Writer) writePart(code string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("datastream encode %s: %w", code, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil
	}
	if _, err := fmt.Fprintf(s.w, "%s:%s\n", code, b); err != nil {
		s.err = err
		return nil
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Err returns the first write error, if any.
func (s *Writer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Writer) Text(delta string) error { return s.writePart(codeText, delta) }

// Data appends values to the message data array.
func (s *Writer) Data(values ...any) error { return s.writePart(codeData, values) }

func (s *Writer) Error(msg string) error { return s.writePart(codeError, msg) }

func (s *Writer) Annotations(values ...any) error { return s.writePart(codeAnnotations, values) }

func (s *Writer) ToolCall(tc core.ToolCall) error {
	args := tc.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return s.writePart(codeToolCall, core.ToolCall{ID: tc.ID, Name: tc.Name, Args: args})
}

func (s *Writer) ToolResult(toolCallID string, result json.RawMessage) error {
	return s.writePart(codeToolResult, struct {
		ToolCallID string          `json:"toolCallId"`
		Result     json.RawMessage `json:"result"`
	}{toolCallID, result})
}

func (s *Writer) StartStep(messageID string) error {
	return s.writePart(codeStartStep, map[string]string{"messageId": messageID})
}

func (s *Writer) FinishStep(reason core.FinishReason, usage core.Usage, isContinued bool) error {
	return s.writePart(codeFinishStep, struct {
		FinishReason core.FinishReason `json:"finishReason"`
		Usage        core.Usage        `json:"usage"`
		IsContinued  bool              `json:"isContinued"`
	}{reason, usage, isContinued})
}

func (s *Writer) FinishMessage(reason core.FinishReason, usage core.Usage) error {
	return s.writePart(codeFinishMsg, struct {
		FinishReason core.FinishReason `json:"finishReason"`
		Usage        core.Usage        `json:"usage"`
	}{reason, usage})
}
