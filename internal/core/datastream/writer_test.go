package datastream

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddy-health/meddy/internal/core"
)

func TestWriterParts(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	require.NoError(t, w.StartStep("msg-1"))
	require.NoError(t, w.Text("Hello \"there\""))
	require.NoError(t, w.Data(map[string]string{"type": "user-message-id", "content": "u1"}))
	require.NoError(t, w.ToolCall(core.ToolCall{ID: "c1", Name: "getWeather"}))
	require.NoError(t, w.ToolResult("c1", json.RawMessage(`{"ok":true}`)))
	require.NoError(t, w.FinishStep(core.FinishToolCalls, core.Usage{PromptTokens: 3, CompletionTokens: 2}, false))
	require.NoError(t, w.Annotations(map[string]string{"messageIdFromServer": "m2"}))
	require.NoError(t, w.Error("boom"))
	require.NoError(t, w.FinishMessage(core.FinishStop, core.Usage{PromptTokens: 3, CompletionTokens: 2}))

	want := []string{
		`f:{"messageId":"msg-1"}`,
		`0:"Hello \"there\""`,
		`2:[{"content":"u1","type":"user-message-id"}]`,
		`9:{"toolCallId":"c1","toolName":"getWeather","args":{}}`,
		`a:{"toolCallId":"c1","result":{"ok":true}}`,
		`e:{"finishReason":"tool-calls","usage":{"promptTokens":3,"completionTokens":2},"isContinued":false}`,
		`8:[{"messageIdFromServer":"m2"}]`,
		`3:"boom"`,
		`d:{"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":2}}`,
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec.Header())
	assert.Equal(t, "v1", rec.Header().Get("X-Vercel-AI-Data-Stream"))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestWriterConcurrentLinesStayWhole(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Text("chunk")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 20)
	for _, l := range lines {
		assert.Equal(t, `0:"chunk"`, l)
	}
}

type brokenPipe struct{ writes int }

func (b *brokenPipe) Write(p []byte) (int, error) {
	b.writes++
	return 0, errors.New("write: broken pipe")
}

func TestWriterDropsPartsAfterWriteError(t *testing.T) {
	bp := &brokenPipe{}
	w := NewWriter(bp)

	assert.NoError(t, w.Text("first"))
	assert.NoError(t, w.Text("second"))
	assert.NoError(t, w.FinishMessage(core.FinishStop, core.Usage{}))

	assert.Equal(t, 1, bp.writes)
	assert.EqualError(t, w.Err(), "write: broken pipe")
}

func TestWriterErrNilOnSuccess(t *testing.T) {
	w := NewWriter(httptest.NewRecorder())
	require.NoError(t, w.Text("ok"))
	assert.NoError(t, w.Err())
}
