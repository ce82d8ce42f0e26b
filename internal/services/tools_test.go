package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meddy-health/meddy/internal/core"
	"github.com/meddy-health/meddy/internal/core/agent"
	"github.com/meddy-health/meddy/internal/core/datastream"
	"github.com/meddy-health/meddy/internal/models"
	"github.com/meddy-health/meddy/internal/testutil"
)

type diagnoserFunc func(ctx context.Context, prompt string) (string, error)

func (f diagnoserFunc) Diagnose(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

type forecasterFunc func(ctx context.Context, lat, lon float64) (json.RawMessage, error)

func (f forecasterFunc) Forecast(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
	return f(ctx, lat, lon)
}

type toolFixture struct {
	db   *testutil.MemDB
	llm  *testutil.FakeLLM
	tb   *Toolbox
	turn *turnContext
	out  *bytes.Buffer
}

func newToolFixture() *toolFixture {
	db := testutil.NewMemDB()
	db.Users["u1"] = &models.User{ID: "u1", Email: "ada@example.com"}
	fake := &testutil.FakeLLM{}
	out := &bytes.Buffer{}
	return &toolFixture{
		db:  db,
		llm: fake,
		out: out,
		tb: &Toolbox{
			DB:      db,
			LLM:     fake,
			Doctors: NewDoctorService(db, rand.New(rand.NewPCG(5, 5))),
		},
		turn: &turnContext{
			userID: "u1",
			chatID: "c1",
			model:  "gpt-4o-mini",
			stream: datastream.NewWriter(out),
		},
	}
}

func (f *toolFixture) tool(name string) agent.Tool {
	for _, t := range f.tb.tools(f.turn) {
		if t.Name == name {
			return t
		}
	}
	panic("no tool " + name)
}

func (f *toolFixture) run(t *testing.T, name, args string) any {
	t.Helper()
	res, err := f.tool(name).Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	return res
}

func toolNames(ts []agent.Tool) []string {
	var out []string
	for _, t := range ts {
		out = append(out, t.Name)
	}
	return out
}

func TestToolSetDependsOnOptionalClients(t *testing.T) {
	f := newToolFixture()
	names := toolNames(f.tb.tools(f.turn))
	assert.Equal(t, []string{
		"createDocument", "updateDocument", "getDocument", "requestSuggestions",
		"getDoctorBySpeciality", "validatePatientFile", "updateUserInfo", "diagnoseIssue",
	}, names)

	f.tb.Weather = forecasterFunc(func(context.Context, float64, float64) (json.RawMessage, error) { return nil, nil })
	f.tb.Embedder = &testutil.FakeEmbedder{}
	names = toolNames(f.tb.tools(f.turn))
	assert.Contains(t, names, "getWeather")
	assert.Contains(t, names, "searchAttachments")
	assert.True(t, f.tb.AttachmentsEnabled())
}

func TestCreateDocumentStreamsAndSaves(t *testing.T) {
	f := newToolFixture()
	f.llm.Steps = []*core.StepResult{{Text: "# Patient file\nSymptoms: headache", FinishReason: core.FinishStop}}

	res := f.run(t, "createDocument", `{"title":"Patient file","kind":"text"}`).(documentResult)

	require.Len(t, f.db.Documents, 1)
	doc := f.db.Documents[0]
	assert.Equal(t, res.ID, doc.ID)
	assert.Equal(t, "u1", doc.UserID)
	require.NotNil(t, doc.ChatID)
	assert.Equal(t, "c1", *doc.ChatID)
	assert.Equal(t, "# Patient file\nSymptoms: headache", doc.Text())

	out := f.out.String()
	assert.Contains(t, out, `2:[{"type":"id","content":"`+res.ID+`"}]`)
	assert.Contains(t, out, `2:[{"type":"kind","content":"text"}]`)
	assert.Contains(t, out, `"type":"text-delta","content":"# Patient file\nSymptoms: headache"`)
	assert.Contains(t, out, `2:[{"type":"finish","content":""}]`)
}

func TestDocumentToolsOnlySeeOwnDocuments(t *testing.T) {
	f := newToolFixture()
	f.db.Documents = []models.Document{{ID: "d1", UserID: "u2", Title: "Other", Content: strPtr("secret"), CreatedAt: time.Now()}}

	res := f.run(t, "getDocument", `{"id":"d1"}`)
	assert.Equal(t, notFound("id", "d1"), res)
	res = f.run(t, "updateDocument", `{"id":"d1","description":"add allergies"}`)
	assert.Equal(t, notFound(), res)
	assert.Len(t, f.db.Documents, 1)
}

func TestUpdateDocumentAddsRevision(t *testing.T) {
	f := newToolFixture()
	f.db.Documents = []models.Document{{ID: "d1", UserID: "u1", Title: "File", Kind: models.DocumentKindText, Content: strPtr("v1"), CreatedAt: time.Now().Add(-time.Minute)}}
	f.llm.Steps = []*core.StepResult{{Text: "v2", FinishReason: core.FinishStop}}

	res := f.run(t, "updateDocument", `{"id":"d1","description":"add allergies"}`).(documentResult)
	assert.Equal(t, "d1", res.ID)

	require.Len(t, f.db.Documents, 2)
	assert.Equal(t, "v2", f.db.Documents[1].Text())
	require.NotEmpty(t, f.llm.Requests)
	assert.Contains(t, f.llm.Requests[0].System, "v1")
}

func TestRequestSuggestions(t *testing.T) {
	f := newToolFixture()
	f.db.Documents = []models.Document{{ID: "d1", UserID: "u1", Title: "File", Kind: models.DocumentKindText, Content: strPtr("Patient has hedache."), CreatedAt: time.Now()}}
	var elems []map[string]string
	for range 7 {
		elems = append(elems, map[string]string{"originalSentence": "hedache", "suggestedSentence": "headache", "description": "typo"})
	}
	payload, _ := json.Marshal(map[string]any{"suggestions": elems})
	f.llm.GenerateFunc = func(ctx context.Context, req *core.CompletionRequest) (string, error) {
		require.NotNil(t, req.ResponseSchema)
		return "```json\n" + string(payload) + "\n```", nil
	}

	res := f.run(t, "requestSuggestions", `{"documentId":"d1"}`).(documentResult)
	assert.Equal(t, "Suggestions have been added to the document", res.Message)
	require.Len(t, f.db.Suggestions, maxSuggestions)
	assert.Equal(t, "headache", f.db.Suggestions[0].SuggestedText)
	assert.Equal(t, 5, strings.Count(f.out.String(), `"type":"suggestion"`))
}

func TestParseSuggestionsShapes(t *testing.T) {
	got, err := parseSuggestions(`[{"originalSentence":"a","suggestedSentence":"b","description":"c"}]`)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = parseSuggestions("not json")
	assert.Error(t, err)
}

func TestGetDoctorBySpecialityNoMatch(t *testing.T) {
	f := newToolFixture()
	res := f.run(t, "getDoctorBySpeciality", `{"speciality":"Neurology"}`).(map[string]any)
	assert.Equal(t, true, res["internalOnly"])
	assert.Equal(t, "No doctors found for this specialty", res["error"])
}

func TestValidatePatientFileUsesUserFacts(t *testing.T) {
	f := newToolFixture()
	f.turn.history = []core.Message{
		{Role: core.RoleUser, Content: "I am allergic to penicillin"},
		{Role: core.RoleAssistant, Content: "Noted"},
		{Role: core.RoleUser, Content: "I also have asthma"},
	}
	f.db.Documents = []models.Document{{ID: "d1", UserID: "u1", Title: "File", Content: strPtr("Allergies: none"), CreatedAt: time.Now().Add(-time.Minute)}}
	f.llm.Steps = []*core.StepResult{{Text: "Allergies: penicillin [1]", FinishReason: core.FinishStop}}

	f.run(t, "validatePatientFile", `{"documentId":"d1","messageNumber":3}`)

	prompt := f.llm.Requests[0].Messages[0].Content
	assert.Contains(t, prompt, `{"messageNum":1,"content":"I am allergic to penicillin"}`)
	assert.Contains(t, prompt, `{"messageNum":3,"content":"I also have asthma"}`)
	assert.NotContains(t, prompt, "Noted")
	assert.Equal(t, "Allergies: penicillin [1]", f.db.Documents[1].Text())
}

func TestUpdateUserInfoTool(t *testing.T) {
	f := newToolFixture()
	res := f.run(t, "updateUserInfo", `{"name":"Ada","age":"34"}`).(map[string]any)
	assert.Equal(t, true, res["internalOnly"])
	assert.Equal(t, "Ada", *f.db.Users["u1"].Name)
	assert.Equal(t, "34", *f.db.Users["u1"].Age)
	assert.Contains(t, f.out.String(), `"type":"internal-tool-response"`)

	f.turn.userID = "ghost"
	res = f.run(t, "updateUserInfo", `{"name":"Bob"}`).(map[string]any)
	assert.Equal(t, "Failed to update user information", res["error"])
}

func TestDiagnoseIssueRemote(t *testing.T) {
	f := newToolFixture()
	var prompt string
	f.tb.Diagnoser = diagnoserFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "Likely tension headache.", nil
	})

	res := f.run(t, "diagnoseIssue", `{"symptoms":["headache","fatigue"],"duration":"2 days"}`).(diagnosisResult)
	assert.Equal(t, "Likely tension headache.", res.Analysis)
	assert.True(t, res.InternalOnly)
	assert.NotEmpty(t, res.Disclaimer)
	assert.Contains(t, prompt, "headache")
	// 24 runes in chunks of 10
	assert.Equal(t, 3, strings.Count(f.out.String(), `"type":"text-delta"`))
	assert.Empty(t, f.llm.Requests)
}

func TestDiagnoseIssueFallsBackToChatModel(t *testing.T) {
	f := newToolFixture()
	f.tb.Diagnoser = diagnoserFunc(func(context.Context, string) (string, error) {
		return "", errors.New("huggingface 503")
	})
	f.llm.Steps = []*core.StepResult{{Text: "Possibly migraine.", FinishReason: core.FinishStop}}

	res := f.run(t, "diagnoseIssue", `{"symptoms":["headache"]}`).(diagnosisResult)
	assert.Equal(t, "Possibly migraine.", res.Analysis)
	require.Len(t, f.llm.Requests, 1)
	assert.Equal(t, "gpt-4o-mini", f.llm.Requests[0].Model)
	assert.Contains(t, f.out.String(), `"internalOnly":true`)
	assert.NotContains(t, f.out.String(), `"type":"finish"`)
}

func TestChunkRunes(t *testing.T) {
	assert.Equal(t, []string{"abc", "def", "g"}, chunkRunes("abcdefg", 3))
	assert.Equal(t, []string{"éé", "é"}, chunkRunes("ééé", 2))
	assert.Nil(t, chunkRunes("", 3))
}

func TestGetWeatherTool(t *testing.T) {
	f := newToolFixture()
	f.tb.Weather = forecasterFunc(func(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
		assert.InDelta(t, 6.45, lat, 1e-9)
		assert.InDelta(t, 3.39, lon, 1e-9)
		return json.RawMessage(`{"current":{"temperature_2m":29}}`), nil
	})

	res := f.run(t, "getWeather", `{"latitude":6.45,"longitude":3.39}`)
	assert.JSONEq(t, `{"current":{"temperature_2m":29}}`, string(res.(json.RawMessage)))
}

func TestSearchAttachmentsTool(t *testing.T) {
	f := newToolFixture()
	f.tb.Embedder = &testutil.FakeEmbedder{Dim: 3}

	res := f.run(t, "searchAttachments", `{"query":"glucose"}`).(map[string]any)
	assert.Equal(t, "No uploaded files matched the query", res["message"])

	f.db.SearchResults = []models.AttachmentChunk{{AttachmentID: "a1", Position: 2, Text: "Glucose: 95 mg/dL"}}
	res = f.run(t, "searchAttachments", `{"query":"glucose"}`).(map[string]any)
	assert.Equal(t, []passage{{AttachmentID: "a1", Position: 2, Text: "Glucose: 95 mg/dL"}}, res["passages"])

	f.tb.Embedder = &testutil.FakeEmbedder{Err: errors.New("boom")}
	_, err := f.tool("searchAttachments").Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	assert.ErrorContains(t, err, "boom")
}
