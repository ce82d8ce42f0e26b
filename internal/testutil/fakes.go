package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/meddy-health/meddy/internal/core"
)

var _ core.LLMProvider = (*FakeLLM)(nil)

// FakeLLM is a func-field LLM mock. Without StreamFunc each Stream call
// replays the next entry of Steps and then finishes with "stop".
type FakeLLM struct {
	GenerateFunc func(ctx context.Context, req *core.CompletionRequest) (string, error)
	StreamFunc   func(ctx context.Context, req *core.CompletionRequest, onDelta func(string) error) (*core.StepResult, error)
	Steps        []*core.StepResult

	mu          sync.Mutex
	streamCalls int
	Requests    []*core.CompletionRequest
}

func (f *FakeLLM) Generate(ctx context.Context, req *core.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	f.mu.Unlock()
	if f.GenerateFunc != nil {
		return f.GenerateFunc(ctx, req)
	}
	return "", errors.New("GenerateFunc not implemented in mock")
}

func (f *FakeLLM) Stream(ctx context.Context, req *core.CompletionRequest, onDelta func(string) error) (*core.StepResult, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	n := f.streamCalls
	f.streamCalls++
	f.mu.Unlock()

	if f.StreamFunc != nil {
		return f.StreamFunc(ctx, req, onDelta)
	}
	if n >= len(f.Steps) {
		return &core.StepResult{FinishReason: core.FinishStop}, nil
	}
	st := f.Steps[n]
	if st.Text != "" {
		if err := onDelta(st.Text); err != nil {
			return nil, err
		}
	}
	return st, nil
}

var _ core.EmbeddingProvider = (*FakeEmbedder)(nil)

type FakeEmbedder struct {
	Dim int
	Err error
}

func (f *FakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	dim := f.Dim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

var _ core.ObjectClient = (*MemStorage)(nil)

// MemStorage keeps uploaded objects in a map keyed by bucket/key.
type MemStorage struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewMemStorage() *MemStorage { return &MemStorage{Objects: map[string][]byte{}} }

func (s *MemStorage) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[bucket+"/"+key] = b
	return "s3://" + bucket + "/" + key, nil
}

func (s *MemStorage) DeleteFile(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, bucket+"/"+key)
	return nil
}

func (s *MemStorage) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return b, nil
}

func (s *MemStorage) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b, err := s.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
