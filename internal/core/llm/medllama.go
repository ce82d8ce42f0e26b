package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MedLLaMAClient calls a Hugging Face hosted medical model through the
// inference API.
type MedLLaMAClient struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewMedLLaMAClient(url, apiKey string) *MedLLaMAClient {
	return &MedLLaMAClient{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 60 * time.Second},
	}
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// Diagnose sends the formatted prompt and returns the generated text.
func (c *MedLLaMAClient) Diagnose(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("medllama: api key not configured")
	}
	body, err := json.Marshal(hfRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			MaxNewTokens:   500,
			Temperature:    0.7,
			TopP:           0.9,
			DoSample:       true,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("medllama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("medllama: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out []hfGeneration
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("medllama decode: %w", err)
	}
	if len(out) == 0 {
		return "", errors.New("medllama: empty response")
	}
	return out[0].GeneratedText, nil
}
