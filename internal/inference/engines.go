package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// completer is one completion backend. The default implementation speaks
// the OpenAI chat format; the engine variants below cover self-hosted
// servers with their native wire formats.
type completer interface {
	complete(ctx context.Context, apiKey, model, systemPrompt, prompt string) (string, error)
}

// transcriber is implemented by backends that also expose an audio
// transcription endpoint. Local engines only generate text.
type transcriber interface {
	transcribe(ctx context.Context, apiKey, model string, audio []byte, filename string) (string, error)
}

// newEngineProvider picks the wire format for a configured tier.
func newEngineProvider(engine, baseURL, model string, timeout time.Duration) (completer, error) {
	base := strings.TrimRight(baseURL, "/")
	httpClient := &http.Client{Timeout: timeout}
	switch engine {
	case "", "openai":
		return newProvider(baseURL, model, timeout), nil
	case "ollama":
		return &ollamaProvider{baseURL: base, model: model, httpClient: httpClient}, nil
	case "llamacpp":
		return &llamacppProvider{baseURL: base, httpClient: httpClient}, nil
	case "tgi":
		return &tgiProvider{baseURL: base, httpClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unknown inference engine %q", engine)
	}
}

// foldSystem prefixes the system prompt for engines whose completion
// endpoint takes a single prompt string.
func foldSystem(systemPrompt, prompt string) string {
	if systemPrompt == "" {
		return prompt
	}
	return systemPrompt + "\n\n" + prompt
}

// postJSON sends one engine request and hands back the response body.
// Non-200 statuses become StatusError so the tier cascade treats engine
// rejections the same way as provider rejections.
func postJSON(ctx context.Context, httpClient *http.Client, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return io.ReadAll(resp.Body)
}

// ollamaProvider speaks the native Ollama generate API.
type ollamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func (p *ollamaProvider) complete(ctx context.Context, _, model, systemPrompt, prompt string) (string, error) {
	if model == "" {
		model = p.model
	}
	raw, err := postJSON(ctx, p.httpClient, p.baseURL+"/api/generate", map[string]any{
		"model":  model,
		"prompt": prompt,
		"system": systemPrompt,
		"stream": false,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Response, nil
}

// llamacppProvider speaks the llama.cpp server completion API. The loaded
// model is fixed server-side, so the model field is ignored.
type llamacppProvider struct {
	baseURL    string
	httpClient *http.Client
}

func (p *llamacppProvider) complete(ctx context.Context, _, _, systemPrompt, prompt string) (string, error) {
	raw, err := postJSON(ctx, p.httpClient, p.baseURL+"/completion", map[string]any{
		"prompt":      foldSystem(systemPrompt, prompt),
		"n_predict":   1024,
		"temperature": 0.3,
		"stream":      false,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Content, nil
}

// tgiProvider speaks the Text Generation Inference generate API.
type tgiProvider struct {
	baseURL    string
	httpClient *http.Client
}

func (p *tgiProvider) complete(ctx context.Context, _, _, systemPrompt, prompt string) (string, error) {
	raw, err := postJSON(ctx, p.httpClient, p.baseURL+"/generate", map[string]any{
		"inputs": foldSystem(systemPrompt, prompt),
		"parameters": map[string]any{
			"max_new_tokens": 1024,
			"temperature":    0.3,
		},
	})
	if err != nil {
		return "", err
	}

	var out struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.GeneratedText, nil
}
