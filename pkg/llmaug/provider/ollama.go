package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Ollama is the local-model provider, grounded on
// _examples/original_source/app/services/llm_ollama.py.
type Ollama struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	client  *http.Client
}

// NewOllama builds an Ollama provider. baseURL is normalized the same way
// the Python client does: trailing slash and a trailing /api suffix are
// stripped so callers may configure either form.
func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	return &Ollama{
		BaseURL: normalizeOllamaBaseURL(baseURL),
		Model:   model,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func normalizeOllamaBaseURL(raw string) string {
	base := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	base = strings.TrimSuffix(base, "/api")
	return base
}

func (o *Ollama) Available() bool {
	return strings.TrimSpace(o.BaseURL) != "" && strings.TrimSpace(o.Model) != ""
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaChatOptions   `json:"options"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

func (o *Ollama) Chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	payload := ollamaChatRequest{Model: o.Model, Stream: false, Options: ollamaChatOptions{Temperature: temperature}}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := o.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("ollama timeout: %w", err)
		}
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ollama request failed: status %d", resp.StatusCode)
	}

	var decoded ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("ollama decode failed: %w", err)
	}
	content := strings.TrimSpace(decoded.Message.Content)
	if content == "" {
		return "", errors.New("ollama empty response")
	}
	return content, nil
}
