package ollama_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// client implements the provider interface against a local Ollama daemon
type client struct {
	baseURL    string
	model      string
	numCtx     int
	httpClient *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// request represents a request to the Ollama chat API
type request struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// response represents a response from the Ollama chat API
type response struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(baseURL, model string, numCtx int, timeout time.Duration) *client {
	return &client{
		baseURL:    baseURL,
		model:      model,
		numCtx:     numCtx,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IsRunning probes the Ollama version endpoint with a short timeout.
func IsRunning(baseURL string, timeout time.Duration) bool {
	probe := &http.Client{Timeout: timeout}
	resp, err := probe.Get(baseURL + "/api/version")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Complete sends a single system+user exchange and returns the model text.
func (c *client) Complete(ctx context.Context, system string, user string) (string, error) {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: user})

	reqBody := request{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"num_ctx": c.numCtx},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var ollamaResp response
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return ollamaResp.Message.Content, nil
}
