// Package ollama implements domain.Generator against Ollama's /api/generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docqa/internal/domain"
)

const (
	// DefaultModel is the default generation model.
	DefaultModel = "llama3.2"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"
)

// Config holds configuration for the Ollama generator.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float32
}

// Generator answers prompts with a local Ollama model.
type Generator struct {
	baseURL     string
	model       string
	temperature float32
	httpClient  *http.Client
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// NewGenerator creates an Ollama generator.
func NewGenerator(c Config) *Generator {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	return &Generator{
		baseURL:     c.BaseURL,
		model:       c.Model,
		temperature: c.Temperature,
		httpClient:  &http.Client{},
	}
}

// Name returns the identifier of the generative model.
func (g *Generator) Name() string { return "ollama:" + g.model }

// Generate runs a non-streaming completion.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	body := generateRequest{Model: g.model, Prompt: prompt}
	if g.temperature > 0 {
		body.Options = map[string]any{"temperature": g.temperature}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %v", domain.ErrGenerationService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %v", domain.ErrGenerationService, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %w", domain.ErrGenerationService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama returned status %d: %s", domain.ErrGenerationService, resp.StatusCode, string(msg))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", domain.ErrGenerationService, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrGenerationService, out.Error)
	}
	return out.Response, nil
}
