// Package gemini implements domain.Generator with Gemini generative models.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"docqa/internal/domain"
)

// DefaultModel is the generative model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

// Config holds configuration for the Gemini generator.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32

	// MaxRetries bounds retries of rate-limited calls. Defaults to 3.
	MaxRetries int
	// RetryDelay is the wait between rate-limited attempts. Defaults to 30s.
	RetryDelay time.Duration
}

// Generator answers prompts with a Gemini model.
type Generator struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	name       string
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewGenerator creates a Gemini generator.
func NewGenerator(ctx context.Context, c Config, logger *zap.Logger) (*Generator, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := client.GenerativeModel(c.Model)
	model.SetTemperature(c.Temperature)

	return &Generator{
		client:     client,
		model:      model,
		name:       c.Model,
		maxRetries: c.MaxRetries,
		retryDelay: c.RetryDelay,
		logger:     logger,
	}, nil
}

// Name returns the identifier of the generative model.
func (g *Generator) Name() string { return "gemini:" + g.name }

// Generate sends the prompt and joins the text parts of every candidate.
// Rate-limit errors are retried after a fixed delay.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
		if err == nil {
			var parts []string
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if text, ok := part.(genai.Text); ok {
						parts = append(parts, string(text))
					}
				}
			}
			if len(parts) == 0 {
				return "", fmt.Errorf("%w: empty response", domain.ErrGenerationService)
			}
			return strings.Join(parts, "\n"), nil
		}

		lastErr = err
		if !isRateLimit(err) || attempt == g.maxRetries-1 {
			break
		}
		g.logger.Warn("gemini rate limited, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", g.retryDelay),
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.retryDelay):
		}
	}
	return "", domain.UpstreamError(lastErr, domain.ErrGenerationService)
}

// Close releases the underlying client.
func (g *Generator) Close() error {
	return g.client.Close()
}

func isRateLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted")
}
