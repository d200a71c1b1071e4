package embedding

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

const defaultEndpoint = "https://api.openai.com/v1/embeddings"

// HTTPConfig configures an OpenAI-compatible embeddings endpoint
type HTTPConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	Client     *http.Client
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether a retry could succeed
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint
type HTTPEmbedder struct {
	config HTTPConfig
}

// NewHTTPEmbedder validates the configuration and creates the embedder
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required for HTTP embeddings")
	}
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPEmbedder{config: cfg}, nil
}

func (e *HTTPEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *HTTPEmbedder) ModelVersion() string {
	return fmt.Sprintf("%s-%d", e.config.Model, e.config.Dimensions)
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{
		Model:      e.config.Model,
		Input:      []string{text},
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.config.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode API response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, errors.New("no embeddings returned")
	}
	vec := decoded.Data[0].Embedding
	if len(vec) != e.config.Dimensions {
		return nil, fmt.Errorf("expected %d dimensions, got %d", e.config.Dimensions, len(vec))
	}
	Normalize(vec)
	return vec, nil
}
