package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkarczewski/bookrag/internal/config"
	"github.com/mkarczewski/bookrag/pkg/types"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	retry     RetryConfig
}

// NewOpenAIProvider builds a provider from config. Transient failures are
// retried with backoff; token-limit rejections surface immediately as
// types.ErrTokenLimitExceeded.
func NewOpenAIProvider(cfg config.OpenAIConfig, apiKey string) *OpenAIProvider {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	retry := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     cfg.EmbeddingModel,
		dimension: cfg.Dimensions,
		client:    &http.Client{Timeout: timeout},
		retry:     retry,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// EmbedBatch embeds texts in a single request, retrying transient failures.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return retryWithBackoff(ctx, p.retry, func(ctx context.Context) ([][]float32, error) {
		return p.embedOnce(ctx, texts)
	})
}

func (p *OpenAIProvider) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", types.ErrServiceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, respBody)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("service returned %d embeddings for %d inputs", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("service returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// classifyHTTPError maps service responses onto the sentinel error kinds.
// Callers branch on errors.Is, never on message text.
func classifyHTTPError(status int, body []byte) error {
	var parsed apiError
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}

	switch {
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", types.ErrTokenLimitExceeded, msg)
	case status == http.StatusBadRequest && parsed.Error.Code == "context_length_exceeded":
		return fmt.Errorf("%w: %s", types.ErrTokenLimitExceeded, msg)
	case status == http.StatusBadRequest && strings.Contains(msg, "maximum context length"):
		return fmt.Errorf("%w: %s", types.ErrTokenLimitExceeded, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d: %s", types.ErrServiceUnavailable, status, msg)
	default:
		return fmt.Errorf("embedding service error: status %d: %s", status, msg)
	}
}

// Dimension returns the configured vector width.
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Close releases idle connections.
func (p *OpenAIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
