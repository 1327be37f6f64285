// Package answerer synthesizes a grounded answer from search results via
// a chat-completion model. The model only sees numbered excerpts from the
// library, and the prompt instructs it to cite them, so answers stay
// traceable to actual passages.
package answerer

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

const systemPrompt = `You answer questions about the user's personal book library.
Use ONLY the numbered excerpts provided. Cite excerpts as [n].
If the excerpts do not contain the answer, say so plainly.`

// Answer is a synthesized response with the passages it drew from.
type Answer struct {
	Text    string
	Query   string
	Sources []types.SearchResult
}

// Answerer calls an OpenAI-compatible chat-completions endpoint.
type Answerer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// New creates an Answerer from config.
func New(cfg config.OpenAIConfig, apiKey string) *Answerer {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Answerer{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   cfg.ChatModel,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Ask builds a prompt from the results and asks the model. At least one
// result is required; answering from nothing would just be hallucination.
func (a *Answerer) Ask(ctx context.Context, query string, results []types.SearchResult) (*Answer, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no passages to answer from")
	}

	payload, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(query, results)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := ""
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d: %s", types.ErrServiceUnavailable, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("chat service error: status %d: %s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat service returned no choices")
	}

	return &Answer{
		Text:    strings.TrimSpace(parsed.Choices[0].Message.Content),
		Query:   query,
		Sources: results,
	}, nil
}

// buildPrompt numbers each excerpt with its book and chapter so citations
// in the answer map back to real passages.
func buildPrompt(query string, results []types.SearchResult) string {
	var b strings.Builder
	b.WriteString("Excerpts from the library:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s by %s", i+1, r.BookTitle, r.BookAuthor)
		if r.ChapterTitle != "" {
			fmt.Fprintf(&b, ", %s", r.ChapterTitle)
		}
		fmt.Fprintf(&b, ":\n%s\n\n", r.Text)
	}
	fmt.Fprintf(&b, "Question: %s\n", query)
	return b.String()
}
