package answerer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarczewski/bookrag/internal/config"
	"github.com/mkarczewski/bookrag/pkg/types"
)

func sampleResults() []types.SearchResult {
	return []types.SearchResult{
		{BookTitle: "Emma", BookAuthor: "Jane Austen", ChapterTitle: "Chapter 1",
			Text: "Emma Woodhouse, handsome, clever, and rich."},
		{BookTitle: "War and Peace", BookAuthor: "Leo Tolstoy",
			Text: "Prince Andrew rode on."},
	}
}

func TestAskBuildsCitedPrompt(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "Emma is rich [1]."}},
			},
		})
	}))
	defer srv.Close()

	a := New(config.OpenAIConfig{BaseURL: srv.URL, ChatModel: "gpt-4o-mini"}, "key")
	ans, err := a.Ask(context.Background(), "who is emma", sampleResults())
	require.NoError(t, err)

	assert.Equal(t, "Emma is rich [1].", ans.Text)
	assert.Equal(t, "who is emma", ans.Query)
	assert.Len(t, ans.Sources, 2)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	user := gotReq.Messages[1].Content
	assert.Contains(t, user, "[1] Emma by Jane Austen, Chapter 1")
	assert.Contains(t, user, "[2] War and Peace by Leo Tolstoy")
	assert.Contains(t, user, "Question: who is emma")
}

func TestAskNoResults(t *testing.T) {
	a := New(config.OpenAIConfig{ChatModel: "m"}, "key")
	_, err := a.Ask(context.Background(), "anything", nil)
	assert.Error(t, err)
}

func TestAskServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	a := New(config.OpenAIConfig{BaseURL: srv.URL, ChatModel: "m"}, "key")
	_, err := a.Ask(context.Background(), "q", sampleResults())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrServiceUnavailable))
}

func TestAskBadRequestNotServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	a := New(config.OpenAIConfig{BaseURL: srv.URL, ChatModel: "m"}, "key")
	_, err := a.Ask(context.Background(), "q", sampleResults())
	require.Error(t, err)
	assert.False(t, errors.Is(err, types.ErrServiceUnavailable))
}
