package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mkarczewski/bookrag/internal/searcher"
	"github.com/mkarczewski/bookrag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32001 // Query parameter is empty
	ErrorCodeNoAnswerer    = -32002 // No chat model configured
)

// handleSearchLibrary handles the search_library tool invocation.
func (s *Server) handleSearchLibrary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required", map[string]interface{}{
			"param": "query",
		})
	}

	req := searcher.Request{
		Query:     query,
		TopN:      getIntDefault(args, "limit", 10),
		Author:    getStringDefault(args, "author", ""),
		BookTitle: getStringDefault(args, "book", ""),
	}
	if level := getStringDefault(args, "level", ""); level != "" {
		req.Level = types.Level(level)
	}

	results, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": formatResults(results),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAskLibrary handles the ask_library tool invocation.
func (s *Server) handleAskLibrary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	question, ok := args["question"].(string)
	if !ok || question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required", map[string]interface{}{
			"param": "question",
		})
	}
	if s.answerer == nil {
		return nil, newMCPError(ErrorCodeNoAnswerer, "no chat model configured", nil)
	}

	results, err := s.searcher.Search(ctx, searcher.Request{
		Query: question,
		TopN:  getIntDefault(args, "limit", 5),
		Level: types.LevelParagraph,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	answer, err := s.answerer.Ask(ctx, question, results)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "answer synthesis failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"question": question,
		"answer":   answer.Text,
		"sources":  formatResults(answer.Sources),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleLibraryStatus handles the library_status tool invocation.
func (s *Server) handleLibraryStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "store stats failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	led, err := s.loadLedger()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ledger unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	}

	books := make([]map[string]interface{}, 0, led.Len())
	for _, key := range led.Keys() {
		entry, _ := led.Get(key)
		books = append(books, map[string]interface{}{
			"key":        key,
			"chapters":   entry.Chapters,
			"paragraphs": entry.Paragraphs,
			"indexed_at": entry.IndexedAt,
		})
	}

	response := map[string]interface{}{
		"books":           led.Len(),
		"units":           st.Units,
		"chapter_units":   st.Chapters,
		"paragraph_units": st.Paragraphs,
		"indexed_books":   books,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func formatResults(results []types.SearchResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]interface{}{
			"unit_id":  r.UnitID,
			"level":    string(r.Level),
			"book":     r.BookTitle,
			"author":   r.BookAuthor,
			"chapter":  r.ChapterTitle,
			"score":    r.Score,
			"text":     r.Text,
			"book_key": r.BookKey,
		})
	}
	return out
}

// MCPError represents an MCP protocol error.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{Code: code, Message: message, Data: data}
}

func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
