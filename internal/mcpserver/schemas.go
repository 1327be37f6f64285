package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchLibraryTool returns the tool definition for search_library.
func searchLibraryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_library",
		Description: "Semantic search over the indexed personal ebook library",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
				"level": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one granularity",
					"enum":        []string{"chapter", "paragraph"},
				},
				"author": map[string]interface{}{
					"type":        "string",
					"description": "Case-insensitive author substring filter",
				},
				"book": map[string]interface{}{
					"type":        "string",
					"description": "Case-insensitive book title substring filter",
				},
			},
			Required: []string{"query"},
		},
	}
}

// askLibraryTool returns the tool definition for ask_library.
func askLibraryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_library",
		Description: "Answer a question from the library, with passage citations",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question to answer from indexed books",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Number of passages to ground the answer on",
					"default":     5,
					"minimum":     1,
					"maximum":     20,
				},
			},
			Required: []string{"question"},
		},
	}
}

// libraryStatusTool returns the tool definition for library_status.
func libraryStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "library_status",
		Description: "Report indexed books and unit counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
