// Package mcpserver exposes the indexed library over the Model Context
// Protocol, so assistants can search and cite the user's books directly.
// Indexing stays a CLI concern; the server is read-only.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mkarczewski/bookrag/internal/answerer"
	"github.com/mkarczewski/bookrag/internal/ledger"
	"github.com/mkarczewski/bookrag/internal/searcher"
	"github.com/mkarczewski/bookrag/internal/store"
)

const (
	// ServerName is the MCP server name.
	ServerName = "bookrag"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies.
type Server struct {
	mcp        *server.MCPServer
	searcher   *searcher.Searcher
	answerer   *answerer.Answerer
	store      store.VectorStore
	ledgerPath string
}

// NewServer creates an MCP server over an already-opened store and
// searcher. answ may be nil when no chat model is configured; the
// ask_library tool then reports that synthesis is unavailable.
func NewServer(srch *searcher.Searcher, answ *answerer.Answerer, vs store.VectorStore, ledgerPath string) *Server {
	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion),
		searcher:   srch,
		answerer:   answ,
		store:      vs,
		ledgerPath: ledgerPath,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.store.Close() }()
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchLibraryTool(), s.handleSearchLibrary)
	s.mcp.AddTool(askLibraryTool(), s.handleAskLibrary)
	s.mcp.AddTool(libraryStatusTool(), s.handleLibraryStatus)
}

func (s *Server) loadLedger() (*ledger.Ledger, error) {
	return ledger.Load(s.ledgerPath)
}
