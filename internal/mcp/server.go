package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/semrag/internal/ingest"
	"github.com/dshills/semrag/internal/logger"
	"github.com/dshills/semrag/internal/rag"
	"github.com/dshills/semrag/internal/searcher"
	"github.com/dshills/semrag/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "semrag"
	// ServerVersion is the current server version
	ServerVersion = "0.1.0"
)

// Deps are the components the tools call into. Storage, Ingester, Searcher
// and Pipeline are required.
type Deps struct {
	Storage  storage.Storage
	Index    storage.VectorIndex // optional dedicated vector index, reported by get_status
	Ingester *ingest.Ingester
	Searcher *searcher.Searcher
	Pipeline *rag.Pipeline
	Ingest   *ingest.Config // base settings for ingest_folder and upload_texts
	Logger   *log.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	index    storage.VectorIndex
	ingester *ingest.Ingester
	searcher *searcher.Searcher
	pipeline *rag.Pipeline
	ingest   ingest.Config
	logger   *log.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	if deps.Storage == nil || deps.Ingester == nil || deps.Searcher == nil || deps.Pipeline == nil {
		return nil, errors.New("storage, ingester, searcher and pipeline are required")
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage:  deps.Storage,
		index:    deps.Index,
		ingester: deps.Ingester,
		searcher: deps.Searcher,
		pipeline: deps.Pipeline,
		logger:   logger.OrDiscard(deps.Logger),
	}
	if deps.Ingest != nil {
		s.ingest = *deps.Ingest
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP protocol on stdin/stdout until ctx is cancelled or
// the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen runs the MCP protocol over the given streams
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))

	s.logger.Info("MCP server listening on stdio", "name", ServerName, "version", ServerVersion)
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server stopped: %w", err)
	}
	return nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestFolderTool(), s.handleIngestFolder)
	s.mcp.AddTool(uploadTextsTool(), s.handleUploadTexts)
	s.mcp.AddTool(searchChunksTool(), s.handleSearchChunks)
	s.mcp.AddTool(generateAnswerTool(), s.handleGenerateAnswer)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
