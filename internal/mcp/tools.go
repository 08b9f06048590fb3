package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/semrag/internal/ingest"
	"github.com/dshills/semrag/internal/rag"
	"github.com/dshills/semrag/internal/searcher"
	"github.com/dshills/semrag/internal/segmenter"
	"github.com/dshills/semrag/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeIngestInProgress = -32002 // Another ingest run is already running
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
	ErrorCodeGenerationFailed = -32005 // The language model did not answer
)

// maxReportedErrors caps the per-document errors echoed back to the client
const maxReportedErrors = 5

// handleIngestFolder handles the ingest_folder tool invocation
func (s *Server) handleIngestFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	cfg, err := s.ingestConfig(args)
	if err != nil {
		return nil, err
	}
	cfg.ForceReindex = getBoolDefault(args, "force_reindex", false)

	stats, err := s.ingester.IngestFolder(ctx, path, cfg)
	if err != nil {
		return nil, ingestError(err)
	}

	response := statsResponse(stats)
	response["path"] = path
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUploadTexts handles the upload_texts tool invocation
func (s *Server) handleUploadTexts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	texts, err := getStringSlice(args, "texts")
	if err != nil || len(texts) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "texts must be a non-empty array of strings", map[string]interface{}{
			"param": "texts",
		})
	}

	cfg, err := s.ingestConfig(args)
	if err != nil {
		return nil, err
	}

	stats, err := s.ingester.IngestTexts(ctx, texts, cfg)
	if err != nil {
		return nil, ingestError(err)
	}

	response := statsResponse(stats)
	response["message"] = fmt.Sprintf("%d text(s) uploaded", stats.DocumentsIndexed)
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchChunks handles the search_chunks tool invocation
func (s *Server) handleSearchChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   args["search_mode"],
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	minRelevance := getFloatDefault(args, "min_relevance", 0)
	if minRelevance < 0 || minRelevance > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "min_relevance must be between 0 and 1", map[string]interface{}{
			"param": "min_relevance",
			"value": minRelevance,
		})
	}

	sources, err := getStringSlice(args, "sources")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "sources must be an array of strings", map[string]interface{}{
			"param": "sources",
		})
	}

	req := searcher.SearchRequest{
		Query:    query,
		Limit:    limit,
		Mode:     mode,
		UseCache: true,
	}
	if len(sources) > 0 || minRelevance > 0 {
		req.Filters = &storage.SearchFilters{Sources: sources, MinRelevance: minRelevance}
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"rank":            r.Rank,
			"chunk_id":        r.ChunkID,
			"relevance_score": r.RelevanceScore,
			"source":          r.Source,
			"position":        r.Position,
			"content":         r.Content,
			"metadata":        r.Metadata,
		}
	}

	response := map[string]interface{}{
		"query":         query,
		"search_mode":   string(resp.SearchMode),
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGenerateAnswer handles the generate_answer tool invocation
func (s *Server) handleGenerateAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := getStringDefault(args, "query", "")
	if msg, ok := args["new_message"].(map[string]interface{}); ok && query == "" {
		query = getStringDefault(msg, "content", "")
	}
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query or new_message.content is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK := getIntDefault(args, "top_k", 0)
	if topK < 0 || topK > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 100", map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	sources, err := getStringSlice(args, "sources")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "sources must be an array of strings", map[string]interface{}{
			"param": "sources",
		})
	}

	answer, err := s.pipeline.Generate(ctx, rag.Query{Text: query, TopK: topK, Sources: sources})
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			return nil, newMCPError(ErrorCodeEmptyQuery, err.Error(), nil)
		}
		s.logger.Error("Answer generation failed", "err", err)
		return nil, newMCPError(ErrorCodeGenerationFailed, "answer generation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"response":    answer.Text,
		"contexts":    answer.Contexts,
		"sources":     answer.Sources,
		"chunk_ids":   answer.ChunkIDs,
		"model":       answer.Model,
		"duration_ms": answer.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"ingested":         status.DocumentsCount > 0,
		"ingest_running":   s.ingester.Busy(),
		"search_cache_len": s.searcher.CacheLen(),
		"statistics": map[string]interface{}{
			"documents_count":  status.DocumentsCount,
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
			"vector_extension":     status.Health.VectorExtension,
		},
	}
	if !status.LastIngestedAt.IsZero() {
		response["last_ingested_at"] = status.LastIngestedAt.Format(time.RFC3339)
	}
	if run := status.LastRun; run != nil {
		response["last_run"] = map[string]interface{}{
			"root":              run.Root,
			"started_at":        run.StartedAt.Format(time.RFC3339),
			"duration_ms":       run.Duration.Milliseconds(),
			"documents_indexed": run.DocumentsIndexed,
			"documents_skipped": run.DocumentsSkipped,
			"chunks_created":    run.ChunksCreated,
			"error_count":       run.ErrorCount,
		}
	}
	if s.index != nil {
		n, err := s.index.Count(ctx)
		if err != nil {
			s.logger.Warn("Failed to count vector index", "err", err)
		} else {
			response["vector_index_count"] = n
		}
	}
	if status.DocumentsCount == 0 {
		response["message"] = "Nothing ingested yet. Use ingest_folder or upload_texts first."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// ingestConfig copies the base ingest settings and applies the language argument
func (s *Server) ingestConfig(args map[string]interface{}) (*ingest.Config, error) {
	cfg := s.ingest
	if lang := getStringDefault(args, "language", ""); lang != "" {
		seg, err := segmenter.New(lang)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid language", map[string]interface{}{
				"param":  "language",
				"value":  lang,
				"reason": err.Error(),
			})
		}
		cfg.Language = seg.DefaultLanguage()
	}
	return &cfg, nil
}

// ingestError maps ingest failures to MCP errors
func ingestError(err error) error {
	if errors.Is(err, ingest.ErrIngestInProgress) {
		return newMCPError(ErrorCodeIngestInProgress, "another ingest run is in progress", nil)
	}
	return newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// statsResponse formats ingest statistics
func statsResponse(stats *ingest.Statistics) map[string]interface{} {
	response := map[string]interface{}{
		"documents_indexed":   stats.DocumentsIndexed,
		"documents_skipped":   stats.DocumentsSkipped,
		"documents_too_short": stats.DocumentsTooShort,
		"documents_failed":    stats.DocumentsFailed,
		"chunks_created":      stats.ChunksCreated,
		"sources":             stats.Sources,
		"duration_ms":         stats.Duration.Milliseconds(),
	}

	if errorCount := len(stats.ErrorMessages); errorCount > 0 {
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return response
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional string array; JSON decoding yields []interface{}
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	switch val := args[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: element %v is not a string", key, item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected an array", key)
	}
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
