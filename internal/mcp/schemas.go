package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestFolderTool returns the tool definition for ingest_folder
func ingestFolderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_folder",
		Description: "Ingest a folder of .txt, .md, .pdf and .jsonl documents with semantic chunking",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the folder to ingest",
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "BCP 47 language tag used for sentence segmentation (e.g. es, en)",
				},
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-ingest documents whose content is unchanged",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// uploadTextsTool returns the tool definition for upload_texts
func uploadTextsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "upload_texts",
		Description: "Chunk, embed and store raw texts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"texts": map[string]interface{}{
					"type":        "array",
					"description": "Texts to ingest, one document each",
					"items": map[string]interface{}{
						"type": "string",
					},
					"minItems": 1,
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "BCP 47 language tag used for sentence segmentation",
				},
			},
			Required: []string{"texts"},
		},
	}
}

// searchChunksTool returns the tool definition for search_chunks
func searchChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_chunks",
		Description: "Search stored chunks with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (BM25 only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
				"sources": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these document sources",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"min_relevance": map[string]interface{}{
					"type":        "number",
					"description": "Minimum relevance score threshold (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// generateAnswerTool returns the tool definition for generate_answer
func generateAnswerTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_answer",
		Description: "Answer a question from the retrieved chunks with the configured language model",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
				"new_message": map[string]interface{}{
					"type":        "object",
					"description": "Chat-style alternative to query",
					"properties": map[string]interface{}{
						"content": map[string]interface{}{
							"type": "string",
						},
					},
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of chunks used as context (default 3)",
					"minimum":     1,
					"maximum":     100,
				},
				"sources": map[string]interface{}{
					"type":        "array",
					"description": "Restrict retrieval to these document sources",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report store statistics, the last ingest run and index health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
