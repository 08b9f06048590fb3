// Package mcp exposes semrag over the Model Context Protocol (MCP).
//
// The server registers five tools:
//   - ingest_folder: chunk, embed and store every document below a folder
//   - upload_texts: chunk, embed and store raw texts
//   - search_chunks: vector, keyword or hybrid search over stored chunks
//   - generate_answer: retrieve the top chunks and answer with the language model
//   - get_status: store statistics, the last ingest run and index health
//
// MCP is JSON-RPC 2.0 over stdio. The server reads requests from stdin and
// writes responses to stdout, so all logging goes to stderr.
//
//	semrag serve
//
// # Tool: generate_answer
//
// The question is given either as query or, chat style, as new_message:
//
//	{
//	  "name": "generate_answer",
//	  "arguments": {
//	    "new_message": {"content": "¿Cuál es la capital oficial de Bolivia?"},
//	    "top_k": 3
//	  }
//	}
//
//	{
//	  "response": "Sucre es la capital constitucional de Bolivia.",
//	  "contexts": ["..."],
//	  "sources": ["bolivia.txt"],
//	  "model": "qwen2.5:0.5b",
//	  "duration_ms": 812
//	}
//
// # Errors
//
// Invalid arguments and failures are returned as *MCPError with these codes:
//   - -32602: invalid params
//   - -32603: internal error (storage, embedding service)
//   - -32002: another ingest run is in progress
//   - -32004: empty query
//   - -32005: the language model did not answer
//
// # Client configuration
//
//	{
//	  "mcpServers": {
//	    "semrag": {
//	      "command": "/usr/local/bin/semrag",
//	      "args": ["serve"],
//	      "env": {"SEMRAG_EMBEDDING__BASE_URL": "http://localhost:8001"}
//	    }
//	  }
//	}
package mcp
