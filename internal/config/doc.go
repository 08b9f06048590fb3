// Package config loads semrag's runtime configuration.
//
// Values start from Default and are overridden by environment variables with
// the SEMRAG_ prefix. Nested keys use a double underscore:
//
//	SEMRAG_DATA_DIR=/var/lib/semrag
//	SEMRAG_CHUNKING__THRESHOLD=0.75
//	SEMRAG_EMBEDDING__PROVIDER=service
//	SEMRAG_EMBEDDING__BASE_URL=http://embedding:8001
//	SEMRAG_GENERATION__BASE_URL=http://llm:11434
//	SEMRAG_INGEST__EXTENSIONS=.txt,.md,.jsonl
//
// OPENAI_API_KEY and JINA_API_KEY are used when the matching provider has no
// key configured. The loaded configuration is validated before it is returned.
package config
