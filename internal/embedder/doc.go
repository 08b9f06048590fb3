// Package embedder turns text into vector embeddings.
//
// Four providers implement the Embedder interface:
//   - service: a sentence-embedding HTTP service (POST /embed {"texts"} -> {"vectors"})
//   - openai: the OpenAI embeddings API, or any compatible server via BaseURL
//   - jina: the Jina AI embeddings API
//   - local: deterministic hash vectors for development and tests
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "service", BaseURL: "http://localhost:8001"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vectors, err := embedder.EmbedAll(ctx, emb, sentences, embedder.DefaultBatchSize)
//
// EmbedAll splits long inputs into batches of at most MaxBatchSize texts and returns
// vectors in input order.
//
// # Caching and Retries
//
// Remote providers cache embeddings in an LRU keyed by model and SHA-256 of the
// text, so only cache misses reach the API. Failed calls are retried with
// exponential backoff; client errors (4xx other than 408 and 429) are not retried.
package embedder
