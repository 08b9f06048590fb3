// Package types provides shared type definitions for semrag.
//
// Document is the unit of ingestion: a file or uploaded text together with its
// language tag and metadata. Chunk is the unit of retrieval: a contiguous run of
// sentences from one document, stored under a UUID with a metadata map that always
// carries the source file name:
//
//	chunk := &types.Chunk{
//	    ID:            uuid.NewString(),
//	    Content:       "Bolivia limita al norte con Brasil. Limita al sur con Paraguay.",
//	    SentenceStart: 4,
//	    SentenceEnd:   6,
//	    Metadata:      map[string]string{types.MetaSourceFile: "bolivia.txt"},
//	}
//	chunk.ComputeContentHash()
//
// SearchResult pairs a chunk with its rank and relevance score. Scores are cosine
// similarities in [-1, 1] for vector search and normalized values in [0, 1] for
// keyword and hybrid search.
package types
