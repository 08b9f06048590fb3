// Package chunker groups consecutive sentences into chunks by embedding similarity.
//
// Each sentence is compared with the sentence immediately before it. While the cosine
// similarity stays at or above the threshold and the chunk has room, the sentence joins
// the current chunk; otherwise a new chunk starts.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	texts, err := c.Chunk(sentences, embeddings)
//	if err != nil {
//	    var inErr *chunker.InputError
//	    if errors.As(err, &inErr) {
//	        fmt.Printf("bad sentence %d: %s\n", inErr.Index, inErr.Reason)
//	    }
//	}
//
// # Chunk Sizes
//
// A chunk that closes with fewer than MinSentences sentences is merged into the chunk
// emitted before it. Two chunks are exempt:
//   - the first chunk, which has nothing to merge into
//   - the last chunk, which is emitted as-is after the pass
//
// Merging can push a chunk past MaxSentences. MaxSentences only limits growth by
// similarity.
//
// Split returns the sentence ranges of each chunk for callers that need positions.
package chunker
