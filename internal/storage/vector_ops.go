package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// ErrEmptyQuery is returned when a text query has no searchable terms
var ErrEmptyQuery = errors.New("empty search query")

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, vecLoaded bool, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		return []VectorResult{}, nil
	}
	if vecLoaded {
		return searchVectorOptimized(ctx, q, queryVector, limit, filters)
	}
	return searchVectorFallback(ctx, q, queryVector, limit, filters)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns a distance; 1 - distance is the similarity
	query := `
		SELECT
			c.id as chunk_id,
			1.0 - vec_distance_cosine(e.vector, ?) as similarity
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE e.dimension = ?
	`
	args := []interface{}{queryVectorBlob, len(queryVector)}

	query, args = applySourceFilter(query, args, filters)

	if filters != nil && filters.MinRelevance > 0 {
		query += " AND (1.0 - vec_distance_cosine(e.vector, ?)) >= ?"
		args = append(args, queryVectorBlob, filters.MinRelevance)
	}

	query += " ORDER BY similarity DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.ChunkID, &result.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// searchVectorFallback scores every candidate embedding in Go
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	query := `
		SELECT
			c.id as chunk_id,
			e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE e.dimension = ?
	`
	args := []interface{}{len(queryVector)}

	query, args = applySourceFilter(query, args, filters)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector, filters)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)

	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, q querier, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, ErrEmptyQuery
	}

	sqlQuery := `
		SELECT
			c.id as chunk_id,
			bm25(chunks_fts) as score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.chunk_id = c.id
		INNER JOIN documents d ON c.document_id = d.id
		WHERE chunks_fts MATCH ?
	`
	args := []interface{}{sanitized}

	sqlQuery, args = applySourceFilter(sqlQuery, args, filters)

	// BM25 is negative, lower is better
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows, filters)
}

// Helper functions

// applySourceFilter restricts a query joined on documents d to the given sources
func applySourceFilter(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil || len(filters.Sources) == 0 {
		return query, args
	}

	query += " AND d.source IN (" + placeholders(len(filters.Sources)) + ")"
	for _, src := range filters.Sources {
		args = append(args, src)
	}
	return query, args
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32, filters *SearchFilters) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var chunkID string
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue
		}

		similarity := cosineSimilarity(queryVector, vector)

		if filters != nil && filters.MinRelevance > 0 && similarity < filters.MinRelevance {
			continue
		}

		candidates = append(candidates, candidate{chunkID: chunkID, score: similarity})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// collectTextResults processes text search results and normalizes scores
func collectTextResults(rows *sql.Rows, filters *SearchFilters) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.ChunkID, &result.BM25Score); err != nil {
			return nil, err
		}

		// Map BM25 (typically [-50, 0]) into (0, 1]
		result.BM25Score = 1.0 / (1.0 + math.Abs(result.BM25Score)/50.0)

		if filters != nil && filters.MinRelevance > 0 && result.BM25Score < filters.MinRelevance {
			continue
		}

		results = append(results, result)
	}

	return results, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity returns 0 for mismatched or zero vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunkID string
	score   float64
}

// sortCandidates sorts by score descending, ties broken by id for stable output
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

var ftsTermPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// sanitizeFTSQuery turns free text into an FTS5 query of quoted terms joined by OR.
// Quoting disables FTS5 operators and syntax characters in user input.
func sanitizeFTSQuery(query string) string {
	terms := ftsTermPattern.FindAllString(query, -1)
	if len(terms) == 0 {
		return ""
	}

	seen := make(map[string]struct{}, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
