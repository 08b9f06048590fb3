package evaluation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrEmptyDataset is returned when a dataset has no questions
var ErrEmptyDataset = errors.New("dataset has no questions")

// Item is one evaluation question with its ground-truth answer
type Item struct {
	Question  string
	Reference string
}

// Record is one evaluated question, in the column layout RAG metric tools expect
type Record struct {
	UserInput         string   `json:"user_input"`
	Response          string   `json:"response"`
	RetrievedContexts []string `json:"retrieved_contexts"`
	Reference         string   `json:"reference"`
	LatencyMs         float64  `json:"latency_ms"`
	Error             string   `json:"error,omitempty"`
}

// ParseDataset reads JSONL lines with a question ("question" or "user_input")
// and an optional reference ("reference" or "ground_truth")
func ParseDataset(r io.Reader) ([]Item, error) {
	var items []Item

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !gjson.ValidBytes(raw) {
			return nil, fmt.Errorf("line %d: invalid JSON", line)
		}

		fields := gjson.GetManyBytes(raw, "question", "user_input", "reference", "ground_truth")
		question := firstString(fields[0], fields[1])
		if question == "" {
			return nil, fmt.Errorf("line %d: missing question", line)
		}
		items = append(items, Item{Question: question, Reference: firstString(fields[2], fields[3])})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyDataset
	}
	return items, nil
}

// LoadDataset reads a JSONL dataset file
func LoadDataset(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseDataset(f)
}

func firstString(results ...gjson.Result) string {
	for _, r := range results {
		if s := strings.TrimSpace(r.String()); s != "" {
			return s
		}
	}
	return ""
}

// WriteRecords writes records as JSONL
func WriteRecords(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range records {
		if records[i].RetrievedContexts == nil {
			records[i].RetrievedContexts = []string{}
		}
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return nil
}

// SaveRecords writes records to a JSONL file, replacing it
func SaveRecords(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteRecords(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
