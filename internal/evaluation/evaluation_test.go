package evaluation

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/semrag/internal/rag"
)

// mockAnswerer answers with the question upper-cased; questions listed in
// fail or slow misbehave
type mockAnswerer struct {
	fail     map[string]error
	slow     map[string]bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (m *mockAnswerer) Generate(ctx context.Context, q rag.Query) (*rag.Answer, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxSeen.Load()
		if n <= cur || m.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	if m.slow[q.Text] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	time.Sleep(5 * time.Millisecond)
	if err := m.fail[q.Text]; err != nil {
		return nil, err
	}
	return &rag.Answer{Text: strings.ToUpper(q.Text), Contexts: []string{"ctx:" + q.Text}}, nil
}

func TestParseDataset(t *testing.T) {
	input := `{"question": "¿Cuál es la capital oficial de Bolivia?", "reference": "Sucre."}

{"user_input": "¿Cuántos departamentos tiene Bolivia?", "ground_truth": "Nueve departamentos."}
{"question": "Sin referencia"}
`
	items, err := ParseDataset(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, Item{Question: "¿Cuál es la capital oficial de Bolivia?", Reference: "Sucre."}, items[0])
	assert.Equal(t, Item{Question: "¿Cuántos departamentos tiene Bolivia?", Reference: "Nueve departamentos."}, items[1])
	assert.Empty(t, items[2].Reference)
}

func TestParseDataset_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"invalid json", `{"question": "a"}` + "\n{nope", "line 2: invalid JSON"},
		{"missing question", `{"reference": "x"}`, "line 1: missing question"},
		{"empty", "\n\n", ErrEmptyDataset.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataset(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"question": "q1", "reference": "r1"}`), 0o644))

	items, err := LoadDataset(path)
	require.NoError(t, err)
	assert.Equal(t, []Item{{Question: "q1", Reference: "r1"}}, items)

	_, err = LoadDataset(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestRunner_Run(t *testing.T) {
	items := []Item{
		{Question: "uno", Reference: "1"},
		{Question: "dos", Reference: "2"},
		{Question: "tres", Reference: "3"},
		{Question: "cuatro", Reference: "4"},
		{Question: "cinco", Reference: "5"},
	}
	answerer := &mockAnswerer{fail: map[string]error{"tres": errors.New("model offline")}}

	report, err := NewRunner(answerer, Config{Workers: 2}, nil).Run(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, report.Records, len(items))
	assert.Equal(t, 4, report.Answered)
	assert.Equal(t, 1, report.Failed)
	assert.Positive(t, report.AverageLatency)
	assert.LessOrEqual(t, answerer.maxSeen.Load(), int32(2))

	for i, rec := range report.Records {
		assert.Equal(t, items[i].Question, rec.UserInput, "records keep dataset order")
		assert.Equal(t, items[i].Reference, rec.Reference)
	}
	assert.Equal(t, "UNO", report.Records[0].Response)
	assert.Equal(t, []string{"ctx:uno"}, report.Records[0].RetrievedContexts)
	assert.Equal(t, "model offline", report.Records[2].Error)
	assert.Empty(t, report.Records[2].Response)
	assert.Equal(t, []string{}, report.Records[2].RetrievedContexts)
}

func TestRunner_Timeout(t *testing.T) {
	answerer := &mockAnswerer{slow: map[string]bool{"lenta": true}}
	runner := NewRunner(answerer, Config{Timeout: 20 * time.Millisecond}, nil)

	report, err := runner.Run(context.Background(), []Item{{Question: "rápida"}, {Question: "lenta"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Answered)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Records[1].Error, "timed out")
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(&mockAnswerer{}, Config{}, nil).Run(ctx, []Item{{Question: "a"}})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewRunner(&mockAnswerer{}, Config{}, nil).Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestWriteRecords(t *testing.T) {
	records := []Record{
		{UserInput: "¿<capital>?", Response: "Sucre", RetrievedContexts: []string{"a", "b"}, Reference: "Sucre.", LatencyMs: 12.5},
		{UserInput: "q2", Error: "boom"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, records))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "¿<capital>?", gjson.Get(lines[0], "user_input").String())
	assert.Equal(t, int64(2), gjson.Get(lines[0], "retrieved_contexts.#").Int())
	assert.Equal(t, 12.5, gjson.Get(lines[0], "latency_ms").Float())
	assert.False(t, gjson.Get(lines[0], "error").Exists())
	assert.True(t, gjson.Get(lines[1], "retrieved_contexts").IsArray())
	assert.Equal(t, "boom", gjson.Get(lines[1], "error").String())

	path := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, SaveRecords(path, records))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))
}
