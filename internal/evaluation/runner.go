package evaluation

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/semrag/internal/logger"
	"github.com/dshills/semrag/internal/rag"
)

const (
	DefaultWorkers = 8
	DefaultTimeout = 120 * time.Second
)

// Answerer answers one question; *rag.Pipeline implements it
type Answerer interface {
	Generate(ctx context.Context, q rag.Query) (*rag.Answer, error)
}

// Config configures an evaluation run
type Config struct {
	Workers int           // Questions answered concurrently (default: 8)
	Timeout time.Duration // Per question (default: 120s)
	TopK    int           // 0 uses the pipeline default
}

// Report is the outcome of a run
type Report struct {
	Records        []Record // In dataset order
	Answered       int
	Failed         int
	AverageLatency time.Duration // Over answered questions
	Duration       time.Duration
}

// Runner answers every dataset question and records the results
type Runner struct {
	answerer Answerer
	cfg      Config
	logger   *log.Logger
}

// NewRunner creates a Runner
func NewRunner(a Answerer, cfg Config, l *log.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{answerer: a, cfg: cfg, logger: logger.OrDiscard(l)}
}

// Run answers items concurrently. A failed or timed-out question is recorded
// with its error; Run itself only fails when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, items []Item) (*Report, error) {
	if len(items) == 0 {
		return nil, ErrEmptyDataset
	}

	start := time.Now()
	records := make([]Record, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records[i] = r.answer(gctx, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Records: records, Duration: time.Since(start)}
	var total float64
	for _, rec := range records {
		if rec.Error != "" {
			report.Failed++
			continue
		}
		report.Answered++
		total += rec.LatencyMs
	}
	if report.Answered > 0 {
		report.AverageLatency = time.Duration(total / float64(report.Answered) * float64(time.Millisecond))
	}

	r.logger.Info("Evaluation finished",
		"questions", len(items),
		"answered", report.Answered,
		"failed", report.Failed,
		"avg_latency", report.AverageLatency.Round(time.Millisecond),
	)
	return report, nil
}

func (r *Runner) answer(ctx context.Context, item Item) Record {
	rec := Record{
		UserInput:         item.Question,
		Reference:         item.Reference,
		RetrievedContexts: []string{},
	}

	qctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	answer, err := r.answerer.Generate(qctx, rag.Query{Text: item.Question, TopK: r.cfg.TopK})
	rec.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			rec.Error = "timed out after " + r.cfg.Timeout.String()
		} else {
			rec.Error = err.Error()
		}
		r.logger.Warn("Question failed", "question", item.Question, "err", rec.Error)
		return rec
	}

	rec.Response = answer.Text
	if answer.Contexts != nil {
		rec.RetrievedContexts = answer.Contexts
	}
	r.logger.Debug("Question answered", "question", item.Question, "latency_ms", rec.LatencyMs)
	return rec
}
