package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/japaniel/typohmm/pkg/db"
	"github.com/japaniel/typohmm/pkg/hmm"
	"github.com/japaniel/typohmm/pkg/observe"
	"github.com/japaniel/typohmm/pkg/segment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/japaniel/typohmm/pkg/pipeline")

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Corrector splits lines into words and decodes each word.
type Corrector struct {
	Decoder   *hmm.Decoder
	Segmenter segment.Segmenter

	// Writer, when set together with ModelID, receives one row per changed word
	// for the corrections history.
	Writer  *BatchWriter
	ModelID int64

	// Logger is used for debug output about corrected words. nil means no logging.
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *observe.Metrics

	// Workers is the number of goroutines Run decodes on.
	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewCorrector returns a Corrector with whitespace segmentation and four workers.
func NewCorrector(d *hmm.Decoder) *Corrector {
	return &Corrector{
		Decoder:   d,
		Segmenter: segment.Whitespace{},
		Workers:   4,
	}
}

// Word is the outcome of decoding one typed word.
type Word struct {
	Typed    string
	Decoded  string
	Fallback bool
}

// Changed reports whether decoding altered the word.
func (w Word) Changed() bool { return w.Typed != w.Decoded }

// Line is a corrected input line.
type Line struct {
	Index int
	Words []Word
}

// Text joins the decoded words with single spaces.
func (l Line) Text() string {
	out := make([]string, len(l.Words))
	for i, w := range l.Words {
		out[i] = w.Decoded
	}
	return strings.Join(out, " ")
}

func (c *Corrector) segmenter() segment.Segmenter {
	if c.Segmenter == nil {
		return segment.Whitespace{}
	}
	return c.Segmenter
}

// correct decodes every word of line and records metrics for it.
func (c *Corrector) correct(ctx context.Context, index int, line, source string) Line {
	start := time.Now()
	words := c.segmenter().Segment(line)
	res := Line{Index: index, Words: make([]Word, len(words))}
	changed, fallbacks := 0, 0
	for i, typed := range words {
		decoded, _, ok := c.Decoder.Viterbi(typed)
		w := Word{Typed: typed, Decoded: decoded, Fallback: !ok}
		if w.Changed() {
			changed++
		}
		if w.Fallback {
			fallbacks++
		}
		res.Words[i] = w
	}
	c.Metrics.RecordLine(ctx, source, time.Since(start).Seconds(), len(words), changed, fallbacks)
	return res
}

// CorrectLine decodes every word of line and joins the results with single spaces.
func (c *Corrector) CorrectLine(line string) string {
	return c.correct(context.Background(), 0, line, "").Text()
}

// record logs the changed words of l and queues them for the history table.
func (c *Corrector) record(l Line, source string) error {
	for _, w := range l.Words {
		if !w.Changed() {
			continue
		}
		if c.Logger != nil {
			c.Logger.Debug("corrected word", "typed", w.Typed, "decoded", w.Decoded, "line", l.Index)
		}
		if c.Writer == nil || c.ModelID <= 0 {
			continue
		}
		typed, decoded, modelID := w.Typed, w.Decoded, c.ModelID
		err := c.Writer.Submit(func(ctx context.Context, tx *sql.Tx) error {
			if err := db.RecordCorrection(tx, modelID, typed, decoded, source); err != nil {
				return fmt.Errorf("failed to record correction %q -> %q: %w", typed, decoded, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Run corrects lines concurrently and returns the results in input order.
// Changed words are handed to the history writer in input order as well.
func (c *Corrector) Run(ctx context.Context, lines []string, source string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.Int("lines", len(lines)),
		attribute.String("source", source),
	))
	defer span.End()

	out := make([]string, len(lines))
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if len(lines) == 0 {
		return out, nil
	}

	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}
	var wp WorkerPoolInterface
	if c.PoolFactory != nil {
		wp = c.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan Line, workers*2)
	doneCh := make(chan error, 1)

	// Consumer: reorder finished lines and emit them contiguously.
	go func() {
		buffer := make(map[int]Line)
		next := 0
		for res := range resultCh {
			buffer[res.Index] = res
			for {
				item, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				out[next] = item.Text()
				if err := c.record(item, source); err != nil {
					// Stop producers so they don't block writing to resultCh.
					cancel()
					doneCh <- err
					return
				}
				next++
			}
		}
		if next < len(lines) {
			doneCh <- fmt.Errorf("pipeline: corrected %d of %d lines: %w", next, len(lines), context.Cause(ctx))
			return
		}
		doneCh <- nil
	}()

	wp.Start(ctx)

	var submitErr error
	for i := range lines {
		idx, line := i, lines[i]
		job := func(ctx context.Context) error {
			res := c.correct(ctx, idx, line, source)
			select {
			case resultCh <- res:
			case <-ctx.Done():
			}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if err != ctx.Err() && err != ErrPoolClosed {
				submitErr = err
				cancel()
			}
			break
		}
	}

	// All workers have returned once Close does, so nothing sends on resultCh.
	wp.Close()
	close(resultCh)

	err := <-doneCh
	if submitErr != nil {
		err = submitErr
	}
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}
