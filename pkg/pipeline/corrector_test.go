package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/japaniel/typohmm/pkg/db"
	"github.com/japaniel/typohmm/pkg/hmm"
	_ "github.com/mattn/go-sqlite3"
)

func testDecoder() *hmm.Decoder {
	return hmm.NewDecoder(hmm.Estimate([]hmm.Record{
		{Correct: "helo", Typed: []string{"helo", "hwlo", "heol"}},
		{Correct: "cat", Typed: []string{"cat", "cst", "cat"}},
	}))
}

func TestCorrectLine(t *testing.T) {
	c := NewCorrector(testDecoder())
	got := c.CorrectLine("  hwlo   cst 42 ")
	if got != "helo cat 42" {
		t.Fatalf("CorrectLine = %q", got)
	}
	if got := c.CorrectLine(""); got != "" {
		t.Fatalf("empty line should stay empty, got %q", got)
	}
}

func TestRunKeepsOrder(t *testing.T) {
	c := NewCorrector(testDecoder())
	c.Workers = 8
	var lines, want []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("hwlo %d cst", i))
		want = append(want, fmt.Sprintf("helo %d cat", i))
	}
	got, err := c.Run(context.Background(), lines, "test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// failingPool always returns an error on Submit to simulate producer error.
type failingPool struct{}

func (f *failingPool) Start(ctx context.Context) {}
func (f *failingPool) Submit(job Job) error      { return errors.New("submit failed") }
func (f *failingPool) SubmitCtx(ctx context.Context, job Job) error {
	return errors.New("submit failed")
}
func (f *failingPool) Close() {}

func TestRunHandlesSubmitError(t *testing.T) {
	c := NewCorrector(testDecoder())
	c.PoolFactory = func(workers, queue int) WorkerPoolInterface { return &failingPool{} }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Run(ctx, []string{"hwlo", "cst"}, "test")
	if err == nil || !strings.Contains(err.Error(), "submit failed") {
		t.Fatalf("expected submit error, got %v", err)
	}
}

func TestRunCanceled(t *testing.T) {
	c := NewCorrector(testDecoder())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx, []string{"hwlo", "cst", "helo"}, "test"); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}

func TestRunRecordsCorrections(t *testing.T) {
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	d := testDecoder()
	modelID, err := db.SaveModel(context.Background(), conn, "test", hmm.Estimate([]hmm.Record{{Correct: "helo", Typed: []string{"hwlo"}}}), 1)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	bw := NewBatchWriter(conn, 4, 0)
	c := NewCorrector(d)
	c.Writer = bw
	c.ModelID = modelID

	if _, err := c.Run(context.Background(), []string{"hwlo helo", "cst", "heol"}, "unit"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	hist, err := db.GetCorrections(conn, modelID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 corrections, got %d: %+v", len(hist), hist)
	}
	// most recent first, so input order reversed
	if hist[2].Typed != "hwlo" || hist[1].Typed != "cst" || hist[0].Typed != "heol" {
		t.Fatalf("corrections out of order: %+v", hist)
	}
	if hist[0].Source != "unit" {
		t.Fatalf("expected source unit, got %q", hist[0].Source)
	}
}
