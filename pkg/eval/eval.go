package eval

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/antzucaro/matchr"
	"github.com/japaniel/typohmm/pkg/hmm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/japaniel/typohmm/pkg/eval")

// Bucket aggregates results for correct words of one length.
type Bucket struct {
	Words   int
	Correct int
}

// Accuracy is the share of exactly corrected words in the bucket.
func (b Bucket) Accuracy() float64 {
	if b.Words == 0 {
		return 0
	}
	return float64(b.Correct) / float64(b.Words)
}

// Report summarises how well a decoder restores the correct words of a
// labelled corpus from their typed variants.
type Report struct {
	Records int
	Words   int
	Correct int
	// AlreadyCorrect counts variants that were typed correctly to begin with.
	AlreadyCorrect int
	Fallbacks      int

	Chars        int
	CharsCorrect int

	// Sums over all words; see MeanDistance and MeanSimilarity.
	Levenshtein int
	JaroWinkler float64

	ByLength map[int]*Bucket
}

// WordAccuracy is the share of variants decoded to exactly the correct word.
func (r *Report) WordAccuracy() float64 { return ratio(r.Correct, r.Words) }

// BaselineAccuracy is the word accuracy of leaving every variant as typed.
func (r *Report) BaselineAccuracy() float64 { return ratio(r.AlreadyCorrect, r.Words) }

// CharAccuracy is the share of correct-word positions holding the right letter
// after decoding.
func (r *Report) CharAccuracy() float64 { return ratio(r.CharsCorrect, r.Chars) }

// MeanDistance is the mean Levenshtein distance between decoded and correct words.
func (r *Report) MeanDistance() float64 { return ratio(r.Levenshtein, r.Words) }

// MeanSimilarity is the mean Jaro-Winkler similarity between decoded and correct words.
func (r *Report) MeanSimilarity() float64 {
	if r.Words == 0 {
		return 0
	}
	return r.JaroWinkler / float64(r.Words)
}

// Lengths returns the word lengths present in ByLength, ascending.
func (r *Report) Lengths() []int {
	out := make([]int, 0, len(r.ByLength))
	for l := range r.ByLength {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

type sample struct {
	correct string
	typed   string
}

type outcome struct {
	length       int
	exact        bool
	unchanged    bool
	fallback     bool
	charsCorrect int
	distance     int
	similarity   float64
}

// Evaluate decodes every typed variant of records with d on up to workers
// goroutines and compares the result with the record's correct word.
func Evaluate(ctx context.Context, d *hmm.Decoder, records []hmm.Record, workers int) (*Report, error) {
	var samples []sample
	for _, r := range records {
		for _, typed := range r.Typed {
			samples = append(samples, sample{correct: r.Correct, typed: typed})
		}
	}

	ctx, span := tracer.Start(ctx, "eval.Evaluate", trace.WithAttributes(attribute.Int("samples", len(samples))))
	defer span.End()

	if workers <= 0 {
		workers = 1
	}
	outcomes := make([]outcome, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range samples {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = score(d, samples[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("eval: %w", err)
	}

	rep := &Report{Records: len(records), ByLength: make(map[int]*Bucket)}
	for _, o := range outcomes {
		rep.Words++
		rep.Chars += o.length
		rep.CharsCorrect += o.charsCorrect
		rep.Levenshtein += o.distance
		rep.JaroWinkler += o.similarity
		if o.exact {
			rep.Correct++
		}
		if o.unchanged {
			rep.AlreadyCorrect++
		}
		if o.fallback {
			rep.Fallbacks++
		}
		b, ok := rep.ByLength[o.length]
		if !ok {
			b = &Bucket{}
			rep.ByLength[o.length] = b
		}
		b.Words++
		if o.exact {
			b.Correct++
		}
	}
	return rep, nil
}

func score(d *hmm.Decoder, s sample) outcome {
	decoded, _, ok := d.Viterbi(s.typed)
	correct := []rune(s.correct)
	got := []rune(decoded)
	o := outcome{
		length:     len(correct),
		exact:      decoded == s.correct,
		unchanged:  s.typed == s.correct,
		fallback:   !ok,
		distance:   matchr.Levenshtein(decoded, s.correct),
		similarity: matchr.JaroWinkler(decoded, s.correct, false),
	}
	for i := range correct {
		if i < len(got) && got[i] == correct[i] {
			o.charsCorrect++
		}
	}
	return o
}

// WriteSummary prints the report as an aligned table.
func (r *Report) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "records\t%d\n", r.Records)
	fmt.Fprintf(tw, "typed words\t%d\n", r.Words)
	fmt.Fprintf(tw, "word accuracy\t%.4f\t(baseline %.4f)\n", r.WordAccuracy(), r.BaselineAccuracy())
	fmt.Fprintf(tw, "char accuracy\t%.4f\n", r.CharAccuracy())
	fmt.Fprintf(tw, "mean levenshtein\t%.4f\n", r.MeanDistance())
	fmt.Fprintf(tw, "mean jaro-winkler\t%.4f\n", r.MeanSimilarity())
	fmt.Fprintf(tw, "fallbacks\t%d\n", r.Fallbacks)
	fmt.Fprintln(tw, "length\twords\taccuracy")
	for _, l := range r.Lengths() {
		b := r.ByLength[l]
		fmt.Fprintf(tw, "%d\t%d\t%.4f\n", l, b.Words, b.Accuracy())
	}
	return tw.Flush()
}
