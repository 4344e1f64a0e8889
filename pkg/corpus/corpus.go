package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/japaniel/typohmm/pkg/hmm"
)

var (
	// ErrEmptyLine is returned by ParseLine for a line without tokens.
	ErrEmptyLine = errors.New("corpus: empty line")
	// ErrMalformedLine is returned when the correct word is empty once its
	// trailing delimiter is stripped.
	ErrMalformedLine = errors.New("corpus: malformed line")
)

// maxLineSize bounds a single corpus line.
const maxLineSize = 1024 * 1024

// ParseLine splits a `correct_word: typed1 typed2 ...` line. The last character
// of the first token is the delimiter and is dropped, whatever it is.
func ParseLine(line string) (hmm.Record, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return hmm.Record{}, ErrEmptyLine
	}
	head := []rune(fields[0])
	if len(head) < 2 {
		return hmm.Record{}, fmt.Errorf("%w: no correct word before delimiter in %q", ErrMalformedLine, fields[0])
	}
	return hmm.Record{
		Correct: string(head[:len(head)-1]),
		Typed:   fields[1:],
	}, nil
}

// Parse reads every line of r. Blank lines are skipped silently; malformed
// lines are skipped and reported together in a *multierror.Error that is
// returned alongside the records that did parse.
func Parse(r io.Reader) ([]hmm.Record, error) {
	var (
		records []hmm.Record
		bad     *multierror.Error
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		rec, err := ParseLine(sc.Text())
		if errors.Is(err, ErrEmptyLine) {
			continue
		}
		if err != nil {
			bad = multierror.Append(bad, fmt.Errorf("line %d: %w", lineNo, err))
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("corpus: read: %w", err)
	}
	return records, bad.ErrorOrNil()
}

// Load parses the corpus file at path.
func Load(path string) (records []hmm.Record, re error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %q: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			re = multierror.Append(re, err)
		}
	}()
	return Parse(f)
}

// IsLineError reports whether err only describes skipped malformed lines, in
// which case the records returned with it are still usable.
func IsLineError(err error) bool {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return false
	}
	for _, e := range merr.Errors {
		if !errors.Is(e, ErrMalformedLine) {
			return false
		}
	}
	return true
}
