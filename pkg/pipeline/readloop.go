package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

const maxLineSize = 1024 * 1024

// ReadLoop reads r line by line and writes one corrected line to w for each.
// It returns nil at end of input and ctx.Err() if ctx is canceled first.
func ReadLoop(ctx context.Context, r io.Reader, w io.Writer, c *Corrector, source string) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scanning happens on its own goroutine so a blocked read cannot delay
	// cancellation.
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	index := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("pipeline: read input: %w", err)
					}
					return nil
				default:
					return ctx.Err()
				}
			}
			res := c.correct(ctx, index, line, source)
			if _, err := fmt.Fprintln(w, res.Text()); err != nil {
				return fmt.Errorf("pipeline: write output: %w", err)
			}
			if err := c.record(res, source); err != nil {
				return err
			}
			index++
		}
	}
}
