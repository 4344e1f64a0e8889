// Package hmm estimates keystroke-noise frequency tables from a labelled typing
// corpus and decodes typed words with a log-space Viterbi search.
package hmm

import (
	"fmt"
	"math"
)

const (
	// StartState is the synthetic context every word's first letter transitions from.
	StartState = "<start>"
	// EndState is the synthetic event a word's last letter transitions to.
	EndState = "<end>"
	// Deleted is the observed event recorded when the typed variant is shorter than
	// the correct word at a position.
	Deleted = ""
	// CountKey is the name the per-context total is reported and persisted under.
	CountKey = "count"
	// Floor is the probability substituted for any zero-count estimate.
	Floor = 1e-10
)

// Prob turns a count into a probability using the floor smoothing policy:
// a zero count yields Floor, and an empty context divides by 1.
func Prob(count, total int) float64 {
	if count <= 0 {
		return Floor
	}
	if total < 1 {
		total = 1
	}
	return float64(count) / float64(total)
}

// LogProb is math.Log(Prob(count, total)).
func LogProb(count, total int) float64 {
	return math.Log(Prob(count, total))
}

// Counts holds how often each event was observed in a single context.
// Events keep the order in which they were first seen.
type Counts struct {
	events map[string]int
	order  []string
	total  int
}

func newCounts() *Counts {
	return &Counts{events: make(map[string]int)}
}

// Add increments event by n and the context total by the same amount.
func (c *Counts) Add(event string, n int) {
	if n <= 0 {
		return
	}
	if _, ok := c.events[event]; !ok {
		c.order = append(c.order, event)
	}
	c.events[event] += n
	c.total += n
}

// Count returns the count of event, or 0 when it was never observed.
func (c *Counts) Count(event string) int {
	if c == nil {
		return 0
	}
	return c.events[event]
}

// Total returns the number of observations in this context.
func (c *Counts) Total() int {
	if c == nil {
		return 0
	}
	return c.total
}

// Events returns the observed events in first-seen order.
func (c *Counts) Events() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Table maps a context (a hidden letter or StartState) to its event counts.
// A Table is built once and only read afterwards; concurrent reads are safe.
type Table struct {
	contexts map[string]*Counts
	order    []string
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{contexts: make(map[string]*Counts)}
}

// Add increments the count of event under context by n.
func (t *Table) Add(context, event string, n int) {
	if n <= 0 {
		return
	}
	c, ok := t.contexts[context]
	if !ok {
		c = newCounts()
		t.contexts[context] = c
		t.order = append(t.order, context)
	}
	c.Add(event, n)
}

// Counts returns the counts recorded for context, or nil if it was never seen.
func (t *Table) Counts(context string) *Counts {
	return t.contexts[context]
}

// Count returns the count of event under context; absent entries are 0.
func (t *Table) Count(context, event string) int {
	return t.contexts[context].Count(event)
}

// Total returns the total observations recorded under context.
func (t *Table) Total(context string) int {
	return t.contexts[context].Total()
}

// Prob returns the smoothed probability of event given context.
func (t *Table) Prob(context, event string) float64 {
	c := t.contexts[context]
	return Prob(c.Count(event), c.Total())
}

// Has reports whether context has at least one observation.
func (t *Table) Has(context string) bool {
	_, ok := t.contexts[context]
	return ok
}

// Contexts returns the contexts in first-seen order.
func (t *Table) Contexts() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of contexts.
func (t *Table) Len() int { return len(t.order) }

// CheckConsistency verifies that every context total equals the sum of its events.
func CheckConsistency(t *Table) error {
	for _, ctx := range t.order {
		c := t.contexts[ctx]
		sum := 0
		for _, ev := range c.order {
			sum += c.events[ev]
		}
		if sum != c.total {
			return fmt.Errorf("hmm: context %q: %s is %d but events sum to %d", ctx, CountKey, c.total, sum)
		}
	}
	return nil
}
