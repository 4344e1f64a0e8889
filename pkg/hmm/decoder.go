package hmm

import (
	"math"
	"strings"
)

// none marks a trellis cell without a predecessor.
const none = -1

// Option configures a Decoder.
type Option func(*Decoder)

// SmoothUnknown makes characters that were never typed anywhere in training
// receive the floor emission probability instead of being unreachable.
func SmoothUnknown() Option {
	return func(d *Decoder) {
		d.smoothUnknown = true
	}
}

// Decoder finds the most probable intended letters for a typed word.
// It only reads its model, so a single Decoder may be shared between goroutines.
type Decoder struct {
	emissions   *Table
	transitions *Table
	states      []string
	// vocab is every character typed at least once in training.
	vocab         map[string]struct{}
	smoothUnknown bool
}

// NewDecoder builds a decoder whose states are the hidden letters of m's
// emission table, in the order they were first counted.
func NewDecoder(m *Model, opts ...Option) *Decoder {
	d := &Decoder{
		emissions:   m.Emissions,
		transitions: m.Transitions,
		states:      m.Emissions.Contexts(),
		vocab:       make(map[string]struct{}),
	}
	for _, s := range d.states {
		for _, ev := range m.Emissions.Counts(s).Events() {
			d.vocab[ev] = struct{}{}
		}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// States returns the decoder's state space in iteration order.
func (d *Decoder) States() []string {
	out := make([]string, len(d.states))
	copy(out, d.states)
	return out
}

// Known reports whether ch was typed at least once in training.
func (d *Decoder) Known(ch string) bool {
	_, ok := d.vocab[ch]
	return ok
}

func (d *Decoder) transLog(from, to string) float64 {
	return math.Log(d.transitions.Prob(from, to))
}

func (d *Decoder) emitLog(state, observed string) float64 {
	if !d.smoothUnknown && !d.Known(observed) {
		return math.Inf(-1)
	}
	return math.Log(d.emissions.Prob(state, observed))
}

// Decode returns the most probable hidden letter sequence for typed. The
// result has exactly as many characters as typed. When no state can explain
// the observations, typed is returned unchanged.
func (d *Decoder) Decode(typed string) string {
	path, _, _ := d.Viterbi(typed)
	return path
}

// Viterbi is Decode that also returns the joint log-probability of the chosen
// path. ok is false when typed was returned unchanged because no final state
// was reachable; the log-probability is then -Inf.
func (d *Decoder) Viterbi(typed string) (path string, logProb float64, ok bool) {
	obs := []rune(typed)
	n := len(obs)
	ns := len(d.states)
	if n == 0 || ns == 0 {
		return typed, math.Inf(-1), false
	}

	// score[t][i] is the best log-probability of a path ending in state i at
	// time t (1-based); back[t][i] is that path's state at t-1.
	score := make([][]float64, n+1)
	back := make([][]int, n+1)
	for t := range score {
		score[t] = make([]float64, ns)
		back[t] = make([]int, ns)
		for i := range score[t] {
			score[t][i] = math.Inf(-1)
			back[t][i] = none
		}
	}

	first := string(obs[0])
	for i, s := range d.states {
		score[1][i] = d.transLog(StartState, s) + d.emitLog(s, first)
	}

	for t := 2; t <= n; t++ {
		observed := string(obs[t-1])
		for i, s := range d.states {
			emit := d.emitLog(s, observed)
			best, bp := math.Inf(-1), none
			for j, prev := range d.states {
				p := score[t-1][j]
				if math.IsInf(p, -1) {
					continue
				}
				v := p + d.transLog(prev, s) + emit
				if v > best {
					best, bp = v, j
				}
			}
			score[t][i] = best
			back[t][i] = bp
		}
	}

	final, best := none, math.Inf(-1)
	for i := range d.states {
		if score[n][i] > best {
			final, best = i, score[n][i]
		}
	}
	if final == none {
		return typed, best, false
	}

	letters := make([]string, n)
	cur := final
	for t := n; t >= 1; t-- {
		letters[t-1] = d.states[cur]
		if t > 1 {
			cur = back[t][cur]
		}
	}
	return strings.Join(letters, ""), best, true
}

// DecodeWords decodes each word independently.
func (d *Decoder) DecodeWords(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = d.Decode(w)
	}
	return out
}
