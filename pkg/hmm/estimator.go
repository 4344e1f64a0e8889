package hmm

// Record is one training line: a correct word and the variants typed for it.
type Record struct {
	Correct string
	Typed   []string
}

// Model is the pair of frequency tables the decoder reads.
type Model struct {
	Emissions   *Table
	Transitions *Table
}

// Estimate runs both counting passes over records.
func Estimate(records []Record) *Model {
	return &Model{
		Emissions:   BuildEmissionCounts(records),
		Transitions: BuildTransitionCounts(records),
	}
}

// BuildEmissionCounts counts, for each letter of each correct word, which
// character was typed at the same position in every variant. Positions past the
// end of a shorter variant are counted as Deleted. Characters a variant has
// beyond the length of the correct word are ignored.
func BuildEmissionCounts(records []Record) *Table {
	t := NewTable()
	for _, r := range records {
		correct := []rune(r.Correct)
		for _, typed := range r.Typed {
			tr := []rune(typed)
			for i, c := range correct {
				observed := Deleted
				if i < len(tr) {
					observed = string(tr[i])
				}
				t.Add(string(c), observed, 1)
			}
		}
	}
	return t
}

// BuildTransitionCounts counts letter bigrams of the correct words, with
// StartState before the first letter and EndState after the last. A one-letter
// word contributes both a start and an end transition for its letter.
func BuildTransitionCounts(records []Record) *Table {
	t := NewTable()
	for _, r := range records {
		word := []rune(r.Correct)
		for i, c := range word {
			if i == 0 {
				t.Add(StartState, string(c), 1)
			}
			if i+1 == len(word) {
				t.Add(string(c), EndState, 1)
			} else {
				t.Add(string(c), string(word[i+1]), 1)
			}
		}
	}
	return t
}
