package segment

import (
	"fmt"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Names accepted by New.
const (
	NameWhitespace = "whitespace"
	NameKagome     = "kagome"
)

// Segmenter splits an input line into the words that are decoded one by one.
type Segmenter interface {
	Segment(line string) []string
}

// Whitespace splits on runs of Unicode white space.
type Whitespace struct{}

// Segment implements Segmenter.
func (Whitespace) Segment(line string) []string {
	return strings.Fields(line)
}

// Kagome segments unspaced Japanese text into morphemes using the IPA
// dictionary. Runs of white space never become words.
type Kagome struct {
	t *tokenizer.Tokenizer
}

// NewKagome creates a new tokenizer instance.
func NewKagome() (*Kagome, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Kagome{t: t}, nil
}

// Segment implements Segmenter.
func (k *Kagome) Segment(line string) []string {
	var words []string
	for _, token := range k.t.Tokenize(line) {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}
		words = append(words, token.Surface)
	}
	return words
}

// New returns the segmenter registered under name. An empty name selects
// whitespace segmentation.
func New(name string) (Segmenter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameWhitespace:
		return Whitespace{}, nil
	case NameKagome:
		return NewKagome()
	default:
		return nil, fmt.Errorf("segment: unknown segmenter %q", name)
	}
}
