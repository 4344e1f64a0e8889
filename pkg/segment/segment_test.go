package segment

import (
	"reflect"
	"strings"
	"testing"
)

func TestWhitespace(t *testing.T) {
	got := Whitespace{}.Segment("  teh  qick\tbrwn fox ")
	want := []string{"teh", "qick", "brwn", "fox"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := (Whitespace{}).Segment("   "); len(got) != 0 {
		t.Fatalf("expected no words, got %v", got)
	}
}

func TestNew(t *testing.T) {
	s, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(Whitespace); !ok {
		t.Fatalf("expected Whitespace, got %T", s)
	}
	if _, err := New("bogus"); err == nil {
		t.Fatalf("expected error for unknown segmenter")
	}
}

func TestKagomeSegmentsJapanese(t *testing.T) {
	s, err := New(NameKagome)
	if err != nil {
		t.Fatalf("New kagome: %v", err)
	}
	words := s.Segment("私は学生です。 ")
	if len(words) < 3 {
		t.Fatalf("expected several morphemes, got %v", words)
	}
	if strings.Join(words, "") != "私は学生です。" {
		t.Fatalf("segments do not cover the input: %v", words)
	}
	for _, w := range words {
		if strings.TrimSpace(w) == "" {
			t.Fatalf("whitespace token leaked: %q", words)
		}
	}
}
