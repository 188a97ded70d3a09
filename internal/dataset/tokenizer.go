package dataset

import (
	"fmt"
	"sort"
)

// CharTokenizer maps each distinct rune of a corpus to a dense id. Ids follow
// rune order, so the same corpus always yields the same vocabulary.
type CharTokenizer struct {
	toID  map[rune]int
	chars []rune
}

// NewCharTokenizer builds the vocabulary of text.
func NewCharTokenizer(text string) *CharTokenizer {
	seen := make(map[rune]struct{})
	for _, r := range text {
		seen[r] = struct{}{}
	}
	chars := make([]rune, 0, len(seen))
	for r := range seen {
		chars = append(chars, r)
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	return newTokenizer(chars)
}

// TokenizerFromVocab rebuilds a tokenizer from a saved vocabulary, e.g. the
// one stored in a checkpoint.
func TokenizerFromVocab(vocab []string) (*CharTokenizer, error) {
	chars := make([]rune, 0, len(vocab))
	for _, s := range vocab {
		r := []rune(s)
		if len(r) != 1 {
			return nil, fmt.Errorf("invalid vocab token %q: expected one rune", s)
		}
		chars = append(chars, r[0])
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("empty character vocab")
	}
	return newTokenizer(chars), nil
}

func newTokenizer(chars []rune) *CharTokenizer {
	toID := make(map[rune]int, len(chars))
	for i, r := range chars {
		toID[r] = i
	}
	return &CharTokenizer{toID: toID, chars: chars}
}

// VocabSize returns the number of distinct characters.
func (t *CharTokenizer) VocabSize() int {
	return len(t.chars)
}

// Vocab returns the vocabulary as one-rune strings, in id order.
func (t *CharTokenizer) Vocab() []string {
	out := make([]string, len(t.chars))
	for i, r := range t.chars {
		out[i] = string(r)
	}
	return out
}

// Encode maps text to ids. Unknown characters are an error.
func (t *CharTokenizer) Encode(text string) ([]int, error) {
	out := make([]int, 0, len(text))
	for _, r := range text {
		id, ok := t.toID[r]
		if !ok {
			return nil, fmt.Errorf("character %q is not in the vocabulary", r)
		}
		out = append(out, id)
	}
	return out, nil
}

// Decode maps ids back to text, skipping ids outside the vocabulary.
func (t *CharTokenizer) Decode(ids []int) string {
	out := make([]rune, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(t.chars) {
			out = append(out, t.chars[id])
		}
	}
	return string(out)
}
