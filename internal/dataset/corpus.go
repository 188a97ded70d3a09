package dataset

import (
	"os"

	"github.com/vk/lmrun/internal/runerr"
)

// DefaultValidFraction is the share of the corpus held out for validation.
const DefaultValidFraction = 0.1

// Dataset is an encoded corpus split into training and validation ids.
type Dataset struct {
	Tokenizer *CharTokenizer
	Train     []int
	Valid     []int
}

// VocabSize returns the tokenizer's vocabulary size.
func (d *Dataset) VocabSize() int {
	return d.Tokenizer.VocabSize()
}

// LoadCorpus reads the corpus text at path.
func LoadCorpus(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", runerr.Data("load corpus", "failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return "", runerr.Data("load corpus", "corpus %s is empty", path)
	}
	return string(data), nil
}

// Prepare tokenizes text and splits it: the first (1-validFraction) of the
// ids are for training, the rest for validation.
func Prepare(text string, validFraction float64) (*Dataset, error) {
	return PrepareWith(NewCharTokenizer(text), text, validFraction)
}

// PrepareWith is Prepare with a fixed tokenizer, used when resuming from a
// checkpoint whose vocabulary must not change.
func PrepareWith(tok *CharTokenizer, text string, validFraction float64) (*Dataset, error) {
	if validFraction < 0 || validFraction >= 1 {
		return nil, runerr.Data("prepare", "valid fraction must be in [0, 1), got %g", validFraction)
	}
	ids, err := tok.Encode(text)
	if err != nil {
		return nil, runerr.Data("prepare", "%w", err)
	}
	n := int(float64(len(ids)) * (1 - validFraction))
	return &Dataset{
		Tokenizer: tok,
		Train:     ids[:n],
		Valid:     ids[n:],
	}, nil
}
