package dataset

import (
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
)

// Split names.
const (
	SplitTrain = "train"
	SplitValid = "valid"
)

// DeviceCPU is the only supported device.
const DeviceCPU = "cpu"

// Batch is one (inputs, targets) pair for a split. Each row of Targets is the
// matching row of Inputs shifted left by one token.
type Batch struct {
	Split   string
	Inputs  [][]int
	Targets [][]int
}

// Size returns the number of rows.
func (b *Batch) Size() int {
	return len(b.Inputs)
}

// Validate checks that the batch has the requested number of rows and that
// every row has blockSize ids on both sides.
func (b *Batch) Validate(batchSize, blockSize int) error {
	if len(b.Inputs) != batchSize || len(b.Targets) != batchSize {
		return runerr.Data("validate batch", "expected %d rows, got %d inputs and %d targets",
			batchSize, len(b.Inputs), len(b.Targets))
	}
	for i := range b.Inputs {
		if len(b.Inputs[i]) != blockSize || len(b.Targets[i]) != blockSize {
			return runerr.Data("validate batch", "row %d: expected %d ids, got %d inputs and %d targets",
				i, blockSize, len(b.Inputs[i]), len(b.Targets[i]))
		}
	}
	return nil
}

// BatchSource supplies batches for a split.
type BatchSource interface {
	Next(split string, batchSize int) (*Batch, error)
}

// SourceFunc adapts a function to a BatchSource.
type SourceFunc func(split string, batchSize int) (*Batch, error)

// Next calls f.
func (f SourceFunc) Next(split string, batchSize int) (*Batch, error) {
	return f(split, batchSize)
}

// CorpusSource samples random windows of a Dataset.
type CorpusSource struct {
	data      *Dataset
	blockSize int
	device    string
	rng       *rng.Context
}

// NewCorpusSource binds a dataset, block size, device and random context.
func NewCorpusSource(data *Dataset, blockSize int, device string, r *rng.Context) (*CorpusSource, error) {
	if blockSize <= 0 {
		return nil, runerr.Configuration("batch source", "block_size must be positive, got %d", blockSize)
	}
	if device != DeviceCPU {
		return nil, runerr.Configuration("batch source", "unsupported device %q", device)
	}
	for _, split := range []struct {
		name string
		ids  []int
	}{{SplitTrain, data.Train}, {SplitValid, data.Valid}} {
		if len(split.ids) <= blockSize {
			return nil, runerr.Data("batch source", "%s split has %d tokens, need more than block_size %d",
				split.name, len(split.ids), blockSize)
		}
	}
	return &CorpusSource{data: data, blockSize: blockSize, device: device, rng: r}, nil
}

// Next draws batchSize random windows from the split.
func (s *CorpusSource) Next(split string, batchSize int) (*Batch, error) {
	var ids []int
	switch split {
	case SplitTrain:
		ids = s.data.Train
	case SplitValid:
		ids = s.data.Valid
	default:
		return nil, runerr.Data("next batch", "unknown split %q", split)
	}
	if batchSize <= 0 {
		return nil, runerr.Data("next batch", "batch size must be positive, got %d", batchSize)
	}

	b := &Batch{
		Split:   split,
		Inputs:  make([][]int, batchSize),
		Targets: make([][]int, batchSize),
	}
	for i := 0; i < batchSize; i++ {
		off := s.rng.IntN(len(ids) - s.blockSize)
		b.Inputs[i] = append([]int(nil), ids[off:off+s.blockSize]...)
		b.Targets[i] = append([]int(nil), ids[off+1:off+s.blockSize+1]...)
	}
	return b, nil
}
