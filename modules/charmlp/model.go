package charmlp

import (
	"math"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/essentials"
	"github.com/vk/lmrun/internal/dataset"
	"github.com/vk/lmrun/internal/rng"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/vk/lmrun/internal/trainer"
)

// Model predicts the next character from the one-hot encoded window of the
// ContextSize characters ending at each position:
//
//	FC(context*vocab → hidden) → tanh → FC(hidden → vocab) → log-softmax
//
// Positions closer than ContextSize to the start of a row see zero padding.
type Model struct {
	creator anyvec.Creator
	net     anynet.Net
	fc1     *anynet.FC
	fc2     *anynet.FC

	vocab   int
	context int
	hidden  int
}

// NewModel builds a randomly initialized model. Weights are drawn from
// N(0, 1/in) using r; biases start at zero.
func NewModel(vocab, context, hidden int, r *rng.Context) *Model {
	c := anyvec64.DefaultCreator{}
	fc1 := anynet.NewFCZero(c, context*vocab, hidden)
	fc2 := anynet.NewFCZero(c, hidden, vocab)
	for _, fc := range []*anynet.FC{fc1, fc2} {
		std := 1 / math.Sqrt(float64(fc.InCount))
		setVectorData(fc.Weights.Vector, r.Normal(fc.InCount*fc.OutCount, std))
	}
	return newModel(c, fc1, fc2, context)
}

func newModel(c anyvec.Creator, fc1, fc2 *anynet.FC, context int) *Model {
	return &Model{
		creator: c,
		net:     anynet.Net{fc1, anynet.Tanh, fc2, anynet.LogSoftmax},
		fc1:     fc1,
		fc2:     fc2,
		vocab:   fc2.OutCount,
		context: context,
		hidden:  fc1.OutCount,
	}
}

// DecodeModel restores a model serialized by MarshalBinary and checks its
// shape against the expected vocabulary, context and hidden sizes.
func DecodeModel(data []byte, vocab, context, hidden int) (*Model, error) {
	net, err := anynet.DeserializeNet(data)
	if err != nil {
		return nil, runerr.Configuration("restore model", "%w", essentials.AddCtx("decode checkpoint", err))
	}
	if len(net) != 4 {
		return nil, runerr.Configuration("restore model", "expected 4 layers, got %d", len(net))
	}
	fc1, ok1 := net[0].(*anynet.FC)
	fc2, ok2 := net[2].(*anynet.FC)
	if !ok1 || !ok2 {
		return nil, runerr.Configuration("restore model", "unexpected layer types %T and %T", net[0], net[2])
	}
	if fc1.InCount != context*vocab || fc1.OutCount != hidden {
		return nil, runerr.Configuration("restore model",
			"first layer is %dx%d, config expects %dx%d (context_size=%d, vocab_size=%d, n_hidden=%d)",
			fc1.InCount, fc1.OutCount, context*vocab, hidden, context, vocab, hidden)
	}
	if fc2.InCount != hidden || fc2.OutCount != vocab {
		return nil, runerr.Configuration("restore model",
			"output layer is %dx%d, config expects %dx%d", fc2.InCount, fc2.OutCount, hidden, vocab)
	}
	return newModel(fc1.Weights.Vector.Creator(), fc1, fc2, context), nil
}

// Parameters returns the trainable variables in a fixed order.
func (m *Model) Parameters() []*anydiff.Var {
	return m.net.Parameters()
}

// ParameterNames names Parameters, index for index.
func (m *Model) ParameterNames() []string {
	return []string{"fc1/weights", "fc1/biases", "fc2/weights", "fc2/biases"}
}

// NumParams implements trainer.Model.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Vector.Len()
	}
	return n
}

// Weights implements trainer.Model.
func (m *Model) Weights() []trainer.Weight {
	names := m.ParameterNames()
	out := make([]trainer.Weight, 0, len(names))
	for i, p := range m.Parameters() {
		out = append(out, trainer.Weight{Name: names[i], Values: vectorData(p.Vector)})
	}
	return out
}

// MarshalBinary implements trainer.Model.
func (m *Model) MarshalBinary() ([]byte, error) {
	data, err := m.net.Serialize()
	if err != nil {
		return nil, essentials.AddCtx("serialize model", err)
	}
	return data, nil
}

// Loss implements trainer.Model.
func (m *Model) Loss(batch *dataset.Batch) (float64, error) {
	cost, err := m.cost(batch)
	if err != nil {
		return 0, err
	}
	return scalar(cost.Output()), nil
}

// LossAndGrad implements trainer.Model.
func (m *Model) LossAndGrad(batch *dataset.Batch) (float64, anydiff.Grad, error) {
	cost, err := m.cost(batch)
	if err != nil {
		return 0, nil, err
	}
	grad := anydiff.NewGrad(m.Parameters()...)
	upstream := m.creator.MakeVectorData(m.creator.MakeNumericList([]float64{1}))
	cost.Propagate(upstream, grad)
	return scalar(cost.Output()), grad, nil
}

// cost returns the mean cross-entropy over every position of the batch.
func (m *Model) cost(batch *dataset.Batch) (anydiff.Res, error) {
	inputs, desired, n, err := m.encode(batch)
	if err != nil {
		return nil, err
	}
	c := m.creator
	in := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(inputs)))
	target := anydiff.NewConst(c.MakeVectorData(c.MakeNumericList(desired)))
	out := m.net.Apply(in, n)
	costs := anynet.DotCost{}.Cost(target, out, n)
	return anydiff.Scale(anydiff.Sum(costs), c.MakeNumeric(1/float64(n))), nil
}

// encode packs one row per (batch row, position) pair.
func (m *Model) encode(batch *dataset.Batch) (inputs, desired []float64, n int, err error) {
	for _, row := range batch.Inputs {
		n += len(row)
	}
	if n == 0 {
		return nil, nil, 0, runerr.Data("encode batch", "batch is empty")
	}
	width := m.context * m.vocab
	inputs = make([]float64, n*width)
	desired = make([]float64, n*m.vocab)

	idx := 0
	for r, row := range batch.Inputs {
		if len(batch.Targets[r]) != len(row) {
			return nil, nil, 0, runerr.Data("encode batch", "row %d: %d inputs but %d targets", r, len(row), len(batch.Targets[r]))
		}
		for t := range row {
			for k := 0; k < m.context; k++ {
				pos := t - m.context + 1 + k
				if pos < 0 {
					continue
				}
				id := row[pos]
				if id < 0 || id >= m.vocab {
					return nil, nil, 0, runerr.Data("encode batch", "token id %d out of range [0, %d)", id, m.vocab)
				}
				inputs[idx*width+k*m.vocab+id] = 1
			}
			target := batch.Targets[r][t]
			if target < 0 || target >= m.vocab {
				return nil, nil, 0, runerr.Data("encode batch", "target id %d out of range [0, %d)", target, m.vocab)
			}
			desired[idx*m.vocab+target] = 1
			idx++
		}
	}
	return inputs, desired, n, nil
}

func scalar(v anyvec.Vector) float64 {
	return anyvec.Sum(v).(float64)
}

func vectorData(v anyvec.Vector) []float64 {
	return append([]float64(nil), v.Data().([]float64)...)
}

func setVectorData(v anyvec.Vector, data []float64) {
	c := v.Creator()
	v.Set(c.MakeVectorData(c.MakeNumericList(data)))
}
