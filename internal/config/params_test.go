package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/zclconf/go-cty/cty"
)

func TestParams_SetKeepsInsertionOrder(t *testing.T) {
	t.Parallel()
	p := params("b", 1, "a", 2, "c", 3)
	p.SetInt("a", 20)
	p.Delete("b")
	p.Delete("missing")

	assert.Equal(t, []string{"a", "c"}, p.Keys())
	a, err := p.Int("a")
	require.NoError(t, err)
	assert.Equal(t, 20, a)
}

func TestParams_TypedAccessors(t *testing.T) {
	t.Parallel()

	p := params(
		"batch_size", 32,
		"lr", 3e-4,
		"device", "cpu",
		"verbose", true,
		"budget", "90s",
		"budget_seconds", 2.5,
	)
	p.SetString("steps_as_string", "100")

	batch, err := p.Int("batch_size")
	require.NoError(t, err)
	assert.Equal(t, 32, batch)

	lr, err := p.Float("lr")
	require.NoError(t, err)
	assert.InDelta(t, 3e-4, lr, 1e-12)

	device, err := p.StringValue("device")
	require.NoError(t, err)
	assert.Equal(t, "cpu", device)

	verbose, err := p.Bool("verbose")
	require.NoError(t, err)
	assert.True(t, verbose)

	budget, err := p.Duration("budget")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, budget)

	budget, err = p.Duration("budget_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, budget)

	steps, err := p.Int("steps_as_string")
	require.NoError(t, err)
	assert.Equal(t, 100, steps)

	def, err := p.IntOr("eval_interval", 250)
	require.NoError(t, err)
	assert.Equal(t, 250, def)
}

func TestParams_AccessorErrorsAreConfigurationErrors(t *testing.T) {
	t.Parallel()

	p := params("seed", 0.5, "device", "cpu")

	_, err := p.Int("seed")
	assert.ErrorIs(t, err, runerr.ErrConfiguration)

	_, err = p.Int("missing")
	assert.ErrorIs(t, err, runerr.ErrConfiguration)
	assert.Contains(t, err.Error(), `missing required key "missing"`)

	_, err = p.Float("device")
	assert.ErrorIs(t, err, runerr.ErrConfiguration)

	assert.ErrorIs(t, p.Require("seed", "block_size"), runerr.ErrConfiguration)
	assert.NoError(t, p.Require("seed", "device"))
}

func TestParams_JSONRoundTripKeepsOrder(t *testing.T) {
	t.Parallel()

	p := params("lr", 0.01, "seed", 42, "device", "cpu")
	p.Set("layers", cty.TupleVal([]cty.Value{cty.NumberIntVal(64), cty.NumberIntVal(32)}))

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got Params
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, p.Keys(), got.Keys())
	want, err := p.Native()
	require.NoError(t, err)
	have, err := got.Native()
	require.NoError(t, err)
	if diff := cmp.Diff(want, have); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParams_Native(t *testing.T) {
	t.Parallel()

	p := params("seed", 42, "lr", 0.5, "device", "cpu", "flag", false)
	p.Set("opt", cty.ObjectVal(map[string]cty.Value{"beta1": cty.NumberFloatVal(0.9)}))

	got, err := p.Native()
	require.NoError(t, err)

	want := map[string]any{
		"seed":   int64(42),
		"lr":     0.5,
		"device": "cpu",
		"flag":   false,
		"opt":    map[string]any{"beta1": 0.9},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Native() mismatch (-want +got):\n%s", diff)
	}
}
