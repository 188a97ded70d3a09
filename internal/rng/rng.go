// Package rng provides the random-number context shared by model
// initialization, batch sampling and any stochastic regularization of a run.
//
// A Context replaces process-wide seeding: it is created once, seeded exactly
// once before anything stochastic happens, and passed explicitly to every
// consumer. Sub-computations that need their own reproducible stream (for
// example evaluation) use WithSeed, which leaves the training stream exactly
// where it was.
package rng

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/vk/lmrun/internal/runerr"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ErrAlreadySeeded is returned when SetSeed is called a second time.
var ErrAlreadySeeded = errors.New("rng: context already seeded")

// Context is a seedable source of randomness. It is not safe for concurrent
// use; a run is single-threaded.
type Context struct {
	src    *rand.PCG
	rand   *rand.Rand
	seeded bool
	seed   int64
}

// New returns a Context seeded from the clock. Call SetSeed before the first
// draw for reproducible runs.
func New() *Context {
	now := uint64(time.Now().UnixNano())
	src := rand.NewPCG(now, now^0x9e3779b97f4a7c15)
	return &Context{src: src, rand: rand.New(src)}
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
)

// Default returns the process-wide context, initialized on first use.
func Default() *Context {
	defaultOnce.Do(func() { defaultCtx = New() })
	return defaultCtx
}

func pcgFor(seed int64) *rand.PCG {
	return rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
}

// SetSeed seeds the context. It may be called once; reseeding a running
// context would silently break reproducibility, so a second call fails.
func (c *Context) SetSeed(seed int64) error {
	if c.seeded {
		return ErrAlreadySeeded
	}
	c.src = pcgFor(seed)
	c.rand = rand.New(c.src)
	c.seeded = true
	c.seed = seed
	return nil
}

// SetSeedValue seeds the context from an untyped configuration value. The
// value must be a whole number; anything else is a configuration error.
func (c *Context) SetSeedValue(v cty.Value) error {
	if v.IsNull() || !v.IsKnown() || v.Type() != cty.Number {
		return runerr.Configuration("set seed", "seed must be a whole number, got %s", v.Type().FriendlyName())
	}
	var seed int64
	if err := gocty.FromCtyValue(v, &seed); err != nil {
		return runerr.Configuration("set seed", "invalid seed: %w", err)
	}
	return c.SetSeed(seed)
}

// Seeded reports whether SetSeed has been called.
func (c *Context) Seeded() bool {
	return c.seeded
}

// Seed returns the seed passed to SetSeed.
func (c *Context) Seed() int64 {
	return c.seed
}

// IntN returns a uniform integer in [0, n).
func (c *Context) IntN(n int) int {
	return c.rand.IntN(n)
}

// Float64 returns a uniform float in [0, 1).
func (c *Context) Float64() float64 {
	return c.rand.Float64()
}

// NormFloat64 returns a standard normal sample.
func (c *Context) NormFloat64() float64 {
	return c.rand.NormFloat64()
}

// Normal fills a new slice of n samples drawn from N(0, std²).
func (c *Context) Normal(n int, std float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = c.rand.NormFloat64() * std
	}
	return out
}

// WithSeed runs fn with the context temporarily reseeded to seed and then
// restores the previous generator state, so draws made inside fn do not
// shift the outer stream.
func (c *Context) WithSeed(seed int64, fn func() error) error {
	prevSrc, prevRand := c.src, c.rand
	c.src = pcgFor(seed)
	c.rand = rand.New(c.src)
	defer func() {
		c.src, c.rand = prevSrc, prevRand
	}()
	return fn()
}

// DeriveSeed maps a base seed and a stream label to a new seed, e.g. the
// evaluation stream of a run.
func DeriveSeed(base int64, label string) int64 {
	h := uint64(14695981039346656037)
	for i := 0; i < len(label); i++ {
		h ^= uint64(label[i])
		h *= 1099511628211
	}
	return int64((uint64(base) ^ h) & math.MaxInt64)
}

// MarshalBinary captures the generator state for a checkpoint.
func (c *Context) MarshalBinary() ([]byte, error) {
	state, err := c.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("rng: marshal state: %w", err)
	}
	return state, nil
}

// Restore resumes the generator from a checkpointed state. A restored context
// counts as seeded.
func (c *Context) Restore(state []byte, seed int64) error {
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(state); err != nil {
		return fmt.Errorf("rng: restore state: %w", err)
	}
	c.src = src
	c.rand = rand.New(src)
	c.seeded = true
	c.seed = seed
	return nil
}
