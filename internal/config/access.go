package config

import (
	"time"

	"github.com/vk/lmrun/internal/runerr"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// decode converts the value bound to key into the Go value pointed to by
// target. A missing key or an unconvertible value is a configuration error.
func (p *Params) decode(key string, ty cty.Type, target any) error {
	v, ok := p.Get(key)
	if !ok {
		return runerr.Configuration("config", "missing required key %q", key)
	}
	if v.IsNull() {
		return runerr.Configuration("config", "key %q is null", key)
	}
	converted, err := convert.Convert(v, ty)
	if err != nil {
		return runerr.Configuration("config", "key %q: %w", key, err)
	}
	if err := gocty.FromCtyValue(converted, target); err != nil {
		return runerr.Configuration("config", "key %q: %w", key, err)
	}
	return nil
}

// Int returns the integer bound to key.
func (p *Params) Int(key string) (int, error) {
	var i int
	err := p.decode(key, cty.Number, &i)
	return i, err
}

// Int64 returns the 64-bit integer bound to key.
func (p *Params) Int64(key string) (int64, error) {
	var i int64
	err := p.decode(key, cty.Number, &i)
	return i, err
}

// Float returns the number bound to key.
func (p *Params) Float(key string) (float64, error) {
	var f float64
	err := p.decode(key, cty.Number, &f)
	return f, err
}

// StringValue returns the string bound to key. Numbers and bools are converted.
func (p *Params) StringValue(key string) (string, error) {
	var s string
	err := p.decode(key, cty.String, &s)
	return s, err
}

// Bool returns the bool bound to key. The strings "true" and "false" convert.
func (p *Params) Bool(key string) (bool, error) {
	var b bool
	err := p.decode(key, cty.Bool, &b)
	return b, err
}

// Duration returns the duration bound to key. Strings are parsed with
// time.ParseDuration, numbers are seconds.
func (p *Params) Duration(key string) (time.Duration, error) {
	v, ok := p.Get(key)
	if !ok {
		return 0, runerr.Configuration("config", "missing required key %q", key)
	}
	if v.Type() == cty.Number {
		f, err := p.Float(key)
		return time.Duration(f * float64(time.Second)), err
	}
	s, err := p.StringValue(key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, runerr.Configuration("config", "key %q: %w", key, err)
	}
	return d, nil
}

// IntOr is Int with a default for a missing key.
func (p *Params) IntOr(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Int(key)
}

// FloatOr is Float with a default for a missing key.
func (p *Params) FloatOr(key string, def float64) (float64, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Float(key)
}

// StringOr is StringValue with a default for a missing key.
func (p *Params) StringOr(key, def string) (string, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.StringValue(key)
}

// BoolOr is Bool with a default for a missing key.
func (p *Params) BoolOr(key string, def bool) (bool, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Bool(key)
}

// DurationOr is Duration with a default for a missing key.
func (p *Params) DurationOr(key string, def time.Duration) (time.Duration, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Duration(key)
}

// Require returns a configuration error naming the first missing key.
func (p *Params) Require(keys ...string) error {
	for _, k := range keys {
		if !p.Has(k) {
			return runerr.Configuration("config", "missing required key %q", k)
		}
	}
	return nil
}

// Positive checks that the integer value is > 0.
func Positive(key string, v int) error {
	if v <= 0 {
		return runerr.Configuration("config", "%s must be positive, got %d", key, v)
	}
	return nil
}
