package config

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Params is an ordered mapping from hyperparameter name to value. Insertion
// order is preserved so printed and tracked configurations read the same way
// as the file they came from.
type Params struct {
	keys   []string
	values map[string]cty.Value
}

// NewParams returns an empty Params.
func NewParams() *Params {
	return &Params{values: make(map[string]cty.Value)}
}

// FromMap builds Params from an unordered map. Keys are sorted so the result
// is deterministic.
func FromMap(m map[string]cty.Value) *Params {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := NewParams()
	for _, k := range keys {
		p.Set(k, m[k])
	}
	return p
}

// Set binds key to v. A new key is appended; an existing key keeps its
// position.
func (p *Params) Set(key string, v cty.Value) {
	if p.values == nil {
		p.values = make(map[string]cty.Value)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

// SetInt binds key to an integer value.
func (p *Params) SetInt(key string, v int) {
	p.Set(key, cty.NumberIntVal(int64(v)))
}

// SetString binds key to a string value.
func (p *Params) SetString(key, v string) {
	p.Set(key, cty.StringVal(v))
}

// Get returns the value bound to key.
func (p *Params) Get(key string) (cty.Value, bool) {
	if p == nil {
		return cty.NilVal, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is bound.
func (p *Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Delete removes key. Deleting a missing key is a no-op.
func (p *Params) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Len returns the number of bound keys.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Clone returns an independent copy. cty values are immutable, so a shallow
// copy of the map is enough.
func (p *Params) Clone() *Params {
	c := NewParams()
	if p == nil {
		return c
	}
	for _, k := range p.keys {
		c.Set(k, p.values[k])
	}
	return c
}

// Equal reports whether both Params bind the same keys, in the same order, to
// identical values.
func (p *Params) Equal(o *Params) bool {
	if p.Len() != o.Len() {
		return false
	}
	for i, k := range p.Keys() {
		if o.keys[i] != k {
			return false
		}
		if !p.values[k].RawEquals(o.values[k]) {
			return false
		}
	}
	return true
}

// Object returns the parameters as a cty object value.
func (p *Params) Object() cty.Value {
	if p.Len() == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(p.values))
	for k, v := range p.values {
		attrs[k] = v
	}
	return cty.ObjectVal(attrs)
}

// Native converts every value to plain Go types (string, float64, bool,
// map[string]any, []any), which is what tracking backends expect.
func (p *Params) Native() (map[string]any, error) {
	out := make(map[string]any, p.Len())
	for _, k := range p.Keys() {
		v, err := ToNative(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (p *Params) String() string {
	s := "{"
	for i, k := range p.Keys() {
		if i > 0 {
			s += ", "
		}
		native, err := ToNative(p.values[k])
		if err != nil {
			native = p.values[k].GoString()
		}
		s += fmt.Sprintf("%s: %v", k, native)
	}
	return s + "}"
}

type jsonEntry struct {
	Key   string                  `json:"key"`
	Value ctyjson.SimpleJSONValue `json:"value"`
}

// MarshalJSON encodes the parameters as an ordered list of key/value pairs.
func (p *Params) MarshalJSON() ([]byte, error) {
	entries := make([]jsonEntry, 0, p.Len())
	for _, k := range p.Keys() {
		entries = append(entries, jsonEntry{Key: k, Value: ctyjson.SimpleJSONValue{Value: p.values[k]}})
	}
	return json.Marshal(entries)
}

// UnmarshalJSON restores parameters written by MarshalJSON.
func (p *Params) UnmarshalJSON(data []byte) error {
	var entries []jsonEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*p = Params{values: make(map[string]cty.Value, len(entries))}
	for _, e := range entries {
		p.Set(e.Key, e.Value.Value)
	}
	return nil
}
