package config

// Layered is the two-tier run configuration: a swept tier that changes from
// run to run and a fixed tier of task constants (seed, device, data shape).
type Layered struct {
	Variable *Params
	Fixed    *Params
}

// Flatten resolves the two tiers into one flat configuration.
func (l Layered) Flatten() *Params {
	return Merge(l.Variable, l.Fixed)
}

// Overrides lists the swept keys the fixed tier overrides.
func (l Layered) Overrides() []string {
	return Overrides(l.Variable, l.Fixed)
}

// Merge combines a variable and a fixed configuration into a new flat
// configuration holding the union of their keys. On collision the fixed value
// wins, so a sweep can never perturb task constraints such as the seed or the
// device. Neither input is modified; nil inputs count as empty.
//
// Keys keep the order of the variable tier, followed by fixed-only keys in
// their own order.
func Merge(variable, fixed *Params) *Params {
	out := variable.Clone()
	for _, k := range fixed.Keys() {
		v, _ := fixed.Get(k)
		out.Set(k, v)
	}
	return out
}

// Overrides lists the keys of variable whose values Merge replaced with the
// fixed tier's value.
func Overrides(variable, fixed *Params) []string {
	var keys []string
	for _, k := range variable.Keys() {
		fv, ok := fixed.Get(k)
		if !ok {
			continue
		}
		vv, _ := variable.Get(k)
		if !vv.RawEquals(fv) {
			keys = append(keys, k)
		}
	}
	return keys
}
