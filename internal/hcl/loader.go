package hcl

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/ctxlog"
	"github.com/vk/lmrun/internal/runerr"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// SetupPrefix is prepended to a configuration name to find its fixed
// (task) settings file.
const SetupPrefix = "setup_"

// Loader reads HCL configuration files.
type Loader struct {
	// Dir is the directory bare configuration names are resolved against.
	Dir string
}

// NewLoader creates a new HCL configuration loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

// evalContext is the expression context for attribute values. Only pure
// numeric helpers are exposed; there are no variables.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"min":   stdlib.MinFunc,
			"max":   stdlib.MaxFunc,
			"pow":   stdlib.PowFunc,
			"floor": stdlib.FloorFunc,
			"ceil":  stdlib.CeilFunc,
		},
	}
}

// Resolve maps a configuration name to a file path. Names with a path
// separator or an .hcl extension are used as given; otherwise any extension is
// stripped and the name is looked up as <Dir>/<name>.hcl.
func (l *Loader) Resolve(name string) string {
	if strings.ContainsRune(name, filepath.Separator) || filepath.Ext(name) == ".hcl" {
		return name
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(l.Dir, base+".hcl")
}

// ResolveSetup maps a configuration name to its fixed settings file,
// <Dir>/setup_<name>.hcl.
func (l *Loader) ResolveSetup(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(l.Dir, SetupPrefix+base+".hcl")
}

// Load parses the named configuration into Params.
func (l *Loader) Load(ctx context.Context, name string) (*config.Params, error) {
	return l.LoadFile(ctx, l.Resolve(name))
}

// LoadSetup parses the fixed settings file belonging to the named
// configuration.
func (l *Loader) LoadSetup(ctx context.Context, name string) (*config.Params, error) {
	return l.LoadFile(ctx, l.ResolveSetup(name))
}

// LoadFile parses a single HCL file into Params, keeping attribute order.
func (l *Loader) LoadFile(ctx context.Context, path string) (*config.Params, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	if _, err := os.Stat(path); err != nil {
		return nil, runerr.Configuration("load config", "error accessing %s: %w", path, err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, runerr.Configuration("load config", "failed to parse HCL file %s: %w", path, diags)
	}

	params, err := decodeAttributes(file.Body)
	if err != nil {
		return nil, runerr.Configuration("load config", "failed to decode HCL file %s: %w", path, err)
	}

	logger.Debug("HCL loading complete.", "path", path, "keys", params.Len())
	return params, nil
}

// decodeAttributes evaluates every top-level attribute of body.
func decodeAttributes(body hcl.Body) (*config.Params, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	ordered := make([]*hcl.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		ordered = append(ordered, attr)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Range.Start.Byte < ordered[j].Range.Start.Byte
	})

	evalCtx := evalContext()
	params := config.NewParams()
	for _, attr := range ordered {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		params.Set(attr.Name, val)
	}
	return params, nil
}
