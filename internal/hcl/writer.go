package hcl

import (
	"fmt"
	"io"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/lmrun/internal/config"
	"github.com/vk/lmrun/internal/fsutil"
)

// Render formats params as an HCL attribute file.
func Render(params *config.Params) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	for _, k := range params.Keys() {
		v, _ := params.Get(k)
		body.SetAttributeValue(k, v)
	}
	return f.Bytes()
}

// Write renders params to w.
func Write(w io.Writer, params *config.Params) error {
	_, err := w.Write(Render(params))
	return err
}

// WriteFile renders params into the file at path.
func WriteFile(path string, params *config.Params) error {
	if err := fsutil.WriteFileAtomic(path, Render(params), 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
