// Package hcl loads run configurations from HCL files into config.Params and
// writes resolved configurations back out.
//
// A configuration file is a flat list of attributes:
//
//	learning_rate = 3e-4
//	n_hidden      = 128
//	scheduler     = "cosine"
//	warmup_steps  = max(10, 200 / 20)
//
// Blocks are rejected. Attribute order in the file is preserved.
package hcl
