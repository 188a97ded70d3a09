// Package dataset prepares a character-level corpus and supplies training and
// validation batches from it.
//
// The training loop only sees the BatchSource interface. A CorpusSource binds
// the encoded corpus, the block size, the device and the run's random context
// once at setup time, so callers never re-specify them per batch.
package dataset
