// Package runerr defines the error taxonomy of a training run. Each kind
// wraps an underlying cause and names the operation that failed, so callers
// can branch on the kind with errors.As while the message keeps the full
// chain.
package runerr

import (
	"errors"
	"fmt"
)

// Kind classifies a run error.
type Kind int

const (
	// KindConfiguration covers missing keys, wrong value types and malformed
	// checkpoints. Always fatal, raised before training starts.
	KindConfiguration Kind = iota
	// KindData covers batch fetch failures and malformed batches. Fatal and
	// never retried.
	KindData
	// KindTrainingStep covers numerical failures inside a step.
	KindTrainingStep
	// KindReporting covers experiment-tracking failures. Never fatal.
	KindReporting
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindData:
		return "data error"
	case KindTrainingStep:
		return "training step error"
	case KindReporting:
		return "reporting error"
	default:
		return "unknown error"
	}
}

// Error is a classified run error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind with no operation
// set, which lets the sentinel values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrData          = &Error{Kind: KindData}
	ErrTrainingStep  = &Error{Kind: KindTrainingStep}
	ErrReporting     = &Error{Kind: KindReporting}
)

func newError(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Configuration returns a configuration error. The format follows fmt.Errorf,
// so %w keeps the cause unwrappable.
func Configuration(op, format string, args ...any) error {
	return newError(KindConfiguration, op, format, args...)
}

// Data returns a data error.
func Data(op, format string, args ...any) error {
	return newError(KindData, op, format, args...)
}

// TrainingStep returns a training step error.
func TrainingStep(op, format string, args ...any) error {
	return newError(KindTrainingStep, op, format, args...)
}

// Reporting returns a reporting error.
func Reporting(op, format string, args ...any) error {
	return newError(KindReporting, op, format, args...)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err must stop the run. Unclassified errors are
// fatal; reporting errors are not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	kind, ok := KindOf(err)
	return !ok || kind != KindReporting
}
