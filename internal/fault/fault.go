// Package fault defines the closed failure taxonomy shared by every
// pipeline stage. A request either produces a complete result table or
// exactly one Failure; raw errors never cross the public boundary.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a request failure. The set is closed: every stage
// converts its errors into exactly one of these before returning.
type Kind string

const (
	// KindNotFound reports that no files matched the given patterns, or
	// that a literal path does not exist or is unreadable.
	KindNotFound Kind = "not_found"
	// KindSchemaConflict reports that two files disagree on a column's
	// type in a way that cannot be widened.
	KindSchemaConflict Kind = "schema_conflict"
	// KindInvalidLimit reports that the memory or parallelism
	// specification could not be resolved to a valid positive limit.
	KindInvalidLimit Kind = "invalid_limit"
	// KindQueryError reports malformed SQL, an unknown column, or an
	// execution failure internal to the query logic.
	KindQueryError Kind = "query_error"
	// KindResourceExhausted reports that execution exceeded the
	// configured memory ceiling and was aborted.
	KindResourceExhausted Kind = "resource_exhausted"
	// KindCancelled reports that an external cancellation signal
	// interrupted the request before completion.
	KindCancelled Kind = "cancelled"
)

// Stage names the pipeline stage a failure originated in.
type Stage string

const (
	StageGoverning     Stage = "governing"
	StageResolving     Stage = "resolving"
	StageUnifying      Stage = "unifying"
	StageExecuting     Stage = "executing"
	StageMaterializing Stage = "materializing"
)

// Failure is the single error type returned to callers. Message holds a
// human-readable description; for KindQueryError it preserves the engine
// diagnostic verbatim.
type Failure struct {
	Kind    Kind
	Stage   Stage
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("flockql: %s (%s): %s", f.Kind, f.Stage, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// New builds a Failure from a format string.
func New(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a Failure preserving err as both detail and unwrap target.
func Wrap(kind Kind, err error, format string, args ...any) *Failure {
	message := fmt.Sprintf(format, args...)
	if err != nil {
		message = message + ": " + err.Error()
	}
	return &Failure{Kind: kind, Message: message, Err: err}
}

// At classifies err for the given stage. An existing Failure keeps its
// kind and gains the stage if it has none; context cancellation maps to
// KindCancelled; anything else takes the stage's fallback kind.
func At(stage Stage, err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		if failure.Stage == "" {
			failure.Stage = stage
		}
		return failure
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: KindCancelled, Stage: stage, Message: err.Error(), Err: err}
	}
	return &Failure{Kind: fallbackKind(stage), Stage: stage, Message: err.Error(), Err: err}
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var failure *Failure
	return errors.As(err, &failure) && failure.Kind == kind
}

func fallbackKind(stage Stage) Kind {
	switch stage {
	case StageGoverning:
		return KindInvalidLimit
	case StageResolving:
		return KindNotFound
	case StageUnifying:
		return KindSchemaConflict
	default:
		return KindQueryError
	}
}
