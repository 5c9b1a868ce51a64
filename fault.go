package flockql

import "github.com/flockql/flockql/internal/fault"

// Failure is the only error type Run returns: one classified kind, the
// stage it arose in, and a human-readable message. For KindQueryError
// the message preserves the engine diagnostic verbatim.
type Failure = fault.Failure

// Kind classifies a failure; the taxonomy is closed.
type Kind = fault.Kind

// Stage names the pipeline stage a failure originated in.
type Stage = fault.Stage

const (
	KindNotFound          = fault.KindNotFound
	KindSchemaConflict    = fault.KindSchemaConflict
	KindInvalidLimit      = fault.KindInvalidLimit
	KindQueryError        = fault.KindQueryError
	KindResourceExhausted = fault.KindResourceExhausted
	KindCancelled         = fault.KindCancelled
)

const (
	StageGoverning     = fault.StageGoverning
	StageResolving     = fault.StageResolving
	StageUnifying      = fault.StageUnifying
	StageExecuting     = fault.StageExecuting
	StageMaterializing = fault.StageMaterializing
)

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	return fault.IsKind(err, kind)
}
