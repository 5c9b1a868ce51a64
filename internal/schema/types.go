// Package schema reads the native column schemas of columnar files and
// reconciles them into one unified logical schema with per-file
// projection rules.
package schema

// Type is a semantic column type. The set is closed; reconciliation is
// defined only over these tags, never over raw engine type names.
type Type int

const (
	TypeInteger Type = iota
	TypeFloat
	TypeBoolean
	TypeText
	TypeTimestamp
	TypeNested
)

func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeText:
		return "text"
	case TypeTimestamp:
		return "timestamp"
	case TypeNested:
		return "nested"
	default:
		return "unknown"
	}
}

// SQL returns the DuckDB type name used for casts and null padding.
// Nested columns pass through uncast, so their SQL name is unused.
func (t Type) SQL() string {
	switch t {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeText:
		return "VARCHAR"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

// Reconcile merges two semantic types. Identical types merge directly
// and the numeric pair widens to float; every other combination is a
// conflict.
func Reconcile(a, b Type) (Type, bool) {
	if a == b {
		return a, true
	}
	if (a == TypeInteger && b == TypeFloat) || (a == TypeFloat && b == TypeInteger) {
		return TypeFloat, true
	}
	return 0, false
}
