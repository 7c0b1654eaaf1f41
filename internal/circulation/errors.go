package circulation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies circulation errors so the HTTP layer can map them to
// status codes without string matching.
type Kind string

// Error kinds.
const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation_failure"
	KindConflict           Kind = "conflict"
	KindInventoryExhausted Kind = "inventory_exhausted"
	KindIllegalTransition  Kind = "illegal_transition"
)

// Error is a circulation failure carrying a kind and a field → message map,
// so one call can report every violation at once.
type Error struct {
	Kind   Kind
	Fields map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return string(e.Kind)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Kind, strings.Join(parts, "; "))
}

// KindOf returns the kind of a circulation error, or "" for any other error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// FieldsOf returns the field map of a circulation error, or nil.
func FieldsOf(err error) map[string]string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Fields
	}
	return nil
}

func newError(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Fields: map[string]string{field: message}}
}

func notFound(field string) *Error {
	return newError(KindNotFound, field, field+" not found")
}
