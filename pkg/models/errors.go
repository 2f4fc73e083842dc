package models

import "fmt"

// DataError reports a source that cannot feed the pipeline: a required column is
// missing or nothing survives cleaning.
type DataError struct {
	Reason string
	Column string
}

func (e *DataError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("data error: %s (column %q)", e.Reason, e.Column)
	}
	return "data error: " + e.Reason
}

// LabelError reports a training class with too few examples for stratified
// splitting or folding.
type LabelError struct {
	Class    string
	Count    int
	Required int
}

func (e *LabelError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("label error: %d classes present, at least %d required", e.Count, e.Required)
	}
	return fmt.Sprintf("label error: class %q has %d examples, at least %d required", e.Class, e.Count, e.Required)
}

// SchemaDriftError reports a feature encoding that cannot be aligned with the
// training-time column ordering.
type SchemaDriftError struct {
	Reason string
	Column string
}

func (e *SchemaDriftError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema drift: %s (column %q)", e.Reason, e.Column)
	}
	return "schema drift: " + e.Reason
}

// PersistenceError wraps a failed artifact write
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
