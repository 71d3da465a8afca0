package forge

import "fmt"

// Every error kind in spec.md §7 is a distinct struct type implementing
// error, following the teacher's ErrSheetNotExist{SheetName string}
// convention (batch.go) rather than sentinel errors.New values: a struct
// carries the formula text, the table/column or scalar name, and (for
// row-wise errors) the row index that callers need to report a useful
// diagnostic.

// CircularDependencyError reports a cycle in the dependency graph.
type CircularDependencyError struct {
	Cycle []string // node names, in cycle order
}

func (e CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %v", e.Cycle)
}

// UnknownReferenceError reports an identifier or T.c that does not resolve.
type UnknownReferenceError struct {
	Name    string // the unresolved reference text
	Context string // formula text or scalar/table.column it was found in
}

func (e UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown reference %q in %s", e.Name, e.Context)
}

// LengthMismatchError reports two columns of differing length referenced
// by the same row-wise formula.
type LengthMismatchError struct {
	LeftName   string
	LeftLen    int
	RightName  string
	RightLen   int
	Context    string
}

func (e LengthMismatchError) Error() string {
	return fmt.Sprintf("length mismatch in %s: %s has %d rows, %s has %d rows",
		e.Context, e.LeftName, e.LeftLen, e.RightName, e.RightLen)
}

// EmptyTableError reports a row-wise formula on a zero-row table.
type EmptyTableError struct {
	Table  string
	Column string
}

func (e EmptyTableError) Error() string {
	return fmt.Sprintf("table %q has zero rows, cannot evaluate %q", e.Table, e.Column)
}

// EmptyRangeError reports MAX/MIN (and similar) over an empty or fully
// filtered-out column.
type EmptyRangeError struct {
	Context string
}

func (e EmptyRangeError) Error() string {
	return fmt.Sprintf("empty range in %s", e.Context)
}

// TypeMismatchError reports an operation that received the wrong value
// kind, or a row-wise formula that produced mixed kinds across rows.
type TypeMismatchError struct {
	Context string
	Want    Kind
	Got     Kind
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch in %s: want %s, got %s", e.Context, e.Want, e.Got)
}

// IndexOutOfBoundsError reports T.c[i] outside the column's bounds.
type IndexOutOfBoundsError struct {
	Table  string
	Column string
	Index  int
	Len    int
}

func (e IndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("index %d out of bounds for %s.%s (length %d)", e.Index, e.Table, e.Column, e.Len)
}

// DivideByZeroError reports explicit division by zero or an AVERAGE*
// family aggregation with no matching rows.
type DivideByZeroError struct {
	Context string
}

func (e DivideByZeroError) Error() string {
	return fmt.Sprintf("divide by zero in %s", e.Context)
}

// ParseError reports a malformed formula or criteria string.
type ParseError struct {
	Formula string
	Reason  string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse error in %q: %s", e.Formula, e.Reason)
}

// EvaluationError reports the embedded expression engine returning its
// error variant.
type EvaluationError struct {
	Formula string
	Code    string
}

func (e EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error %s in %q", e.Code, e.Formula)
}

// cellContext builds the "table.column[row]" or "scalar" context string
// used by several error payloads.
func cellContext(table, column string, row int) string {
	if table == "" {
		return column
	}
	if row < 0 {
		return table + "." + column
	}
	return fmt.Sprintf("%s.%s[row %d]", table, column, row)
}
