package forge

// evaluateRowwiseColumn computes a derived column's values row by row
// (spec.md §4.3): every reference is resolved at the current row, the
// formula is preprocessed to strip custom functions, and the resulting
// engine-native expression is handed to the adapter. A homogeneous Kind
// is enforced across all rows before the column is accepted.
func evaluateRowwiseColumn(m *Model, table *Table, column string, ad *adapter, opts Options) (*Column, error) {
	formula := table.Formulas[column]
	rows := table.RowCount()
	if rows == 0 {
		return nil, EmptyTableError{Table: table.Name, Column: column}
	}
	context := cellContext(table.Name, column, -1)
	if err := validateReferences(m, table, formula, context); err != nil {
		return nil, err
	}
	if err := checkReferencedLengths(m, table, formula, context); err != nil {
		return nil, err
	}

	values := make([]Value, rows)
	var kind Kind
	kindSet := false

	for row := 0; row < rows; row++ {
		resolve := func(r reference) (Value, error) {
			return resolveReference(m, table, r, row)
		}
		eval := func(expr string) (Value, error) {
			return ad.Evaluate(expr, resolve)
		}

		native, err := preprocessFormula(formula, eval, opts.clockOrDefault())
		if err != nil {
			return nil, err
		}
		val, err := ad.Evaluate(native, resolve)
		if err != nil {
			return nil, err
		}
		if val.Kind() == KindNumber && opts.StrictNumericRounding {
			n, _ := val.Number()
			val = NewNumber(roundTo1e6(n))
		}
		if !kindSet {
			kind = val.Kind()
			kindSet = true
		} else if val.Kind() != kind {
			return nil, TypeMismatchError{Context: cellContext(table.Name, column, row), Want: kind, Got: val.Kind()}
		}
		values[row] = val
	}

	return &Column{Name: column, Kind: kind, Values: values}, nil
}

// checkReferencedLengths enforces spec.md §4.3 step 2: every U.x reference
// a row-wise formula makes must have the host table's row count, checked
// once up front rather than per row.
func checkReferencedLengths(m *Model, hostTable *Table, formula, context string) error {
	refs, err := extractReferences(formula)
	if err != nil {
		return err
	}
	rows := hostTable.RowCount()
	for _, r := range refs {
		if r.kind != refDotted {
			continue
		}
		table, ok := m.Tables[r.name]
		if !ok {
			continue
		}
		col, ok := table.Column(r.column)
		if !ok || col.Len() == rows {
			continue
		}
		return LengthMismatchError{
			LeftName: hostTable.Name, LeftLen: rows,
			RightName: r.text, RightLen: col.Len(),
			Context: context,
		}
	}
	return nil
}

// resolveReference resolves a single reference in the context of a
// row-wise formula evaluation at the given row of hostTable. Bare names
// are tried against the host table's columns first, then the model's
// scalars, per SPEC_FULL.md §12's resolver fallback decision.
func resolveReference(m *Model, hostTable *Table, r reference, row int) (Value, error) {
	switch r.kind {
	case refBare:
		if col, ok := hostTable.Column(r.name); ok {
			if row >= col.Len() {
				return Value{}, IndexOutOfBoundsError{Table: hostTable.Name, Column: r.name, Index: row, Len: col.Len()}
			}
			return col.Values[row], nil
		}
		if scalar, ok := m.Scalars[r.name]; ok {
			if scalar.Value == nil {
				return Value{}, UnknownReferenceError{Name: r.name, Context: hostTable.Name}
			}
			return *scalar.Value, nil
		}
		return Value{}, UnknownReferenceError{Name: r.name, Context: hostTable.Name}
	case refDotted:
		table, ok := m.Tables[r.name]
		if !ok {
			return Value{}, UnknownReferenceError{Name: r.name, Context: hostTable.Name}
		}
		col, ok := table.Column(r.column)
		if !ok {
			return Value{}, UnknownReferenceError{Name: r.text, Context: hostTable.Name}
		}
		if row >= col.Len() {
			return Value{}, IndexOutOfBoundsError{Table: r.name, Column: r.column, Index: row, Len: col.Len()}
		}
		return col.Values[row], nil
	case refIndexed:
		table, ok := m.Tables[r.name]
		if !ok {
			return Value{}, UnknownReferenceError{Name: r.name, Context: hostTable.Name}
		}
		col, ok := table.Column(r.column)
		if !ok || r.index < 0 || r.index >= col.Len() {
			len := 0
			if col != nil {
				len = col.Len()
			}
			return Value{}, IndexOutOfBoundsError{Table: r.name, Column: r.column, Index: r.index, Len: len}
		}
		return col.Values[r.index], nil
	}
	return Value{}, UnknownReferenceError{Name: r.text, Context: hostTable.Name}
}
