package forge

// Column is a named, homogeneous sequence of values belonging to a Table.
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// NewColumn constructs a Column, rejecting heterogeneous input.
func NewColumn(name string, kind Kind, values []Value) (*Column, error) {
	for i, v := range values {
		if v.Kind() != kind {
			return nil, TypeMismatchError{Context: cellContext("", name, i), Want: kind, Got: v.Kind()}
		}
	}
	return &Column{Name: name, Kind: kind, Values: values}, nil
}

// Len reports the column's row count.
func (c *Column) Len() int { return len(c.Values) }

// Table is a bag of equal-length typed columns, plus a mapping from
// derived-column name to its row-wise formula string. Column order is
// insertion order, preserved via columnOrder for determinism.
type Table struct {
	Name        string
	columns     map[string]*Column
	columnOrder []string
	known       map[string]bool // every column name ever declared, computed or not
	Formulas    map[string]string // derived column name -> formula text
}

// NewTable constructs an empty, named Table.
func NewTable(name string) *Table {
	return &Table{
		Name:        name,
		columns:     make(map[string]*Column),
		columnOrder: nil,
		known:       make(map[string]bool),
		Formulas:    make(map[string]string),
	}
}

// AddColumn appends a data column to the table. Returns LengthMismatchError
// if the table already has columns and this one's length disagrees.
func (t *Table) AddColumn(col *Column) error {
	if existing := t.RowCount(); len(t.columns) > 0 && existing != col.Len() {
		var first *Column
		for _, name := range t.columnOrder {
			if c, ok := t.columns[name]; ok {
				first = c
				break
			}
		}
		return LengthMismatchError{
			LeftName: first.Name, LeftLen: first.Len(),
			RightName: col.Name, RightLen: col.Len(),
			Context: t.Name,
		}
	}
	if !t.known[col.Name] {
		t.known[col.Name] = true
		t.columnOrder = append(t.columnOrder, col.Name)
	}
	t.columns[col.Name] = col
	return nil
}

// AddDerivedColumn declares a derived column's formula. The column itself
// is materialized by the row-wise evaluator during Calculate.
func (t *Table) AddDerivedColumn(name, formula string) {
	if !t.known[name] {
		t.known[name] = true
		t.columnOrder = append(t.columnOrder, name)
	}
	t.Formulas[name] = formula
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.columns[name]
	return c, ok
}

// SetColumn overwrites (or inserts) a column's data, preserving order if
// the name was already known.
func (t *Table) SetColumn(col *Column) {
	if !t.known[col.Name] {
		t.known[col.Name] = true
		t.columnOrder = append(t.columnOrder, col.Name)
	}
	t.columns[col.Name] = col
}

// ColumnNames returns column names in insertion order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.columnOrder))
	copy(out, t.columnOrder)
	return out
}

// IsDerived reports whether a column name has a formula (derived) rather
// than being a plain data column.
func (t *Table) IsDerived(name string) bool {
	_, ok := t.Formulas[name]
	return ok
}

// RowCount returns the table's row count: the length of its first column,
// or 0 if it has none yet.
func (t *Table) RowCount() int {
	for _, name := range t.columnOrder {
		if col, ok := t.columns[name]; ok {
			return col.Len()
		}
	}
	return 0
}

// CheckInvariants verifies that every column in the table has equal
// length and a fixed kind (spec.md §3 invariants 1-2).
func (t *Table) CheckInvariants() error {
	var first *Column
	for _, name := range t.columnOrder {
		col := t.columns[name]
		if col == nil {
			continue
		}
		if first == nil {
			first = col
			continue
		}
		if col.Len() != first.Len() {
			return LengthMismatchError{
				LeftName: first.Name, LeftLen: first.Len(),
				RightName: col.Name, RightLen: col.Len(),
				Context: t.Name,
			}
		}
	}
	return nil
}

// Scalar is a single named cell at model scope. Three shapes are valid:
// (Value set, Formula empty) constant; (Value nil, Formula set) purely
// derived; (both set) Value is a stale cached computation, overwritten by
// the evaluator.
type Scalar struct {
	Name    string
	Value   *Value
	Formula string
}

// Model is the in-memory representation handed to Calculate: tables and
// scalars share a namespace for cross-references (spec.md §3).
type Model struct {
	FormatVersion string
	Tables        map[string]*Table
	TableOrder    []string
	Scalars       map[string]*Scalar
	ScalarOrder   []string
}

// NewModel constructs an empty Model.
func NewModel(formatVersion string) *Model {
	return &Model{
		FormatVersion: formatVersion,
		Tables:        make(map[string]*Table),
		Scalars:       make(map[string]*Scalar),
	}
}

// AddTable registers a table, appending to TableOrder if new.
func (m *Model) AddTable(t *Table) {
	if _, exists := m.Tables[t.Name]; !exists {
		m.TableOrder = append(m.TableOrder, t.Name)
	}
	m.Tables[t.Name] = t
}

// AddScalar registers a scalar, appending to ScalarOrder if new.
func (m *Model) AddScalar(s *Scalar) {
	if _, exists := m.Scalars[s.Name]; !exists {
		m.ScalarOrder = append(m.ScalarOrder, s.Name)
	}
	m.Scalars[s.Name] = s
}

// HasName reports whether name is a known table or scalar (they share one
// namespace for references, per spec.md §3).
func (m *Model) HasName(name string) bool {
	if _, ok := m.Tables[name]; ok {
		return true
	}
	_, ok := m.Scalars[name]
	return ok
}

// CheckInvariants verifies invariant 1 and 2 (spec.md §3) across every
// table in the model.
func (m *Model) CheckInvariants() error {
	for _, name := range m.TableOrder {
		if err := m.Tables[name].CheckInvariants(); err != nil {
			return err
		}
	}
	return nil
}
