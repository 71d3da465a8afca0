package forge

import "fmt"

// planTables builds the table-level DAG (spec.md §4.2 pass 1): an edge
// A -> B exists iff some row-wise formula in B references a column of A.
// Ties among simultaneously-ready tables break by declaration order.
func planTables(m *Model) ([]string, error) {
	g := newDepGraph()
	for _, name := range m.TableOrder {
		g.addNode(name)
	}
	for _, tableName := range m.TableOrder {
		table := m.Tables[tableName]
		for _, col := range table.ColumnNames() {
			formula, ok := table.Formulas[col]
			if !ok {
				continue
			}
			refs, err := extractReferences(formula)
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				if r.kind == refBare {
					continue // local column or scalar, not a cross-table edge
				}
				if _, ok := m.Tables[r.name]; !ok {
					continue // refers to a scalar, handled by the scalar pass
				}
				if r.name != tableName {
					g.addEdge(r.name, tableName)
				}
			}
		}
	}
	order, err := g.order(m.TableOrder)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// planColumns orders a single table's derived columns (spec.md §4.2 pass
// 2): any column referenced locally must precede the column that uses it.
// Data (non-derived) columns are already satisfied and are not nodes.
func planColumns(table *Table) ([]string, error) {
	g := newDepGraph()
	derived := make(map[string]bool)
	for _, col := range table.ColumnNames() {
		if table.IsDerived(col) {
			derived[col] = true
			g.addNode(col)
		}
	}
	for col := range derived {
		refs, err := extractReferences(table.Formulas[col])
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			var local string
			switch r.kind {
			case refBare:
				local = r.name
			case refDotted, refIndexed:
				if r.name == table.Name {
					local = r.column
				}
			}
			if local != "" && derived[local] {
				g.addEdge(local, col)
			}
		}
	}
	return g.order(nil)
}

// planScalars orders scalars by dependency (spec.md §4.2 pass 3). A
// scalar may reference other scalars, whole columns via aggregations, or
// indexed cells; references to tables are already satisfied because every
// table is fully computed before any scalar runs.
func planScalars(m *Model) ([]string, error) {
	g := newDepGraph()
	for _, name := range m.ScalarOrder {
		g.addNode(name)
	}
	for _, name := range m.ScalarOrder {
		scalar := m.Scalars[name]
		if scalar.Formula == "" {
			continue
		}
		refs, err := extractReferences(scalar.Formula)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if r.kind != refBare {
				continue // T.c / T.c[i]: satisfied by table computation
			}
			if _, ok := m.Scalars[r.name]; ok && r.name != name {
				g.addEdge(r.name, name)
			}
		}
	}
	return g.order(nil)
}

// validateReferences checks that every reference a formula makes resolves
// to a defined target in the model (spec.md §3 invariant 3), returning
// UnknownReferenceError on the first one that doesn't.
func validateReferences(m *Model, hostTable *Table, formula, context string) error {
	refs, err := extractReferences(formula)
	if err != nil {
		return err
	}
	for _, r := range refs {
		switch r.kind {
		case refBare:
			if hostTable != nil {
				if _, ok := hostTable.Column(r.name); ok {
					continue
				}
			}
			if _, ok := m.Scalars[r.name]; ok {
				continue
			}
			if _, ok := m.Tables[r.name]; ok {
				continue
			}
			return UnknownReferenceError{Name: r.name, Context: context}
		case refDotted, refIndexed:
			table, ok := m.Tables[r.name]
			if !ok {
				return UnknownReferenceError{Name: r.name, Context: context}
			}
			col, ok := table.Column(r.column)
			if !ok {
				if table.IsDerived(r.column) {
					continue
				}
				return UnknownReferenceError{Name: fmt.Sprintf("%s.%s", r.name, r.column), Context: context}
			}
			if r.kind == refIndexed && (r.index < 0 || r.index >= col.Len()) {
				return IndexOutOfBoundsError{Table: r.name, Column: r.column, Index: r.index, Len: col.Len()}
			}
		}
	}
	return nil
}
