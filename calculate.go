package forge

// Options configures a Calculate invocation. The zero value is valid: it
// uses the system clock and applies no rounding beyond IEEE-754 float64
// precision.
type Options struct {
	// Clock supplies the instant TODAY()/NOW() resolve to. Nil selects
	// SystemClock.
	Clock Clock
	// StrictNumericRounding rounds every computed Number to 1e-6
	// resolution (half-away-from-zero), per spec.md §8 property 1.
	StrictNumericRounding bool
	// Debug routes forgeLog's diagnostics to stderr for the duration of
	// this call. Silent (the zero value) by default.
	Debug bool
}

func (o Options) clockOrDefault() Clock {
	if o.Clock == nil {
		return SystemClock{}
	}
	return o.Clock
}

// Calculate computes every derived column and scalar in m and returns a
// new, fully-computed Model (spec.md §6). m itself is never mutated: on
// any error the returned Model is nil, so a caller can never observe a
// partially-computed result (spec.md §7).
func Calculate(m *Model, opts Options) (*Model, error) {
	setDebugLogging(opts.Debug)

	if err := m.CheckInvariants(); err != nil {
		return nil, err
	}

	work := cloneModel(m)

	ad, err := newAdapter()
	if err != nil {
		return nil, err
	}
	defer ad.Close()

	tableOrder, err := planTables(work)
	if err != nil {
		return nil, err
	}
	forgeLog.Printf("table order: %v", tableOrder)
	for _, tableName := range tableOrder {
		table := work.Tables[tableName]
		columnOrder, err := planColumns(table)
		if err != nil {
			return nil, err
		}
		forgeLog.Printf("table %q: evaluating derived columns %v", tableName, columnOrder)
		for _, column := range columnOrder {
			computed, err := evaluateRowwiseColumn(work, table, column, ad, opts)
			if err != nil {
				return nil, err
			}
			table.SetColumn(computed)
		}
	}

	scalarOrder, err := planScalars(work)
	if err != nil {
		return nil, err
	}
	forgeLog.Printf("scalar order: %v", scalarOrder)
	for _, name := range scalarOrder {
		scalar := work.Scalars[name]
		if scalar.Formula == "" {
			continue
		}
		val, err := evaluateScalar(work, scalar, ad, opts)
		if err != nil {
			return nil, err
		}
		scalar.Value = &val
	}

	return work, nil
}

// cloneModel deep-copies a Model so Calculate can mutate its working copy
// freely without ever exposing partial results through the caller's own
// reference.
func cloneModel(m *Model) *Model {
	out := NewModel(m.FormatVersion)
	for _, name := range m.TableOrder {
		out.AddTable(cloneTable(m.Tables[name]))
	}
	for _, name := range m.ScalarOrder {
		s := m.Scalars[name]
		clone := &Scalar{Name: s.Name, Formula: s.Formula}
		if s.Value != nil {
			v := *s.Value
			clone.Value = &v
		}
		out.AddScalar(clone)
	}
	return out
}

func cloneTable(t *Table) *Table {
	out := NewTable(t.Name)
	for _, name := range t.columnOrder {
		if col, ok := t.columns[name]; ok {
			values := make([]Value, len(col.Values))
			copy(values, col.Values)
			out.SetColumn(&Column{Name: col.Name, Kind: col.Kind, Values: values})
		} else if _, derived := t.Formulas[name]; derived {
			out.known[name] = true
			out.columnOrder = append(out.columnOrder, name)
		}
	}
	for name, formula := range t.Formulas {
		out.Formulas[name] = formula
	}
	return out
}
