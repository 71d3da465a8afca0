package main

import (
	"encoding/json"
	"fmt"

	"github.com/royalbit/forge"
)

// fixture is the on-disk JSON shape a model file is read from. It mirrors
// forge.Model but with JSON-friendly field names and untyped value
// literals, the way the teacher's own CLI tools (test/generate-sku-example.go)
// load a small hand-written fixture rather than a full workbook.
type fixture struct {
	FormatVersion string           `json:"format_version"`
	Tables        []fixtureTable   `json:"tables"`
	Scalars       []fixtureScalar  `json:"scalars"`
}

type fixtureTable struct {
	Name     string                 `json:"name"`
	Columns  []fixtureColumn        `json:"columns"`
	Formulas map[string]string      `json:"formulas"`
}

type fixtureColumn struct {
	Name   string        `json:"name"`
	Kind   string        `json:"kind"`
	Values []interface{} `json:"values"`
}

type fixtureScalar struct {
	Name    string      `json:"name"`
	Value   interface{} `json:"value"`
	Formula string      `json:"formula"`
}

func parseFixture(data []byte) (*forge.Model, error) {
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	m := forge.NewModel(fx.FormatVersion)
	for _, ft := range fx.Tables {
		table := forge.NewTable(ft.Name)
		for _, fc := range ft.Columns {
			kind, err := parseKind(fc.Kind)
			if err != nil {
				return nil, err
			}
			values := make([]forge.Value, len(fc.Values))
			for i, raw := range fc.Values {
				v, err := parseValue(kind, raw)
				if err != nil {
					return nil, fmt.Errorf("table %s column %s row %d: %w", ft.Name, fc.Name, i, err)
				}
				values[i] = v
			}
			col, err := forge.NewColumn(fc.Name, kind, values)
			if err != nil {
				return nil, err
			}
			if err := table.AddColumn(col); err != nil {
				return nil, err
			}
		}
		for name, formula := range ft.Formulas {
			table.AddDerivedColumn(name, formula)
		}
		m.AddTable(table)
	}
	for _, fs := range fx.Scalars {
		scalar := &forge.Scalar{Name: fs.Name, Formula: fs.Formula}
		if fs.Formula == "" && fs.Value != nil {
			v, err := parseValue(forge.KindNumber, fs.Value)
			if err != nil {
				if text, ok := fs.Value.(string); ok {
					tv := forge.NewText(text)
					scalar.Value = &tv
				} else {
					return nil, err
				}
			} else {
				scalar.Value = &v
			}
		}
		m.AddScalar(scalar)
	}
	return m, nil
}

func parseKind(s string) (forge.Kind, error) {
	switch s {
	case "number":
		return forge.KindNumber, nil
	case "text":
		return forge.KindText, nil
	case "boolean":
		return forge.KindBoolean, nil
	case "date":
		return forge.KindDate, nil
	}
	return 0, fmt.Errorf("unknown column kind %q", s)
}

func parseValue(kind forge.Kind, raw interface{}) (forge.Value, error) {
	switch kind {
	case forge.KindNumber:
		n, ok := raw.(float64)
		if !ok {
			return forge.Value{}, fmt.Errorf("expected a number, got %T", raw)
		}
		return forge.NewNumber(n), nil
	case forge.KindText:
		s, ok := raw.(string)
		if !ok {
			return forge.Value{}, fmt.Errorf("expected text, got %T", raw)
		}
		return forge.NewText(s), nil
	case forge.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return forge.Value{}, fmt.Errorf("expected a boolean, got %T", raw)
		}
		return forge.NewBoolean(b), nil
	case forge.KindDate:
		s, ok := raw.(string)
		if !ok {
			return forge.Value{}, fmt.Errorf("expected an ISO-8601 date string, got %T", raw)
		}
		return forge.NewDate(s), nil
	}
	return forge.Value{}, fmt.Errorf("unknown kind %v", kind)
}
