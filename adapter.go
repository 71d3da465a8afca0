package forge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"
)

// referenceResolver supplies the typed value a reference resolves to in
// the caller's current context (a row index, for row-wise formulas, or
// the scalar namespace, for scalar formulas).
type referenceResolver func(ref reference) (Value, error)

// adapter wraps the embedded spreadsheet-formula evaluator (spec.md
// §4.6). It keeps one throwaway worksheet alive for the lifetime of a
// single Calculate invocation: every formula evaluation gets its own row,
// one cell per distinct reference plus a reserved target cell, mirroring
// the teacher's per-call calcContext in calc_subexpr.go.
type adapter struct {
	f     *excelize.File
	sheet string
	row   int
}

// targetColumn is reserved far to the right of any plausible reference
// count so argument cells (allocated from column A) never collide with it.
const targetColumn = "ZZ"

func newAdapter() (*adapter, error) {
	f := excelize.NewFile()
	sheet := "forge_" + uuid.NewString()
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)
	return &adapter{f: f, sheet: sheet}, nil
}

func (a *adapter) Close() error {
	return a.f.Close()
}

// Evaluate resolves every reference in formula, substitutes them with
// addresses on a fresh worksheet row, and reads the computed result back
// through File.CalcCellValue.
func (a *adapter) Evaluate(formula string, resolve referenceResolver) (Value, error) {
	refs, err := extractReferences(formula)
	if err != nil {
		return Value{}, err
	}

	body := strings.TrimPrefix(strings.TrimSpace(formula), "=")
	if len(refs) == 1 && body == refs[0].text {
		return resolve(refs[0])
	}

	a.row++
	row := a.row

	sort.Slice(refs, func(i, j int) bool { return len(refs[i].text) > len(refs[j].text) })

	cellFor := make(map[string]string, len(refs))
	for i, r := range refs {
		val, err := resolve(r)
		if err != nil {
			return Value{}, err
		}
		colName, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return Value{}, err
		}
		cell := colName + strconv.Itoa(row)
		if err := a.f.SetCellValue(a.sheet, cell, toExcelValue(val)); err != nil {
			return Value{}, err
		}
		cellFor[r.text] = cell
	}

	substituted := body
	for _, r := range refs {
		substituted = strings.ReplaceAll(substituted, r.text, cellFor[r.text])
	}

	if err := validateTokens(substituted); err != nil {
		return Value{}, ParseError{Formula: formula, Reason: err.Error()}
	}

	target := targetColumn + strconv.Itoa(row)
	if err := a.f.SetCellFormula(a.sheet, target, "="+substituted); err != nil {
		return Value{}, ParseError{Formula: formula, Reason: err.Error()}
	}
	result, err := a.f.CalcCellValue(a.sheet, target, excelize.Options{RawCellValue: true})
	if err != nil {
		return Value{}, EvaluationError{Formula: formula, Code: err.Error()}
	}
	return valueFromExcel(result), nil
}

func toExcelValue(v Value) interface{} {
	switch v.Kind() {
	case KindNumber:
		n, _ := v.Number()
		return n
	case KindBoolean:
		b, _ := v.Boolean()
		return b
	default:
		return v.str
	}
}

// validateTokens runs the substituted formula through efp's tokenizer,
// the same pre-flight step the fork's dependency scanner uses before
// trusting a formula string (batch_dependency.go), so a malformed
// substitution surfaces as a ParseError instead of an opaque engine error.
func validateTokens(expr string) error {
	tokens := efp.ExcelParser().Parse(expr)
	for _, t := range tokens {
		if t.TType == efp.TokenTypeUnknown {
			return fmt.Errorf("unrecognized token %q", t.TValue)
		}
	}
	return nil
}

func valueFromExcel(raw string) Value {
	if raw == "TRUE" || raw == "FALSE" {
		return NewBoolean(raw == "TRUE")
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return NewNumber(n)
	}
	return NewText(raw)
}
