package forge

import (
	"strconv"
	"strings"
)

// plainAggregationFunctions, singleCriterionFunctions and
// multiCriterionFunctions are the call names evaluateScalar computes directly
// against column data, rather than handing to the expression engine: the
// engine never sees a whole column, only the single scalar cell being
// produced (spec.md §4.4). The criteria-string grammar (">x", "<=x", ...)
// has no precedent in the embedded engine's own pattern matchers, which
// only ever group by exact equality (scanRowsAndBuildResultMap); it is
// written fresh against spec.md's own glossary.
var plainAggregationFunctions = []string{"SUM", "AVERAGE", "MAX", "MIN", "COUNT", "PRODUCT"}
var singleCriterionFunctions = []string{"SUMIF", "COUNTIF", "AVERAGEIF"}
var multiCriterionFunctions = []string{"SUMIFS", "COUNTIFS", "AVERAGEIFS", "MAXIFS", "MINIFS"}

func isAggregationFunction(name string) bool {
	for _, list := range [][]string{plainAggregationFunctions, singleCriterionFunctions, multiCriterionFunctions} {
		for _, n := range list {
			if n == name {
				return true
			}
		}
	}
	return false
}

// evaluateScalar computes a scalar's value (spec.md §4.4): aggregation
// calls are rewritten host-side into literals first (innermost-out, the
// same recursion shape as preprocessFormula), then whatever remains is
// handed to the expression engine exactly like a row-wise formula.
func evaluateScalar(m *Model, scalar *Scalar, ad *adapter, opts Options) (Value, error) {
	formula := scalar.Formula
	if err := validateReferences(m, nil, formula, cellContext("", scalar.Name, -1)); err != nil {
		return Value{}, err
	}

	resolve := func(r reference) (Value, error) {
		return resolveScalarReference(m, r)
	}
	eval := func(expr string) (Value, error) {
		return ad.Evaluate(expr, resolve)
	}

	rewritten, err := rewriteAggregations(formula, m, eval)
	if err != nil {
		return Value{}, err
	}
	native, err := preprocessFormula(rewritten, eval, opts.clockOrDefault())
	if err != nil {
		return Value{}, err
	}
	val, err := ad.Evaluate(native, resolve)
	if err != nil {
		return Value{}, err
	}
	if val.Kind() == KindNumber && opts.StrictNumericRounding {
		n, _ := val.Number()
		val = NewNumber(roundTo1e6(n))
	}
	return val, nil
}

// resolveScalarReference resolves a bare or indexed reference found in
// scalar-formula text. Aggregation arguments are resolved separately
// (resolveColumnArg), so only plain references reach here: another
// scalar, or an indexed cell T.c[i].
func resolveScalarReference(m *Model, r reference) (Value, error) {
	switch r.kind {
	case refBare:
		if scalar, ok := m.Scalars[r.name]; ok {
			if scalar.Value == nil {
				return Value{}, UnknownReferenceError{Name: r.name, Context: "scalar"}
			}
			return *scalar.Value, nil
		}
		return Value{}, UnknownReferenceError{Name: r.name, Context: "scalar"}
	case refDotted, refIndexed:
		table, ok := m.Tables[r.name]
		if !ok {
			return Value{}, UnknownReferenceError{Name: r.name, Context: "scalar"}
		}
		col, ok := table.Column(r.column)
		if !ok {
			return Value{}, UnknownReferenceError{Name: r.text, Context: "scalar"}
		}
		idx := r.index
		if r.kind == refDotted {
			if col.Len() != 1 {
				return Value{}, TypeMismatchError{Context: "scalar." + r.text, Want: KindNumber, Got: col.Kind}
			}
			idx = 0
		}
		if idx < 0 || idx >= col.Len() {
			return Value{}, IndexOutOfBoundsError{Table: r.name, Column: r.column, Index: idx, Len: col.Len()}
		}
		return col.Values[idx], nil
	}
	return Value{}, UnknownReferenceError{Name: r.text, Context: "scalar"}
}

// rewriteAggregations finds every aggregation call in formula and replaces
// it with its computed literal, recursing into arguments first so nested
// aggregations resolve innermost-out (mirrors preprocessFormula).
func rewriteAggregations(formula string, m *Model, eval exprEvaluator) (string, error) {
	for {
		name, start, end, ok := findFirstAggregationCall(formula)
		if !ok {
			return formula, nil
		}
		inner := formula[start+len(name)+1 : end-1]
		args, err := splitArgs(inner)
		if err != nil {
			return "", err
		}
		for i, a := range args {
			rewritten, err := rewriteAggregations(a, m, eval)
			if err != nil {
				return "", err
			}
			args[i] = rewritten
		}
		replacement, err := evaluateAggregationCall(name, args, m, eval)
		if err != nil {
			return "", err
		}
		formula = formula[:start] + replacement + formula[end:]
	}
}

func findFirstAggregationCall(formula string) (name string, start, end int, ok bool) {
	for i := 0; i < len(formula); i++ {
		if !isIdentStart(rune(formula[i])) {
			continue
		}
		j := i
		for j < len(formula) && isIdentPart(rune(formula[j])) {
			j++
		}
		candidate := formula[i:j]
		if j >= len(formula) || formula[j] != '(' || !isAggregationFunction(candidate) {
			i = j - 1
			continue
		}
		s, e, found := findCall(formula, candidate, i)
		if found {
			return candidate, s, e, true
		}
		i = j - 1
	}
	return "", 0, 0, false
}

func evaluateAggregationCall(name string, args []string, m *Model, eval exprEvaluator) (string, error) {
	switch name {
	case "SUM", "AVERAGE", "MAX", "MIN", "COUNT", "PRODUCT":
		if len(args) != 1 {
			return "", ParseError{Formula: name, Reason: name + " requires 1 argument"}
		}
		col, err := resolveColumnArg(m, args[0])
		if err != nil {
			return "", err
		}
		return aggregatePlain(name, col)
	case "SUMIF", "COUNTIF", "AVERAGEIF":
		return evaluateIfFunction(name, args, m, eval)
	case "SUMIFS", "COUNTIFS", "AVERAGEIFS", "MAXIFS", "MINIFS":
		return evaluateIfsFunction(name, args, m, eval)
	}
	return "", ParseError{Formula: name, Reason: "unsupported aggregation function"}
}

func aggregatePlain(name string, col *Column) (string, error) {
	if name != "COUNT" && col.Kind != KindNumber {
		return "", TypeMismatchError{Context: name + "(" + col.Name + ")", Want: KindNumber, Got: col.Kind}
	}
	var nums []float64
	for _, v := range col.Values {
		if v.Kind() == KindNumber {
			n, _ := v.Number()
			nums = append(nums, n)
		}
	}
	switch name {
	case "COUNT":
		return NewNumber(float64(len(nums))).Literal(), nil
	case "SUM":
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return NewNumber(sum).Literal(), nil
	case "PRODUCT":
		product := 1.0
		for _, n := range nums {
			product *= n
		}
		return NewNumber(product).Literal(), nil
	case "AVERAGE":
		if len(nums) == 0 {
			return "", DivideByZeroError{Context: "AVERAGE(" + col.Name + ")"}
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return NewNumber(sum / float64(len(nums))).Literal(), nil
	case "MAX":
		if len(nums) == 0 {
			return "", EmptyRangeError{Context: "MAX(" + col.Name + ")"}
		}
		max := nums[0]
		for _, n := range nums[1:] {
			if n > max {
				max = n
			}
		}
		return NewNumber(max).Literal(), nil
	case "MIN":
		if len(nums) == 0 {
			return "", EmptyRangeError{Context: "MIN(" + col.Name + ")"}
		}
		min := nums[0]
		for _, n := range nums[1:] {
			if n < min {
				min = n
			}
		}
		return NewNumber(min).Literal(), nil
	}
	return "", ParseError{Formula: name, Reason: "unsupported aggregation function"}
}

func evaluateIfFunction(name string, args []string, m *Model, eval exprEvaluator) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", ParseError{Formula: name, Reason: name + " requires 2 or 3 arguments"}
	}
	criteriaCol, err := resolveColumnArg(m, args[0])
	if err != nil {
		return "", err
	}
	criteria, err := evalText(eval, args[1])
	if err != nil {
		return "", err
	}
	valueCol := criteriaCol
	if len(args) == 3 {
		valueCol, err = resolveColumnArg(m, args[2])
		if err != nil {
			return "", err
		}
		if valueCol.Len() != criteriaCol.Len() {
			return "", LengthMismatchError{LeftName: criteriaCol.Name, LeftLen: criteriaCol.Len(), RightName: valueCol.Name, RightLen: valueCol.Len(), Context: name}
		}
	}

	switch name {
	case "COUNTIF":
		count := 0
		for _, v := range criteriaCol.Values {
			matched, err := criteriaMatches(v, criteria)
			if err != nil {
				return "", err
			}
			if matched {
				count++
			}
		}
		return NewNumber(float64(count)).Literal(), nil
	case "SUMIF", "AVERAGEIF":
		var sum float64
		count := 0
		for i, v := range criteriaCol.Values {
			matched, err := criteriaMatches(v, criteria)
			if err != nil {
				return "", err
			}
			if !matched {
				continue
			}
			n, err := valueCol.Values[i].Number()
			if err != nil {
				return "", err
			}
			sum += n
			count++
		}
		if name == "AVERAGEIF" {
			if count == 0 {
				return "", DivideByZeroError{Context: name}
			}
			return NewNumber(sum / float64(count)).Literal(), nil
		}
		return NewNumber(sum).Literal(), nil
	}
	return "", ParseError{Formula: name, Reason: "unsupported *IF function"}
}

func evaluateIfsFunction(name string, args []string, m *Model, eval exprEvaluator) (string, error) {
	var valueCol *Column
	pairArgs := args
	if name != "COUNTIFS" {
		if len(args) < 3 || len(args)%2 != 1 {
			return "", ParseError{Formula: name, Reason: name + " requires an odd number of arguments"}
		}
		col, err := resolveColumnArg(m, args[0])
		if err != nil {
			return "", err
		}
		valueCol = col
		pairArgs = args[1:]
	} else if len(args)%2 != 0 {
		return "", ParseError{Formula: name, Reason: "COUNTIFS requires an even number of arguments"}
	}

	type criterion struct {
		col      *Column
		criteria string
	}
	var criteria []criterion
	for i := 0; i+1 < len(pairArgs); i += 2 {
		col, err := resolveColumnArg(m, pairArgs[i])
		if err != nil {
			return "", err
		}
		crit, err := evalText(eval, pairArgs[i+1])
		if err != nil {
			return "", err
		}
		criteria = append(criteria, criterion{col: col, criteria: crit})
	}
	if len(criteria) == 0 {
		return "", ParseError{Formula: name, Reason: name + " requires at least one range/criteria pair"}
	}
	rows := criteria[0].col.Len()
	for _, c := range criteria {
		if c.col.Len() != rows {
			return "", LengthMismatchError{LeftName: criteria[0].col.Name, LeftLen: rows, RightName: c.col.Name, RightLen: c.col.Len(), Context: name}
		}
	}
	if valueCol != nil && valueCol.Len() != rows {
		return "", LengthMismatchError{LeftName: criteria[0].col.Name, LeftLen: rows, RightName: valueCol.Name, RightLen: valueCol.Len(), Context: name}
	}

	var nums []float64
	count := 0
	for i := 0; i < rows; i++ {
		allMatch := true
		for _, c := range criteria {
			matched, err := criteriaMatches(c.col.Values[i], c.criteria)
			if err != nil {
				return "", err
			}
			if !matched {
				allMatch = false
				break
			}
		}
		if !allMatch {
			continue
		}
		count++
		if valueCol != nil {
			n, err := valueCol.Values[i].Number()
			if err != nil {
				return "", err
			}
			nums = append(nums, n)
		}
	}

	switch name {
	case "COUNTIFS":
		return NewNumber(float64(count)).Literal(), nil
	case "SUMIFS":
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return NewNumber(sum).Literal(), nil
	case "AVERAGEIFS":
		if len(nums) == 0 {
			return "", DivideByZeroError{Context: name}
		}
		var sum float64
		for _, n := range nums {
			sum += n
		}
		return NewNumber(sum / float64(len(nums))).Literal(), nil
	case "MAXIFS":
		if len(nums) == 0 {
			return "", EmptyRangeError{Context: name}
		}
		max := nums[0]
		for _, n := range nums[1:] {
			if n > max {
				max = n
			}
		}
		return NewNumber(max).Literal(), nil
	case "MINIFS":
		if len(nums) == 0 {
			return "", EmptyRangeError{Context: name}
		}
		min := nums[0]
		for _, n := range nums[1:] {
			if n < min {
				min = n
			}
		}
		return NewNumber(min).Literal(), nil
	}
	return "", ParseError{Formula: name, Reason: "unsupported *IFS function"}
}

// resolveColumnArg resolves an aggregation argument naming a whole column,
// written as a bare T.c dotted reference (spec.md §4.4's "range" operand).
func resolveColumnArg(m *Model, arg string) (*Column, error) {
	arg = strings.TrimSpace(arg)
	refs, err := extractReferences(arg)
	if err != nil {
		return nil, err
	}
	if len(refs) != 1 || refs[0].text != arg || refs[0].kind != refDotted {
		return nil, ParseError{Formula: arg, Reason: "aggregation range must be a single Table.column reference"}
	}
	r := refs[0]
	table, ok := m.Tables[r.name]
	if !ok {
		return nil, UnknownReferenceError{Name: r.name, Context: arg}
	}
	col, ok := table.Column(r.column)
	if !ok {
		return nil, UnknownReferenceError{Name: arg, Context: arg}
	}
	return col, nil
}

// criteriaMatches implements the operator grammar ">x", "<x", ">=x",
// "<=x", "=x", "<>x", and bare-value equality (spec.md §4.4 glossary).
func criteriaMatches(v Value, criteria string) (bool, error) {
	op, operand := "=", criteria
	for _, candidate := range []string{">=", "<=", "<>", ">", "<", "="} {
		if strings.HasPrefix(criteria, candidate) {
			op, operand = candidate, criteria[len(candidate):]
			break
		}
	}
	operand = strings.TrimSpace(operand)

	if num, err := strconv.ParseFloat(operand, 64); err == nil && v.Kind() == KindNumber {
		n, _ := v.Number()
		switch op {
		case ">":
			return n > num, nil
		case "<":
			return n < num, nil
		case ">=":
			return n >= num, nil
		case "<=":
			return n <= num, nil
		case "<>":
			return n != num, nil
		default:
			return n == num, nil
		}
	}

	text := v.String()
	switch op {
	case "<>":
		return text != operand, nil
	case "=":
		return text == operand, nil
	default:
		return false, ParseError{Formula: criteria, Reason: "relational criteria require a numeric operand"}
	}
}
