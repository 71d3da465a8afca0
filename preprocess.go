package forge

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// exprEvaluator evaluates an already-resolved (engine-native) expression
// string in the caller's current row/scalar context. It is a closure over
// the expression-engine adapter and the resolver for the formula being
// processed (rowcalc.go / aggregate.go construct one per formula
// evaluation).
type exprEvaluator func(expr string) (Value, error)

// roundingFunctions, scalarMathFunctions, textFunctions and dateFunctions,
// together with SQRT (see isCustomFunction), are the closed set of call
// names spec.md §4.5 requires the preprocessor to rewrite away
// before handoff to the embedded expression engine. Forge treats the
// engine's native support surface as arithmetic, comparison, boolean
// logic and the aggregation family of spec.md §4.4 only — everything
// below is intercepted unconditionally, the way the source's embedded
// evaluator (a restricted subset of spreadsheet functions) requires.
var roundingFunctions = []string{"ROUND", "ROUNDUP", "ROUNDDOWN", "CEILING", "FLOOR"}
var scalarMathFunctions = []string{"EXP", "LN", "LOG10", "LOG", "MOD"}
var textFunctions = []string{"CONCATENATE", "CONCAT", "LEFT", "RIGHT", "MID", "LEN", "UPPER", "LOWER", "TRIM"}
var dateFunctions = []string{"DATE", "TODAY", "NOW", "YEAR", "MONTH", "DAY"}

// preprocessFormula rewrites every custom-function call site in formula
// into a literal or a native-function equivalent, recursing into
// arguments first so nested custom calls resolve innermost-out. The
// result is pure expression-engine-native text, ready for the adapter.
func preprocessFormula(formula string, eval exprEvaluator, clock Clock) (string, error) {
	for {
		name, start, end, ok := findFirstCustomCall(formula)
		if !ok {
			return formula, nil
		}
		inner := formula[start+len(name)+1 : end-1]
		args, err := splitArgs(inner)
		if err != nil {
			return "", err
		}
		for i, a := range args {
			rewritten, err := preprocessFormula(a, eval, clock)
			if err != nil {
				return "", err
			}
			args[i] = rewritten
		}

		replacement, err := rewriteCall(name, args, eval, clock)
		if err != nil {
			return "", err
		}
		formula = formula[:start] + replacement + formula[end:]
	}
}

func isCustomFunction(name string) bool {
	for _, list := range [][]string{roundingFunctions, scalarMathFunctions, textFunctions, dateFunctions} {
		for _, n := range list {
			if n == name {
				return true
			}
		}
	}
	return name == "SQRT"
}

// findFirstCustomCall locates the first call site of any rewritten
// function, scanning left to right and using findCall's balanced-
// parenthesis, quote-aware boundary detection (grounded on the teacher's
// extractSUMIFSFromFormula / extractINDEXMATCHFromFormula in
// batch_sumifs.go / batch_index_match.go, generalized over function name).
func findFirstCustomCall(formula string) (name string, start, end int, ok bool) {
	best := -1
	for i := 0; i < len(formula); i++ {
		if !isIdentStart(rune(formula[i])) {
			continue
		}
		j := i
		for j < len(formula) && isIdentPart(rune(formula[j])) {
			j++
		}
		candidate := formula[i:j]
		if j >= len(formula) || formula[j] != '(' {
			i = j - 1
			continue
		}
		if !isCustomFunction(candidate) {
			i = j - 1
			continue
		}
		if best == -1 || i < best {
			s, e, found := findCall(formula, candidate, i)
			if found {
				return candidate, s, e, true
			}
		}
		i = j - 1
	}
	return "", 0, 0, false
}

// findCall extracts the full "NAME(...)" call text starting at fromIdx,
// tracking parenthesis depth and treating double-quoted spans as opaque.
func findCall(formula, name string, fromIdx int) (start, end int, ok bool) {
	openParen := fromIdx + len(name)
	if openParen >= len(formula) || formula[openParen] != '(' {
		return 0, 0, false
	}
	depth := 0
	inQuote := false
	for i := openParen; i < len(formula); i++ {
		switch formula[i] {
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
				if depth == 0 {
					return fromIdx, i + 1, true
				}
			}
		}
	}
	return 0, 0, false
}

// splitArgs splits a call's argument-list text on top-level commas,
// treating parenthesis nesting and quoted strings as opaque.
func splitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var args []string
	depth := 0
	inQuote := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		case ',':
			if !inQuote && depth == 0 {
				args = append(args, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	if inQuote || depth != 0 {
		return nil, ParseError{Formula: s, Reason: "unbalanced parentheses or quotes"}
	}
	args = append(args, strings.TrimSpace(s[last:]))
	return args, nil
}

func rewriteCall(name string, args []string, eval exprEvaluator, clock Clock) (string, error) {
	switch name {
	case "SQRT":
		if len(args) != 1 {
			return "", ParseError{Formula: name, Reason: "SQRT requires 1 argument"}
		}
		return fmt.Sprintf("POWER(%s,0.5)", args[0]), nil
	case "ROUND", "ROUNDUP", "ROUNDDOWN":
		return rewriteRound(name, args, eval)
	case "CEILING", "FLOOR":
		return rewriteCeilFloor(name, args, eval)
	case "EXP", "LN", "LOG10", "LOG", "MOD":
		return rewriteScalarMath(name, args, eval)
	case "CONCAT", "CONCATENATE":
		if len(args) == 0 {
			return `""`, nil
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = "(" + a + ")"
		}
		return strings.Join(parts, "&"), nil
	case "LEFT", "RIGHT", "MID", "LEN", "UPPER", "LOWER", "TRIM":
		return rewriteText(name, args, eval)
	case "DATE", "TODAY", "NOW", "YEAR", "MONTH", "DAY":
		return rewriteDate(name, args, eval, clock)
	default:
		return "", ParseError{Formula: name, Reason: "unsupported custom function"}
	}
}

func evalNumber(eval exprEvaluator, expr string) (float64, error) {
	v, err := eval(expr)
	if err != nil {
		return 0, err
	}
	return v.Number()
}

func evalText(eval exprEvaluator, expr string) (string, error) {
	v, err := eval(expr)
	if err != nil {
		return "", err
	}
	if v.Kind() == KindText || v.Kind() == KindDate {
		return v.str, nil
	}
	return v.String(), nil
}

func rewriteRound(name string, args []string, eval exprEvaluator) (string, error) {
	if len(args) != 2 {
		return "", ParseError{Formula: name, Reason: name + " requires 2 arguments"}
	}
	x, err := evalNumber(eval, args[0])
	if err != nil {
		return "", err
	}
	n, err := evalNumber(eval, args[1])
	if err != nil {
		return "", err
	}
	scale := math.Pow(10, n)
	var result float64
	switch name {
	case "ROUND":
		scaled := x * scale
		if scaled >= 0 {
			result = math.Floor(scaled+0.5) / scale
		} else {
			result = math.Ceil(scaled-0.5) / scale
		}
	case "ROUNDUP":
		if x >= 0 {
			result = math.Ceil(x*scale) / scale
		} else {
			result = math.Floor(x*scale) / scale
		}
	case "ROUNDDOWN":
		if x >= 0 {
			result = math.Floor(x*scale) / scale
		} else {
			result = math.Ceil(x*scale) / scale
		}
	}
	return NewNumber(result).Literal(), nil
}

func rewriteCeilFloor(name string, args []string, eval exprEvaluator) (string, error) {
	if len(args) != 2 {
		return "", ParseError{Formula: name, Reason: name + " requires 2 arguments"}
	}
	x, err := evalNumber(eval, args[0])
	if err != nil {
		return "", err
	}
	m, err := evalNumber(eval, args[1])
	if err != nil {
		return "", err
	}
	if m == 0 {
		return "", DivideByZeroError{Context: name}
	}
	var result float64
	absX, absM := math.Abs(x), math.Abs(m)
	switch name {
	case "CEILING":
		result = math.Ceil(absX/absM) * absM
	case "FLOOR":
		result = math.Floor(absX/absM) * absM
	}
	if x < 0 {
		result = -result
	}
	return NewNumber(result).Literal(), nil
}

func rewriteScalarMath(name string, args []string, eval exprEvaluator) (string, error) {
	switch name {
	case "EXP", "LN", "LOG10":
		if len(args) != 1 {
			return "", ParseError{Formula: name, Reason: name + " requires 1 argument"}
		}
		x, err := evalNumber(eval, args[0])
		if err != nil {
			return "", err
		}
		var result float64
		switch name {
		case "EXP":
			result = math.Exp(x)
		case "LN":
			result = math.Log(x)
		case "LOG10":
			result = math.Log10(x)
		}
		return NewNumber(result).Literal(), nil
	case "LOG":
		if len(args) < 1 || len(args) > 2 {
			return "", ParseError{Formula: name, Reason: "LOG requires 1 or 2 arguments"}
		}
		x, err := evalNumber(eval, args[0])
		if err != nil {
			return "", err
		}
		base := 10.0
		if len(args) == 2 {
			base, err = evalNumber(eval, args[1])
			if err != nil {
				return "", err
			}
		}
		return NewNumber(math.Log(x) / math.Log(base)).Literal(), nil
	case "MOD":
		if len(args) != 2 {
			return "", ParseError{Formula: name, Reason: "MOD requires 2 arguments"}
		}
		x, err := evalNumber(eval, args[0])
		if err != nil {
			return "", err
		}
		d, err := evalNumber(eval, args[1])
		if err != nil {
			return "", err
		}
		if d == 0 {
			return "", DivideByZeroError{Context: name}
		}
		result := math.Mod(x, d)
		if result != 0 && (result < 0) != (d < 0) {
			result += d
		}
		return NewNumber(result).Literal(), nil
	}
	return "", ParseError{Formula: name, Reason: "unsupported scalar math function"}
}

func rewriteText(name string, args []string, eval exprEvaluator) (string, error) {
	switch name {
	case "LEN":
		if len(args) != 1 {
			return "", ParseError{Formula: name, Reason: "LEN requires 1 argument"}
		}
		s, err := evalText(eval, args[0])
		if err != nil {
			return "", err
		}
		return NewNumber(float64(len([]rune(s)))).Literal(), nil
	case "UPPER", "LOWER", "TRIM":
		if len(args) != 1 {
			return "", ParseError{Formula: name, Reason: name + " requires 1 argument"}
		}
		s, err := evalText(eval, args[0])
		if err != nil {
			return "", err
		}
		switch name {
		case "UPPER":
			s = strings.ToUpper(s)
		case "LOWER":
			s = strings.ToLower(s)
		case "TRIM":
			s = strings.TrimSpace(s)
		}
		return NewText(s).Literal(), nil
	case "LEFT", "RIGHT":
		if len(args) < 1 || len(args) > 2 {
			return "", ParseError{Formula: name, Reason: name + " requires 1 or 2 arguments"}
		}
		s, err := evalText(eval, args[0])
		if err != nil {
			return "", err
		}
		count := 1.0
		if len(args) == 2 {
			count, err = evalNumber(eval, args[1])
			if err != nil {
				return "", err
			}
		}
		runes := []rune(s)
		n := int(count)
		if n > len(runes) {
			n = len(runes)
		}
		if n < 0 {
			n = 0
		}
		var result string
		if name == "LEFT" {
			result = string(runes[:n])
		} else {
			result = string(runes[len(runes)-n:])
		}
		return NewText(result).Literal(), nil
	case "MID":
		if len(args) != 3 {
			return "", ParseError{Formula: name, Reason: "MID requires 3 arguments"}
		}
		s, err := evalText(eval, args[0])
		if err != nil {
			return "", err
		}
		startF, err := evalNumber(eval, args[1])
		if err != nil {
			return "", err
		}
		lenF, err := evalNumber(eval, args[2])
		if err != nil {
			return "", err
		}
		runes := []rune(s)
		start := int(startF) - 1
		if start < 0 {
			start = 0
		}
		if start > len(runes) {
			start = len(runes)
		}
		end := start + int(lenF)
		if end > len(runes) {
			end = len(runes)
		}
		if end < start {
			end = start
		}
		return NewText(string(runes[start:end])).Literal(), nil
	}
	return "", ParseError{Formula: name, Reason: "unsupported text function"}
}

func rewriteDate(name string, args []string, eval exprEvaluator, clock Clock) (string, error) {
	switch name {
	case "TODAY", "NOW":
		if len(args) != 0 {
			return "", ParseError{Formula: name, Reason: name + " takes no arguments"}
		}
		return NewDate(clock.Now().Format("2006-01-02")).Literal(), nil
	case "DATE":
		if len(args) != 3 {
			return "", ParseError{Formula: name, Reason: "DATE requires 3 arguments"}
		}
		y, err := evalNumber(eval, args[0])
		if err != nil {
			return "", err
		}
		m, err := evalNumber(eval, args[1])
		if err != nil {
			return "", err
		}
		d, err := evalNumber(eval, args[2])
		if err != nil {
			return "", err
		}
		return NewDate(fmt.Sprintf("%04d-%02d-%02d", int(y), int(m), int(d))).Literal(), nil
	case "YEAR", "MONTH", "DAY":
		if len(args) != 1 {
			return "", ParseError{Formula: name, Reason: name + " requires 1 argument"}
		}
		v, err := eval(args[0])
		if err != nil {
			return "", err
		}
		var dateStr string
		if v.Kind() == KindDate {
			dateStr, _ = v.Date()
		} else {
			dateStr, err = v.Text()
			if err != nil {
				return "", err
			}
		}
		parts := strings.SplitN(dateStr, "-", 3)
		if len(parts) != 3 {
			return "", ParseError{Formula: name, Reason: "malformed ISO-8601 date " + dateStr}
		}
		y, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		d, _ := strconv.Atoi(parts[2])
		var result int
		switch name {
		case "YEAR":
			result = y
		case "MONTH":
			result = m
		case "DAY":
			result = d
		}
		return NewNumber(float64(result)).Literal(), nil
	}
	return "", ParseError{Formula: name, Reason: "unsupported date function"}
}
