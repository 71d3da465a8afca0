package forge

import "strings"

// refKind distinguishes the three reference shapes spec.md §3 defines.
type refKind int

const (
	refBare refKind = iota
	refDotted
	refIndexed
)

// reference is one distinct dependency a formula makes on the model.
type reference struct {
	kind   refKind
	name   string // bare identifier, or the table name for dotted/indexed
	column string // column name, for dotted/indexed
	index  int    // row index, for indexed only
	text   string // the exact substring matched in the formula
}

// builtinFunctions are call-site identifiers that are never references,
// even though they look like bare identifiers when followed by "(".
// This is the closed set named across spec.md §4.4/§4.5.
var builtinFunctions = map[string]bool{
	"SUM": true, "AVERAGE": true, "MAX": true, "MIN": true, "COUNT": true, "PRODUCT": true,
	"SUMIF": true, "COUNTIF": true, "AVERAGEIF": true,
	"SUMIFS": true, "COUNTIFS": true, "AVERAGEIFS": true, "MAXIFS": true, "MINIFS": true,
	"ROUND": true, "ROUNDUP": true, "ROUNDDOWN": true, "CEILING": true, "FLOOR": true,
	"SQRT": true, "EXP": true, "LN": true, "LOG": true, "LOG10": true, "MOD": true, "POWER": true,
	"CONCAT": true, "CONCATENATE": true, "LEFT": true, "RIGHT": true, "MID": true,
	"LEN": true, "UPPER": true, "LOWER": true, "TRIM": true,
	"TODAY": true, "NOW": true, "DATE": true, "YEAR": true, "MONTH": true, "DAY": true,
	"IF": true, "IFERROR": true, "AND": true, "OR": true, "NOT": true,
}

var keywordLiterals = map[string]bool{"TRUE": true, "FALSE": true}

// extractReferences parses formula text (with or without a leading "=")
// and returns the set of distinct references it makes, in first-seen
// order. The scanner is a single left-to-right pass over the runes, with a
// dedup map keyed by the reference's canonical text and string literals
// treated as opaque.
func extractReferences(formula string) ([]reference, error) {
	formula = strings.TrimPrefix(formula, "=")
	seen := make(map[string]bool)
	var out []reference

	runes := []rune(formula)
	n := len(runes)
	for i := 0; i < n; i++ {
		c := runes[i]
		switch {
		case c == '"':
			// Skip the string literal entirely; it is opaque to reference extraction.
			j := i + 1
			for j < n && runes[j] != '"' {
				j++
			}
			i = j
		case isIdentStart(c):
			start := i
			j := i + 1
			for j < n && isIdentPart(runes[j]) {
				j++
			}
			// Allow a single ".name" suffix for dotted/indexed references.
			dotEnd := j
			if j < n && runes[j] == '.' && j+1 < n && isIdentStart(runes[j+1]) {
				k := j + 1
				for k < n && isIdentPart(runes[k]) {
					k++
				}
				dotEnd = k
			}
			end := dotEnd
			// Allow a trailing "[<digits>]" for an indexed reference.
			bracketEnd := end
			if end < n && runes[end] == '[' {
				k := end + 1
				digitsStart := k
				for k < n && runes[k] >= '0' && runes[k] <= '9' {
					k++
				}
				if k > digitsStart && k < n && runes[k] == ']' {
					bracketEnd = k + 1
				}
			}
			text := string(runes[start:bracketEnd])
			// Is this a function-call identifier? Only the leading identifier matters.
			lead := string(runes[start:j])
			isCall := false
			if bracketEnd == j { // no dot, no index
				k := j
				for k < n && runes[k] == ' ' {
					k++
				}
				if k < n && runes[k] == '(' {
					isCall = true
				}
			}
			if isCall || builtinFunctions[strings.ToUpper(lead)] || keywordLiterals[strings.ToUpper(lead)] {
				i = j - 1
				continue
			}
			ref, ok := parseReferenceText(text)
			if ok && !seen[ref.text] {
				seen[ref.text] = true
				out = append(out, ref)
			}
			i = bracketEnd - 1
		default:
			// operators, punctuation, digits of numeric literals: not references
		}
	}
	return out, nil
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// parseReferenceText classifies already-scanned reference text into bare,
// dotted, or indexed shape.
func parseReferenceText(text string) (reference, bool) {
	if text == "" {
		return reference{}, false
	}
	bracket := strings.IndexByte(text, '[')
	if bracket >= 0 {
		dot := strings.IndexByte(text[:bracket], '.')
		if dot < 0 {
			return reference{}, false
		}
		idxText := text[bracket+1 : len(text)-1]
		idx := 0
		for _, ch := range idxText {
			idx = idx*10 + int(ch-'0')
		}
		return reference{
			kind:   refIndexed,
			name:   text[:dot],
			column: text[dot+1 : bracket],
			index:  idx,
			text:   text,
		}, true
	}
	if dot := strings.IndexByte(text, '.'); dot >= 0 {
		return reference{
			kind:   refDotted,
			name:   text[:dot],
			column: text[dot+1:],
			text:   text,
		}, true
	}
	return reference{kind: refBare, name: text, text: text}, true
}
