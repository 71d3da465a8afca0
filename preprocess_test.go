package forge

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// literalEval is a stand-in exprEvaluator for preprocessor unit tests: it
// understands only bare numeric/text/boolean literals, so each test
// supplies already-simplified arguments rather than exercising the full
// adapter.
func literalEval(expr string) (Value, error) {
	switch {
	case len(expr) >= 2 && expr[0] == '"' && expr[len(expr)-1] == '"':
		return NewText(expr[1 : len(expr)-1]), nil
	case expr == "TRUE":
		return NewBoolean(true), nil
	case expr == "FALSE":
		return NewBoolean(false), nil
	}
	f, err := strconv.ParseFloat(expr, 64)
	if err != nil {
		return Value{}, ParseError{Formula: expr, Reason: "literalEval: not a literal"}
	}
	return NewNumber(f), nil
}

func TestPreprocessSQRT(t *testing.T) {
	out, err := preprocessFormula("SQRT(16)", literalEval, FixedClock{})
	require.NoError(t, err)
	assert.Equal(t, "POWER(16,0.5)", out)
}

func TestPreprocessRound(t *testing.T) {
	out, err := preprocessFormula("ROUND(3.14159, 2)", literalEval, FixedClock{})
	require.NoError(t, err)
	assert.Equal(t, "3.14", out)
}

func TestPreprocessCeilingFloorDivideByZero(t *testing.T) {
	_, err := preprocessFormula("CEILING(5, 0)", literalEval, FixedClock{})
	require.Error(t, err)
	var divErr DivideByZeroError
	require.ErrorAs(t, err, &divErr)
}

func TestPreprocessConcat(t *testing.T) {
	out, err := preprocessFormula(`CONCAT("a", "b")`, literalEval, FixedClock{})
	require.NoError(t, err)
	assert.Equal(t, `("a")&("b")`, out)
}

func TestPreprocessTextFunctions(t *testing.T) {
	out, err := preprocessFormula(`LEFT("hello", 3)`, literalEval, FixedClock{})
	require.NoError(t, err)
	assert.Equal(t, `"hel"`, out)

	out, err = preprocessFormula(`UPPER("hi")`, literalEval, FixedClock{})
	require.NoError(t, err)
	assert.Equal(t, `"HI"`, out)
}

func TestPreprocessDateFunctions(t *testing.T) {
	fixed := FixedClock{At: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)}
	out, err := preprocessFormula("TODAY()", literalEval, fixed)
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-05"`, out)

	out, err = preprocessFormula("YEAR(DATE(2020,6,15))", literalEval, fixed)
	require.NoError(t, err)
	assert.Equal(t, "2020", out)
}

func TestPreprocessNestedInnermostOut(t *testing.T) {
	out, err := preprocessFormula(`CONCAT(UPPER("a"), LOWER("B"))`, literalEval, FixedClock{})
	require.NoError(t, err)
	assert.Equal(t, `("A")&("b")`, out)
}
