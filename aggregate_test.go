package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustColumn2(t *testing.T, name string, kind Kind, values []Value) *Column {
	t.Helper()
	col, err := NewColumn(name, kind, values)
	require.NoError(t, err)
	return col
}

func tableWithColumns(t *testing.T, name string, cols map[string][]float64) *Table {
	t.Helper()
	tbl := NewTable(name)
	for colName, vs := range cols {
		require.NoError(t, tbl.AddColumn(mustColumn(t, colName, nums(vs...))))
	}
	return tbl
}

func TestAggregatePlainFunctions(t *testing.T) {
	m := NewModel("1.0")
	m.AddTable(tableWithColumns(t, "t", map[string][]float64{"n": {1, 2, 3, 4}}))
	m.AddScalar(&Scalar{Name: "total", Formula: "=SUM(t.n)"})
	m.AddScalar(&Scalar{Name: "avg", Formula: "=AVERAGE(t.n)"})
	m.AddScalar(&Scalar{Name: "hi", Formula: "=MAX(t.n)"})
	m.AddScalar(&Scalar{Name: "lo", Formula: "=MIN(t.n)"})
	m.AddScalar(&Scalar{Name: "cnt", Formula: "=COUNT(t.n)"})
	m.AddScalar(&Scalar{Name: "prod", Formula: "=PRODUCT(t.n)"})

	result, err := Calculate(m, Options{})
	require.NoError(t, err)

	expect := map[string]float64{"total": 10, "avg": 2.5, "hi": 4, "lo": 1, "cnt": 4, "prod": 24}
	for name, want := range expect {
		v := result.Scalars[name].Value
		require.NotNil(t, v, name)
		n, err := v.Number()
		require.NoError(t, err)
		assert.InDelta(t, want, n, 1e-9, name)
	}
}

func TestAggregateAverageIfDivideByZero(t *testing.T) {
	m := NewModel("1.0")
	m.AddTable(tableWithColumns(t, "t", map[string][]float64{"n": {1, 2, 3}}))
	m.AddScalar(&Scalar{Name: "avg", Formula: `=AVERAGEIF(t.n, ">100")`})

	_, err := Calculate(m, Options{})
	require.Error(t, err)
	var divErr DivideByZeroError
	require.ErrorAs(t, err, &divErr)
}

func TestAggregateSumOnTextColumnIsTypeMismatch(t *testing.T) {
	m := NewModel("1.0")
	tbl := NewTable("t")
	require.NoError(t, tbl.AddColumn(mustColumn2(t, "label", KindText, []Value{NewText("a"), NewText("b")})))
	m.AddTable(tbl)
	m.AddScalar(&Scalar{Name: "total", Formula: "=SUM(t.label)"})

	_, err := Calculate(m, Options{})
	require.Error(t, err)
	var typeErr TypeMismatchError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, KindNumber, typeErr.Want)
	assert.Equal(t, KindText, typeErr.Got)
}

func TestAggregateMaxEmptyRange(t *testing.T) {
	m := NewModel("1.0")
	tbl := NewTable("t")
	col, err := NewColumn("n", KindNumber, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.AddColumn(col))
	m.AddTable(tbl)
	m.AddScalar(&Scalar{Name: "hi", Formula: "=MAX(t.n)"})

	_, err = Calculate(m, Options{})
	require.Error(t, err)
	var rangeErr EmptyRangeError
	require.ErrorAs(t, err, &rangeErr)
}

func TestAggregateSumifsMultiCriteria(t *testing.T) {
	m := NewModel("1.0")
	tbl := NewTable("t")
	require.NoError(t, tbl.AddColumn(mustColumn2(t, "region", KindText, []Value{NewText("east"), NewText("west"), NewText("east"), NewText("east")})))
	require.NoError(t, tbl.AddColumn(mustColumn(t, "qty", nums(10, 20, 30, 40))))
	require.NoError(t, tbl.AddColumn(mustColumn(t, "amount", nums(100, 200, 300, 400))))
	m.AddTable(tbl)
	m.AddScalar(&Scalar{Name: "eastBig", Formula: `=SUMIFS(t.amount, t.region, "east", t.qty, ">15")`})

	result, err := Calculate(m, Options{})
	require.NoError(t, err)
	v := result.Scalars["eastBig"].Value
	require.NotNil(t, v)
	n, err := v.Number()
	require.NoError(t, err)
	assert.InDelta(t, 700, n, 1e-9)
}

func TestCriteriaMatchesOperators(t *testing.T) {
	cases := []struct {
		val      Value
		criteria string
		want     bool
	}{
		{NewNumber(5), ">4", true},
		{NewNumber(5), ">5", false},
		{NewNumber(5), ">=5", true},
		{NewNumber(5), "<=4", false},
		{NewNumber(5), "<>5", false},
		{NewNumber(5), "5", true},
	}
	for _, c := range cases {
		got, err := criteriaMatches(c.val, c.criteria)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%v %s", c.val, c.criteria)
	}
}
