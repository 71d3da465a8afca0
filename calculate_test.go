package forge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nums(vs ...float64) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = NewNumber(v)
	}
	return out
}

func mustColumn(t *testing.T, name string, values []Value) *Column {
	t.Helper()
	col, err := NewColumn(name, KindNumber, values)
	require.NoError(t, err)
	return col
}

// TestS1RowwisePlusAggregation covers spec.md §8 scenario S1.
func TestS1RowwisePlusAggregation(t *testing.T) {
	m := NewModel("1.0")
	q := NewTable("q")
	require.NoError(t, q.AddColumn(mustColumn(t, "revenue", nums(100000, 120000, 150000, 180000))))
	require.NoError(t, q.AddColumn(mustColumn(t, "cogs", nums(30000, 36000, 45000, 54000))))
	q.AddDerivedColumn("profit", "=revenue - cogs")
	m.AddTable(q)
	m.AddScalar(&Scalar{Name: "total_profit", Formula: "=SUM(q.profit)"})

	result, err := Calculate(m, Options{})
	require.NoError(t, err)

	profit, ok := result.Tables["q"].Column("profit")
	require.True(t, ok)
	want := nums(70000, 84000, 105000, 126000)
	for i, v := range want {
		assert.True(t, v.Equal(profit.Values[i]), "row %d: want %v got %v", i, v, profit.Values[i])
	}

	total := result.Scalars["total_profit"]
	require.NotNil(t, total.Value)
	n, err := total.Value.Number()
	require.NoError(t, err)
	assert.InDelta(t, 385000, n, 1e-6)
}

// TestS2CrossTableGrowth covers spec.md §8 scenario S2.
func TestS2CrossTableGrowth(t *testing.T) {
	m := NewModel("1.0")
	a := NewTable("a")
	require.NoError(t, a.AddColumn(mustColumn(t, "revenue", nums(100, 200, 400))))
	m.AddTable(a)

	b := NewTable("b")
	require.NoError(t, b.AddColumn(mustColumn(t, "revenue", nums(150, 220, 500))))
	b.AddDerivedColumn("growth", "=b.revenue / a.revenue - 1")
	m.AddTable(b)

	result, err := Calculate(m, Options{})
	require.NoError(t, err)

	growth, ok := result.Tables["b"].Column("growth")
	require.True(t, ok)
	want := []float64{0.5, 0.1, 0.25}
	for i, w := range want {
		n, err := growth.Values[i].Number()
		require.NoError(t, err)
		assert.InDelta(t, w, n, 1e-9)
	}
}

// TestS3ConditionalAggregation covers spec.md §8 scenario S3.
func TestS3ConditionalAggregation(t *testing.T) {
	m := NewModel("1.0")
	emp := NewTable("employees")
	require.NoError(t, emp.AddColumn(mustColumn(t, "rating", nums(3.0, 4.5, 4.0, 2.5, 5.0))))
	require.NoError(t, emp.AddColumn(mustColumn(t, "salary", nums(50, 60, 55, 40, 80))))
	m.AddTable(emp)
	m.AddScalar(&Scalar{Name: "bonus_pool", Formula: `=SUMIF(employees.rating, ">=4", employees.salary)`})

	result, err := Calculate(m, Options{})
	require.NoError(t, err)

	pool := result.Scalars["bonus_pool"]
	require.NotNil(t, pool.Value)
	n, err := pool.Value.Number()
	require.NoError(t, err)
	assert.InDelta(t, 195, n, 1e-6)
}

// TestS4IndexedCAGR covers spec.md §8 scenario S4.
func TestS4IndexedCAGR(t *testing.T) {
	m := NewModel("1.0")
	metrics := NewTable("metrics")
	require.NoError(t, metrics.AddColumn(mustColumn(t, "r", nums(100, 125, 175, 250))))
	m.AddTable(metrics)
	m.AddScalar(&Scalar{Name: "cagr", Formula: "=(metrics.r[3] / metrics.r[0]) ^ (1/3) - 1"})

	result, err := Calculate(m, Options{})
	require.NoError(t, err)

	cagr := result.Scalars["cagr"]
	require.NotNil(t, cagr.Value)
	n, err := cagr.Value.Number()
	require.NoError(t, err)
	assert.InDelta(t, 0.35720881, n, 1e-7)
}

// TestS5Cycle covers spec.md §8 scenario S5.
func TestS5Cycle(t *testing.T) {
	m := NewModel("1.0")
	m.AddScalar(&Scalar{Name: "a", Formula: "=b*2"})
	m.AddScalar(&Scalar{Name: "b", Formula: "=a+1"})

	_, err := Calculate(m, Options{})
	require.Error(t, err)
	var cycleErr CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Cycle)
}

// TestS6LengthMismatch covers spec.md §8 scenario S6.
func TestS6LengthMismatch(t *testing.T) {
	m := NewModel("1.0")
	tbl := NewTable("t")
	require.NoError(t, tbl.AddColumn(mustColumn(t, "x", nums(1, 2, 3))))
	err := tbl.AddColumn(mustColumn(t, "y", nums(1, 2, 3, 4)))
	require.Error(t, err)
	var lenErr LengthMismatchError
	require.ErrorAs(t, err, &lenErr)
	assert.Equal(t, "x", lenErr.LeftName)
	assert.Equal(t, 3, lenErr.LeftLen)
	assert.Equal(t, "y", lenErr.RightName)
	assert.Equal(t, 4, lenErr.RightLen)
}

func TestCalculateDoesNotMutateInputOnError(t *testing.T) {
	m := NewModel("1.0")
	m.AddScalar(&Scalar{Name: "a", Formula: "=b*2"})
	m.AddScalar(&Scalar{Name: "b", Formula: "=a+1"})

	_, err := Calculate(m, Options{})
	require.Error(t, err)
	assert.Nil(t, m.Scalars["a"].Value)
	assert.Nil(t, m.Scalars["b"].Value)
}

func TestCalculateIsDeterministic(t *testing.T) {
	build := func() *Model {
		m := NewModel("1.0")
		q := NewTable("q")
		require.NoError(t, q.AddColumn(mustColumn(t, "revenue", nums(100000, 120000, 150000, 180000))))
		require.NoError(t, q.AddColumn(mustColumn(t, "cogs", nums(30000, 36000, 45000, 54000))))
		q.AddDerivedColumn("profit", "=revenue - cogs")
		m.AddTable(q)
		m.AddScalar(&Scalar{Name: "total_profit", Formula: "=SUM(q.profit)"})
		return m
	}

	r1, err := Calculate(build(), Options{})
	require.NoError(t, err)
	r2, err := Calculate(build(), Options{})
	require.NoError(t, err)

	p1, _ := r1.Tables["q"].Column("profit")
	p2, _ := r2.Tables["q"].Column("profit")
	for i := range p1.Values {
		assert.True(t, p1.Values[i].Equal(p2.Values[i]))
	}
}

func TestCalculateHomogeneityViolation(t *testing.T) {
	m := NewModel("1.0")
	tbl := NewTable("t")
	require.NoError(t, tbl.AddColumn(mustColumn2(t, "flag", KindBoolean, []Value{NewBoolean(true), NewBoolean(false)})))
	require.NoError(t, tbl.AddColumn(mustColumn(t, "n", nums(1, 2))))
	tbl.AddDerivedColumn("mixed", `=IF(flag, "text", n)`)
	m.AddTable(tbl)

	_, err := Calculate(m, Options{})
	require.Error(t, err)
	var typeErr TypeMismatchError
	require.ErrorAs(t, err, &typeErr)
}

func TestCalculateEmptyTable(t *testing.T) {
	m := NewModel("1.0")
	tbl := NewTable("t")
	col, err := NewColumn("x", KindNumber, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.AddColumn(col))
	tbl.AddDerivedColumn("y", "=x*2")
	m.AddTable(tbl)

	_, err = Calculate(m, Options{})
	require.Error(t, err)
	var emptyErr EmptyTableError
	require.ErrorAs(t, err, &emptyErr)
}

func TestCalculateStrictNumericRounding(t *testing.T) {
	m := NewModel("1.0")
	tbl := NewTable("t")
	require.NoError(t, tbl.AddColumn(mustColumn(t, "x", nums(1))))
	tbl.AddDerivedColumn("y", "=x/3")
	m.AddTable(tbl)

	result, err := Calculate(m, Options{StrictNumericRounding: true})
	require.NoError(t, err)
	col, _ := result.Tables["t"].Column("y")
	n, err := col.Values[0].Number()
	require.NoError(t, err)
	assert.Equal(t, math.Round((1.0/3.0)*1e6)/1e6, n)
}
