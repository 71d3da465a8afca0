package forge

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDebugLoggingWritesToStderr(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStderr := os.Stderr
	os.Stderr = w
	defer func() {
		os.Stderr = origStderr
		setDebugLogging(false)
	}()

	m := NewModel("1.0")
	tbl := NewTable("t")
	require.NoError(t, tbl.AddColumn(mustColumn(t, "x", nums(1, 2))))
	tbl.AddDerivedColumn("y", "=x*2")
	m.AddTable(tbl)

	_, err = Calculate(m, Options{Debug: true})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "table order")
}

func TestCalculateSilentByDefault(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStderr := os.Stderr
	os.Stderr = w
	defer func() {
		os.Stderr = origStderr
		setDebugLogging(false)
	}()

	m := NewModel("1.0")
	tbl := NewTable("t")
	require.NoError(t, tbl.AddColumn(mustColumn(t, "x", nums(1, 2))))
	tbl.AddDerivedColumn("y", "=x*2")
	m.AddTable(tbl)

	_, err = Calculate(m, Options{})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, string(out))
}
