package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOutputFormat(t *testing.T) {
	for _, ok := range []string{"", "table", "json"} {
		assert.NoError(t, validateOutputFormat(ok))
	}
	assert.Error(t, validateOutputFormat("csv"))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, []string{"NAME", "KIND"}, [][]string{
		{"Customer", "model"},
		{"Revenue", "metric\nwith newline"},
	}))

	assert.Equal(t, "NAME      KIND\nCustomer  model\nRevenue   metric with newline\n", buf.String())
}

func TestPrintDetail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printDetail(&buf, [][2]string{{"Model", "Orders"}, {"Primary key", "orderkey"}}))
	assert.Equal(t, "Model:        Orders\nPrimary key:  orderkey\n", buf.String())
}

func TestCellLimit_NotATerminal(t *testing.T) {
	assert.Zero(t, cellLimit(&bytes.Buffer{}, 3))
}

func TestTruncateCell(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 0, "short"},
		{"short", 12, "short"},
		{"a very long cell value", 12, "a very lo..."},
		{"héllo wörld and more", 12, "héllo wör..."},
		{"line\nbreak", 0, "line break"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateCell(tt.in, tt.limit), tt.in)
	}
}

func TestFormatCell(t *testing.T) {
	ts := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, "NULL"},
		{"string", "x", "x"},
		{"int", int64(42), "42"},
		{"float", 1.5, "1.5"},
		{"time", ts, "2024-01-15T00:00:00Z"},
		{"bytes", []byte("raw"), "raw"},
		{"map", map[string]interface{}{"k": "v"}, `{"k":"v"}`},
		{"list", []interface{}{"a", 1}, `["a",1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCell(tt.in))
		})
	}
}

func TestDeref(t *testing.T) {
	n := int64(3)
	assert.Equal(t, int64(3), deref(&n))
	assert.Equal(t, int64(0), deref[int64](nil))
	assert.Equal(t, "", deref[string](nil))
}
