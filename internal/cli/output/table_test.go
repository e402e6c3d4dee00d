package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"TABLE", FormatTable, false},
		{"json", FormatJSON, false},
		{"yml", FormatYAML, false},
		{" yaml ", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("ID", "Type")
	table.AddRow("local", "filesystem")
	table.AddRow("archive", "s3")

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, table))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "local")
	assert.Contains(t, out, "s3")
}

func TestPrintFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, map[string]int{"files": 3}))
	assert.JSONEq(t, `{"files": 3}`, buf.String())
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatYAML, struct {
		Name string `yaml:"name"`
	}{Name: "photos"}))
	assert.Equal(t, "name: photos\n", buf.String())
}
