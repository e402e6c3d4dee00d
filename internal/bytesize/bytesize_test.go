package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"125KB", 125000, false},
		{"125kb", 125000, false},
		{"1Mi", MiB, false},
		{"2 GiB", 2 * GiB, false},
		{"1.5MB", 1500000, false},
		{" 10b ", 10, false},
		{"", 0, true},
		{"abc", 0, true},
		{"10XB", 0, true},
		{"-1", 0, true},
		{"99999999999999999999", 0, true},
		{"20000000000Ti", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("4Ki")))
	assert.Equal(t, 4*KiB, b)

	assert.Error(t, b.UnmarshalText([]byte("four")))
}

func TestMarshalTextRoundTrip(t *testing.T) {
	text, err := (3 * MiB).MarshalText()
	require.NoError(t, err)

	var b ByteSize
	require.NoError(t, b.UnmarshalText(text))
	assert.Equal(t, 3*MiB, b)
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "1.00KiB", KiB.String())
	assert.Equal(t, "1.50MiB", (MiB + 512*KiB).String())
	assert.Equal(t, "2.00TiB", (2 * TiB).String())
}
