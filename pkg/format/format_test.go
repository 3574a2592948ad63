package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bytes(tt.in))
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "--", Duration(0))
	assert.Equal(t, "0:42", Duration(42))
	assert.Equal(t, "3:05", Duration(185))
	assert.Equal(t, "1:01:01", Duration(3661))
}

func TestSpeed(t *testing.T) {
	assert.Equal(t, "--", Speed(0))
	assert.Equal(t, "1.0 MB/s", Speed(1024*1024))
}

func TestBar(t *testing.T) {
	assert.Equal(t, "▱▱▱▱▱▱▱▱▱▱ 0.0%", Bar(0, 100))
	assert.Equal(t, "▰▰▰▰▰▱▱▱▱▱ 50.0%", Bar(50, 100))
	assert.Equal(t, "▰▰▰▰▰▰▰▰▰▰ 100.0%", Bar(100, 100))

	// Unknown total never panics and shows zero progress.
	assert.Equal(t, "▱▱▱▱▱▱▱▱▱▱ 0.0%", Bar(1234, 0))
}
