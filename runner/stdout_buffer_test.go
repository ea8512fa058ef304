package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	n, err := b.Write([]byte("hello "))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.False(t, b.Truncated())

	_, _ = b.Write([]byte("world"))
	assert.Equal(t, "lo world", b.String())
	assert.Equal(t, int64(11), b.TotalBytes())
	assert.True(t, b.Truncated())
}

func TestTailBufferDefaultSize(t *testing.T) {
	b := newTailBuffer(0)
	assert.Equal(t, defaultStdoutTailBytes, b.maxBytes)
}
