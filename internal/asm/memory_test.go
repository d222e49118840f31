package asm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ki11erRabbit/rowan/internal/asm"
)

func TestMapExecutableEmpty(t *testing.T) {
	b, err := asm.MapExecutable(nil)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0), b.Addr())
	assert.Equal(t, 0, b.Len())
	require.NoError(t, b.Unmap())
}

func TestMapExecutableRoundTrip(t *testing.T) {
	code := []byte{0xc3} // RET on amd64
	b, err := asm.MapExecutable(code)
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Unmap()) }()

	assert.NotEqual(t, uintptr(0), b.Addr())
	assert.Equal(t, len(code), b.Len())
}

func TestExecutableBufferUnmapIdempotent(t *testing.T) {
	b, err := asm.MapExecutable([]byte{0xc3})
	require.NoError(t, err)
	require.NoError(t, b.Unmap())
	require.NoError(t, b.Unmap())
}
