package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStorageSizeString(t *testing.T) {
	tests := []struct {
		size StorageSize
		str  string
		term string
	}{
		{2839274474874, "2.58 TiB", "2.58TiB"},
		{2458492810, "2.29 GiB", "2.29GiB"},
		{2381273, "2.27 MiB", "2.27MiB"},
		{2192, "2.14 KiB", "2.14KiB"},
		{12, "12.00 B", "12.00B"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.str, tt.size.String())
		assert.Equal(t, tt.term, tt.size.TerminalString())
	}
}

func TestPrettyDuration(t *testing.T) {
	assert.Equal(t, "1.234568s", PrettyDuration(1234567891*time.Nanosecond).String())
}

func TestCopyBytes(t *testing.T) {
	input := []byte{1, 2, 3, 4}
	v := CopyBytes(input)
	assert.Equal(t, input, v)
	v[0] = 99
	assert.Equal(t, byte(1), input[0])
	assert.Nil(t, CopyBytes(nil))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "0123ab..cdef", ShortID("0123abffffffffffffcdef"))
}
