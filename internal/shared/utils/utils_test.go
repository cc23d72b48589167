package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCutLast(t *testing.T) {
	before, after, ok := CutLast("abc1234567:upload-start", ":")
	assert.True(t, ok)
	assert.Equal(t, "abc1234567", before)
	assert.Equal(t, "upload-start", after)

	before, after, ok = CutLast("a:b:c", ":")
	assert.True(t, ok)
	assert.Equal(t, "a:b", before)
	assert.Equal(t, "c", after)

	before, _, ok = CutLast("plain", ":")
	assert.False(t, ok)
	assert.Equal(t, "plain", before)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "Title", FirstNonEmpty("", "  ", " Title "))
	assert.Equal(t, "", FirstNonEmpty("", " "))
}
