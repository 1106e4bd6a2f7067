package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounterCount(t *testing.T) {
	c := NewTokenCounter("gpt-4o")

	assert.Equal(t, 0, c.Count(""))
	short := c.Count("hello")
	long := c.Count(strings.Repeat("hello world ", 50))
	assert.Greater(t, long, short)
}

func TestTruncateShortTextUnchanged(t *testing.T) {
	c := NewTokenCounter("gpt-4o")

	out, cut := c.Truncate("short text", 100)
	assert.False(t, cut)
	assert.Equal(t, "short text", out)
}

func TestTruncateLongText(t *testing.T) {
	c := NewTokenCounter("gpt-4o")
	text := strings.Repeat("many words in a row ", 200)

	out, cut := c.Truncate(text, 10)
	assert.True(t, cut)
	assert.Less(t, len(out), len(text))
	assert.LessOrEqual(t, c.Count(out), 10)
}

func TestTruncateZeroBudgetDisabled(t *testing.T) {
	c := NewTokenCounter("gpt-4o")
	text := strings.Repeat("x", 10000)

	out, cut := c.Truncate(text, 0)
	assert.False(t, cut)
	assert.Equal(t, text, out)
}

func TestTokenCounterUnknownModelFallsBack(t *testing.T) {
	c := NewTokenCounter("not-a-real-model")
	assert.Greater(t, c.Count("some text to count"), 0)
}
