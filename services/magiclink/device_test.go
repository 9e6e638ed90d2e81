package magiclink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeDevice(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "Unknown device", DescribeDevice(""))
	})

	t.Run("desktop firefox", func(t *testing.T) {
		desc := DescribeDevice("Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0")

		assert.Contains(t, desc, "Firefox")
		assert.Contains(t, desc, "Windows")
		assert.Contains(t, desc, " on ")
	})

	t.Run("unrecognised agent", func(t *testing.T) {
		assert.NotEmpty(t, DescribeDevice("curl/8.5.0"))
	})
}
