package browsersession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", normalizeURL("example.com"))
	assert.Equal(t, "https://example.com/path", normalizeURL("https://example.com/path"))
	assert.Equal(t, "http://example.com", normalizeURL("http://example.com"))
}
