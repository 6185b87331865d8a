package busconsumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAndValidate_NormalizesBareURL(t *testing.T) {
	req, err := decodeAndValidate([]byte(`{"url":"example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", req.URL)
}

func TestDecodeAndValidate_KeepsExplicitScheme(t *testing.T) {
	req, err := decodeAndValidate([]byte(`{"url":"http://example.com"}`))
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", req.URL)
}

func TestDecodeAndValidate_RejectsMissingURL(t *testing.T) {
	_, err := decodeAndValidate([]byte(`{"emulation_device":"iphone_13"}`))
	assert.Error(t, err)
}

func TestDecodeAndValidate_RejectsMalformedJSON(t *testing.T) {
	_, err := decodeAndValidate([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeAndValidate_CarriesOptionalFields(t *testing.T) {
	body := []byte(`{
		"url": "https://example.com",
		"emulation_device": "iphone_13",
		"proxy": "http://proxy.local:8080",
		"page_cookies": [{"name": "session", "value": "abc", "domain": "example.com", "path": "/"}]
	}`)
	req, err := decodeAndValidate(body)
	require.NoError(t, err)

	assert.Equal(t, "iphone_13", req.EmulationDevice)
	assert.Equal(t, "http://proxy.local:8080", req.Proxy)
	require.Len(t, req.PageCookies, 1)
	assert.Equal(t, "session", req.PageCookies[0].Name)
}
