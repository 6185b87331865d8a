package emulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDevices = `
devices:
  - name: iphone_13
    device_metrics:
      width: 390
      height: 844
      device_scale_factor: 3
      mobile: true
    user_agent_override:
      user_agent: "Mozilla/5.0 (iPhone)"
      accept_language: "en-US"
      platform: "iPhone"
    is_mobile: true
    accepted_encodings: ["gzip", "br"]
  - name: desktop_chrome
    device_metrics:
      width: 1920
      height: 1080
      device_scale_factor: 1
      mobile: false
    user_agent_override:
      user_agent: "Mozilla/5.0 (Windows NT 10.0)"
      accept_language: "en-US"
      platform: "Win32"
    is_mobile: false
`

func TestLoad_ByName(t *testing.T) {
	reg, err := Load([]byte(sampleDevices))
	require.NoError(t, err)

	d, err := reg.GetByName("iphone_13")
	require.NoError(t, err)
	assert.True(t, d.IsMobile)
	assert.Equal(t, int64(390), d.DeviceMetrics.Width)
	assert.Equal(t, []string{"gzip", "br"}, d.AcceptedEncodings)

	desktop, err := reg.GetByName("desktop_chrome")
	require.NoError(t, err)
	assert.False(t, desktop.IsMobile)
	assert.Empty(t, desktop.AcceptedEncodings)
}

func TestLoad_UnknownName(t *testing.T) {
	reg, err := Load([]byte(sampleDevices))
	require.NoError(t, err)

	_, err = reg.GetByName("does-not-exist")
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load([]byte("devices:\n  - name: x\n    bogus_field: 1\n"))
	assert.Error(t, err)
}
