package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploader_Upload(t *testing.T) {
	dir := t.TempDir()
	u, err := NewLocalUploader(dir)
	require.NoError(t, err)

	result, err := u.Upload(context.Background(), &UploadRequest{
		ObjectName:  "screenshots/scan-1.png",
		Content:     bytes.NewReader([]byte("fake-png-bytes")),
		ContentType: "image/png",
	})
	require.NoError(t, err)

	assert.Equal(t, "screenshots/scan-1.png", result.ObjectName)
	assert.Contains(t, result.SignedURL, "file://")

	written, err := os.ReadFile(filepath.Join(dir, "screenshots", "scan-1.png"))
	require.NoError(t, err)
	assert.Equal(t, "fake-png-bytes", string(written))
}

func TestNewLocalUploader_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artefacts")
	_, err := NewLocalUploader(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
