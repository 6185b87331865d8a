package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	logger, err := New(Config{Level: "debug", Console: ConsoleSink{Enabled: true, Format: "json"}})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNew_FileRequiresPath(t *testing.T) {
	_, err := New(Config{Console: ConsoleSink{Enabled: true}, File: FileSink{Enabled: true}})
	assert.Error(t, err)
}

func TestNew_NoSinksEnabled(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_FileSink(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Level: "info",
		File:  FileSink{Enabled: true, Path: filepath.Join(dir, "scan.log")},
	})
	require.NoError(t, err)
	logger.Info("hello")
}
