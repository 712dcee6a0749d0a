package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyctaxi/taxietl/internal/config"
)

func TestNewCreatesRunDirAndFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{LogDir: dir}

	log, err := New(cfg, "2024-01", "20260729T000000Z")
	require.NoError(t, err)

	log.Info().Msg("hello")

	_, statErr := os.Stat(filepath.Join(dir, "2024-01", "20260729T000000Z.log"))
	assert.NoError(t, statErr)
}

func TestComponentAddsField(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{LogDir: dir}
	log, err := New(cfg, "label", "ts")
	require.NoError(t, err)

	child := Component(log, "fetch")
	child.Info().Msg("tagged")
}
