package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyctaxi/taxietl/internal/errs"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100_000, cfg.ChunkSize)
	assert.Equal(t, "", cfg.BackfillSpec)
	assert.True(t, cfg.InitLoadAllData)
	assert.False(t, cfg.LockEnabled())
}

func TestValidateBackfillSpec(t *testing.T) {
	valid := []string{"", "all", "2024-01", "2024-01,2024-02", "last_6_months", "last_1_months"}
	for _, s := range valid {
		assert.NoError(t, validateBackfillSpec(s), s)
	}

	invalid := []string{"2024-13", "2024", "last_0_months", "last_months", "not-a-spec"}
	for _, s := range invalid {
		assert.Error(t, validateBackfillSpec(s), s)
	}
}

func TestValidateChunkSizeBounds(t *testing.T) {
	cfg := &Config{ChunkSize: 500, BackfillSpec: ""}
	err := cfg.validate()
	require.Error(t, err)
	assert.Equal(t, errs.Config, errs.KindOf(err))

	cfg.ChunkSize = 2_000_000
	assert.Error(t, cfg.validate())

	cfg.ChunkSize = 100_000
	assert.NoError(t, cfg.validate())
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: 5432, DBName: "taxi", DBUser: "u", DBPassword: "p"}
	assert.Contains(t, cfg.DSN(), "host=db")
	assert.Contains(t, cfg.DSN(), "dbname=taxi")
}
