package slicescan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("Defaults Are Valid", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})

	t.Run("Validate Reports Every Problem", func(t *testing.T) {
		c := DefaultConfig()
		c.FailMax = 0
		c.ReadAttempts = 0
		err := c.Validate()
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "fail_max")
		assert.Contains(t, err.Error(), "read_attempts")
	})

	t.Run("Load Without File", func(t *testing.T) {
		c, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), c)
	})

	t.Run("Load File And Environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "slicescan.yaml")
		require.NoError(t, os.WriteFile(path, []byte("fail_max: 4\nfail_time: 250ms\nworkers: 2\n"), 0o644))
		t.Setenv("SLICESCAN_MISS_LIMIT", "9")

		c, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 4, c.FailMax)
		assert.Equal(t, 250*time.Millisecond, c.FailTime)
		assert.Equal(t, 2, c.Workers)
		assert.Equal(t, 9, c.MissLimit)
		assert.Equal(t, DefaultConfig().FailSpan, c.FailSpan)
	})

	t.Run("Load Invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("miss_limit: -1\n"), 0o644))
		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)

		_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("Session Rejects Invalid Config", func(t *testing.T) {
		c := DefaultConfig()
		c.MissLimit = 0
		_, err := NewSession(buildSet(t, 16, makeData(1, 32)), WithConfig(c), WithLogger(quietLogger()))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
