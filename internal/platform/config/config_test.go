// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/rensai/internal/platform/constants"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/rensai")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
}

func TestLoad(t *testing.T) {
	t.Run("should fail without the required connection URLs", func(t *testing.T) {
		// t.Setenv registers the restore; the vars must be absent, not empty.
		t.Setenv("DATABASE_URL", "")
		t.Setenv("REDIS_URL", "")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("REDIS_URL")

		_, err := Load()

		assert.Error(t, err)
	})

	t.Run("should apply defaults for unset knobs", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.ServerPort)
		assert.Equal(t, constants.DefaultBatchCap, cfg.SchedulerBatchCap)
		assert.Equal(t, constants.DefaultMaxAttempts, cfg.MaxJobAttempts)
	})

	t.Run("should fall back to platform defaults on a zero cap", func(t *testing.T) {
		setRequired(t)
		t.Setenv("SCHEDULER_BATCH_CAP", "0")
		t.Setenv("MAX_JOB_ATTEMPTS", "0")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, constants.DefaultBatchCap, cfg.SchedulerBatchCap)
		assert.Equal(t, constants.DefaultMaxAttempts, cfg.MaxJobAttempts)
	})
}
