package logger_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/offer-goat/offer-goat/internal/logger"
)

func observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logger.FromZap(zap.New(core)), logs
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", "PRODUCTION", ""} {
		log, err := logger.New(mode)
		require.NoError(t, err, mode)
		require.NotNil(t, log)
	}

	_, err := logger.New("verbose")
	assert.Error(t, err)
}

func TestLogger_RedactsSensitiveKeys(t *testing.T) {
	log, logs := observed()

	log.Info("auth", "admin_token", "s3cret", "Authorization", "Bearer x", "experiment_id", "exp-1")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["admin_token"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
	assert.Equal(t, "exp-1", fields["experiment_id"])
}

func TestLogger_HashesSessionIDs(t *testing.T) {
	log, logs := observed()

	log.Debug("assign", "session_id", "sess-42")
	log.WithHashSalt("pepper").Debug("assign", "session_id", "sess-42")

	entries := logs.All()
	require.Len(t, entries, 2)
	plain := entries[0].ContextMap()["session_id"].(string)
	salted := entries[1].ContextMap()["session_id"].(string)

	assert.True(t, strings.HasPrefix(plain, "hash:"))
	assert.Len(t, plain, len("hash:")+12)
	assert.NotContains(t, plain, "sess-42")
	assert.NotEqual(t, plain, salted)
}

func TestLogger_WithSanitizesContext(t *testing.T) {
	log, logs := observed()

	log.With("session_id", "sess-1").Named("engine").Warn("slow")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "engine", entries[0].LoggerName)
	assert.NotEqual(t, "sess-1", entries[0].ContextMap()["session_id"])
}

func TestLogger_OddKeyValues(t *testing.T) {
	log, logs := observed()

	log.Error("dangling", "key")

	assert.NotEmpty(t, logs.FilterMessage("dangling").All())
}
