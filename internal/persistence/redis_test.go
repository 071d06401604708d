package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/enrollment-service/internal/config"
)

func TestNewRedisLogsStreamWhenUnreachable(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := config.RedisConfig{Addr: "127.0.0.1:1", EventStream: "enrollment-events", EventStreamMaxLen: 100}

	r := NewRedis(context.Background(), cfg, zap.New(core))
	t.Cleanup(r.Close)

	entries := logs.FilterMessageSnippet("unable to reach redis").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "enrollment-events", entries[0].ContextMap()["stream"])
	assert.Equal(t, "127.0.0.1:1", entries[0].ContextMap()["addr"])

	assert.Error(t, r.Ping(context.Background()))
	assert.Equal(t, "enrollment-events", r.stream)
	assert.NotNil(t, r.StreamPublisher())
}

func TestNilRedis(t *testing.T) {
	var r *Redis
	assert.Error(t, r.Ping(context.Background()))
	assert.Nil(t, r.StreamPublisher())
	assert.NotPanics(t, r.Close)
}
