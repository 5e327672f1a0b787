package config

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.APIHost)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, "access_token", cfg.APIKeyName)
	assert.Equal(t, "default", cfg.DefaultActorOpts.QueueName)
	assert.Equal(t, 0, cfg.DefaultActorOpts.MaxRetries)
	assert.Equal(t, 7*time.Hour, cfg.DefaultActorOpts.TimeLimit())
	assert.NotEmpty(t, cfg.DataDir)
	assert.Empty(t, cfg.MinIOEndpoint())
	assert.Empty(t, cfg.HDFSAddress())

	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("MINIO_HOST", "minio.internal")
	t.Setenv("MINIO_PORT", "9000")
	t.Setenv("HDFS_HOST", "namenode")
	t.Setenv("DEFAULT_ACTOR_OPTS", `{"queue_name": "gpu", "max_retries": 2}`)

	cfg, err := Load(quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.APIPort)
	assert.Equal(t, "minio.internal:9000", cfg.MinIOEndpoint())
	assert.Equal(t, "namenode:9000", cfg.HDFSAddress())
	assert.Equal(t, "gpu", cfg.DefaultActorOpts.QueueName)
	assert.Equal(t, 2, cfg.DefaultActorOpts.MaxRetries)
}

func TestLoad_BadPort(t *testing.T) {
	t.Setenv("API_PORT", "not-a-port")

	_, err := Load(quietLogger())
	assert.Error(t, err)
}

func TestLoad_BadActorOpts(t *testing.T) {
	t.Setenv("DEFAULT_ACTOR_OPTS", "{broken")

	_, err := Load(quietLogger())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(quietLogger())
	require.NoError(t, err)

	cfg.APIPort = -1
	assert.Error(t, cfg.Validate())

	cfg.APIPort = 8080
	cfg.NATSURL = ""
	assert.Error(t, cfg.Validate())
}
