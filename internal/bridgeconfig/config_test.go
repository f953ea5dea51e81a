package bridgeconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, cfg.BootstrapServers)
	assert.Equal(t, "earliest", cfg.AutoOffsetReset)
	assert.False(t, cfg.EnableAutoCommit)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AMQP_KAFKA_BRIDGE_AUTO_OFFSET_RESET", "latest")
	t.Setenv("AMQP_KAFKA_BRIDGE_ENABLE_AUTO_COMMIT", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "latest", cfg.AutoOffsetReset)
	assert.True(t, cfg.EnableAutoCommit)
}
