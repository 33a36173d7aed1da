package redis

import (
	"context"
	"testing"

	"sync-server/internal/config"
	"sync-server/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Disabled(t *testing.T) {
	t.Parallel()

	client, err := NewClient(config.RedisConfig{Enabled: false}, observability.NewLogger())

	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNilClient_IsSafe(t *testing.T) {
	t.Parallel()

	var client *Client

	assert.False(t, client.IsEnabled())
	assert.NoError(t, client.Close())

	_, err := client.Get(context.Background(), "key")
	assert.Error(t, err)

	_, err = client.SetNX(context.Background(), "key", "value", 0)
	assert.Error(t, err)
}
