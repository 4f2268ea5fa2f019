package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsChannel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	s := New(client, "")
	require.Equal(t, DefaultChannel, s.channel)
	require.Equal(t, "custom", New(client, "custom").channel)
	require.NoError(t, s.Close())
}
