package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/pkg/messaging"
)

func TestNewRedisBroker_BadURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), Config{URL: "not a url"}, nil)
	assert.Error(t, err)
}

func TestArgs(t *testing.T) {
	log := zerolog.Nop()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	b := newBroker(client, Config{StreamPrefix: "scheduling:", StreamMaxLen: 1000}, &log)
	var _ messaging.Broker = b

	args := b.Args(messaging.Message{ID: "e1", Type: "appointment.accept", Key: "apt-1", Payload: []byte(`{"a":1}`)})
	require.NotNil(t, args)
	assert.Equal(t, "scheduling:appointment.accept", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]interface{})
	assert.Equal(t, "apt-1", values["key"])
	assert.Equal(t, `{"a":1}`, values["payload"])
}
