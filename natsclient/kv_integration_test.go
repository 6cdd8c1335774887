//go:build integration

package natsclient

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PublishSubscribe(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	var got atomic.Value
	require.NoError(t, tc.Client.Subscribe(ctx, "mavrouter.test", func(_ context.Context, data []byte) {
		got.Store(string(data))
	}))
	require.NoError(t, tc.Client.Publish(ctx, "mavrouter.test", []byte("hello")))

	assert.Eventually(t, func() bool {
		v, _ := got.Load().(string)
		return v == "hello"
	}, 2*time.Second, 10*time.Millisecond)

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Positive(t, rtt)
}

func TestIntegration_KVStore(t *testing.T) {
	tc := NewTestClient(t, WithKVBuckets("settings"))
	ctx := context.Background()

	kv, err := tc.KVStore(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, "settings", kv.Bucket())

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys, "empty bucket lists no keys")

	_, err = kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	rev, err := kv.Put(ctx, "b", []byte("2"))
	require.NoError(t, err)
	assert.Positive(t, rev)
	_, err = kv.Put(ctx, "a", []byte("1"))
	require.NoError(t, err)

	entry, err := kv.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), entry.Value)
	assert.Equal(t, rev, entry.Revision)

	_, err = kv.Create(ctx, "a", []byte("again"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	keys, err = kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, kv.Delete(ctx, "a"))
	require.NoError(t, kv.Delete(ctx, "never-written"))
	_, err = kv.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)
}

func TestIntegration_CreateBucketTwice(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	first, err := tc.Client.CreateKeyValueBucket(ctx, kvConfig("twice"))
	require.NoError(t, err)
	second, err := tc.Client.CreateKeyValueBucket(ctx, kvConfig("twice"))
	require.NoError(t, err)
	assert.Equal(t, first.Bucket(), second.Bucket())
}

func kvConfig(name string) jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{Bucket: name}
}
