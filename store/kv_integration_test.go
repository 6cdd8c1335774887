//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/natsclient"
)

func TestIntegration_KVStoreOnJetStream(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithKVBuckets("mavrouter-settings"))
	ctx := context.Background()

	bucket, err := tc.KVStore(ctx, "mavrouter-settings")
	require.NoError(t, err)
	kv := NewKVStore(bucket, nil)

	require.NoError(t, kv.Save(ctx, sampleSettings()))
	require.NoError(t, kv.DeleteLink(ctx, "companion"))

	got, err := kv.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Links, 2)
	assert.Equal(t, []string{"GCS"}, got.Routing["radio"])
	assert.Equal(t, []string{"radio"}, got.Routing["GCS"])
}
