// Package natsclient manages the NATS connection used to publish hub events
// and to keep link settings in a JetStream key-value bucket.
//
// Connection lifecycle:
//
//	Disconnected -> Connecting -> Connected <-> Reconnecting
//
// Connect dials once by default; WithConnectRetry adds exponential backoff
// from pkg/retry. After the first connection the NATS library reconnects on
// its own and the client mirrors its state through Status and the optional
// health callback.
//
// Basic usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithConnectRetry(retry.DefaultConfig()),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "mavrouter"})
//	kv := client.NewKVStore(bucket)
//
// KVStore maps missing keys to ErrKVKeyNotFound and treats an empty bucket as
// an empty key list rather than an error.
//
// Integration tests start a real server with testcontainers through
// NewTestClient and are skipped under -short.
package natsclient
