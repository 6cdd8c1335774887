package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/c360/mavrouter/natsclient"
)

// MockNATSClient is an in-memory stand-in for natsclient.Client publish and
// subscribe. Subscriptions match exact subjects and the "*" and ">" wildcards.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]func(context.Context, []byte)
	publishErr    error
	closed        bool
}

// NewMockNATSClient creates an empty client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]func(context.Context, []byte)),
	}
}

// FailPublish makes every later Publish return err. Nil clears it.
func (c *MockNATSClient) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// Publish records data and calls matching handlers outside the lock.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.publishErr != nil {
		err := c.publishErr
		c.mu.Unlock()
		return err
	}
	cp := append([]byte(nil), data...)
	c.messages[subject] = append(c.messages[subject], cp)

	var handlers []func(context.Context, []byte)
	for pattern, hs := range c.subscriptions {
		if SubjectMatches(pattern, subject) {
			handlers = append(handlers, hs...)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, cp)
	}
	return nil
}

// Subscribe registers handler for subject.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	c.subscriptions[subject] = append(c.subscriptions[subject], handler)
	return nil
}

// GetMessages returns a copy of the messages published on subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	out := make([][]byte, len(msgs))
	copy(out, msgs)
	return out
}

// GetMessageCount returns the number of messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Subjects returns every subject that received a message, sorted.
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.messages))
	for s := range c.messages {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ClearAll forgets every recorded message.
func (c *MockNATSClient) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make(map[string][][]byte)
}

// Close makes later calls fail.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// SubjectMatches applies NATS wildcard rules: "*" matches one token and a
// trailing ">" matches one or more.
func SubjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return i == len(p)-1 && len(s) > i
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}

// WaitForMessageCount fails the test unless subject has count messages
// before timeout.
func WaitForMessageCount(t *testing.T, client *MockNATSClient, subject string, count int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if client.GetMessageCount(subject) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d messages on %s, got %d", count, subject, client.GetMessageCount(subject))
}

// MockKVStore is an in-memory bucket with the same method set and error
// values as natsclient.KVStore.
type MockKVStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	revision uint64
	failErr  error
}

// NewMockKVStore creates an empty bucket.
func NewMockKVStore() *MockKVStore {
	return &MockKVStore{data: make(map[string][]byte)}
}

// Fail makes every later call return err. Nil clears it.
func (kv *MockKVStore) Fail(err error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.failErr = err
}

// Get returns the entry for key or natsclient.ErrKVKeyNotFound.
func (kv *MockKVStore) Get(_ context.Context, key string) (*natsclient.KVEntry, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	if kv.failErr != nil {
		return nil, kv.failErr
	}
	v, ok := kv.data[key]
	if !ok {
		return nil, natsclient.ErrKVKeyNotFound
	}
	return &natsclient.KVEntry{Key: key, Value: append([]byte(nil), v...), Revision: kv.revision}, nil
}

// Put stores a copy of value.
func (kv *MockKVStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.failErr != nil {
		return 0, kv.failErr
	}
	kv.revision++
	kv.data[key] = append([]byte(nil), value...)
	return kv.revision, nil
}

// Delete removes key. Missing keys are ignored.
func (kv *MockKVStore) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.failErr != nil {
		return kv.failErr
	}
	delete(kv.data, key)
	return nil
}

// Keys returns every key, sorted.
func (kv *MockKVStore) Keys(_ context.Context) ([]string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	if kv.failErr != nil {
		return nil, kv.failErr
	}
	keys := make([]string, 0, len(kv.data))
	for k := range kv.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
