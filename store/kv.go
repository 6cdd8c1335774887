package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/natsclient"
)

// Bucket is the key-value surface KVStore needs. *natsclient.KVStore
// satisfies it.
type Bucket interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

const (
	linkKeyPrefix = "link."
	routingKey    = "routing"
)

// linkKey encodes name so any link name is a legal KV key.
func linkKey(name string) string {
	return linkKeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(name))
}

// KVStore keeps one key per link plus a single routing key in a NATS
// JetStream bucket.
type KVStore struct {
	bucket Bucket
	logger *slog.Logger
	mu     sync.Mutex
}

var _ Store = (*KVStore)(nil)

// NewKVStore creates a store over bucket.
func NewKVStore(bucket Bucket, logger *slog.Logger) *KVStore {
	if logger == nil {
		logger = slog.Default().With("component", "kv-store")
	}
	return &KVStore{bucket: bucket, logger: logger}
}

// Load implements Store.
func (s *KVStore) Load(ctx context.Context) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *KVStore) loadLocked(ctx context.Context) (*Settings, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Load", "list keys")
	}

	out := &Settings{}
	for _, key := range keys {
		if !strings.HasPrefix(key, linkKeyPrefix) {
			continue
		}
		entry, err := s.bucket.Get(ctx, key)
		if natsclient.IsKVNotFoundError(err) {
			continue // deleted between Keys and Get
		}
		if err != nil {
			return nil, errors.WrapTransient(err, "KVStore", "Load", "read "+key)
		}
		var rec LinkRecord
		if err := json.Unmarshal(entry.Value, &rec); err != nil {
			s.logger.Warn("Skipping unreadable link record", "key", key, "error", err)
			continue
		}
		out.Links = append(out.Links, rec)
	}

	routing, err := s.bucket.Get(ctx, routingKey)
	switch {
	case natsclient.IsKVNotFoundError(err):
	case err != nil:
		return nil, errors.WrapTransient(err, "KVStore", "Load", "read routing")
	default:
		if err := json.Unmarshal(routing.Value, &out.Routing); err != nil {
			return nil, errors.WrapInvalid(err, "KVStore", "Load", "parse routing")
		}
	}

	if err := out.Validate(); err != nil {
		return nil, errors.Wrap(err, "KVStore", "Load", "validate settings")
	}
	out.normalize()
	return out, nil
}

// Save implements Store. Link keys not present in settings are deleted.
func (s *KVStore) Save(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return errors.Wrap(err, "KVStore", "Save", "validate settings")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, settings)
}

func (s *KVStore) saveLocked(ctx context.Context, settings *Settings) error {
	existing, err := s.bucket.Keys(ctx)
	if err != nil {
		return errors.WrapTransient(err, "KVStore", "Save", "list keys")
	}

	keep := make(map[string]struct{}, len(settings.Links))
	for _, rec := range settings.Links {
		data, err := json.Marshal(rec)
		if err != nil {
			return errors.WrapInvalid(err, "KVStore", "Save", "encode link "+rec.Name)
		}
		key := linkKey(rec.Name)
		if _, err := s.bucket.Put(ctx, key, data); err != nil {
			return errors.WrapTransient(err, "KVStore", "Save", "write link "+rec.Name)
		}
		keep[key] = struct{}{}
	}

	for _, key := range existing {
		if _, ok := keep[key]; ok || !strings.HasPrefix(key, linkKeyPrefix) {
			continue
		}
		if err := s.bucket.Delete(ctx, key); err != nil {
			return errors.WrapTransient(err, "KVStore", "Save", "delete stale "+key)
		}
	}

	if err := s.putRouting(ctx, settings.Routing); err != nil {
		return errors.Wrap(err, "KVStore", "Save", "write routing")
	}
	s.logger.Debug("Settings saved", "links", len(settings.Links))
	return nil
}

func (s *KVStore) putRouting(ctx context.Context, routing map[string][]string) error {
	if len(routing) == 0 {
		return s.bucket.Delete(ctx, routingKey)
	}
	clean := make(map[string][]string, len(routing))
	for src, dsts := range routing {
		if len(dsts) == 0 {
			continue
		}
		sorted := append([]string(nil), dsts...)
		sort.Strings(sorted)
		clean[src] = sorted
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return err
	}
	_, err = s.bucket.Put(ctx, routingKey, data)
	return err
}

// DeleteLink implements Store.
func (s *KVStore) DeleteLink(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bucket.Delete(ctx, linkKey(name)); err != nil {
		return errors.WrapTransient(err, "KVStore", "DeleteLink", "delete "+name)
	}

	entry, err := s.bucket.Get(ctx, routingKey)
	if natsclient.IsKVNotFoundError(err) {
		return nil
	}
	if err != nil {
		return errors.WrapTransient(err, "KVStore", "DeleteLink", "read routing")
	}
	var routing map[string][]string
	if err := json.Unmarshal(entry.Value, &routing); err != nil {
		return errors.WrapInvalid(err, "KVStore", "DeleteLink", "parse routing")
	}
	if err := s.putRouting(ctx, pruneRoutes(routing, name)); err != nil {
		return errors.WrapTransient(err, "KVStore", "DeleteLink", "write routing")
	}
	return nil
}
