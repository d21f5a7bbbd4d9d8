// Package redis persists block manifests and serializes registry writes
// across replicas using Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/tessera/pkg/domain"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "tessera:"

// Store implements ports.ManifestStore using Redis. Each manifest is a JSON
// string under <prefix>block:<id>; the set <prefix>blocks indexes them.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying connection, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client { return s.client }

// Prefix returns the key prefix in use.
func (s *Store) Prefix() string { return s.prefix }

func (s *Store) key(id string) string {
	return s.prefix + "block:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "blocks"
}

// Save persists the manifest and indexes it atomically.
func (s *Store) Save(ctx context.Context, manifest domain.BlockManifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	id := manifest.ID().String()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), data, 0)
	pipe.SAdd(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a manifest from Redis.
func (s *Store) Load(ctx context.Context, id domain.BlockID) (domain.BlockManifest, error) {
	val, err := s.client.Get(ctx, s.key(id.String())).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.BlockManifest{}, fmt.Errorf("%w: %s", domain.ErrBlockNotFound, id)
		}
		return domain.BlockManifest{}, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(val)
}

// Delete removes the manifest and its index entry.
func (s *Store) Delete(ctx context.Context, id domain.BlockID) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id.String()))
	pipe.SRem(ctx, s.indexKey(), id.String())
	_, err := pipe.Exec(ctx)
	return err
}

// List returns every indexed manifest. Index entries whose record vanished
// are pruned.
func (s *Store) List(ctx context.Context) ([]domain.BlockManifest, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read blocks: %w", err)
	}

	out := make([]domain.BlockManifest, 0, len(vals))
	var stale []any
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		m, err := decode([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", ids[i], err)
		}
		out = append(out, m)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune index: %w", err)
		}
	}
	return out, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decode(data []byte) (domain.BlockManifest, error) {
	var m domain.BlockManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.BlockManifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return m, nil
}
