package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

const (
	DefaultKVMaxKeySize = 256
	DefaultKVMaxEntries = 10000
)

type KVConfig struct {
	MaxKeySize int
	MaxEntries int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize: DefaultKVMaxKeySize,
		MaxEntries: DefaultKVMaxEntries,
	}
}

// KV is an in-memory key-value store shared by every command of a worker.
// Values are native wire values.
type KV struct {
	cfg  KVConfig
	data map[string]any
	mu   sync.RWMutex
}

func NewKV(cfg KVConfig) *KV {
	if cfg.MaxKeySize <= 0 {
		cfg.MaxKeySize = DefaultKVMaxKeySize
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultKVMaxEntries
	}
	return &KV{cfg: cfg, data: make(map[string]any)}
}

// Register adds kv_get, kv_set, kv_delete and kv_keys to r.
func (s *KV) Register(r *Registry) {
	r.Register("kv_get", s.Get)
	r.Register("kv_set", s.Set)
	r.Register("kv_delete", s.Delete)
	r.Register("kv_keys", s.Keys)
}

// Get returns the value for key, or the optional default when it is absent.
func (s *KV) Get(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 2); err != nil {
		return nil, err
	}
	key, err := stringArg(args, 0, "key")
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, nil
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 2, 2); err != nil {
		return nil, err
	}
	key, err := stringArg(args, 0, "key")
	if err != nil {
		return nil, err
	}
	if len(key) > s.cfg.MaxKeySize {
		return nil, fmt.Errorf("key exceeds max size of %d bytes", s.cfg.MaxKeySize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && len(s.data) >= s.cfg.MaxEntries {
		return nil, errors.New("kv store full")
	}
	s.data[key] = args[1]
	return nil, nil
}

func (s *KV) Delete(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 1, 1); err != nil {
		return nil, err
	}
	key, err := stringArg(args, 0, "key")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, existed := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	return existed, nil
}

// Keys returns the stored keys in sorted order.
func (s *KV) Keys(ctx context.Context, args []any) (any, error) {
	if err := checkArity(args, 0, 0); err != nil {
		return nil, err
	}
	s.mu.RLock()
	names := make([]string, 0, len(s.data))
	for k := range s.data {
		names = append(names, k)
	}
	s.mu.RUnlock()

	slices.Sort(names)
	keys := make([]any, len(names))
	for i, k := range names {
		keys[i] = k
	}
	return keys, nil
}
