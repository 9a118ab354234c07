// Package tenantkv gives each tenant an isolated view of a shared key-value
// store by prefixing every key with the tenant ID.
//
// Values are stored as JSON. Store failures are returned to the caller
// unchanged in kind (ErrStoreUnavailable); nothing is retried or cached.
package tenantkv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/devrev/medadmin/internal/metrics"
	"github.com/devrev/medadmin/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Store provides tenant-scoped access to a store.Backend
type Store struct {
	backend store.Backend
	logger  *zap.Logger
	inst    *instrumentation
}

// Option configures a Store
type Option func(*Store)

// WithMetrics records operation counts and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.inst.metrics = m
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Store) {
		s.inst.tracer = tp.Tracer(instrumentationName)
	}
}

// New creates a tenant store over backend
func New(backend store.Backend, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  logger,
		inst: &instrumentation{
			tracer: otel.GetTracerProvider().Tracer(instrumentationName),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set serializes value and writes it under the tenant's key. A positive ttl
// makes the store expire the key; otherwise it persists until deleted.
func (s *Store) Set(ctx context.Context, tenantID, key string, value any, ttl time.Duration) (err error) {
	ctx, done := s.inst.start(ctx, "set", tenantID)
	defer func() { done(resultOK, err) }()

	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", ErrSerialization, key, err)
	}

	nsKey := NamespacedKey(tenantID, key)
	if err := s.backend.Set(ctx, nsKey, data, ttl); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrStoreUnavailable, nsKey, err)
	}

	s.logger.Debug("Stored tenant value",
		zap.String("tenant_id", tenantID),
		zap.String("key", key),
		zap.Duration("ttl", ttl))

	return nil
}

// GetRaw returns the stored JSON document. found is false when the key is
// absent or has expired.
func (s *Store) GetRaw(ctx context.Context, tenantID, key string) (raw json.RawMessage, found bool, err error) {
	ctx, done := s.inst.start(ctx, "get", tenantID)
	defer func() {
		result := resultOK
		if !found {
			result = resultMiss
		}
		done(result, err)
	}()

	return s.getRaw(ctx, tenantID, key)
}

func (s *Store) getRaw(ctx context.Context, tenantID, key string) (json.RawMessage, bool, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, false, err
	}

	nsKey := NamespacedKey(tenantID, key)
	data, err := s.backend.Get(ctx, nsKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %w", ErrStoreUnavailable, nsKey, err)
	}

	if !json.Valid(data) {
		return nil, false, fmt.Errorf("%w: key %q holds malformed JSON", ErrDeserialization, key)
	}

	return json.RawMessage(data), true, nil
}

// Get decodes the stored value into dst. found is false when the key is
// absent or has expired, in which case dst is left untouched.
//
// The stored shape is trusted: a value written with a different type decodes
// with JSON's usual leniency, or fails with ErrDeserialization.
func (s *Store) Get(ctx context.Context, tenantID, key string, dst any) (found bool, err error) {
	ctx, done := s.inst.start(ctx, "get", tenantID)
	defer func() {
		result := resultOK
		if !found {
			result = resultMiss
		}
		done(result, err)
	}()

	raw, found, err := s.getRaw(ctx, tenantID, key)
	if err != nil || !found {
		return false, err
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: key %q: %w", ErrDeserialization, key, err)
	}

	return true, nil
}

// GetValue is the typed form of Store.Get
func GetValue[T any](ctx context.Context, s *Store, tenantID, key string) (T, bool, error) {
	var v T
	found, err := s.Get(ctx, tenantID, key, &v)
	return v, found, err
}

// Delete removes the tenant's key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, tenantID, key string) (err error) {
	ctx, done := s.inst.start(ctx, "delete", tenantID)
	defer func() { done(resultOK, err) }()

	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}

	nsKey := NamespacedKey(tenantID, key)
	if err := s.backend.Delete(ctx, nsKey); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStoreUnavailable, nsKey, err)
	}

	s.logger.Debug("Deleted tenant value",
		zap.String("tenant_id", tenantID),
		zap.String("key", key))

	return nil
}

// ListKeys returns the tenant's logical keys matching a glob pattern
// (Redis KEYS syntax; empty means "*"), sorted. The tenant prefix is stripped,
// so the result can be passed straight back to Get, Set and Delete.
func (s *Store) ListKeys(ctx context.Context, tenantID, pattern string) (keys []string, err error) {
	ctx, done := s.inst.start(ctx, "list", tenantID)
	defer func() { done(resultOK, err) }()

	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	// checked here so both backends reject the same patterns
	nsPattern := tenantPattern(tenantID, pattern)
	if _, err := store.CompilePattern(nsPattern); err != nil {
		return nil, fmt.Errorf("%w %q", ErrInvalidPattern, pattern)
	}

	namespaced, err := s.backend.Keys(ctx, nsPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: keys %s: %w", ErrStoreUnavailable, nsPattern, err)
	}

	keys = make([]string, 0, len(namespaced))
	for _, nsKey := range namespaced {
		key, ok := LogicalKey(tenantID, nsKey)
		if !ok {
			s.logger.Warn("Store returned key outside tenant namespace",
				zap.String("tenant_id", tenantID),
				zap.String("key", nsKey))
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

// Ping checks the backing store
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
