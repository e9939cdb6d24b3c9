// Package store provides read access to per-business routing
// configuration. Conversation persistence lives outside this service;
// the store only serves the read-only data the pipeline consumes.
package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/warintorn/shoptalk/bot/business"
	"github.com/warintorn/shoptalk/internal/profile"
)

// ErrNotFound is returned when no business matches the requested id.
var ErrNotFound = errors.New("business not found")

// Driver is the storage backend interface.
type Driver interface {
	Migrate(ctx context.Context) error

	// GetBusinessConfig loads the full routing configuration for one
	// business. Returns ErrNotFound when the business does not exist.
	GetBusinessConfig(ctx context.Context, businessID string) (*business.Config, error)

	// ListOffHoursNotes returns the off-hours annotation text for every
	// business that has one configured.
	ListOffHoursNotes(ctx context.Context) (map[string]string, error)

	Close() error
}

// Store is the facade over a Driver with a small read-through cache.
// Business config changes rarely; callers that mutate it out of band
// call Invalidate.
type Store struct {
	driver  Driver
	profile *profile.Profile

	mu    sync.RWMutex
	cache map[string]*business.Config
}

// New creates a store over the given driver.
func New(driver Driver, p *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: p,
		cache:   make(map[string]*business.Config),
	}
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// GetBusinessConfig returns the routing configuration for a business,
// with default matchers and builders applied.
func (s *Store) GetBusinessConfig(ctx context.Context, businessID string) (*business.Config, error) {
	s.mu.RLock()
	cfg, ok := s.cache[businessID]
	s.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	cfg, err := s.driver.GetBusinessConfig(ctx, businessID)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	s.mu.Lock()
	s.cache[businessID] = cfg
	s.mu.Unlock()
	return cfg, nil
}

// ListOffHoursNotes exposes the per-business off-hours annotations.
func (s *Store) ListOffHoursNotes(ctx context.Context) (map[string]string, error) {
	return s.driver.ListOffHoursNotes(ctx)
}

// Invalidate drops the cached config for a business (or all, with "").
func (s *Store) Invalidate(businessID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if businessID == "" {
		s.cache = make(map[string]*business.Config)
		return
	}
	delete(s.cache, businessID)
}

// Close releases the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}
