package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warintorn/shoptalk/bot/business"
	"github.com/warintorn/shoptalk/internal/profile"
)

type fakeDriver struct {
	configs map[string]*business.Config
	loads   int
}

func (d *fakeDriver) Migrate(ctx context.Context) error { return nil }

func (d *fakeDriver) GetBusinessConfig(ctx context.Context, businessID string) (*business.Config, error) {
	d.loads++
	cfg, ok := d.configs[businessID]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg, nil
}

func (d *fakeDriver) ListOffHoursNotes(ctx context.Context) (map[string]string, error) {
	return map[string]string{"b1": "note"}, nil
}

func (d *fakeDriver) Close() error { return nil }

func newTestStore() (*Store, *fakeDriver) {
	driver := &fakeDriver{configs: map[string]*business.Config{
		"b1": {BusinessID: "b1", BusinessName: "ร้านหนึ่ง"},
	}}
	return New(driver, &profile.Profile{Mode: "dev"}), driver
}

func TestGetBusinessConfigAppliesDefaults(t *testing.T) {
	s, _ := newTestStore()

	cfg, err := s.GetBusinessConfig(context.Background(), "b1")
	require.NoError(t, err)

	// The store hands the pipeline a ready-to-route config.
	assert.NotNil(t, cfg.Matchers)
	assert.NotNil(t, cfg.Builders)
	assert.NotEmpty(t, cfg.DefaultFallbackMessage)
}

func TestGetBusinessConfigCaches(t *testing.T) {
	s, driver := newTestStore()
	ctx := context.Background()

	first, err := s.GetBusinessConfig(ctx, "b1")
	require.NoError(t, err)
	second, err := s.GetBusinessConfig(ctx, "b1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, driver.loads)
}

func TestGetBusinessConfigNotFound(t *testing.T) {
	s, _ := newTestStore()

	_, err := s.GetBusinessConfig(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidate(t *testing.T) {
	s, driver := newTestStore()
	ctx := context.Background()

	_, err := s.GetBusinessConfig(ctx, "b1")
	require.NoError(t, err)

	s.Invalidate("b1")
	_, err = s.GetBusinessConfig(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, driver.loads)

	s.Invalidate("")
	_, err = s.GetBusinessConfig(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 3, driver.loads)
}
