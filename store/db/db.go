// Package db creates the storage driver from the instance profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/warintorn/shoptalk/internal/profile"
	"github.com/warintorn/shoptalk/store"
	"github.com/warintorn/shoptalk/store/db/sqlite"
)

// NewDriver creates the driver named by the profile. Only sqlite is
// supported; the config workload is tiny and read-mostly.
func NewDriver(p *profile.Profile) (store.Driver, error) {
	switch p.Driver {
	case "sqlite", "":
		return sqlite.NewDB(p)
	default:
		return nil, errors.Errorf("unsupported driver: %s", p.Driver)
	}
}
