// Package store persists the transaction fact snapshot and the latest RFM
// profile snapshot behind a driver-neutral interface. SQLite serves the
// single-box CLI workflow, PostgreSQL the served deployment.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/g5/dss-engine/internal/model"
)

// FactFilter narrows a fact query. Zero values mean no constraint.
type FactFilter struct {
	Country string    `json:"country,omitempty"`
	From    time.Time `json:"from,omitempty"` // inclusive
	To      time.Time `json:"to,omitempty"`   // exclusive
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// Store is the persistence interface for the analytics engines.
type Store interface {
	// Facts
	InsertFacts(ctx context.Context, facts []model.TransactionFact) (int64, error)
	Facts(ctx context.Context, filter FactFilter) ([]model.TransactionFact, error)
	CountFacts(ctx context.Context) (int64, error)

	// Profile snapshot. UpsertProfiles replaces rows by customer id so a
	// re-run refreshes the snapshot in place.
	UpsertProfiles(ctx context.Context, profiles []model.RfmProfile) (int64, error)
	Profiles(ctx context.Context, segment model.Segment) ([]model.RfmProfile, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds a Store for the configured driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
