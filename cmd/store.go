package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/g5/dss-engine/internal/store"
)

// initStore opens the configured store and applies migrations. Callers
// should defer st.Close().
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
