package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dataquality/internal/store"
)

// initStore connects to the record store and applies pending migrations.
func initStore(ctx context.Context) (*store.PostgresStore, error) {
	st, err := store.NewPostgres(ctx, cfg.Store.DSN(), &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
