// Package pg provides PostgreSQL plumbing on top of the pgx/v5 driver:
// pooled connections with startup retry, goose schema migrations, health
// checks, common error helpers, and a context-carried transaction boundary.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    log.Fatal(err)
//	}
//
// WithinTx runs a function inside a database transaction and stashes the
// pgx.Tx in the context; repositories retrieve it with QuerierFromContext so
// multi-table writes commit atomically without the repositories knowing about
// each other.
package pg
