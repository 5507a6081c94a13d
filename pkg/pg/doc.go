// Package pg opens the PostgreSQL pool shared by the queue storage and the
// application stores, applies the embedded goose migrations and offers
// WithTx for the batch processor.
//
// # Usage
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, migrations.FS, slog.Default()); err != nil {
//	    return err
//	}
//
//	err = pg.WithTx(ctx, pool, func(tx pgx.Tx) error {
//	    _, err := tx.Exec(ctx, "DELETE FROM refresh_tokens WHERE expires_at < now()")
//	    return err
//	})
//
// # Configuration
//
// Config is populated from PG_* environment variables; see the struct tags
// for names and defaults.
//
// IsNotFoundError maps pgx.ErrNoRows to a boolean so storage code can turn
// an empty claim into queue.ErrNoJobToClaim.
package pg
