// Package database provides SQLite connectivity for the smart home core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations read from an fs.FS (the migrations package embeds them)
//   - Connection pool settings suited to SQLite's single writer
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLable or carry a DEFAULT,
// and every .up.sql has a matching .down.sql.
package database
