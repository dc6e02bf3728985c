// Package database provides the SQLite handle behind the device registry
// and the settings store.
//
// The connection runs with foreign keys on, a busy timeout, and optional WAL
// journaling, and is limited to a single open connection. The database file
// is created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql should ship with a .down.sql.
package database
