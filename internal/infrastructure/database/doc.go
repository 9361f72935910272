// Package database provides SQLite connectivity for sensorbridge.
//
// It opens the database with WAL mode and a busy timeout, restricts the file
// to its owner, and applies versioned SQL migrations from any fs.FS:
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
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, so
// rows written by older releases still scan. Each version has an .up.sql
// and optionally a .down.sql file.
package database
