// Package database provides SQLite connectivity and schema migrations for
// NovaCloud Core.
//
// The connection runs with foreign keys on, an optional WAL journal and a
// small connection pool so concurrent strategy firings never wait on a
// single shared connection. All repositories use parameterised statements.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
