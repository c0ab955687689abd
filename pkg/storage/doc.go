// Package storage provides the SQL schema, dialect handling and transaction helper
// shared by the tenant, billing and credit stores.
//
// # Dialects
//
// Production runs on PostgreSQL (lib/pq). Tests and local development can run the same
// queries on SQLite (go-sqlite3). All queries use $N placeholders; the Dialect type
// covers the few differences:
//
//	storage.DialectPostgres.ForUpdate() // " FOR UPDATE"
//	storage.DialectSQLite.ForUpdate()   // "", open SQLite with _txlock=immediate instead
//
// # Migrations
//
// Migrate creates the schema and records applied versions in schema_migrations:
//
//	if err := storage.Migrate(ctx, db, storage.DialectPostgres); err != nil {
//		log.Fatalf("migrate: %v", err)
//	}
//
// # Transactions
//
// RunInTx commits when the callback returns nil and rolls back on error or panic:
//
//	err := storage.RunInTx(ctx, db, nil, func(tx *sql.Tx) error {
//		// reads and writes that must apply together
//		return nil
//	})
//
// # Subpackages
//
//   - storage/postgres: connection pooling with read replicas, Redis client
//   - storage/storagetest: SQLite and testcontainers fixtures for tests
package storage
