package storage

import "fmt"

// Dialect identifies the SQL engine behind a *sql.DB. Queries use $N placeholders,
// which both supported engines accept; the dialect only covers what differs.
//
// SQLite numbers $N parameters by first appearance, so placeholders must first appear
// in ascending order within a statement.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// ParseDialect converts a driver name into a Dialect
func ParseDialect(name string) (Dialect, error) {
	switch Dialect(name) {
	case DialectPostgres, "postgresql":
		return DialectPostgres, nil
	case DialectSQLite, "sqlite":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect %q", name)
	}
}

// DriverName returns the database/sql driver name for the dialect
func (d Dialect) DriverName() string {
	return string(d)
}

// ForUpdate returns the row-lock suffix for a SELECT inside a transaction. SQLite has no
// row locks; there the transaction itself must be opened with an immediate lock
// (_txlock=immediate) so concurrent writers serialize.
func (d Dialect) ForUpdate() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// TimestampType returns the column type used for timestamps
func (d Dialect) TimestampType() string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// JSONType returns the column type used for structured metadata
func (d Dialect) JSONType() string {
	if d == DialectPostgres {
		return "JSONB"
	}
	return "TEXT"
}
