// Package adapters wraps the supported database client libraries
// (pgx pool, database/sql, sqlx) behind one small interface so the
// lending store can run queries and transactions without knowing which
// client the application wired in.
package adapters
