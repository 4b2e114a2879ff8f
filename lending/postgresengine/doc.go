// Package postgresengine provides the Postgres-backed store for the
// lending service: catalog, membership, and the borrow ledger.
//
// All SQL is built with goqu and executed through a small adapter layer
// so the store works with a pgx pool, database/sql, or sqlx, whichever
// the application wires in.
//
// The lending operations (BorrowBook, ReturnBook) run their
// check-then-act sequence inside one transaction holding row locks on
// the specific book and user, always acquired book first. Conditional
// writes additionally validate their affected row count, mirroring an
// optimistic compare-and-set, as a second line of defense.
package postgresengine
