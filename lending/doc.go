// Package lending contains the pure core of the book lending domain:
// the entity types, the error taxonomy, and the decision functions that
// enforce the lending invariants.
//
// The package has no I/O and no knowledge of storage or transport.
// Storage engines load the state a decision depends on, call the
// decision function, and apply its outcome atomically.
//
// Invariants upheld by the decision functions:
//   - at most one open borrow exists per book
//   - a book is available exactly when no open borrow references it
//   - a user holds at most MaxOpenBorrowsPerUser open borrows
//   - a closed borrow is never reopened
package lending
