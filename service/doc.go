// Package service orchestrates the lending domain: it owns ID and
// timestamp generation, authorization decisions that span entities, and
// credential handling, delegating persistence and the transactional
// check-then-act sequences to a store.
//
// Stores are consumed through interfaces defined here, so the services
// run against the Postgres engine in production and the in-memory
// engine in tests.
package service
