// Package config provides environment-driven configuration for the
// lending service and factory functions for the supported PostgreSQL
// connection kinds (pgxpool, sql.DB, sqlx.DB).
//
// This package is part of the shell (infrastructure) layer; nothing in
// the core depends on it.
package config
