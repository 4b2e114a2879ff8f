package postgresengine

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/lending/postgresengine/internal/adapters"
)

//go:embed schema.sql
var schemaDDL string

const (
	tableBooks   = "books"
	tableUsers   = "users"
	tableBorrows = "borrows"

	colID           = "id"
	colTitle        = "title"
	colAuthor       = "author"
	colDescription  = "description"
	colAvailable    = "available"
	colCreatedAt    = "created_at"
	colName         = "name"
	colEmail        = "email"
	colPasswordHash = "password_hash"
	colRole         = "role"
	colUserID       = "user_id"
	colBookID       = "book_id"
	colBorrowedAt   = "borrowed_at"
	colReturnedAt   = "returned_at"

	dialectPostgres = "postgres"

	spanNamePrefix = "lendingstore."

	logMsgSQLExecuted       = "executed sql"
	logMsgBuildQueryFailed  = "failed to build query"
	logMsgDBQueryFailed     = "database query execution failed"
	logMsgDBExecFailed      = "database execution failed"
	logMsgCloseRowsFailed   = "failed to close database rows"
	logMsgScanRowFailed     = "failed to scan database row"
	logMsgRowsAffected      = "failed to get rows affected count"
	logMsgTxBeginFailed     = "failed to begin transaction"
	logMsgTxCommitFailed    = "failed to commit transaction"
	logMsgRowCountUnexpect  = "conditional write affected an unexpected row count"
	logAttrError            = "error"
	logAttrQuery            = "query"
	logAttrDurationMS       = "duration_ms"
	logAttrDurationMSStr    = "duration"
	logAttrOperation        = "operation"
	logAttrRowsAffected     = "rows_affected"
)

// ErrBuildingQueryFailed wraps goqu SQL generation failures.
var ErrBuildingQueryFailed = errors.New("building sql query failed")

// Store is a Postgres-backed implementation of the catalog, membership,
// and borrow-ledger persistence. Each lending operation runs inside a
// single database transaction that takes row locks on the specific book
// and user it touches, so check-then-act sequences are serializable per
// book/user while disjoint entities proceed in parallel.
type Store struct {
	db               adapters.DBAdapter
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewStoreFromPGXPool creates a new Store using a pgx pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{db: db}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// EnsureSchema creates the books, users, and borrows tables and their
// indexes if they do not exist yet. The partial unique index on open
// borrows is a database-level backstop for the one-open-borrow-per-book
// invariant.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		s.logError(ctx, logMsgDBExecFailed, err)
		return s.storeError(err)
	}

	return nil
}

// Ping verifies that the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	rows, err := s.db.Query(ctx, "SELECT 1")
	if err != nil {
		return s.storeError(err)
	}

	s.closeRows(ctx, rows)

	return nil
}

// storeError surfaces a driver failure as a transient store error,
// keeping the cause inspectable via errors.Is / errors.As.
func (s *Store) storeError(err error) error {
	return errors.Join(lending.ErrStoreUnavailable, err)
}

// builder returns the goqu dialect builder used for all queries.
func builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

// queryExecutor is satisfied by both the adapter and its transactions.
type queryExecutor interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

// executeQuery runs a select with timing and debug logging.
func (s *Store) executeQuery(ctx context.Context, exec queryExecutor, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, err := exec.Query(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, time.Since(start))

	if err != nil {
		s.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return nil, s.storeError(err)
	}

	return rows, nil
}

// executeStatement runs a mutating statement with timing and debug logging
// and returns the affected row count.
func (s *Store) executeStatement(ctx context.Context, exec queryExecutor, sqlQuery string) (int64, error) {
	start := time.Now()
	result, err := exec.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, time.Since(start))

	if err != nil {
		s.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
		return 0, s.storeError(err)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		s.logError(ctx, logMsgRowsAffected, rowsErr)
		return 0, s.storeError(rowsErr)
	}

	return rowsAffected, nil
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}

		if s.contextualLogger != nil {
			s.contextualLogger.WarnContext(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// inTransaction runs fn inside a transaction, committing on nil error and
// rolling back otherwise. Rollback after commit is a no-op in the adapters.
func (s *Store) inTransaction(ctx context.Context, fn func(tx adapters.DBTx) error) error {
	tx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgTxBeginFailed, beginErr)
		return s.storeError(beginErr)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(ctx, logMsgTxCommitFailed, commitErr)
		return s.storeError(commitErr)
	}

	return nil
}

// toSQL finalizes a goqu dataset, wrapping generation failures.
type sqlGenerator interface {
	ToSQL() (string, []interface{}, error)
}

func (s *Store) toSQL(ctx context.Context, stmt sqlGenerator) (string, error) {
	sqlQuery, _, err := stmt.ToSQL()
	if err != nil {
		s.logError(ctx, logMsgBuildQueryFailed, err)
		return "", errors.Join(ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}
