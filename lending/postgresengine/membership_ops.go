package postgresengine

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/bookhaven/book-lending-go/lending"
	"github.com/bookhaven/book-lending-go/lending/postgresengine/internal/adapters"
)

const (
	opInsertUser     = "insert_user"
	opGetUser        = "get_user"
	opListUsers      = "list_users"
	opUpdateUserRole = "update_user_role"
	opDeleteUser     = "delete_user"
)

// InsertUser adds a new user. The insert is conditional on the email not
// being registered yet (ON CONFLICT DO NOTHING on the unique email index),
// so two concurrent registrations with the same email cannot both succeed;
// the losing one observes zero affected rows and fails with ErrEmailTaken.
func (s *Store) InsertUser(ctx context.Context, user lending.User) error {
	ctx, span := s.startOperationSpan(ctx, opInsertUser)
	start := time.Now()

	stmt := builder().
		Insert(tableUsers).
		Rows(goqu.Record{
			colID:           user.ID.String(),
			colName:         user.Name,
			colEmail:        user.Email,
			colPasswordHash: user.PasswordHash,
			colRole:         string(user.Role),
			colCreatedAt:    user.CreatedAt,
		}).
		OnConflict(goqu.DoNothing())

	err := s.execSingleRowStatement(ctx, stmt, lending.ErrEmailTaken)
	s.observeOperation(opInsertUser, start, span, outcomeStatus(err))

	return err
}

// GetUser looks up one user by ID.
func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (lending.User, error) {
	ctx, span := s.startOperationSpan(ctx, opGetUser)
	start := time.Now()

	user, err := s.findUser(ctx, goqu.Ex{colID: userID.String()})
	s.observeOperation(opGetUser, start, span, outcomeStatus(err))

	return user, err
}

// GetUserByEmail looks up one user by email, for credential verification.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (lending.User, error) {
	ctx, span := s.startOperationSpan(ctx, opGetUser)
	start := time.Now()

	user, err := s.findUser(ctx, goqu.Ex{colEmail: email})
	s.observeOperation(opGetUser, start, span, outcomeStatus(err))

	return user, err
}

// ListUsers returns registered users, optionally narrowed by name/email
// substring.
func (s *Store) ListUsers(ctx context.Context, filter lending.UserFilter) ([]lending.User, error) {
	ctx, span := s.startOperationSpan(ctx, opListUsers)
	start := time.Now()

	stmt := builder().
		From(tableUsers).
		Select(colID, colName, colEmail, colPasswordHash, colRole, colCreatedAt).
		Order(goqu.C(colCreatedAt).Asc())

	if filter.Name != "" {
		stmt = stmt.Where(goqu.C(colName).ILike("%" + filter.Name + "%"))
	}

	if filter.Email != "" {
		stmt = stmt.Where(goqu.C(colEmail).ILike("%" + filter.Email + "%"))
	}

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		s.observeOperation(opListUsers, start, span, statusError)
		return nil, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		s.observeOperation(opListUsers, start, span, statusError)
		return nil, queryErr
	}
	defer s.closeRows(ctx, rows)

	users := make([]lending.User, 0)

	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, scanErr)
			s.observeOperation(opListUsers, start, span, statusError)

			return nil, s.storeError(scanErr)
		}

		users = append(users, user)
	}

	s.observeOperation(opListUsers, start, span, statusSuccess)

	return users, nil
}

// UpdateUserRole changes a user's role.
func (s *Store) UpdateUserRole(ctx context.Context, userID uuid.UUID, role lending.Role) error {
	ctx, span := s.startOperationSpan(ctx, opUpdateUserRole)
	start := time.Now()

	stmt := builder().
		Update(tableUsers).
		Set(goqu.Record{colRole: string(role)}).
		Where(goqu.Ex{colID: userID.String()})

	err := s.execSingleRowStatement(ctx, stmt, lending.ErrUserNotFound)
	s.observeOperation(opUpdateUserRole, start, span, outcomeStatus(err))

	return err
}

// DeleteUser removes a user. The delete is rejected with
// ErrOpenBorrowConflict while the user holds an open borrow. Closed
// borrows survive as audit trail.
func (s *Store) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	ctx, span := s.startOperationSpan(ctx, opDeleteUser)
	start := time.Now()

	txErr := s.inTransaction(ctx, func(tx adapters.DBTx) error {
		found, lookupErr := s.lockUserRow(ctx, tx, userID)
		if lookupErr != nil {
			return lookupErr
		}

		if !found {
			return lending.ErrUserNotFound
		}

		openBorrows, countErr := s.countOpenBorrows(ctx, tx, goqu.Ex{colUserID: userID.String()})
		if countErr != nil {
			return countErr
		}

		if decideErr := lending.DecideDelete(openBorrows); decideErr != nil {
			return decideErr
		}

		deleteStmt := builder().Delete(tableUsers).Where(goqu.Ex{colID: userID.String()})

		sqlQuery, buildErr := s.toSQL(ctx, deleteStmt)
		if buildErr != nil {
			return buildErr
		}

		rowsAffected, execErr := s.executeStatement(ctx, tx, sqlQuery)
		if execErr != nil {
			return execErr
		}

		return s.validateSingleRow(ctx, rowsAffected, lending.ErrUserNotFound)
	})

	s.observeOperation(opDeleteUser, start, span, outcomeStatus(txErr))

	return txErr
}

// findUser fetches a single user matching the criteria.
func (s *Store) findUser(ctx context.Context, criteria goqu.Ex) (lending.User, error) {
	stmt := builder().
		From(tableUsers).
		Select(colID, colName, colEmail, colPasswordHash, colRole, colCreatedAt).
		Where(criteria)

	sqlQuery, buildErr := s.toSQL(ctx, stmt)
	if buildErr != nil {
		return lending.User{}, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return lending.User{}, queryErr
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		return lending.User{}, lending.ErrUserNotFound
	}

	user, scanErr := scanUser(rows)
	if scanErr != nil {
		s.logError(ctx, logMsgScanRowFailed, scanErr)
		return lending.User{}, s.storeError(scanErr)
	}

	return user, nil
}

// scanUser reads one user row.
func scanUser(rows adapters.DBRows) (lending.User, error) {
	var (
		idStr, roleStr string
		user           lending.User
	)

	if err := rows.Scan(&idStr, &user.Name, &user.Email, &user.PasswordHash, &roleStr, &user.CreatedAt); err != nil {
		return lending.User{}, err
	}

	userID, parseErr := uuid.Parse(idStr)
	if parseErr != nil {
		return lending.User{}, parseErr
	}

	user.ID = userID
	user.Role = lending.Role(roleStr)

	return user, nil
}
