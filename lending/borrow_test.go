package lending_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookhaven/book-lending-go/lending"
)

func Test_Borrow_IsOpen_UntilClosed(t *testing.T) {
	// arrange
	borrowedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	borrow := lending.BuildBorrow(uuid.New(), uuid.New(), uuid.New(), borrowedAt)

	// assert
	assert.True(t, borrow.IsOpen())
	assert.Nil(t, borrow.ReturnedAt)
}

func Test_Borrow_Close_SetsReturnedAt(t *testing.T) {
	// arrange
	borrowedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	returnedAt := borrowedAt.Add(48 * time.Hour)
	borrow := lending.BuildBorrow(uuid.New(), uuid.New(), uuid.New(), borrowedAt)

	// act
	closed, err := borrow.Close(returnedAt)

	// assert
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())
	require.NotNil(t, closed.ReturnedAt)
	assert.Equal(t, returnedAt, *closed.ReturnedAt)
}

func Test_Borrow_Close_Fails_WhenAlreadyClosed(t *testing.T) {
	// arrange
	borrowedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	firstReturn := borrowedAt.Add(24 * time.Hour)
	borrow := lending.BuildBorrow(uuid.New(), uuid.New(), uuid.New(), borrowedAt)

	closed, err := borrow.Close(firstReturn)
	require.NoError(t, err)

	// act
	again, err := closed.Close(firstReturn.Add(time.Hour))

	// assert: the original return time stays untouched
	assert.ErrorIs(t, err, lending.ErrAlreadyReturned)
	require.NotNil(t, again.ReturnedAt)
	assert.Equal(t, firstReturn, *again.ReturnedAt)
}

func Test_BuildUser_StartsAsMember(t *testing.T) {
	// act
	user := lending.BuildUser(uuid.New(), "Ada", "ada@example.com", "hash", time.Now())

	// assert
	assert.Equal(t, lending.RoleMember, user.Role)
	assert.False(t, lending.Identity{UserID: user.ID, Role: user.Role}.IsAdmin())
}

func Test_BuildBook_StartsAvailable(t *testing.T) {
	// act
	book := lending.BuildBook(uuid.New(), "Refactoring", "Martin Fowler", "", time.Now())

	// assert
	assert.True(t, book.Available)
}
