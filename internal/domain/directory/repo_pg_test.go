package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoPG_CompareAndSetRating_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE practitioner SET rating_sum").
		WithArgs(id, int64(3), 12.0, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepoPG(mock)
	err = repo.CompareAndSetRating(context.Background(), PractitionerSubject(id), 3, RatingAggregate{Sum: 12, Count: 3})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_CompareAndSetRating_Conflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE institution SET rating_sum").
		WithArgs(id, int64(1), 4.0, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewRepoPG(mock)
	err = repo.CompareAndSetRating(context.Background(), InstitutionSubject(id), 1, RatingAggregate{Sum: 4, Count: 1})
	assert.True(t, errors.Is(err, ErrRatingConflict), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_CompareAndSetRating_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE practitioner SET rating_sum").
		WithArgs(id, int64(0), 5.0, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	repo := NewRepoPG(mock)
	err = repo.CompareAndSetRating(context.Background(), PractitionerSubject(id), 0, RatingAggregate{Sum: 5, Count: 1})
	assert.True(t, errors.Is(err, ErrPractitionerNotFound), "got %v", err)
}

func TestRepoPG_GetRating(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT rating_sum, rating_count, rating_version FROM practitioner").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"rating_sum", "rating_count", "rating_version"}).AddRow(9.0, 2, int64(5)))

	agg, err := NewRepoPG(mock).GetRating(context.Background(), PractitionerSubject(id))
	require.NoError(t, err)
	assert.Equal(t, RatingAggregate{Sum: 9, Count: 2, Version: 5}, agg)
	assert.Equal(t, 4.5, agg.Rating())
}
