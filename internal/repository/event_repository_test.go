package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventCols = []string{"id", "name", "description", "image_url", "price", "tickets_available", "address", "event_date", "created_at"}

func TestSearchFiltersByNameCaseInsensitively(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewEventRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM event WHERE LOWER(name) LIKE ?")).
		WithArgs("%jazz\\_%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY event_date ASC")).
		WithArgs("%jazz\\_%", 10, 10).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("e1", "Jazz_Night", "", "", "12.50", 40, "", time.Now(), time.Now()))

	got, total, err := repo.Search(context.Background(), EventSearchQuery{Name: "  JAZZ_ ", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, 40, got[0].TicketsAvailable)
	assert.Equal(t, "12.5", got[0].Price.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM event WHERE id = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(eventCols))

	_, err = NewEventRepo(db).GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAvailableTickets(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT tickets_available FROM event WHERE id = ?")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"tickets_available"}).AddRow(3))

	n, err := NewEventRepo(db).AvailableTickets(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
