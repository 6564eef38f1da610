package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// EventRepo exposes read access to the event catalog.  Availability is
// never written here; see BookingRepo for the two procedures that move it.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// EventSearchQuery defines the name filter and pagination for the catalog.
type EventSearchQuery struct {
	Name     string
	Page     int
	PageSize int
}

const eventColumns = `id, name, description, image_url, price, tickets_available, address, event_date, created_at`

// Search lists events whose name contains q.Name, case-insensitively,
// soonest first.  It returns the page of rows and the total match count.
func (r *EventRepo) Search(ctx context.Context, q EventSearchQuery) ([]model.Event, int64, error) {
	cond := "1=1"
	args := []any{}
	if name := strings.TrimSpace(q.Name); name != "" {
		cond = "LOWER(name) LIKE ?"
		args = append(args, "%"+escapeLike(strings.ToLower(name))+"%")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize
	dataSQL := `SELECT ` + eventColumns + `
		FROM event
		WHERE ` + cond + `
		ORDER BY event_date ASC
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Event, 0, limit)
	for rows.Next() {
		var e model.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID returns one event or ErrNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM event WHERE id = ? LIMIT 1`, id)
	var e model.Event
	if err := scanEvent(row, &e); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// AvailableTickets reads the authoritative remaining count for an event.
func (r *EventRepo) AvailableTickets(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT tickets_available FROM event WHERE id = ?`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner, e *model.Event) error {
	return s.Scan(&e.ID, &e.Name, &e.Description, &e.ImageURL, &e.Price,
		&e.TicketsAvailable, &e.Address, &e.EventDate, &e.CreatedAt)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
