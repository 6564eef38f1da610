package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// BookingRepo reads a user's bookings and runs the two procedures that
// move event availability: Commit (checkout completion) and
// CancelBooking.  Each procedure runs in a single transaction so the
// attendee row and tickets_available never disagree.
type BookingRepo struct{ db *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingSelect = `SELECT a.id, a.user_id, a.event_id, a.tickets_booked, a.price_paid, a.booked_at,
		e.name, e.image_url, e.description, e.event_date, e.address
	FROM event_attendees a
	JOIN event e ON e.id = a.event_id`

// ListByUser returns all bookings of a user joined with their events,
// most recently booked first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, bookingSelect+`
	WHERE a.user_id = ?
	ORDER BY a.booked_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		var b model.Booking
		if err := scanBooking(rows, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetForUser returns a single booking.  It returns ErrNotFound when the
// id is unknown and ErrForbidden when it belongs to someone else.
func (r *BookingRepo) GetForUser(ctx context.Context, bookingID, userID string) (*model.Booking, error) {
	var b model.Booking
	err := scanBooking(r.db.QueryRowContext(ctx, bookingSelect+`
	WHERE a.id = ?`, bookingID), &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrForbidden
	}
	return &b, nil
}

// CancelBooking deletes the attendee row and returns its tickets to the
// event in one transaction.  The delete is keyed on both ids so a booking
// can only ever be released once.
func (r *BookingRepo) CancelBooking(ctx context.Context, bookingID, eventID string, tickets int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM event_attendees WHERE id = ? AND event_id = ?`, bookingID, eventID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE event SET tickets_available = tickets_available + ? WHERE id = ?`, tickets, eventID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Commit records a completed checkout.  The decrement only applies when
// enough tickets remain, so concurrent checkouts can never oversell; the
// loser receives ErrSoldOut and nothing is written.
func (r *BookingRepo) Commit(ctx context.Context, userID, eventID string, tickets int, pricePaid decimal.Decimal) (*model.Booking, error) {
	if tickets < 1 {
		return nil, fmt.Errorf("commit booking: tickets must be positive, got %d", tickets)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE event SET tickets_available = tickets_available - ? WHERE id = ? AND tickets_available >= ?`,
		tickets, eventID, tickets)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSoldOut
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_attendees (id, user_id, event_id, tickets_booked, price_paid) VALUES (?,?,?,?,?)`,
		id, userID, eventID, tickets, pricePaid); err != nil {
		return nil, err
	}

	var b model.Booking
	if err := scanBooking(tx.QueryRowContext(ctx, bookingSelect+`
	WHERE a.id = ?`, id), &b); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &b, nil
}

func scanBooking(s rowScanner, b *model.Booking) error {
	return s.Scan(&b.ID, &b.UserID, &b.EventID, &b.TicketsBooked, &b.PricePaid, &b.BookedAt,
		&b.Event.Name, &b.Event.ImageURL, &b.Event.Description, &b.Event.EventDate, &b.Event.Address)
}
