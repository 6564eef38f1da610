// Package service holds the booking and account workflows.  Services
// depend on small interfaces so that each workflow can be exercised
// without MySQL, Redis or RabbitMQ.
package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// QuantityReason classifies a rejected ticket quantity.
type QuantityReason int

const (
	ReasonMissing QuantityReason = iota + 1
	ReasonInvalid
	ReasonExceeds
	// ReasonNowUnavailable is only produced at checkout, when the live
	// count has dropped below a quantity the form had accepted.
	ReasonNowUnavailable
)

var (
	ErrMissingQuantity     = errors.New("missing ticket quantity")
	ErrInvalidQuantity     = errors.New("invalid ticket quantity")
	ErrExceedsAvailability = errors.New("ticket quantity exceeds availability")
)

// QuantityError reports why a quantity was rejected and the value the
// form field resets to.
type QuantityError struct {
	Reason    QuantityReason
	Clamp     int
	Available int
}

// Error returns the message shown next to the quantity field.
func (e *QuantityError) Error() string {
	switch e.Reason {
	case ReasonMissing:
		return "Please enter the number of tickets you want to book"
	case ReasonInvalid:
		return "Please enter a valid number of tickets"
	case ReasonExceeds:
		return fmt.Sprintf("Only %d tickets available", e.Available)
	case ReasonNowUnavailable:
		return fmt.Sprintf("Only %d tickets are now available", e.Available)
	}
	return "invalid ticket quantity"
}

func (e *QuantityError) Unwrap() error {
	switch e.Reason {
	case ReasonMissing:
		return ErrMissingQuantity
	case ReasonInvalid:
		return ErrInvalidQuantity
	default:
		return ErrExceedsAvailability
	}
}

// ValidateQuantity parses raw as a whole number of tickets between 1 and
// ceiling.  A negative ceiling is treated as zero.
func ValidateQuantity(raw string, ceiling int) (int, error) {
	if ceiling < 0 {
		ceiling = 0
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &QuantityError{Reason: ReasonMissing, Clamp: 1, Available: ceiling}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, &QuantityError{Reason: ReasonInvalid, Clamp: 1, Available: ceiling}
	}
	if n > ceiling {
		return 0, &QuantityError{Reason: ReasonExceeds, Clamp: ceiling, Available: ceiling}
	}
	return n, nil
}

// TotalPrice is unit x qty rounded to cents.
func TotalPrice(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty))).Round(2)
}

// BookingForm is the quantity field of an event page together with the
// visibility of its pay button.  The button is only shown after a
// successful Book and hides again on any edit.
type BookingForm struct {
	TicketCount   string `json:"ticket_count"`
	ShowPayButton bool   `json:"show_pay_button"`
}

// NewBookingForm returns the initial form: one ticket, no pay button.
func NewBookingForm() BookingForm { return BookingForm{TicketCount: "1"} }

func (f *BookingForm) Edit(v string) {
	f.TicketCount = v
	f.ShowPayButton = false
}

// Book validates the current text against ceiling.  On failure the field
// is reset to the error's clamp value.
func (f *BookingForm) Book(ceiling int) error {
	n, err := ValidateQuantity(f.TicketCount, ceiling)
	if err != nil {
		f.ShowPayButton = false
		var qe *QuantityError
		if errors.As(err, &qe) {
			f.TicketCount = strconv.Itoa(qe.Clamp)
		}
		return err
	}
	f.TicketCount = strconv.Itoa(n)
	f.ShowPayButton = true
	return nil
}

// Total prices the current text; text that does not parse counts as zero
// tickets.
func (f *BookingForm) Total(unit decimal.Decimal) decimal.Decimal {
	n, err := strconv.Atoi(strings.TrimSpace(f.TicketCount))
	if err != nil || n < 0 {
		n = 0
	}
	return TotalPrice(unit, n)
}
