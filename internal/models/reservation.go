package models

import (
	"errors"
	"fmt"
	"time"
)

// ReservationStatus constants for reservation statuses
const (
	ReservationStatusActive    = "active"
	ReservationStatusReady     = "ready"
	ReservationStatusFulfilled = "fulfilled"
	ReservationStatusCancelled = "cancelled"
	ReservationStatusExpired   = "expired"
)

// HoldPeriod is the fixed window during which a ready reservation may be
// fulfilled before it lapses.
const HoldPeriod = 72 * time.Hour

var (
	// ErrInvalidTransition indicates a reservation operation was invoked
	// from a status that does not permit it.
	ErrInvalidTransition = errors.New("invalid reservation state transition")

	// ErrReservationExpired indicates an attempt to fulfill a reservation
	// whose hold window has already elapsed.
	ErrReservationExpired = errors.New("reservation has expired")
)

// Reservation represents a user's place in the waiting line for a book.
// It is an immutable value: every transition returns a new snapshot and
// never mutates the receiver.
type Reservation struct {
	ID         ReservationID `json:"id"`
	UserID     UserID        `json:"user_id"`
	BookID     BookID        `json:"book_id"`
	Status     string        `json:"status"`
	ReservedAt time.Time     `json:"reserved_at"`
	ReadyAt    *time.Time    `json:"ready_at,omitempty"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
}

// NewReservation creates a reservation in active status.
func NewReservation(userID UserID, bookID BookID, now time.Time) Reservation {
	return Reservation{
		ID:         NewReservationID(),
		UserID:     userID,
		BookID:     bookID,
		Status:     ReservationStatusActive,
		ReservedAt: now.UTC(),
	}
}

// Validate enforces the structural invariants of a reservation snapshot.
// A ready reservation must carry both a ready and an expiry timestamp, and
// the expiry must fall strictly after creation.
func (r Reservation) Validate() error {
	if !ValidateReservationStatus(r.Status) {
		return fmt.Errorf("unknown reservation status %q", r.Status)
	}
	if r.Status == ReservationStatusReady {
		if r.ReadyAt == nil || r.ExpiresAt == nil {
			return errors.New("ready reservation must have ready_at and expires_at set")
		}
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(r.ReservedAt) {
		return errors.New("expires_at must be after reserved_at")
	}
	return nil
}

// MarkReady transitions an active reservation to ready, starting the hold
// window. The new snapshot carries ready_at = now and expires_at = now plus
// the hold period.
func (r Reservation) MarkReady(now time.Time) (Reservation, error) {
	if r.Status != ReservationStatusActive {
		return Reservation{}, fmt.Errorf("%w: cannot mark %s reservation as ready", ErrInvalidTransition, r.Status)
	}
	readyAt := now.UTC()
	expiresAt := readyAt.Add(HoldPeriod)
	next := r
	next.Status = ReservationStatusReady
	next.ReadyAt = &readyAt
	next.ExpiresAt = &expiresAt
	return next, nil
}

// IsExpired reports whether the hold window has elapsed. Only a ready
// reservation can report as expired; every other status returns false
// regardless of how much time has passed.
func (r Reservation) IsExpired(now time.Time) bool {
	if r.Status != ReservationStatusReady || r.ExpiresAt == nil {
		return false
	}
	return now.After(*r.ExpiresAt)
}

// RemainingDays returns how many whole days of the hold window are left,
// rounded up. Zero for any status other than ready, and zero once the
// window has elapsed.
func (r Reservation) RemainingDays(now time.Time) int {
	if r.Status != ReservationStatusReady || r.ExpiresAt == nil {
		return 0
	}
	remaining := r.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// Fulfill transitions a ready, unexpired reservation to fulfilled.
func (r Reservation) Fulfill(now time.Time) (Reservation, error) {
	if r.Status != ReservationStatusReady {
		return Reservation{}, fmt.Errorf("%w: cannot fulfill %s reservation", ErrInvalidTransition, r.Status)
	}
	if r.IsExpired(now) {
		return Reservation{}, ErrReservationExpired
	}
	next := r
	next.Status = ReservationStatusFulfilled
	return next, nil
}

// Expire transitions a ready reservation to expired. It does not check the
// hold window itself; the caller decides when the reservation has lapsed.
func (r Reservation) Expire() (Reservation, error) {
	if r.Status != ReservationStatusReady {
		return Reservation{}, fmt.Errorf("%w: cannot expire %s reservation", ErrInvalidTransition, r.Status)
	}
	next := r
	next.Status = ReservationStatusExpired
	return next, nil
}

// Cancel transitions an active or ready reservation to cancelled. Fulfilled
// and expired reservations are terminal and cannot be cancelled.
func (r Reservation) Cancel() (Reservation, error) {
	if r.Status != ReservationStatusActive && r.Status != ReservationStatusReady {
		return Reservation{}, fmt.Errorf("%w: cannot cancel %s reservation", ErrInvalidTransition, r.Status)
	}
	next := r
	next.Status = ReservationStatusCancelled
	return next, nil
}

// ValidateReservationStatus validates if a reservation status is valid
func ValidateReservationStatus(status string) bool {
	switch status {
	case ReservationStatusActive, ReservationStatusReady, ReservationStatusFulfilled,
		ReservationStatusCancelled, ReservationStatusExpired:
		return true
	default:
		return false
	}
}

// GetReservationStatusDescription returns a human-readable description of the reservation status
func GetReservationStatusDescription(status string) string {
	switch status {
	case ReservationStatusActive:
		return "Active reservation waiting for book availability"
	case ReservationStatusReady:
		return "Book is being held - borrow before the hold window closes"
	case ReservationStatusFulfilled:
		return "Reservation fulfilled - book was borrowed"
	case ReservationStatusCancelled:
		return "Reservation cancelled by the user"
	case ReservationStatusExpired:
		return "Reservation expired - book was not borrowed within the hold window"
	default:
		return "Unknown reservation status"
	}
}
