package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/jkorir/bookhold/internal/models"
)

// Type discriminates the kinds of domain events the reservation core emits.
type Type string

const (
	TypeBookReserved         Type = "book.reserved"
	TypeBookAvailable        Type = "book.available"
	TypeReservationReady     Type = "reservation.ready"
	TypeReservationExpired   Type = "reservation.expired"
	TypeReservationCancelled Type = "reservation.cancelled"
)

// Event is an immutable notification that a domain state transition
// occurred. Events are created once, passed by value, and never mutated
// after publication.
type Event struct {
	ID            uuid.UUID            `json:"id"`
	Type          Type                 `json:"type"`
	OccurredAt    time.Time            `json:"occurred_at"`
	ReservationID models.ReservationID `json:"reservation_id,omitempty"`
	UserID        models.UserID        `json:"user_id,omitempty"`
	BookID        models.BookID        `json:"book_id"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
}

// NewBookReserved is emitted when a user joins the waiting line for a book.
func NewBookReserved(r models.Reservation, now time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          TypeBookReserved,
		OccurredAt:    now.UTC(),
		ReservationID: r.ID,
		UserID:        r.UserID,
		BookID:        r.BookID,
	}
}

// NewBookAvailable is emitted when a copy of a book returns to the shelf.
func NewBookAvailable(bookID models.BookID, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       TypeBookAvailable,
		OccurredAt: now.UTC(),
		BookID:     bookID,
	}
}

// NewReservationReady is emitted when a reservation reaches the head of the
// queue and its hold window starts. ExpiresAt carries the window deadline.
func NewReservationReady(r models.Reservation, now time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          TypeReservationReady,
		OccurredAt:    now.UTC(),
		ReservationID: r.ID,
		UserID:        r.UserID,
		BookID:        r.BookID,
		ExpiresAt:     r.ExpiresAt,
	}
}

// NewReservationCancelled is emitted when a reservation that was ready for
// pickup is cancelled, releasing the copy held for it. Cancelling a still
// queued reservation releases nothing and emits no event.
func NewReservationCancelled(r models.Reservation, now time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          TypeReservationCancelled,
		OccurredAt:    now.UTC(),
		ReservationID: r.ID,
		UserID:        r.UserID,
		BookID:        r.BookID,
	}
}

// NewReservationExpired is emitted when a hold window lapses unfulfilled.
func NewReservationExpired(r models.Reservation, now time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          TypeReservationExpired,
		OccurredAt:    now.UTC(),
		ReservationID: r.ID,
		UserID:        r.UserID,
		BookID:        r.BookID,
	}
}
