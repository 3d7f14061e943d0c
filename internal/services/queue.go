package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jkorir/bookhold/internal/events"
	"github.com/jkorir/bookhold/internal/models"
	"github.com/jkorir/bookhold/internal/repository"
)

// ErrAlreadyReserved indicates the user already holds an active or ready
// reservation for the same book. Duplicate prevention is scoped per
// (user, book) pair: the same user may queue for any number of other books.
var ErrAlreadyReserved = errors.New("user already has this book reserved")

// QueueServiceInterface defines the reservation queue operations
type QueueServiceInterface interface {
	ReserveBook(ctx context.Context, userID models.UserID, bookID models.BookID) (models.Reservation, error)
	NextInQueue(ctx context.Context, bookID models.BookID) (*models.Reservation, error)
	QueuePosition(ctx context.Context, bookID models.BookID, userID models.UserID) (int, error)
	NotifyNextInQueue(ctx context.Context, bookID models.BookID) error
	ProcessExpiredReservations(ctx context.Context) (int, error)
	CancelReservation(ctx context.Context, id models.ReservationID) (models.Reservation, error)
	FulfillReservation(ctx context.Context, id models.ReservationID) (models.Reservation, error)
}

// QueueService maintains, per book, a fair first-come-first-served waiting
// line of active reservations and drives the ready/expire/cascade lifecycle.
// Fairness comes purely from reservation time ordering; there are no
// priority tiers.
type QueueService struct {
	reservations repository.ReservationRepository
	bus          *events.Bus
	logger       *slog.Logger
	now          func() time.Time

	// sweepMu serializes expiration sweeps so overlapping runs cannot
	// observe the same ready reservation twice and double-notify.
	sweepMu sync.Mutex
}

// NewQueueService creates a reservation queue service.
func NewQueueService(reservations repository.ReservationRepository, bus *events.Bus, logger *slog.Logger) *QueueService {
	return &QueueService{
		reservations: reservations,
		bus:          bus,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the service's time source. Tests use this to simulate
// elapsed hold windows.
func (s *QueueService) WithClock(now func() time.Time) *QueueService {
	s.now = now
	return s
}

// ReserveBook puts the user at the back of the book's waiting line. It fails
// with ErrAlreadyReserved when the user already holds an active or ready
// reservation for this exact book. On success it persists the new
// reservation and publishes a BookReserved event.
func (s *QueueService) ReserveBook(ctx context.Context, userID models.UserID, bookID models.BookID) (models.Reservation, error) {
	existing, err := s.reservations.FindByUserAndBook(ctx, userID, bookID)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("failed to check existing reservations: %w", err)
	}
	for _, r := range existing {
		if r.Status == models.ReservationStatusActive || r.Status == models.ReservationStatusReady {
			return models.Reservation{}, ErrAlreadyReserved
		}
	}

	now := s.now()
	reservation := models.NewReservation(userID, bookID, now)
	if err := s.reservations.Save(ctx, reservation); err != nil {
		return models.Reservation{}, fmt.Errorf("failed to save reservation: %w", err)
	}

	s.bus.Publish(ctx, events.NewBookReserved(reservation, now))
	s.logger.Info("Book reserved",
		"reservation_id", reservation.ID.String(),
		"user_id", userID.String(),
		"book_id", bookID.String(),
	)
	return reservation, nil
}

// NextInQueue returns the book's earliest active reservation, or nil when
// nobody is waiting. Ordering is strictly by reservation time; the
// repository breaks ties by arrival order.
func (s *QueueService) NextInQueue(ctx context.Context, bookID models.BookID) (*models.Reservation, error) {
	active, err := s.reservations.FindActiveByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active reservations: %w", err)
	}
	if len(active) == 0 {
		return nil, nil
	}
	next := active[0]
	return &next, nil
}

// QueuePosition returns the 1-based position of the user's active
// reservation in the book's waiting line, or 0 when the user is not queued.
func (s *QueueService) QueuePosition(ctx context.Context, bookID models.BookID, userID models.UserID) (int, error) {
	active, err := s.reservations.FindActiveByBook(ctx, bookID)
	if err != nil {
		return 0, fmt.Errorf("failed to get active reservations: %w", err)
	}
	for i, r := range active {
		if r.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, nil
}

// NotifyNextInQueue advances the book's earliest active reservation to
// ready, starting its hold window, and publishes a ReservationReady event
// carrying the window deadline. An empty queue is a silent no-op.
func (s *QueueService) NotifyNextInQueue(ctx context.Context, bookID models.BookID) error {
	next, err := s.NextInQueue(ctx, bookID)
	if err != nil {
		return err
	}
	if next == nil {
		s.logger.Debug("No reservations waiting for book", "book_id", bookID.String())
		return nil
	}

	now := s.now()
	ready, err := next.MarkReady(now)
	if err != nil {
		return fmt.Errorf("failed to mark reservation %s as ready: %w", next.ID, err)
	}
	if err := s.reservations.Save(ctx, ready); err != nil {
		return fmt.Errorf("failed to save ready reservation: %w", err)
	}

	s.bus.Publish(ctx, events.NewReservationReady(ready, now))
	s.logger.Info("Reservation ready for pickup",
		"reservation_id", ready.ID.String(),
		"user_id", ready.UserID.String(),
		"book_id", bookID.String(),
		"expires_at", ready.ExpiresAt,
	)
	return nil
}

// ProcessExpiredReservations sweeps every ready reservation whose hold
// window has lapsed: each one is expired, persisted, announced with a
// ReservationExpired event, and its slot is cascaded to the next waiting
// user via NotifyNextInQueue. Returns the number of reservations expired.
// Safe to call repeatedly; a sweep with nothing expired is a no-op, and
// concurrent sweeps are serialized.
func (s *QueueService) ProcessExpiredReservations(ctx context.Context) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	ready, err := s.reservations.FindByStatus(ctx, models.ReservationStatusReady)
	if err != nil {
		return 0, fmt.Errorf("failed to get ready reservations: %w", err)
	}

	now := s.now()
	expired := 0
	for _, r := range ready {
		if !r.IsExpired(now) {
			continue
		}

		expiredSnapshot, err := r.Expire()
		if err != nil {
			return expired, fmt.Errorf("failed to expire reservation %s: %w", r.ID, err)
		}
		if err := s.reservations.Save(ctx, expiredSnapshot); err != nil {
			return expired, fmt.Errorf("failed to save expired reservation: %w", err)
		}
		expired++

		// Publish before cascading: subscribers must observe the queue
		// as the lapsed hold left it, before the next user is promoted.
		s.bus.Publish(ctx, events.NewReservationExpired(expiredSnapshot, now))
		s.logger.Info("Reservation expired",
			"reservation_id", r.ID.String(),
			"user_id", r.UserID.String(),
			"book_id", r.BookID.String(),
		)

		// The lapsed hold frees the slot for the next person in line
		if err := s.NotifyNextInQueue(ctx, r.BookID); err != nil {
			return expired, err
		}
	}

	if expired > 0 {
		s.logger.Info("Expiration sweep completed", "expired", expired)
	}
	return expired, nil
}

// CancelReservation cancels an active or ready reservation. Cancelling a
// ready reservation frees its held slot, so the next waiting user is
// notified exactly as on expiration. Fulfillment never cascades: the book
// leaves the shelf with the borrower.
func (s *QueueService) CancelReservation(ctx context.Context, id models.ReservationID) (models.Reservation, error) {
	reservation, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		return models.Reservation{}, err
	}

	wasReady := reservation.Status == models.ReservationStatusReady

	cancelled, err := reservation.Cancel()
	if err != nil {
		return models.Reservation{}, err
	}
	if err := s.reservations.Save(ctx, cancelled); err != nil {
		return models.Reservation{}, fmt.Errorf("failed to save cancelled reservation: %w", err)
	}

	s.logger.Info("Reservation cancelled",
		"reservation_id", id.String(),
		"book_id", reservation.BookID.String(),
		"was_ready", wasReady,
	)

	if wasReady {
		// Publish before cascading: subscribers must observe the queue
		// as the lapsed hold left it, before the next user is promoted.
		s.bus.Publish(ctx, events.NewReservationCancelled(cancelled, s.now()))
		if err := s.NotifyNextInQueue(ctx, reservation.BookID); err != nil {
			return cancelled, err
		}
	}
	return cancelled, nil
}

// FulfillReservation marks a ready reservation as fulfilled when the user
// borrows the held book within the window.
func (s *QueueService) FulfillReservation(ctx context.Context, id models.ReservationID) (models.Reservation, error) {
	reservation, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		return models.Reservation{}, err
	}

	fulfilled, err := reservation.Fulfill(s.now())
	if err != nil {
		return models.Reservation{}, err
	}
	if err := s.reservations.Save(ctx, fulfilled); err != nil {
		return models.Reservation{}, fmt.Errorf("failed to save fulfilled reservation: %w", err)
	}

	s.logger.Info("Reservation fulfilled",
		"reservation_id", id.String(),
		"user_id", reservation.UserID.String(),
		"book_id", reservation.BookID.String(),
	)
	return fulfilled, nil
}

// HandleBookAvailable is the bus handler that reacts to a copy returning to
// the shelf by advancing the book's queue. Wire it up with:
//
//	bus.Subscribe(events.TypeBookAvailable, queueService.HandleBookAvailable)
func (s *QueueService) HandleBookAvailable(ctx context.Context, event events.Event) error {
	return s.NotifyNextInQueue(ctx, event.BookID)
}
