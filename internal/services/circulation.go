package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkorir/bookhold/internal/events"
	"github.com/jkorir/bookhold/internal/models"
	"github.com/jkorir/bookhold/internal/repository"
)

// ErrBookReservedForAnother indicates the head of the book's queue belongs
// to a different user, so the book cannot be borrowed directly.
var ErrBookReservedForAnother = errors.New("book is held for another user's reservation")

// CirculationService connects borrowing and returning to the reservation
// queue. A return publishes a BookAvailable event; the queue service
// subscribes to that event and advances the waiting line.
type CirculationService struct {
	queue        QueueServiceInterface
	reservations repository.ReservationRepository
	books        repository.BookRepository
	bus          *events.Bus
	logger       *slog.Logger
	now          func() time.Time
}

// NewCirculationService creates the circulation coordinator and subscribes
// the queue service to BookAvailable events on the given bus.
func NewCirculationService(queue QueueServiceInterface, reservations repository.ReservationRepository, books repository.BookRepository, bus *events.Bus, logger *slog.Logger) *CirculationService {
	s := &CirculationService{
		queue:        queue,
		reservations: reservations,
		books:        books,
		bus:          bus,
		logger:       logger,
		now:          time.Now,
	}
	bus.Subscribe(events.TypeBookAvailable, func(ctx context.Context, event events.Event) error {
		return queue.NotifyNextInQueue(ctx, event.BookID)
	})
	bus.Subscribe(events.TypeReservationExpired, s.HandleHoldLapsed)
	bus.Subscribe(events.TypeReservationCancelled, s.HandleHoldLapsed)
	return s
}

// WithClock replaces the service's time source.
func (s *CirculationService) WithClock(now func() time.Time) *CirculationService {
	s.now = now
	return s
}

// ReturnBook records a copy coming back to the shelf and publishes
// BookAvailable, which cascades to the next waiting reservation. When
// someone is waiting the copy is held for them rather than shelved.
func (s *CirculationService) ReturnBook(ctx context.Context, bookID models.BookID) error {
	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("failed to get book: %w", err)
	}

	next, err := s.queue.NextInQueue(ctx, bookID)
	if err != nil {
		return err
	}
	if next == nil {
		// Nobody waiting: the copy goes back on the shelf
		book.AvailableCopies++
		if err := s.books.Save(ctx, book); err != nil {
			return fmt.Errorf("failed to update book availability: %w", err)
		}
	}

	s.bus.Publish(ctx, events.NewBookAvailable(bookID, s.now()))
	s.logger.Info("Book returned", "book_id", bookID.String(), "held_for_queue", next != nil)
	return nil
}

// BorrowBook lends a copy to the user. A user whose reservation is ready
// fulfills it by borrowing; a user facing someone else's held or queued copy
// is turned away and told to reserve instead.
func (s *CirculationService) BorrowBook(ctx context.Context, userID models.UserID, bookID models.BookID) error {
	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("failed to get book: %w", err)
	}

	// A ready reservation held by this user wins over shelf availability
	own, err := s.readyReservationFor(ctx, userID, bookID)
	if err != nil {
		return err
	}
	if own != nil {
		if _, err := s.queue.FulfillReservation(ctx, own.ID); err != nil {
			return err
		}
		s.logger.Info("Borrow fulfilled reservation",
			"reservation_id", own.ID.String(),
			"user_id", userID.String(),
			"book_id", bookID.String(),
		)
		return nil
	}

	// A copy held for someone else's ready reservation is off limits
	heldForOther, err := s.bookHeldForAnother(ctx, userID, bookID)
	if err != nil {
		return err
	}
	if heldForOther {
		return ErrBookReservedForAnother
	}

	if !book.IsAvailable() {
		return fmt.Errorf("no copies of %q available", book.Title)
	}

	book.AvailableCopies--
	if err := s.books.Save(ctx, book); err != nil {
		return fmt.Errorf("failed to update book availability: %w", err)
	}
	s.logger.Info("Book borrowed", "user_id", userID.String(), "book_id", bookID.String())
	return nil
}

// HandleHoldLapsed reacts to a ready hold expiring or being cancelled. The
// released copy passes to the next reservation in line; with nobody waiting
// it goes back on the shelf.
func (s *CirculationService) HandleHoldLapsed(ctx context.Context, event events.Event) error {
	next, err := s.queue.NextInQueue(ctx, event.BookID)
	if err != nil {
		return err
	}
	if next != nil {
		// The cascade hands the copy to them; nothing to reshelve
		return nil
	}

	book, err := s.books.FindByID(ctx, event.BookID)
	if err != nil {
		return fmt.Errorf("failed to get book: %w", err)
	}
	book.AvailableCopies++
	if err := s.books.Save(ctx, book); err != nil {
		return fmt.Errorf("failed to update book availability: %w", err)
	}
	s.logger.Info("Held copy reshelved",
		"book_id", event.BookID.String(),
		"reservation_id", event.ReservationID.String(),
	)
	return nil
}

func (s *CirculationService) readyReservationFor(ctx context.Context, userID models.UserID, bookID models.BookID) (*models.Reservation, error) {
	reservations, err := s.reservations.FindByUserAndBook(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to check reservations: %w", err)
	}
	for _, r := range reservations {
		if r.Status == models.ReservationStatusReady && !r.IsExpired(s.now()) {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (s *CirculationService) bookHeldForAnother(ctx context.Context, userID models.UserID, bookID models.BookID) (bool, error) {
	ready, err := s.reservations.FindByStatus(ctx, models.ReservationStatusReady)
	if err != nil {
		return false, fmt.Errorf("failed to check held copies: %w", err)
	}
	for _, r := range ready {
		if r.BookID == bookID && r.UserID != userID && !r.IsExpired(s.now()) {
			return true, nil
		}
	}
	return false, nil
}
