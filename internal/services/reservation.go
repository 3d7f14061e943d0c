package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkorir/bookhold/internal/models"
	"github.com/jkorir/bookhold/internal/repository"
)

// Expected business outcomes surfaced by the application layer. Handlers
// translate these into HTTP status codes and error code strings.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrBookNotFound        = errors.New("book not found")
	ErrUserNotActive       = errors.New("user account is not active")
	ErrBookAvailable       = errors.New("book is currently available for borrowing")
	ErrReservationNotFound = errors.New("reservation not found")
)

// ReservationResponse is the caller-facing view of a reservation, enriched
// with its queue position and a human-readable message.
type ReservationResponse struct {
	ID            models.ReservationID `json:"id"`
	UserID        models.UserID        `json:"user_id"`
	BookID        models.BookID        `json:"book_id"`
	Status        string               `json:"status"`
	ReservedAt    time.Time            `json:"reserved_at"`
	ReadyAt       *time.Time           `json:"ready_at,omitempty"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	QueuePosition int                  `json:"queue_position,omitempty"`
	RemainingDays int                  `json:"remaining_days,omitempty"`
	Message       string               `json:"message,omitempty"`
}

// ReservationService is the application-level coordinator for reserve and
// cancel use cases. It resolves the user and book aggregates, applies the
// "borrow directly, don't reserve what's free" policy, and delegates queue
// mechanics to the QueueService.
type ReservationService struct {
	queue        QueueServiceInterface
	reservations repository.ReservationRepository
	users        repository.UserRepository
	books        repository.BookRepository
	logger       *slog.Logger
	now          func() time.Time
}

// NewReservationService creates the reserve/cancel orchestrator.
func NewReservationService(queue QueueServiceInterface, reservations repository.ReservationRepository, users repository.UserRepository, books repository.BookRepository, logger *slog.Logger) *ReservationService {
	return &ReservationService{
		queue:        queue,
		reservations: reservations,
		users:        users,
		books:        books,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the service's time source.
func (s *ReservationService) WithClock(now func() time.Time) *ReservationService {
	s.now = now
	return s
}

// ReserveBook validates the user and book, rejects reservations for books
// that can be borrowed right now, and queues the user for the book.
func (s *ReservationService) ReserveBook(ctx context.Context, userID models.UserID, bookID models.BookID) (*ReservationResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUserNotActive
	}

	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	if book.IsAvailable() {
		return nil, ErrBookAvailable
	}

	reservation, err := s.queue.ReserveBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}

	position, err := s.queue.QueuePosition(ctx, bookID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate queue position: %w", err)
	}

	response := s.toResponse(reservation, position)
	response.Message = fmt.Sprintf("%q reserved. You are number %d in the queue.", book.Title, position)
	return response, nil
}

// CancelReservation cancels the identified reservation.
func (s *ReservationService) CancelReservation(ctx context.Context, id models.ReservationID) (*ReservationResponse, error) {
	cancelled, err := s.queue.CancelReservation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	response := s.toResponse(cancelled, 0)
	response.Message = "Reservation cancelled."
	return response, nil
}

// FulfillReservation fulfills the identified reservation.
func (s *ReservationService) FulfillReservation(ctx context.Context, id models.ReservationID) (*ReservationResponse, error) {
	fulfilled, err := s.queue.FulfillReservation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	response := s.toResponse(fulfilled, 0)
	response.Message = "Reservation fulfilled. Enjoy the book."
	return response, nil
}

// GetReservation returns the reservation with its current queue position.
func (s *ReservationService) GetReservation(ctx context.Context, id models.ReservationID) (*ReservationResponse, error) {
	reservation, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	position := 0
	if reservation.Status == models.ReservationStatusActive {
		position, err = s.queue.QueuePosition(ctx, reservation.BookID, reservation.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate queue position: %w", err)
		}
	}
	return s.toResponse(reservation, position), nil
}

// GetUserReservations returns every reservation the user holds, with queue
// positions for the ones still waiting.
func (s *ReservationService) GetUserReservations(ctx context.Context, userID models.UserID) ([]ReservationResponse, error) {
	reservations, err := s.reservations.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user reservations: %w", err)
	}

	responses := make([]ReservationResponse, 0, len(reservations))
	for _, r := range reservations {
		position := 0
		if r.Status == models.ReservationStatusActive {
			position, err = s.queue.QueuePosition(ctx, r.BookID, r.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to calculate queue position: %w", err)
			}
		}
		responses = append(responses, *s.toResponse(r, position))
	}
	return responses, nil
}

// GetBookQueue returns the book's waiting line in order, positions assigned.
func (s *ReservationService) GetBookQueue(ctx context.Context, bookID models.BookID) ([]ReservationResponse, error) {
	if _, err := s.books.FindByID(ctx, bookID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	active, err := s.reservations.FindActiveByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to get book queue: %w", err)
	}

	responses := make([]ReservationResponse, 0, len(active))
	for i, r := range active {
		responses = append(responses, *s.toResponse(r, i+1))
	}
	return responses, nil
}

// GetNextInQueue returns the head of the book's waiting line, or nil when
// nobody is waiting.
func (s *ReservationService) GetNextInQueue(ctx context.Context, bookID models.BookID) (*ReservationResponse, error) {
	next, err := s.queue.NextInQueue(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	return s.toResponse(*next, 1), nil
}

func (s *ReservationService) toResponse(r models.Reservation, position int) *ReservationResponse {
	return &ReservationResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		BookID:        r.BookID,
		Status:        r.Status,
		ReservedAt:    r.ReservedAt,
		ReadyAt:       r.ReadyAt,
		ExpiresAt:     r.ExpiresAt,
		QueuePosition: position,
		RemainingDays: r.RemainingDays(s.now()),
	}
}
