// Package repository defines the persistence contracts the reservation core
// depends on. Any backing store satisfying these query shapes is acceptable;
// the core requires no transactional semantics beyond linearized writes per
// reservation identity.
package repository

import (
	"context"
	"errors"

	"github.com/jkorir/bookhold/internal/models"
)

// ErrNotFound is returned when a referenced identity does not resolve.
var ErrNotFound = errors.New("not found")

// ReservationRepository persists reservation snapshots.
type ReservationRepository interface {
	// Save inserts or replaces the snapshot for the reservation's identity.
	Save(ctx context.Context, reservation models.Reservation) error
	FindByID(ctx context.Context, id models.ReservationID) (models.Reservation, error)
	// FindActiveByBook returns active reservations for a book, ordered by
	// reservation time ascending.
	FindActiveByBook(ctx context.Context, bookID models.BookID) ([]models.Reservation, error)
	FindByStatus(ctx context.Context, status string) ([]models.Reservation, error)
	FindByUserAndBook(ctx context.Context, userID models.UserID, bookID models.BookID) ([]models.Reservation, error)
	FindByUser(ctx context.Context, userID models.UserID) ([]models.Reservation, error)
	Delete(ctx context.Context, id models.ReservationID) error
}

// UserRepository resolves library users.
type UserRepository interface {
	FindByID(ctx context.Context, id models.UserID) (models.User, error)
	Save(ctx context.Context, user models.User) error
}

// BookRepository resolves catalog books.
type BookRepository interface {
	FindByID(ctx context.Context, id models.BookID) (models.Book, error)
	Save(ctx context.Context, book models.Book) error
}
