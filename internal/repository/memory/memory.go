// Package memory provides mutex-guarded in-memory repositories. They back
// the test suite and embedded deployments where Postgres is not wanted.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jkorir/bookhold/internal/models"
	"github.com/jkorir/bookhold/internal/repository"
)

// ReservationRepository stores reservation snapshots in a map keyed by ID.
// A single mutex guards all access, which linearizes writes per aggregate.
type ReservationRepository struct {
	mu           sync.RWMutex
	reservations map[models.ReservationID]models.Reservation
	insertSeq    map[models.ReservationID]int
	nextSeq      int
}

// NewReservationRepository creates an empty in-memory reservation store.
func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{
		reservations: make(map[models.ReservationID]models.Reservation),
		insertSeq:    make(map[models.ReservationID]int),
	}
}

// Save inserts or replaces the snapshot for the reservation's identity.
func (r *ReservationRepository) Save(ctx context.Context, reservation models.Reservation) error {
	if err := reservation.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reservations[reservation.ID]; !exists {
		r.insertSeq[reservation.ID] = r.nextSeq
		r.nextSeq++
	}
	r.reservations[reservation.ID] = reservation
	return nil
}

// FindByID returns the stored snapshot or repository.ErrNotFound.
func (r *ReservationRepository) FindByID(ctx context.Context, id models.ReservationID) (models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reservation, ok := r.reservations[id]
	if !ok {
		return models.Reservation{}, repository.ErrNotFound
	}
	return reservation, nil
}

// FindActiveByBook returns active reservations for a book ordered by
// reservation time ascending; ties break by insertion order, so the
// earliest arrival always sorts first.
func (r *ReservationRepository) FindActiveByBook(ctx context.Context, bookID models.BookID) ([]models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Reservation
	for _, reservation := range r.reservations {
		if reservation.BookID == bookID && reservation.Status == models.ReservationStatusActive {
			result = append(result, reservation)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ReservedAt.Equal(result[j].ReservedAt) {
			return r.insertSeq[result[i].ID] < r.insertSeq[result[j].ID]
		}
		return result[i].ReservedAt.Before(result[j].ReservedAt)
	})
	return result, nil
}

// FindByStatus returns every reservation currently in the given status.
func (r *ReservationRepository) FindByStatus(ctx context.Context, status string) ([]models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Reservation
	for _, reservation := range r.reservations {
		if reservation.Status == status {
			result = append(result, reservation)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return r.insertSeq[result[i].ID] < r.insertSeq[result[j].ID]
	})
	return result, nil
}

// FindByUserAndBook returns the user's reservations for one book.
func (r *ReservationRepository) FindByUserAndBook(ctx context.Context, userID models.UserID, bookID models.BookID) ([]models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Reservation
	for _, reservation := range r.reservations {
		if reservation.UserID == userID && reservation.BookID == bookID {
			result = append(result, reservation)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return r.insertSeq[result[i].ID] < r.insertSeq[result[j].ID]
	})
	return result, nil
}

// FindByUser returns every reservation the user holds, newest last.
func (r *ReservationRepository) FindByUser(ctx context.Context, userID models.UserID) ([]models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []models.Reservation
	for _, reservation := range r.reservations {
		if reservation.UserID == userID {
			result = append(result, reservation)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return r.insertSeq[result[i].ID] < r.insertSeq[result[j].ID]
	})
	return result, nil
}

// Delete removes the reservation; missing identities return ErrNotFound.
func (r *ReservationRepository) Delete(ctx context.Context, id models.ReservationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reservations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.reservations, id)
	delete(r.insertSeq, id)
	return nil
}

// UserRepository stores users in a map keyed by ID.
type UserRepository struct {
	mu    sync.RWMutex
	users map[models.UserID]models.User
}

// NewUserRepository creates an empty in-memory user store.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[models.UserID]models.User)}
}

func (r *UserRepository) FindByID(ctx context.Context, id models.UserID) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return models.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Save(ctx context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[user.ID] = user
	return nil
}

// BookRepository stores books in a map keyed by ID.
type BookRepository struct {
	mu    sync.RWMutex
	books map[models.BookID]models.Book
}

// NewBookRepository creates an empty in-memory book store.
func NewBookRepository() *BookRepository {
	return &BookRepository{books: make(map[models.BookID]models.Book)}
}

func (r *BookRepository) FindByID(ctx context.Context, id models.BookID) (models.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[id]
	if !ok {
		return models.Book{}, repository.ErrNotFound
	}
	return book, nil
}

func (r *BookRepository) Save(ctx context.Context, book models.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.books[book.ID] = book
	return nil
}
