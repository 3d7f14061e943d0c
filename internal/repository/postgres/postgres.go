// Package postgres implements the repository contracts on top of a pgx
// connection pool. Schema lives in migrations/001_init.sql.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jkorir/bookhold/internal/models"
	"github.com/jkorir/bookhold/internal/repository"
)

// ReservationRepository persists reservation snapshots in Postgres.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository creates a Postgres-backed reservation store.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// Save upserts the snapshot for the reservation's identity.
func (r *ReservationRepository) Save(ctx context.Context, reservation models.Reservation) error {
	if err := reservation.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO reservations (id, user_id, book_id, status, reserved_at, ready_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    ready_at = EXCLUDED.ready_at,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		reservation.ID.String(),
		reservation.UserID.String(),
		reservation.BookID.String(),
		reservation.Status,
		reservation.ReservedAt,
		nullableTime(reservation.ReadyAt),
		nullableTime(reservation.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	return nil
}

// FindByID returns the stored snapshot or repository.ErrNotFound.
func (r *ReservationRepository) FindByID(ctx context.Context, id models.ReservationID) (models.Reservation, error) {
	query := `
		SELECT id, user_id, book_id, status, reserved_at, ready_at, expires_at
		FROM reservations
		WHERE id = $1
	`
	row := r.pool.QueryRow(ctx, query, id.String())
	reservation, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, repository.ErrNotFound
		}
		return models.Reservation{}, fmt.Errorf("failed to get reservation: %w", err)
	}
	return reservation, nil
}

// FindActiveByBook returns active reservations for a book, earliest first.
// Ties on reserved_at break by insertion order via the serial tie-break
// column, so the earliest arrival always wins.
func (r *ReservationRepository) FindActiveByBook(ctx context.Context, bookID models.BookID) ([]models.Reservation, error) {
	query := `
		SELECT id, user_id, book_id, status, reserved_at, ready_at, expires_at
		FROM reservations
		WHERE book_id = $1 AND status = $2
		ORDER BY reserved_at ASC, seq ASC
	`
	return r.queryReservations(ctx, query, bookID.String(), models.ReservationStatusActive)
}

// FindByStatus returns every reservation currently in the given status.
func (r *ReservationRepository) FindByStatus(ctx context.Context, status string) ([]models.Reservation, error) {
	query := `
		SELECT id, user_id, book_id, status, reserved_at, ready_at, expires_at
		FROM reservations
		WHERE status = $1
		ORDER BY reserved_at ASC, seq ASC
	`
	return r.queryReservations(ctx, query, status)
}

// FindByUserAndBook returns the user's reservations for one book.
func (r *ReservationRepository) FindByUserAndBook(ctx context.Context, userID models.UserID, bookID models.BookID) ([]models.Reservation, error) {
	query := `
		SELECT id, user_id, book_id, status, reserved_at, ready_at, expires_at
		FROM reservations
		WHERE user_id = $1 AND book_id = $2
		ORDER BY reserved_at ASC, seq ASC
	`
	return r.queryReservations(ctx, query, userID.String(), bookID.String())
}

// FindByUser returns every reservation the user holds.
func (r *ReservationRepository) FindByUser(ctx context.Context, userID models.UserID) ([]models.Reservation, error) {
	query := `
		SELECT id, user_id, book_id, status, reserved_at, ready_at, expires_at
		FROM reservations
		WHERE user_id = $1
		ORDER BY reserved_at ASC, seq ASC
	`
	return r.queryReservations(ctx, query, userID.String())
}

// Delete removes the reservation; missing identities return ErrNotFound.
func (r *ReservationRepository) Delete(ctx context.Context, id models.ReservationID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ReservationRepository) queryReservations(ctx context.Context, query string, args ...any) ([]models.Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var result []models.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		result = append(result, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reservations: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (models.Reservation, error) {
	var (
		id, userID, bookID, status string
		reservedAt                 time.Time
		readyAt, expiresAt         pgtype.Timestamptz
	)
	if err := row.Scan(&id, &userID, &bookID, &status, &reservedAt, &readyAt, &expiresAt); err != nil {
		return models.Reservation{}, err
	}

	reservation := models.Reservation{
		ID:         models.ReservationID(id),
		UserID:     models.UserID(userID),
		BookID:     models.BookID(bookID),
		Status:     status,
		ReservedAt: reservedAt,
	}
	if readyAt.Valid {
		t := readyAt.Time
		reservation.ReadyAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		reservation.ExpiresAt = &t
	}
	return reservation, nil
}

func nullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// UserRepository resolves users from Postgres.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a Postgres-backed user store.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id models.UserID) (models.User, error) {
	query := `SELECT id, name, email, is_active FROM users WHERE id = $1`

	var (
		user  models.User
		rawID string
		email pgtype.Text
	)
	err := r.pool.QueryRow(ctx, query, id.String()).Scan(&rawID, &user.Name, &email, &user.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, repository.ErrNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	user.ID = models.UserID(rawID)
	user.Email = email.String
	return user, nil
}

func (r *UserRepository) Save(ctx context.Context, user models.User) error {
	query := `
		INSERT INTO users (id, name, email, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, is_active = EXCLUDED.is_active
	`
	_, err := r.pool.Exec(ctx, query, user.ID.String(), user.Name, user.Email, user.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// BookRepository resolves books from Postgres.
type BookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository creates a Postgres-backed book store.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

func (r *BookRepository) FindByID(ctx context.Context, id models.BookID) (models.Book, error) {
	query := `SELECT id, title, author, total_copies, available_copies FROM books WHERE id = $1`

	var (
		book   models.Book
		rawID  string
		author pgtype.Text
	)
	err := r.pool.QueryRow(ctx, query, id.String()).Scan(&rawID, &book.Title, &author, &book.TotalCopies, &book.AvailableCopies)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Book{}, repository.ErrNotFound
		}
		return models.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	book.ID = models.BookID(rawID)
	book.Author = author.String
	return book, nil
}

func (r *BookRepository) Save(ctx context.Context, book models.Book) error {
	query := `
		INSERT INTO books (id, title, author, total_copies, available_copies)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    author = EXCLUDED.author,
		    total_copies = EXCLUDED.total_copies,
		    available_copies = EXCLUDED.available_copies
	`
	_, err := r.pool.Exec(ctx, query, book.ID.String(), book.Title, book.Author, book.TotalCopies, book.AvailableCopies)
	if err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	return nil
}
