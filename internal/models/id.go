package models

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// Identifier prefixes. IDs are an opaque three-letter prefix followed by
// ten digits, e.g. RSV048173492.
const (
	ReservationIDPrefix = "RSV"
	UserIDPrefix        = "USR"
	BookIDPrefix        = "BKS"
)

var idPattern = regexp.MustCompile(`^[A-Z]{3}\d{10}$`)

// ReservationID uniquely identifies a reservation.
type ReservationID string

// UserID uniquely identifies a library user.
type UserID string

// BookID uniquely identifies a book.
type BookID string

// NewReservationID generates a new random reservation identifier.
func NewReservationID() ReservationID {
	return ReservationID(generateID(ReservationIDPrefix))
}

// NewUserID generates a new random user identifier.
func NewUserID() UserID {
	return UserID(generateID(UserIDPrefix))
}

// NewBookID generates a new random book identifier.
func NewBookID() BookID {
	return BookID(generateID(BookIDPrefix))
}

// ParseReservationID validates a raw string as a reservation identifier.
func ParseReservationID(raw string) (ReservationID, error) {
	if err := validateID(raw, ReservationIDPrefix); err != nil {
		return "", err
	}
	return ReservationID(raw), nil
}

// ParseUserID validates a raw string as a user identifier.
func ParseUserID(raw string) (UserID, error) {
	if err := validateID(raw, UserIDPrefix); err != nil {
		return "", err
	}
	return UserID(raw), nil
}

// ParseBookID validates a raw string as a book identifier.
func ParseBookID(raw string) (BookID, error) {
	if err := validateID(raw, BookIDPrefix); err != nil {
		return "", err
	}
	return BookID(raw), nil
}

func (id ReservationID) String() string { return string(id) }
func (id UserID) String() string        { return string(id) }
func (id BookID) String() string        { return string(id) }

func generateID(prefix string) string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	digits := make([]byte, 10)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return prefix + string(digits)
}

func validateID(raw, prefix string) error {
	if !idPattern.MatchString(raw) {
		return fmt.Errorf("invalid identifier format: %q", raw)
	}
	if raw[:3] != prefix {
		return fmt.Errorf("invalid identifier prefix: expected %s, got %s", prefix, raw[:3])
	}
	return nil
}
