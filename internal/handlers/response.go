package handlers

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ListResponse represents a list response with metadata
type ListResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    interface{} `json:"meta,omitempty"`
}

// Error code strings surfaced to API clients.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeBookNotFound        = "BOOK_NOT_FOUND"
	ErrCodeReservationNotFound = "RESERVATION_NOT_FOUND"
	ErrCodeUserNotActive       = "USER_NOT_ACTIVE"
	ErrCodeBookAvailable       = "BOOK_AVAILABLE"
	ErrCodeDuplicate           = "DUPLICATE_RESERVATION"
	ErrCodeReservationExpired  = "RESERVATION_EXPIRED"
	ErrCodeInvalidTransition   = "INVALID_STATE_TRANSITION"
	ErrCodeBookHeld            = "BOOK_HELD_FOR_RESERVATION"
	ErrCodeInternal            = "INTERNAL_ERROR"
)
