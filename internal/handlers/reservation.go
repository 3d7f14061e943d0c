package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jkorir/bookhold/internal/models"
	"github.com/jkorir/bookhold/internal/services"
)

// ReservationServiceInterface defines the application operations the
// reservation handler depends on
type ReservationServiceInterface interface {
	ReserveBook(ctx context.Context, userID models.UserID, bookID models.BookID) (*services.ReservationResponse, error)
	CancelReservation(ctx context.Context, id models.ReservationID) (*services.ReservationResponse, error)
	FulfillReservation(ctx context.Context, id models.ReservationID) (*services.ReservationResponse, error)
	GetReservation(ctx context.Context, id models.ReservationID) (*services.ReservationResponse, error)
	GetUserReservations(ctx context.Context, userID models.UserID) ([]services.ReservationResponse, error)
	GetBookQueue(ctx context.Context, bookID models.BookID) ([]services.ReservationResponse, error)
	GetNextInQueue(ctx context.Context, bookID models.BookID) (*services.ReservationResponse, error)
}

// ExpirerInterface exposes the manual expiration sweep.
type ExpirerInterface interface {
	ProcessExpiredReservations(ctx context.Context) (int, error)
}

// ReserveBookRequest represents a request to reserve a book
type ReserveBookRequest struct {
	UserID string `json:"user_id" binding:"required"`
	BookID string `json:"book_id" binding:"required"`
}

// ReservationHandler handles reservation-related HTTP requests
type ReservationHandler struct {
	reservationService ReservationServiceInterface
	expirer            ExpirerInterface
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservationService ReservationServiceInterface, expirer ExpirerInterface) *ReservationHandler {
	return &ReservationHandler{
		reservationService: reservationService,
		expirer:            expirer,
	}
}

// ReserveBook handles POST /api/v1/reservations
func (h *ReservationHandler) ReserveBook(c *gin.Context) {
	var req ReserveBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, "Invalid request data", err.Error())
		return
	}

	userID, err := models.ParseUserID(req.UserID)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}
	bookID, err := models.ParseBookID(req.BookID)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	reservation, err := h.reservationService.ReserveBook(c.Request.Context(), userID, bookID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Data:    reservation,
		Message: reservation.Message,
	})
}

// GetReservation handles GET /api/v1/reservations/:id
func (h *ReservationHandler) GetReservation(c *gin.Context) {
	id, err := models.ParseReservationID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	reservation, err := h.reservationService.GetReservation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: reservation})
}

// CancelReservation handles DELETE /api/v1/reservations/:id
func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	id, err := models.ParseReservationID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	reservation, err := h.reservationService.CancelReservation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    reservation,
		Message: reservation.Message,
	})
}

// FulfillReservation handles POST /api/v1/reservations/:id/fulfill
func (h *ReservationHandler) FulfillReservation(c *gin.Context) {
	id, err := models.ParseReservationID(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	reservation, err := h.reservationService.FulfillReservation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    reservation,
		Message: reservation.Message,
	})
}

// GetUserReservations handles GET /api/v1/users/:user_id/reservations
func (h *ReservationHandler) GetUserReservations(c *gin.Context) {
	userID, err := models.ParseUserID(c.Param("user_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	reservations, err := h.reservationService.GetUserReservations(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Success: true,
		Data:    reservations,
		Meta:    gin.H{"total": len(reservations)},
	})
}

// GetBookQueue handles GET /api/v1/books/:book_id/queue
func (h *ReservationHandler) GetBookQueue(c *gin.Context) {
	bookID, err := models.ParseBookID(c.Param("book_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	queue, err := h.reservationService.GetBookQueue(c.Request.Context(), bookID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Success: true,
		Data:    queue,
		Meta:    gin.H{"queue_length": len(queue)},
	})
}

// GetNextInQueue handles GET /api/v1/books/:book_id/queue/next
func (h *ReservationHandler) GetNextInQueue(c *gin.Context) {
	bookID, err := models.ParseBookID(c.Param("book_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	next, err := h.reservationService.GetNextInQueue(c.Request.Context(), bookID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if next == nil {
		respondError(c, http.StatusNotFound, ErrCodeReservationNotFound, "No reservations in queue for this book", nil)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: next})
}

// ExpireReservations handles POST /api/v1/reservations/expire
func (h *ReservationHandler) ExpireReservations(c *gin.Context) {
	count, err := h.expirer.ProcessExpiredReservations(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, ErrCodeInternal, err.Error(), nil)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    gin.H{"expired_count": count},
	})
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.JSON(status, ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondServiceError translates typed service errors into HTTP responses.
// A reservation attempt that fails carries a reason distinguishing "book is
// available, borrow directly", "already queued", and "user/book not found".
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		respondError(c, http.StatusNotFound, ErrCodeUserNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrBookNotFound):
		respondError(c, http.StatusNotFound, ErrCodeBookNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrReservationNotFound):
		respondError(c, http.StatusNotFound, ErrCodeReservationNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrUserNotActive):
		respondError(c, http.StatusForbidden, ErrCodeUserNotActive, err.Error(), nil)
	case errors.Is(err, services.ErrBookAvailable):
		respondError(c, http.StatusConflict, ErrCodeBookAvailable, "Book is currently available, borrow it directly", nil)
	case errors.Is(err, services.ErrAlreadyReserved):
		respondError(c, http.StatusConflict, ErrCodeDuplicate, err.Error(), nil)
	case errors.Is(err, services.ErrBookReservedForAnother):
		respondError(c, http.StatusConflict, ErrCodeBookHeld, err.Error(), nil)
	case errors.Is(err, models.ErrReservationExpired):
		respondError(c, http.StatusConflict, ErrCodeReservationExpired, err.Error(), nil)
	case errors.Is(err, models.ErrInvalidTransition):
		respondError(c, http.StatusConflict, ErrCodeInvalidTransition, err.Error(), nil)
	default:
		respondError(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error", nil)
	}
}
