package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jkorir/bookhold/internal/models"
)

// CirculationServiceInterface defines the borrow/return operations the
// circulation handler depends on
type CirculationServiceInterface interface {
	ReturnBook(ctx context.Context, bookID models.BookID) error
	BorrowBook(ctx context.Context, userID models.UserID, bookID models.BookID) error
}

// BorrowBookRequest represents a request to borrow a book
type BorrowBookRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CirculationHandler handles borrow and return HTTP requests
type CirculationHandler struct {
	circulationService CirculationServiceInterface
}

// NewCirculationHandler creates a new circulation handler
func NewCirculationHandler(circulationService CirculationServiceInterface) *CirculationHandler {
	return &CirculationHandler{circulationService: circulationService}
}

// ReturnBook handles POST /api/v1/books/:book_id/return
func (h *CirculationHandler) ReturnBook(c *gin.Context) {
	bookID, err := models.ParseBookID(c.Param("book_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	if err := h.circulationService.ReturnBook(c.Request.Context(), bookID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Book returned",
	})
}

// BorrowBook handles POST /api/v1/books/:book_id/borrow
func (h *CirculationHandler) BorrowBook(c *gin.Context) {
	bookID, err := models.ParseBookID(c.Param("book_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	var req BorrowBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, "Invalid request data", err.Error())
		return
	}
	userID, err := models.ParseUserID(req.UserID)
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	if err := h.circulationService.BorrowBook(c.Request.Context(), userID, bookID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Book borrowed",
	})
}
