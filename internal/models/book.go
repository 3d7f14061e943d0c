package models

// Book represents a title in the catalog.
type Book struct {
	ID              BookID `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author,omitempty"`
	TotalCopies     int32  `json:"total_copies"`
	AvailableCopies int32  `json:"available_copies"`
}

// IsAvailable reports whether at least one copy can be borrowed right now.
// An available book cannot be reserved; the user should borrow it directly.
func (b Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}
