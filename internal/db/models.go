package db

import (
	"time"

	"gorm.io/gorm"
)

// DateLayout is the calendar date format stored in borrow_date and return_date
const DateLayout = "2006-01-02"

// Book represents a book in the lending catalog
type Book struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Author    string    `gorm:"type:varchar(255);not null" json:"author"`
	Available bool      `gorm:"not null;index:idx_books_available" json:"available"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

// BeforeCreate hook to set the creation timestamp
func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	return nil
}

// BorrowRecord is one lending of a book. A nil ReturnDate means the book is still out.
type BorrowRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BookID     uint      `gorm:"not null;index:idx_borrow_records_book_id" json:"book_id"`
	Book       *Book     `gorm:"foreignKey:BookID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Borrower   string    `gorm:"type:varchar(255);not null" json:"borrower"`
	BorrowDate string    `gorm:"type:varchar(10);not null" json:"borrow_date"`
	ReturnDate *string   `gorm:"type:varchar(10)" json:"return_date,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for BorrowRecord model
func (BorrowRecord) TableName() string {
	return "borrow_records"
}

// BeforeCreate hook to set the creation timestamp
func (r *BorrowRecord) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

// IsOpen reports whether the book has not been returned yet
func (r *BorrowRecord) IsOpen() bool {
	return r.ReturnDate == nil
}

// OpenBorrow is a row of the currently-borrowed listing (books joined with open borrow records)
type OpenBorrow struct {
	BookID     uint   `json:"book_id"`
	Title      string `json:"title"`
	Borrower   string `json:"borrower"`
	BorrowDate string `json:"borrow_date"`
}
