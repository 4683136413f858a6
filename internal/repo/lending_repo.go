package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bubblethoughts/book-management-system/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBookNotFound is returned when a book is not found
	ErrBookNotFound = errors.New("book not found")

	// ErrBookUnavailable is returned when borrowing a book that is already lent out
	ErrBookUnavailable = errors.New("book is already lent")
)

// Stats is a snapshot of the catalog used for metrics
type Stats struct {
	TotalBooks     int64
	AvailableBooks int64
	OpenBorrows    int64
}

// Option configures a LendingRepository
type Option func(*LendingRepository)

// WithClock overrides the clock used to date borrow and return records
func WithClock(now func() time.Time) Option {
	return func(r *LendingRepository) {
		r.now = now
	}
}

// WithStrictLending controls whether borrowing an unavailable book is rejected.
// When off, a second open record is created for the book.
func WithStrictLending(strict bool) Option {
	return func(r *LendingRepository) {
		r.strict = strict
	}
}

// LendingRepository handles book catalog and borrow record operations
type LendingRepository struct {
	db     *db.DB
	log    *zap.Logger
	now    func() time.Time
	strict bool
}

// NewLendingRepository creates a new lending repository. Strict lending is on by default.
func NewLendingRepository(database *db.DB, logger *zap.Logger, opts ...Option) *LendingRepository {
	r := &LendingRepository{
		db:     database,
		log:    logger,
		now:    time.Now,
		strict: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Today returns the current calendar date in storage format
func (r *LendingRepository) Today() string {
	return r.now().Format(db.DateLayout)
}

// AddBook inserts an available book. Duplicate title/author pairs are allowed.
func (r *LendingRepository) AddBook(ctx context.Context, title, author string) (*db.Book, error) {
	book := &db.Book{
		Title:     title,
		Author:    author,
		Available: true,
	}

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		r.log.Error("Failed to add book", zap.String("title", title), zap.Error(err))
		return nil, err
	}

	r.log.Info("Book added", zap.Uint("book_id", book.ID), zap.String("title", book.Title))
	return book, nil
}

// ListBooks returns every book ordered by id
func (r *LendingRepository) ListBooks(ctx context.Context) ([]*db.Book, error) {
	var books []*db.Book
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, err
	}
	return books, nil
}

// ListAvailableBooks returns the books that are not lent out, ordered by id
func (r *LendingRepository) ListAvailableBooks(ctx context.Context) ([]*db.Book, error) {
	var books []*db.Book
	if err := r.db.WithContext(ctx).Where("available = ?", true).Order("id ASC").Find(&books).Error; err != nil {
		r.log.Error("Failed to list available books", zap.Error(err))
		return nil, err
	}
	return books, nil
}

// GetBook retrieves a book by id
func (r *LendingRepository) GetBook(ctx context.Context, id uint) (*db.Book, error) {
	book, err := findBook(r.db.WithContext(ctx), id)
	if err != nil && !errors.Is(err, ErrBookNotFound) {
		r.log.Error("Failed to get book", zap.Uint("book_id", id), zap.Error(err))
	}
	return book, err
}

// Borrow opens a borrow record dated today and marks the book unavailable, in one transaction
func (r *LendingRepository) Borrow(ctx context.Context, bookID uint, borrower string) (*db.BorrowRecord, error) {
	record := &db.BorrowRecord{
		BookID:     bookID,
		Borrower:   borrower,
		BorrowDate: r.Today(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := findBook(tx, bookID)
		if err != nil {
			return err
		}
		if !book.Available {
			if r.strict {
				return ErrBookUnavailable
			}
			r.log.Warn("Borrowing a book that is already lent", zap.Uint("book_id", bookID))
		}

		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to create borrow record: %w", err)
		}

		if err := tx.Model(&db.Book{}).Where("id = ?", bookID).Update("available", false).Error; err != nil {
			return fmt.Errorf("failed to mark book unavailable: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrBookNotFound) && !errors.Is(err, ErrBookUnavailable) {
			r.log.Error("Failed to borrow book", zap.Uint("book_id", bookID), zap.Error(err))
		}
		return nil, err
	}

	r.log.Info("Book borrowed",
		zap.Uint("book_id", bookID),
		zap.Uint("record_id", record.ID),
		zap.String("borrower", borrower),
	)
	return record, nil
}

// Return closes every open borrow record of the book and marks it available, in one transaction.
// It returns the number of records closed; zero is not an error.
func (r *LendingRepository) Return(ctx context.Context, bookID uint) (int64, error) {
	returnDate := r.Today()
	var closed int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findBook(tx, bookID); err != nil {
			return err
		}

		result := tx.Model(&db.BorrowRecord{}).
			Where("book_id = ? AND return_date IS NULL", bookID).
			Update("return_date", returnDate)
		if result.Error != nil {
			return fmt.Errorf("failed to close borrow records: %w", result.Error)
		}
		closed = result.RowsAffected

		if err := tx.Model(&db.Book{}).Where("id = ?", bookID).Update("available", true).Error; err != nil {
			return fmt.Errorf("failed to mark book available: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrBookNotFound) {
			r.log.Error("Failed to return book", zap.Uint("book_id", bookID), zap.Error(err))
		}
		return 0, err
	}

	if closed == 0 {
		r.log.Warn("Returned a book with no open borrow record", zap.Uint("book_id", bookID))
	}
	r.log.Info("Book returned", zap.Uint("book_id", bookID), zap.Int64("records_closed", closed))
	return closed, nil
}

// ListOpenBorrows returns the books currently lent out with their borrower and borrow date
func (r *LendingRepository) ListOpenBorrows(ctx context.Context) ([]*db.OpenBorrow, error) {
	var borrows []*db.OpenBorrow
	err := r.db.WithContext(ctx).
		Table("books").
		Select("books.id AS book_id, books.title, borrow_records.borrower, borrow_records.borrow_date").
		Joins("JOIN borrow_records ON books.id = borrow_records.book_id").
		Where("borrow_records.return_date IS NULL").
		Order("borrow_records.id ASC").
		Scan(&borrows).Error
	if err != nil {
		r.log.Error("Failed to list open borrows", zap.Error(err))
		return nil, err
	}
	return borrows, nil
}

// ListBorrowHistory returns every borrow record of a book, newest first
func (r *LendingRepository) ListBorrowHistory(ctx context.Context, bookID uint) ([]*db.BorrowRecord, error) {
	var records []*db.BorrowRecord
	if err := r.db.WithContext(ctx).Where("book_id = ?", bookID).Order("id DESC").Find(&records).Error; err != nil {
		r.log.Error("Failed to list borrow history", zap.Uint("book_id", bookID), zap.Error(err))
		return nil, err
	}
	return records, nil
}

// Stats returns catalog statistics for metrics
func (r *LendingRepository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	query := r.db.WithContext(ctx)

	if err := query.Model(&db.Book{}).Count(&s.TotalBooks).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count total books: %w", err)
	}
	if err := query.Model(&db.Book{}).Where("available = ?", true).Count(&s.AvailableBooks).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count available books: %w", err)
	}
	if err := query.Model(&db.BorrowRecord{}).Where("return_date IS NULL").Count(&s.OpenBorrows).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count open borrows: %w", err)
	}

	return s, nil
}

func findBook(tx *gorm.DB, id uint) (*db.Book, error) {
	var book db.Book
	if err := tx.Where("id = ?", id).First(&book).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}
