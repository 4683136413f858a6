package lending

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bubblethoughts/book-management-system/internal/db"
	"github.com/bubblethoughts/book-management-system/internal/events"
	"github.com/bubblethoughts/book-management-system/internal/metrics"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

// Repository is the persistence the service runs on
type Repository interface {
	AddBook(ctx context.Context, title, author string) (*db.Book, error)
	ListBooks(ctx context.Context) ([]*db.Book, error)
	ListAvailableBooks(ctx context.Context) ([]*db.Book, error)
	GetBook(ctx context.Context, id uint) (*db.Book, error)
	Borrow(ctx context.Context, bookID uint, borrower string) (*db.BorrowRecord, error)
	Return(ctx context.Context, bookID uint) (int64, error)
	ListOpenBorrows(ctx context.Context) ([]*db.OpenBorrow, error)
	ListBorrowHistory(ctx context.Context, bookID uint) ([]*db.BorrowRecord, error)
	Today() string
}

// Publisher emits lending domain events
type Publisher interface {
	PublishBookAdded(ctx context.Context, book *db.Book) error
	PublishBookBorrowed(ctx context.Context, record *db.BorrowRecord) error
	PublishBookReturned(ctx context.Context, bookID uint, returnDate string, recordsClosed int64) error
	IsHealthy() bool
}

// ValidationError reports a required input that was empty
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Service validates lending actions and fans successful ones out to metrics and events
type Service struct {
	repo      Repository
	publisher Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	inflight  sync.WaitGroup
}

// NewService creates a lending service. metrics may be nil.
func NewService(repo Repository, publisher Publisher, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		log:       log,
	}
}

// AddBook adds a book to the catalog. Title and author must be non-empty.
func (s *Service) AddBook(ctx context.Context, title, author string) (*db.Book, error) {
	title, author = strings.TrimSpace(title), strings.TrimSpace(author)
	if title == "" {
		return nil, &ValidationError{Field: "title"}
	}
	if author == "" {
		return nil, &ValidationError{Field: "author"}
	}

	book, err := s.repo.AddBook(ctx, title, author)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.BooksAdded.Inc()
	}
	s.publish(ctx, "book added", func(ctx context.Context) error {
		return s.publisher.PublishBookAdded(ctx, book)
	})
	return book, nil
}

// ListBooks returns the whole catalog
func (s *Service) ListBooks(ctx context.Context) ([]*db.Book, error) {
	return s.repo.ListBooks(ctx)
}

// ListAvailableBooks returns the books that can be borrowed
func (s *Service) ListAvailableBooks(ctx context.Context) ([]*db.Book, error) {
	return s.repo.ListAvailableBooks(ctx)
}

// GetBook returns a single book
func (s *Service) GetBook(ctx context.Context, id uint) (*db.Book, error) {
	return s.repo.GetBook(ctx, id)
}

// Borrow lends a book to borrower. The borrower name must be non-empty.
func (s *Service) Borrow(ctx context.Context, bookID uint, borrower string) (*db.BorrowRecord, error) {
	borrower = strings.TrimSpace(borrower)
	if borrower == "" {
		return nil, &ValidationError{Field: "borrower"}
	}

	record, err := s.repo.Borrow(ctx, bookID, borrower)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Borrows.Inc()
	}
	s.publish(ctx, "book borrowed", func(ctx context.Context) error {
		return s.publisher.PublishBookBorrowed(ctx, record)
	})
	return record, nil
}

// Return takes a book back and reports how many open records were closed
func (s *Service) Return(ctx context.Context, bookID uint) (int64, error) {
	returnDate := s.repo.Today()

	closed, err := s.repo.Return(ctx, bookID)
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.Returns.Inc()
	}
	s.publish(ctx, "book returned", func(ctx context.Context) error {
		return s.publisher.PublishBookReturned(ctx, bookID, returnDate, closed)
	})
	return closed, nil
}

// ListOpenBorrows returns the books currently lent out
func (s *Service) ListOpenBorrows(ctx context.Context) ([]*db.OpenBorrow, error) {
	return s.repo.ListOpenBorrows(ctx)
}

// ListBorrowHistory returns every borrow record of a book, newest first
func (s *Service) ListBorrowHistory(ctx context.Context, bookID uint) ([]*db.BorrowRecord, error) {
	return s.repo.ListBorrowHistory(ctx, bookID)
}

// Today returns the date used to stamp borrow and return records
func (s *Service) Today() string {
	return s.repo.Today()
}

// Wait blocks until every in-flight event publish has finished
func (s *Service) Wait() {
	s.inflight.Wait()
}

// publish runs fn in the background with its own timeout so a slow broker never blocks the request
func (s *Service) publish(ctx context.Context, what string, fn func(context.Context) error) {
	correlationID := events.CorrelationID(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		eventCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if correlationID != "" {
			eventCtx = events.WithCorrelationID(eventCtx, correlationID)
		}

		if err := fn(eventCtx); err != nil {
			s.log.Error("Failed to publish "+what+" event", zap.Error(err))
		}
	}()
}
