package lending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bubblethoughts/book-management-system/internal/db"
	"github.com/bubblethoughts/book-management-system/internal/events"
	"github.com/bubblethoughts/book-management-system/internal/metrics"
	"github.com/bubblethoughts/book-management-system/internal/repo"
	"github.com/bubblethoughts/book-management-system/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPublisher records published events for assertions
type MockPublisher struct {
	mu              sync.Mutex
	PublishedEvents []string
	CorrelationIDs  []string
	Err             error
}

func (m *MockPublisher) record(ctx context.Context, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = append(m.PublishedEvents, event)
	m.CorrelationIDs = append(m.CorrelationIDs, events.CorrelationID(ctx))
	return m.Err
}

func (m *MockPublisher) PublishBookAdded(ctx context.Context, book *db.Book) error {
	return m.record(ctx, "added:"+book.Title)
}

func (m *MockPublisher) PublishBookBorrowed(ctx context.Context, record *db.BorrowRecord) error {
	return m.record(ctx, "borrowed:"+record.Borrower)
}

func (m *MockPublisher) PublishBookReturned(ctx context.Context, bookID uint, returnDate string, recordsClosed int64) error {
	return m.record(ctx, "returned:"+returnDate)
}

func (m *MockPublisher) IsHealthy() bool {
	return true
}

func (m *MockPublisher) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.PublishedEvents...)
}

func setupTestService(t *testing.T) (*Service, *MockPublisher, *metrics.Metrics) {
	database, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "error")
	clock := func() time.Time { return time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local) }
	lendingRepo := repo.NewLendingRepository(database, log, repo.WithClock(clock))

	m := metrics.New(prometheus.NewRegistry(), lendingRepo, log)
	publisher := &MockPublisher{}

	return NewService(lendingRepo, publisher, m, log), publisher, m
}

func TestAddBookValidation(t *testing.T) {
	svc, publisher, m := setupTestService(t)
	ctx := context.Background()

	_, err := svc.AddBook(ctx, "", "Herbert")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	_, err = svc.AddBook(ctx, "Dune", "   ")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "author", verr.Field)
	assert.EqualError(t, err, "author is required")

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	svc.Wait()
	assert.Empty(t, publisher.Events())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BooksAdded))
}

func TestAddBookTrimsAndPublishes(t *testing.T) {
	svc, publisher, m := setupTestService(t)
	ctx := events.WithCorrelationID(context.Background(), "req-42")

	book, err := svc.AddBook(ctx, "  Dune ", "Herbert")
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)

	svc.Wait()
	assert.Equal(t, []string{"added:Dune"}, publisher.Events())
	assert.Equal(t, []string{"req-42"}, publisher.CorrelationIDs)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BooksAdded))
}

func TestBorrowValidation(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	book, err := svc.AddBook(ctx, "Dune", "Herbert")
	require.NoError(t, err)

	_, err = svc.Borrow(ctx, book.ID, " ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "borrower", verr.Field)

	available, err := svc.ListAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 1)
}

func TestBorrowReturnFlow(t *testing.T) {
	svc, publisher, m := setupTestService(t)
	ctx := context.Background()

	book, err := svc.AddBook(ctx, "Dune", "Herbert")
	require.NoError(t, err)

	record, err := svc.Borrow(ctx, book.ID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", record.BorrowDate)

	open, err := svc.ListOpenBorrows(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Alice", open[0].Borrower)

	closed, err := svc.Return(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	history, err := svc.ListBorrowHistory(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].IsOpen())

	svc.Wait()
	assert.ElementsMatch(t, []string{"added:Dune", "borrowed:Alice", "returned:2024-03-15"}, publisher.Events())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Borrows))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Returns))
}

func TestBorrowErrorsSkipSideEffects(t *testing.T) {
	svc, publisher, m := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Borrow(ctx, 5, "Alice")
	assert.ErrorIs(t, err, repo.ErrBookNotFound)

	_, err = svc.Return(ctx, 5)
	assert.ErrorIs(t, err, repo.ErrBookNotFound)

	svc.Wait()
	assert.Empty(t, publisher.Events())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Borrows))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Returns))
}

func TestPublishFailureDoesNotFailAction(t *testing.T) {
	svc, publisher, _ := setupTestService(t)
	publisher.Err = errors.New("broker down")

	book, err := svc.AddBook(context.Background(), "Dune", "Herbert")
	require.NoError(t, err)
	assert.Equal(t, uint(1), book.ID)

	svc.Wait()
	assert.Len(t, publisher.Events(), 1)
}

func TestNilMetrics(t *testing.T) {
	database, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "error")
	svc := NewService(repo.NewLendingRepository(database, log), events.NopPublisher{}, nil, log)

	book, err := svc.AddBook(context.Background(), "Dune", "Herbert")
	require.NoError(t, err)
	_, err = svc.Borrow(context.Background(), book.ID, "Alice")
	require.NoError(t, err)
	svc.Wait()
}
