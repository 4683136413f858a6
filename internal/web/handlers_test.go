package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bubblethoughts/book-management-system/internal/db"
	"github.com/bubblethoughts/book-management-system/internal/events"
	"github.com/bubblethoughts/book-management-system/internal/lending"
	"github.com/bubblethoughts/book-management-system/internal/repo"
	"github.com/bubblethoughts/book-management-system/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T, opts ...repo.Option) (*echo.Echo, *lending.Service) {
	database, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "error")
	clock := func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.Local) }
	lendingRepo := repo.NewLendingRepository(database, log, append([]repo.Option{repo.WithClock(clock)}, opts...)...)
	svc := lending.NewService(lendingRepo, events.NopPublisher{}, nil, log)
	t.Cleanup(svc.Wait)

	e, err := NewServer(svc, log)
	require.NoError(t, err)
	return e, svc
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func postForm(e *echo.Echo, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRootRedirectsToAddBook(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := get(e, "/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/books/new", rec.Header().Get(echo.HeaderLocation))
}

func TestMenuOnEveryView(t *testing.T) {
	e, _ := setupTestServer(t)

	for _, path := range []string{"/books/new", "/books", "/borrow", "/return", "/records"} {
		rec := get(e, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		for _, item := range []string{"Add Book", "View Books", "Borrow Book", "Return Book", "Borrow Records"} {
			assert.Contains(t, rec.Body.String(), item, path)
		}
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	}
}

func TestAddBookView(t *testing.T) {
	e, svc := setupTestServer(t)

	rec := postForm(e, "/books", url.Values{"title": {"Dune"}, "author": {"Herbert"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Book added successfully!")

	books, err := svc.ListBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
}

func TestAddBookViewMissingField(t *testing.T) {
	e, svc := setupTestServer(t)

	rec := postForm(e, "/books", url.Values{"title": {"Dune"}, "author": {""}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please fill all fields.")
	// The entered title is kept in the form
	assert.Contains(t, rec.Body.String(), `value="Dune"`)

	books, err := svc.ListBooks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestViewBooks(t *testing.T) {
	e, svc := setupTestServer(t)
	ctx := context.Background()

	rec := get(e, "/books")
	assert.Contains(t, rec.Body.String(), "No books available.")

	_, err := svc.AddBook(ctx, "Dune", "Herbert")
	require.NoError(t, err)
	_, err = svc.AddBook(ctx, "Emma", "Austen")
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 2, "Alice")
	require.NoError(t, err)

	rec = get(e, "/books")
	body := rec.Body.String()
	assert.Contains(t, body, "ID: 1 | Dune by Herbert - Available")
	assert.Contains(t, body, "ID: 2 | Emma by Austen - Borrowed")
	assert.NotContains(t, body, "No books available.")
}

func TestBorrowView(t *testing.T) {
	e, svc := setupTestServer(t)
	ctx := context.Background()

	rec := get(e, "/borrow")
	assert.Contains(t, rec.Body.String(), "No books available for borrowing.")

	_, err := svc.AddBook(ctx, "Dune", "Herbert")
	require.NoError(t, err)

	rec = get(e, "/borrow")
	assert.Contains(t, rec.Body.String(), "Dune by Herbert (ID 1)")

	rec = postForm(e, "/borrow", url.Values{"book_id": {"1"}, "borrower": {"Alice"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Book borrowed successfully!")
	assert.Contains(t, rec.Body.String(), "No books available for borrowing.")

	open, err := svc.ListOpenBorrows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*db.OpenBorrow{{BookID: 1, Title: "Dune", Borrower: "Alice", BorrowDate: "2024-03-15"}}, open)
}

func TestBorrowViewWarnings(t *testing.T) {
	e, svc := setupTestServer(t)
	ctx := context.Background()

	_, err := svc.AddBook(ctx, "Dune", "Herbert")
	require.NoError(t, err)

	rec := postForm(e, "/borrow", url.Values{"book_id": {"1"}, "borrower": {""}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter borrower name.")

	rec = postForm(e, "/borrow", url.Values{"book_id": {"abc"}, "borrower": {"Alice"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Select a book.")

	rec = postForm(e, "/borrow", url.Values{"book_id": {"9"}, "borrower": {"Alice"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Book not found.")

	open, err := svc.ListOpenBorrows(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	rec = postForm(e, "/borrow", url.Values{"book_id": {"1"}, "borrower": {"Alice"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(e, "/borrow", url.Values{"book_id": {"1"}, "borrower": {"Bob"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "This book is already borrowed.")
}

func TestReturnView(t *testing.T) {
	e, svc := setupTestServer(t)
	ctx := context.Background()

	rec := get(e, "/return")
	assert.Contains(t, rec.Body.String(), "No borrowed books.")

	_, err := svc.AddBook(ctx, "Dune", "Herbert")
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 1, "Alice")
	require.NoError(t, err)

	rec = get(e, "/return")
	assert.Contains(t, rec.Body.String(), "Dune borrowed by Alice (ID 1)")

	rec = postForm(e, "/return", url.Values{"book_id": {"1"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Book returned successfully!")
	assert.Contains(t, rec.Body.String(), "No borrowed books.")

	available, err := svc.ListAvailableBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 1)
}

func TestReturnViewUnknownBook(t *testing.T) {
	e, _ := setupTestServer(t)

	rec := postForm(e, "/return", url.Values{"book_id": {"3"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Book not found.")

	rec = postForm(e, "/return", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Select a book.")
}

func TestRecordsView(t *testing.T) {
	e, svc := setupTestServer(t)
	ctx := context.Background()

	rec := get(e, "/records")
	assert.Contains(t, rec.Body.String(), "No active borrow records.")

	_, err := svc.AddBook(ctx, "Dune", "Herbert")
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 1, "Alice")
	require.NoError(t, err)

	rec = get(e, "/records")
	assert.Contains(t, rec.Body.String(), "Dune borrowed by Alice on 2024-03-15")
}

func TestEscapesUserInput(t *testing.T) {
	e, svc := setupTestServer(t)

	_, err := svc.AddBook(context.Background(), "<script>alert(1)</script>", "Mallory")
	require.NoError(t, err)

	rec := get(e, "/books")
	assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

type failingService struct {
	LendingService
}

func (failingService) ListBooks(context.Context) ([]*db.Book, error) {
	return nil, errors.New("database is locked")
}

func TestStorageFailureIsServerError(t *testing.T) {
	e, err := NewServer(failingService{}, logger.NewLogger("test", "error"))
	require.NoError(t, err)

	rec := get(e, "/books")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestParseBookID(t *testing.T) {
	id, ok := parseBookID("12")
	assert.True(t, ok)
	assert.Equal(t, uint(12), id)

	for _, raw := range []string{"", "0", "-1", "x1"} {
		_, ok := parseBookID(raw)
		assert.False(t, ok, raw)
	}
}
