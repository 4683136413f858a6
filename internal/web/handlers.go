package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bubblethoughts/book-management-system/internal/db"
	"github.com/bubblethoughts/book-management-system/internal/lending"
	"github.com/bubblethoughts/book-management-system/internal/repo"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// LendingService is what the views call into
type LendingService interface {
	AddBook(ctx context.Context, title, author string) (*db.Book, error)
	ListBooks(ctx context.Context) ([]*db.Book, error)
	ListAvailableBooks(ctx context.Context) ([]*db.Book, error)
	Borrow(ctx context.Context, bookID uint, borrower string) (*db.BorrowRecord, error)
	Return(ctx context.Context, bookID uint) (int64, error)
	ListOpenBorrows(ctx context.Context) ([]*db.OpenBorrow, error)
}

const (
	msgBookAdded     = "Book added successfully!"
	msgBookBorrowed  = "Book borrowed successfully!"
	msgBookReturned  = "Book returned successfully!"
	msgFillAllFields = "Please fill all fields."
	msgEnterBorrower = "Enter borrower name."
	msgSelectBook    = "Select a book."
	msgBookNotFound  = "Book not found."
	msgBookLent      = "This book is already borrowed."
	msgNoBooks       = "No books available."
	msgNoBooksToLend = "No books available for borrowing."
	msgNoBorrowed    = "No borrowed books."
	msgNoOpenBorrows = "No active borrow records."
)

type menuItem struct {
	Name string
	Path string
}

var menu = []menuItem{
	{Name: "Add Book", Path: "/books/new"},
	{Name: "View Books", Path: "/books"},
	{Name: "Borrow Book", Path: "/borrow"},
	{Name: "Return Book", Path: "/return"},
	{Name: "Borrow Records", Path: "/records"},
}

type flash struct {
	Kind    string
	Message string
}

type pageData struct {
	Heading string
	Active  string
	Menu    []menuItem
	Flash   *flash
	Empty   string
	Form    map[string]string
	Books   []*db.Book
	Borrows []*db.OpenBorrow
}

func newPage(active, heading string) *pageData {
	return &pageData{
		Heading: heading,
		Active:  active,
		Menu:    menu,
		Form:    map[string]string{},
	}
}

type bookForm struct {
	Title  string `form:"title"`
	Author string `form:"author"`
}

type borrowForm struct {
	BookID   string `form:"book_id"`
	Borrower string `form:"borrower"`
}

type returnForm struct {
	BookID string `form:"book_id"`
}

// Handler serves the five lending views
type Handler struct {
	svc LendingService
	log *zap.Logger
}

// NewHandler creates the view handlers
func NewHandler(svc LendingService, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts the views on e
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/books/new")
	})
	e.GET("/books/new", h.ShowAddBook)
	e.POST("/books", h.AddBook)
	e.GET("/books", h.ShowBooks)
	e.GET("/borrow", h.ShowBorrow)
	e.POST("/borrow", h.Borrow)
	e.GET("/return", h.ShowReturn)
	e.POST("/return", h.Return)
	e.GET("/records", h.ShowRecords)
}

// ShowAddBook renders the empty add book form
func (h *Handler) ShowAddBook(c echo.Context) error {
	return c.Render(http.StatusOK, pageAddBook, newPage("Add Book", "Add New Book"))
}

// AddBook handles the add book form
func (h *Handler) AddBook(c echo.Context) error {
	page := newPage("Add Book", "Add New Book")

	var form bookForm
	if err := c.Bind(&form); err != nil {
		return err
	}
	page.Form["title"], page.Form["author"] = form.Title, form.Author

	if _, err := h.svc.AddBook(c.Request().Context(), form.Title, form.Author); err != nil {
		var verr *lending.ValidationError
		if errors.As(err, &verr) {
			page.Flash = &flash{Kind: "warning", Message: msgFillAllFields}
			return c.Render(http.StatusUnprocessableEntity, pageAddBook, page)
		}
		return err
	}

	page.Form = map[string]string{}
	page.Flash = &flash{Kind: "success", Message: msgBookAdded}
	return c.Render(http.StatusOK, pageAddBook, page)
}

// ShowBooks lists the whole catalog
func (h *Handler) ShowBooks(c echo.Context) error {
	page := newPage("View Books", "All Books")

	books, err := h.svc.ListBooks(c.Request().Context())
	if err != nil {
		return err
	}
	page.Books = books
	if len(books) == 0 {
		page.Empty = msgNoBooks
	}
	return c.Render(http.StatusOK, pageBooks, page)
}

// ShowBorrow renders the borrow form over the available books
func (h *Handler) ShowBorrow(c echo.Context) error {
	page := newPage("Borrow Book", "Borrow a Book")
	if err := h.loadAvailable(c.Request().Context(), page); err != nil {
		return err
	}
	return c.Render(http.StatusOK, pageBorrow, page)
}

// Borrow handles the borrow form
func (h *Handler) Borrow(c echo.Context) error {
	ctx := c.Request().Context()
	page := newPage("Borrow Book", "Borrow a Book")

	var form borrowForm
	if err := c.Bind(&form); err != nil {
		return err
	}
	page.Form["book_id"], page.Form["borrower"] = form.BookID, form.Borrower

	status := http.StatusOK
	bookID, ok := parseBookID(form.BookID)
	if !ok {
		status = http.StatusBadRequest
		page.Flash = &flash{Kind: "warning", Message: msgSelectBook}
	} else if _, err := h.svc.Borrow(ctx, bookID, form.Borrower); err != nil {
		var verr *lending.ValidationError
		switch {
		case errors.As(err, &verr):
			status = http.StatusUnprocessableEntity
			page.Flash = &flash{Kind: "warning", Message: msgEnterBorrower}
		case errors.Is(err, repo.ErrBookNotFound):
			status = http.StatusNotFound
			page.Flash = &flash{Kind: "warning", Message: msgBookNotFound}
		case errors.Is(err, repo.ErrBookUnavailable):
			status = http.StatusConflict
			page.Flash = &flash{Kind: "warning", Message: msgBookLent}
		default:
			return err
		}
	} else {
		page.Form = map[string]string{}
		page.Flash = &flash{Kind: "success", Message: msgBookBorrowed}
	}

	if err := h.loadAvailable(ctx, page); err != nil {
		return err
	}
	return c.Render(status, pageBorrow, page)
}

// ShowReturn renders the return form over the open borrows
func (h *Handler) ShowReturn(c echo.Context) error {
	page := newPage("Return Book", "Return a Book")
	if err := h.loadOpenBorrows(c.Request().Context(), page, msgNoBorrowed); err != nil {
		return err
	}
	return c.Render(http.StatusOK, pageReturn, page)
}

// Return handles the return form
func (h *Handler) Return(c echo.Context) error {
	ctx := c.Request().Context()
	page := newPage("Return Book", "Return a Book")

	var form returnForm
	if err := c.Bind(&form); err != nil {
		return err
	}

	status := http.StatusOK
	bookID, ok := parseBookID(form.BookID)
	if !ok {
		status = http.StatusBadRequest
		page.Flash = &flash{Kind: "warning", Message: msgSelectBook}
	} else if _, err := h.svc.Return(ctx, bookID); err != nil {
		if !errors.Is(err, repo.ErrBookNotFound) {
			return err
		}
		status = http.StatusNotFound
		page.Flash = &flash{Kind: "warning", Message: msgBookNotFound}
	} else {
		page.Flash = &flash{Kind: "success", Message: msgBookReturned}
	}

	if err := h.loadOpenBorrows(ctx, page, msgNoBorrowed); err != nil {
		return err
	}
	return c.Render(status, pageReturn, page)
}

// ShowRecords lists the books currently lent out
func (h *Handler) ShowRecords(c echo.Context) error {
	page := newPage("Borrow Records", "Currently Borrowed Books")
	if err := h.loadOpenBorrows(c.Request().Context(), page, msgNoOpenBorrows); err != nil {
		return err
	}
	return c.Render(http.StatusOK, pageRecords, page)
}

func (h *Handler) loadAvailable(ctx context.Context, page *pageData) error {
	books, err := h.svc.ListAvailableBooks(ctx)
	if err != nil {
		return err
	}
	page.Books = books
	if len(books) == 0 {
		page.Empty = msgNoBooksToLend
	}
	return nil
}

func (h *Handler) loadOpenBorrows(ctx context.Context, page *pageData, empty string) error {
	borrows, err := h.svc.ListOpenBorrows(ctx)
	if err != nil {
		return err
	}
	page.Borrows = borrows
	if len(borrows) == 0 {
		page.Empty = empty
	}
	return nil
}

// parseBookID accepts positive integer ids only
func parseBookID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
