package events

import (
	"context"
	"time"

	"github.com/bubblethoughts/book-management-system/internal/db"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

type correlationKey struct{}

// WithCorrelationID attaches a correlation id that is copied onto every event built from ctx
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id carried by ctx, if any
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

func newEvent(ctx context.Context, eventType string, payload map[string]interface{}) Event {
	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: CorrelationID(ctx),
		Payload:       payload,
	}
}

// BookAddedEvent builds the event emitted when a book enters the catalog
func BookAddedEvent(ctx context.Context, book *db.Book) Event {
	return newEvent(ctx, EventTypeBookAdded, map[string]interface{}{
		"book_id": book.ID,
		"title":   book.Title,
		"author":  book.Author,
	})
}

// BookBorrowedEvent builds the event emitted when a borrow record is opened
func BookBorrowedEvent(ctx context.Context, record *db.BorrowRecord) Event {
	return newEvent(ctx, EventTypeBookBorrowed, map[string]interface{}{
		"record_id":   record.ID,
		"book_id":     record.BookID,
		"borrower":    record.Borrower,
		"borrow_date": record.BorrowDate,
	})
}

// BookReturnedEvent builds the event emitted when a book is returned
func BookReturnedEvent(ctx context.Context, bookID uint, returnDate string, recordsClosed int64) Event {
	return newEvent(ctx, EventTypeBookReturned, map[string]interface{}{
		"book_id":        bookID,
		"return_date":    returnDate,
		"records_closed": recordsClosed,
	})
}

// Encode serialises an event for the wire
func Encode(event Event) ([]byte, error) {
	return jsoniter.ConfigFastest.Marshal(event)
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishBookAdded(context.Context, *db.Book) error {
	return nil
}

func (NopPublisher) PublishBookBorrowed(context.Context, *db.BorrowRecord) error {
	return nil
}

func (NopPublisher) PublishBookReturned(context.Context, uint, string, int64) error {
	return nil
}

func (NopPublisher) IsHealthy() bool {
	return true
}

func (NopPublisher) Close() error {
	return nil
}
