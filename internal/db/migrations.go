package db

import (
	"gorm.io/gorm"
)

// RunMigrations creates the lending tables if they do not exist. Safe to run on every start.
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &BorrowRecord{}); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Partial index backing the open-borrow lookups done by borrow, return and the records view
		`CREATE INDEX IF NOT EXISTS idx_borrow_records_open ON borrow_records(book_id) WHERE return_date IS NULL`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
