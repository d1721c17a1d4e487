package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/alimghmi/sync-auth0-user/internal/roster"
)

// Source reads the authoritative roster table. It is the only
// database surface the reconciler sees.
type Source struct {
	db *gorm.DB
}

// NewSource wraps an open connection.
func NewSource(db *gorm.DB) *Source {
	return &Source{db: db}
}

// FetchAll loads every row of the named table into memory and returns
// the records with usernames and emails normalized. The roster is
// assumed to fit in memory; there is no paging contract.
func (s *Source) FetchAll(ctx context.Context, table string) ([]roster.UserRecord, error) {
	var records []roster.UserRecord
	if err := s.db.WithContext(ctx).Table(table).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("database: fetch %s: %w", table, err)
	}
	for i := range records {
		records[i] = records[i].Normalized()
	}
	return records, nil
}
