package database

import (
	"errors"

	"github.com/12e2395-dot/stock-collector/domain/statement"
)

// Database is the remote quarterly-figures table keyed by
// (ticker, year, quarter).
type Database interface {
	Close() error
	CreateBaseTables() error
	// GetRowKeys returns the existing-record index used for dedup.
	GetRowKeys() (map[statement.RowKey]bool, error)
	// GetRows returns every stored row, including row identity, for the
	// repair pass.
	GetRows() ([]*statement.Row, error)
	// GetCorpPairs rebuilds the ticker to corp-code mapping from stored rows.
	GetCorpPairs() (map[string]string, error)
	InsertRows(rows []*statement.Row) error
	UpdateRow(row *statement.Row) error
}

var DuplicateErr error = errors.New("Duplicate key error")
var NotFoundErr error = errors.New("Key not found error")
