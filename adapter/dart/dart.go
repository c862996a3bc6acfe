package dart

import (
	"context"
	"errors"

	"github.com/12e2395-dot/stock-collector/domain/statement"
)

type Client interface {
	// CorpEntries downloads and parses the full corporate identifier listing.
	CorpEntries(ctx context.Context) ([]*CorpEntry, error)
	// Statements fetches the account line items of one statement division.
	// No usable data is (nil, raw, nil), not an error. The raw response body
	// is returned for archival.
	Statements(ctx context.Context, corpCode, year, periodCode, division string) ([]*statement.LineItem, []byte, error)
}

// CorpEntry maps a market ticker onto the disclosure service's own entity code.
type CorpEntry struct {
	CorpCode  string
	StockCode string
}

// ErrUnavailable marks a request that got no usable response within the
// retry budget. Callers apply fallback policy instead of failing the run.
var ErrUnavailable error = errors.New("No usable response from the disclosure service")
