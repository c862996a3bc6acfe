package krx

import "context"

// Client supplies the set of tickers currently listed on the exchange,
// used to narrow the corp map down to listed issuers.
type Client interface {
	ListedTickers(ctx context.Context) (map[string]bool, error)
}
