package corpcode

import (
	"context"
	"fmt"
	"time"

	"github.com/12e2395-dot/stock-collector/adapter/dart"
	"github.com/12e2395-dot/stock-collector/adapter/database"
	"github.com/12e2395-dot/stock-collector/adapter/krx"
	"github.com/12e2395-dot/stock-collector/adapter/logger"
)

const maxAttempts = 4

type Service struct {
	client dart.Client
	market krx.Client
	db     database.Database
	logger logger.Logger
	hasKey bool
}

func New(
	c dart.Client,
	market krx.Client,
	db database.Database,
	l logger.Logger,
	hasKey bool,
) *Service {
	return &Service{client: c, market: market, db: db, logger: l, hasKey: hasKey}
}

// Resolve produces the ticker to corp-code mapping the whole run depends
// on. The listing download is retried a few times; afterwards the mapping
// already present in the table store serves as fallback. Without any
// mapping the pipeline cannot proceed and the error is fatal.
func (s *Service) Resolve(ctx context.Context) (map[string]string, error) {

	if !s.hasKey {
		m, err := s.fromStore()
		if err == nil && len(m) > 0 {
			s.logger.Warn("API key missing, using stored mapping")
			return m, nil
		}
		return nil, fmt.Errorf("API key is not set and the store has no corp mapping")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(500 * time.Millisecond * (1 << (attempt - 1)))
		}

		entries, err := s.client.CorpEntries(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		mapping := make(map[string]string)
		for _, e := range entries {
			// only issuers with a 6 character market ticker are of interest
			if len(e.StockCode) == 6 {
				mapping[e.StockCode] = e.CorpCode
			}
		}
		s.logger.Log(fmt.Sprintf("[corpCode] Loaded %d companies", len(mapping)))

		return s.filterListed(ctx, mapping), nil
	}

	m, err := s.fromStore()
	if err == nil && len(m) > 0 {
		s.logger.Warn(fmt.Sprintf("corpCode API failed after retries, using stored mapping (%s)", lastErr.Error()))
		return m, nil
	}

	return nil, fmt.Errorf("corpCode failed: %w", lastErr)
}

// filterListed narrows the mapping down to currently listed issuers. The
// listing source is best effort only.
func (s *Service) filterListed(ctx context.Context, mapping map[string]string) map[string]string {

	listed, err := s.market.ListedTickers(ctx)
	if err != nil || len(listed) < 1 {
		if err != nil {
			s.logger.Warn(fmt.Sprintf("Listed-ticker filter failed: %s", err.Error()))
		}
		return mapping
	}

	filtered := make(map[string]string)
	for ticker, corp := range mapping {
		if listed[ticker] {
			filtered[ticker] = corp
		}
	}
	s.logger.Log(fmt.Sprintf("[FILTER] Listed only: %d / %d", len(filtered), len(mapping)))
	return filtered
}

func (s *Service) fromStore() (map[string]string, error) {
	pairs, err := s.db.GetCorpPairs()
	if err != nil {
		return nil, err
	}
	if len(pairs) > 0 {
		s.logger.Log(fmt.Sprintf("[FALLBACK] corp map from store: %d", len(pairs)))
	}
	return pairs, nil
}
