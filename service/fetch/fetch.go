package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/12e2395-dot/stock-collector/adapter/bucket"
	"github.com/12e2395-dot/stock-collector/adapter/dart"
	"github.com/12e2395-dot/stock-collector/adapter/logger"
	"github.com/12e2395-dot/stock-collector/domain/statement"
)

type Service struct {
	client  dart.Client
	archive bucket.Bucket // optional raw-response archival
	logger  logger.Logger

	operatingRevenueAsSales bool
	consolidatedOnly        bool
}

func New(
	c dart.Client,
	archive bucket.Bucket,
	l logger.Logger,
	operatingRevenueAsSales bool,
	consolidatedOnly bool,
) *Service {
	return &Service{
		client:  c,
		archive: archive,
		logger:  l,

		operatingRevenueAsSales: operatingRevenueAsSales,
		consolidatedOnly:        consolidatedOnly,
	}
}

// Fetch resolves the canonical metrics of one (company, year, period) and
// returns how many statement requests it spent. The consolidated division
// is tried first; if its core metrics are all missing and policy allows,
// the standalone division serves as fallback. A fully absent result is a
// valid business outcome, not a failure.
func (s *Service) Fetch(
	ctx context.Context,
	corpCode, year, periodCode, ticker string,
) (statement.Metrics, int) {

	calls := 0

	one := func(division string) (statement.Metrics, bool) {
		items, raw, err := s.client.Statements(ctx, corpCode, year, periodCode, division)
		calls++
		if err != nil {
			// exhausted retries count as no data for this division
			s.logger.Warn(fmt.Sprintf("API error %s y=%s rc=%s fs=%s: %s", corpCode, year, periodCode, division, err.Error()))
			return statement.Metrics{}, false
		}
		if len(items) < 1 {
			return statement.Metrics{}, false
		}
		if s.archive != nil {
			key := fmt.Sprintf("%s-%s-%s-%s.json", corpCode, year, periodCode, division)
			if err := s.archive.PutObject(key, raw); err != nil {
				s.logger.Warn(fmt.Sprintf("Bucket error: %s", err.Error()))
			}
		}
		return statement.Resolve(items, s.operatingRevenueAsSales), true
	}

	out, ok := one("CFS")
	coreMissing := !ok || out.CoreAbsent()

	// certain foreign-incorporated listings only ever file standalone statements
	if coreMissing && (!s.consolidatedOnly || strings.HasPrefix(ticker, "900")) {
		alt, altOk := one("OFS")
		if altOk {
			out = alt
		}
	}

	return out, calls
}
