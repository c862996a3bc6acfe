package repair

import (
	"context"
	"fmt"

	"github.com/12e2395-dot/stock-collector/adapter/database"
	"github.com/12e2395-dot/stock-collector/adapter/logger"
	"github.com/12e2395-dot/stock-collector/domain/statement"
	"github.com/12e2395-dot/stock-collector/service/collect"
)

// Fetcher matches the fetch service; declared here so the pass can be
// tested without network plumbing.
type Fetcher interface {
	Fetch(ctx context.Context, corpCode, year, periodCode, ticker string) (statement.Metrics, int)
}

type Service struct {
	db      database.Database
	fetcher Fetcher
	logger  logger.Logger
}

func New(db database.Database, f Fetcher, l logger.Logger) *Service {
	return &Service{db: db, fetcher: f, logger: l}
}

// Run rescans the stored rows for years with missing quarters or zeroed
// core metrics, re-fetches them within the remaining budget, and rewrites
// the affected rows in place. The checkpoint is deliberately ignored here;
// repair targets are keyed off the stored values themselves.
func (s *Service) Run(ctx context.Context, corpMap map[string]string, budget *collect.Budget) (int, error) {

	s.logger.Log("[REPAIR] start scanning for zero rows")

	rows, err := s.db.GetRows()
	if err != nil {
		return 0, err
	}
	if len(rows) < 1 {
		s.logger.Log("[REPAIR] no data")
		return 0, nil
	}

	type groupKey struct {
		Ticker string
		Year   string
	}
	groups := make(map[groupKey]map[string]*statement.Row)
	for _, r := range rows {
		if r.Ticker == "" || r.Year == "" || !isQuarter(r.Quarter) {
			continue
		}
		gk := groupKey{Ticker: r.Ticker, Year: r.Year}
		if groups[gk] == nil {
			groups[gk] = make(map[string]*statement.Row)
		}
		groups[gk][r.Quarter] = r
	}

	targets := []groupKey{}
	for gk, quarters := range groups {
		for _, q := range statement.Quarters {
			row, got := quarters[q]
			if !got || zeroish(row.Revenue) || zeroish(row.OperatingIncome) || zeroish(row.NetIncome) {
				targets = append(targets, gk)
				break
			}
		}
	}

	if len(targets) < 1 {
		s.logger.Log("[REPAIR] nothing to fix")
		return 0, nil
	}
	s.logger.Log(fmt.Sprintf("[REPAIR] candidates: %d", len(targets)))

	fixed := 0
	for _, gk := range targets {

		if budget.Left() < 1 {
			s.logger.Log("[REPAIR] hit call limit during repair")
			break
		}

		corpCode := ""
		for _, q := range statement.Quarters {
			if row := groups[gk][q]; row != nil && row.CorpCode != "" {
				corpCode = row.CorpCode
				break
			}
		}
		if corpCode == "" {
			corpCode = corpMap[gk.Ticker]
		}
		if corpCode == "" {
			continue
		}

		series := statement.PeriodSeries{}
		for _, p := range statement.Periods {
			if !budget.Take(2) {
				break
			}
			fin, calls := s.fetcher.Fetch(ctx, corpCode, gk.Year, p.Code, gk.Ticker)
			budget.Refund(2 - calls)
			series[p.Label] = fin
		}

		singles := statement.QuarterSingles(series)
		for _, q := range statement.Quarters {
			row := groups[gk][q]
			if row == nil {
				continue
			}
			row.CorpCode = corpCode
			row.Date = fmt.Sprintf("%s-%s", gk.Year, q)
			row.Metrics = singles[q]
			if err := s.db.UpdateRow(row); err != nil {
				s.logger.Error(fmt.Sprintf("Database error: %s", err.Error()))
				continue
			}
			fixed++
		}
	}

	s.logger.Log(fmt.Sprintf("[REPAIR] updated rows: %d, calls_left≈%d", fixed, budget.Left()))
	return fixed, nil
}

func isQuarter(q string) bool {
	for _, v := range statement.Quarters {
		if v == q {
			return true
		}
	}
	return false
}

// zeroish marks a core metric worth re-fetching: either never resolved or
// stored as a literal zero.
func zeroish(v *int64) bool {
	return v == nil || *v == 0
}
