package repair

import (
	"context"
	"testing"

	"github.com/12e2395-dot/stock-collector/domain/statement"
	"github.com/12e2395-dot/stock-collector/service/collect"
	"github.com/google/uuid"
)

type fakeFetcher struct {
	calls  int
	result statement.Metrics
}

func (f *fakeFetcher) Fetch(
	ctx context.Context,
	corpCode, year, periodCode, ticker string,
) (statement.Metrics, int) {
	f.calls++
	return f.result, 2
}

type fakeDB struct {
	rows    []*statement.Row
	updated []*statement.Row
}

func (db *fakeDB) Close() error                                   { return nil }
func (db *fakeDB) CreateBaseTables() error                        { return nil }
func (db *fakeDB) GetRowKeys() (map[statement.RowKey]bool, error) { return nil, nil }
func (db *fakeDB) GetRows() ([]*statement.Row, error)             { return db.rows, nil }
func (db *fakeDB) GetCorpPairs() (map[string]string, error)       { return nil, nil }
func (db *fakeDB) InsertRows(rows []*statement.Row) error         { return nil }
func (db *fakeDB) UpdateRow(row *statement.Row) error {
	db.updated = append(db.updated, row)
	return nil
}

type noopLogger struct{}

func (l *noopLogger) Log(msg string)   {}
func (l *noopLogger) Warn(msg string)  {}
func (l *noopLogger) Error(msg string) {}

func i64(v int64) *int64 { return &v }

func row(ticker, year, quarter string, revenue *int64) *statement.Row {
	id, _ := uuid.NewV7()
	return &statement.Row{
		Id: id, Ticker: ticker, CorpCode: "00126380", Year: year, Quarter: quarter,
		Date:    year + "-" + quarter,
		Metrics: statement.Metrics{Revenue: revenue, OperatingIncome: i64(10), NetIncome: i64(5)},
	}
}

func TestRunRepairsZeroedGroup(t *testing.T) {
	db := &fakeDB{rows: []*statement.Row{
		// group with a zeroed revenue in Q2
		row("005930", "2024", "Q1", i64(100)),
		row("005930", "2024", "Q2", i64(0)),
		row("005930", "2024", "Q3", i64(120)),
		row("005930", "2024", "Q4", i64(130)),
		// healthy group, must be left alone
		row("000660", "2024", "Q1", i64(50)),
		row("000660", "2024", "Q2", i64(60)),
		row("000660", "2024", "Q3", i64(70)),
		row("000660", "2024", "Q4", i64(80)),
	}}
	fetcher := &fakeFetcher{result: statement.Metrics{
		Revenue: i64(1000), OperatingIncome: i64(100), NetIncome: i64(50),
	}}

	fixed, err := New(db, fetcher, &noopLogger{}).
		Run(context.Background(), map[string]string{}, collect.NewBudget(100))
	if err != nil {
		t.Fatalf(err.Error())
	}

	if fixed != 4 {
		t.Errorf("Got %d fixed rows, want 4", fixed)
	}
	// all four cumulative periods were re-fetched once
	if fetcher.calls != 4 {
		t.Errorf("Got %d fetches, want 4", fetcher.calls)
	}
	for _, r := range db.updated {
		if r.Ticker != "005930" {
			t.Errorf("Healthy group %s was rewritten", r.Ticker)
		}
	}
}

func TestRunGroupWithMissingQuarter(t *testing.T) {
	db := &fakeDB{rows: []*statement.Row{
		row("005930", "2024", "Q1", i64(100)),
		row("005930", "2024", "Q2", i64(110)),
		// Q3 and Q4 were never written
	}}
	fetcher := &fakeFetcher{result: statement.Metrics{
		Revenue: i64(1000), OperatingIncome: i64(100), NetIncome: i64(50),
	}}

	fixed, err := New(db, fetcher, &noopLogger{}).
		Run(context.Background(), map[string]string{}, collect.NewBudget(100))
	if err != nil {
		t.Fatalf(err.Error())
	}

	// only the two present rows can be updated in place
	if fixed != 2 {
		t.Errorf("Got %d fixed rows, want 2", fixed)
	}
}

func TestRunStopsAtBudget(t *testing.T) {
	db := &fakeDB{rows: []*statement.Row{
		row("005930", "2024", "Q1", nil),
		row("000660", "2024", "Q1", nil),
	}}
	fetcher := &fakeFetcher{result: statement.Metrics{Revenue: i64(1)}}

	// enough for one group's four periods only
	_, err := New(db, fetcher, &noopLogger{}).
		Run(context.Background(), map[string]string{}, collect.NewBudget(8))
	if err != nil {
		t.Fatalf(err.Error())
	}
	if fetcher.calls != 4 {
		t.Errorf("Got %d fetches, want 4", fetcher.calls)
	}
}
