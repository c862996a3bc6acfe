package scylla

import (
	"strconv"

	"github.com/12e2395-dot/stock-collector/adapter/database"
	"github.com/12e2395-dot/stock-collector/domain/statement"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

type scyllaDB struct {
	sess *gocql.Session
}

func New(host string, port int) (*scyllaDB, error) {
	cluster := gocql.NewCluster(host)
	cluster.Port = port
	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	db := &scyllaDB{sess}
	err = db.createKeyspace()
	if err != nil {
		return nil, err
	}
	err = db.CreateBaseTables()
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (db *scyllaDB) Close() error {
	db.sess.Close()
	return nil
}

func (db *scyllaDB) createKeyspace() error {
	return db.sess.Query(
		`CREATE KEYSPACE IF NOT EXISTS collector WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`,
	).Exec()
}

// Amounts are stored as text with the empty string meaning "not disclosed",
// mirroring the blank cells of the original table store.
func (db *scyllaDB) CreateBaseTables() error {
	return db.sess.Query(
		`CREATE TABLE IF NOT EXISTS collector.quarter_row (
			ticker VARCHAR,
			year VARCHAR,
			quarter VARCHAR,
			id UUID,
			corp_code VARCHAR,
			date_label VARCHAR,
			revenue VARCHAR,
			operating_income VARCHAR,
			net_income VARCHAR,
			equity VARCHAR,
			liabilities VARCHAR,
			assets VARCHAR,
			PRIMARY KEY ((ticker), year, quarter)
		)`,
	).Exec()
}

func (db *scyllaDB) GetRowKeys() (map[statement.RowKey]bool, error) {

	iter := db.sess.Query(`SELECT ticker, year, quarter FROM collector.quarter_row`).Iter()

	keys := make(map[statement.RowKey]bool)
	k := statement.RowKey{}
	for iter.Scan(&k.Ticker, &k.Year, &k.Quarter) {
		keys[k] = true
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	return keys, nil
}

func (db *scyllaDB) GetRows() ([]*statement.Row, error) {

	iter := db.sess.Query(
		`SELECT ticker, year, quarter, id, corp_code, date_label,
			revenue, operating_income, net_income, equity, liabilities, assets
			FROM collector.quarter_row`,
	).Iter()

	rows := []*statement.Row{}
	var id gocql.UUID
	var ticker, year, quarter, corp, date string
	var revenue, operating, net, equity, liabilities, assets string
	for iter.Scan(
		&ticker, &year, &quarter, &id, &corp, &date,
		&revenue, &operating, &net, &equity, &liabilities, &assets,
	) {
		r := &statement.Row{
			Id:     uuid.UUID(id),
			Ticker: ticker, CorpCode: corp, Year: year, Quarter: quarter, Date: date,
			Metrics: statement.Metrics{
				Revenue:         statement.ParseAmount(revenue),
				OperatingIncome: statement.ParseAmount(operating),
				NetIncome:       statement.ParseAmount(net),
				Equity:          statement.ParseAmount(equity),
				Liabilities:     statement.ParseAmount(liabilities),
				Assets:          statement.ParseAmount(assets),
			},
		}
		rows = append(rows, r)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	return rows, nil
}

func (db *scyllaDB) GetCorpPairs() (map[string]string, error) {

	iter := db.sess.Query(`SELECT ticker, corp_code FROM collector.quarter_row`).Iter()

	pairs := make(map[string]string)
	var ticker, corp string
	for iter.Scan(&ticker, &corp) {
		if len(ticker) == 6 && corp != "" {
			pairs[ticker] = corp
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	return pairs, nil
}

func (db *scyllaDB) InsertRows(rows []*statement.Row) error {
	for _, r := range rows {
		if err := db.put(r); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRow relies on CQL inserts being upserts on the primary key.
func (db *scyllaDB) UpdateRow(row *statement.Row) error {
	if row.Ticker == "" || row.Year == "" || row.Quarter == "" {
		return database.NotFoundErr
	}
	return db.put(row)
}

func (db *scyllaDB) put(r *statement.Row) error {

	id := r.Id
	if id == uuid.Nil {
		var err error
		id, err = uuid.NewV7()
		if err != nil {
			return err
		}
	}

	return db.sess.Query(
		`INSERT INTO collector.quarter_row
			(ticker, year, quarter, id, corp_code, date_label,
			revenue, operating_income, net_income, equity, liabilities, assets)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Ticker, r.Year, r.Quarter, gocql.UUID(id), r.CorpCode, r.Date,
		cell(r.Revenue), cell(r.OperatingIncome), cell(r.NetIncome),
		cell(r.Equity), cell(r.Liabilities), cell(r.Assets),
	).Exec()
}

func cell(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
