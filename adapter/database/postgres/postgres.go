package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/12e2395-dot/stock-collector/adapter/database"
	"github.com/12e2395-dot/stock-collector/domain/statement"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresDB struct {
	conn *pgxpool.Pool
}

func New(host, port, name, user, pass string) (*postgresDB, error) {

	conn, err := pgxpool.New(
		context.Background(),
		fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name),
	)
	if err != nil {
		return nil, err
	}

	return &postgresDB{conn: conn}, nil
}

func (db *postgresDB) Close() error {
	db.conn.Close()
	return nil
}

func (db *postgresDB) CreateBaseTables() error {

	_, err := db.conn.Exec(context.Background(), `CREATE TABLE IF NOT EXISTS quarter_row (
		id UUID PRIMARY KEY,
		ticker VARCHAR(6) NOT NULL,
		corp_code VARCHAR(10) NOT NULL,
		year VARCHAR(4) NOT NULL,
		quarter VARCHAR(2) NOT NULL,
		date_label VARCHAR(12) NOT NULL,
		revenue BIGINT DEFAULT NULL,
		operating_income BIGINT DEFAULT NULL,
		net_income BIGINT DEFAULT NULL,
		equity BIGINT DEFAULT NULL,
		liabilities BIGINT DEFAULT NULL,
		assets BIGINT DEFAULT NULL,
		CONSTRAINT unique_ticker_year_quarter UNIQUE(ticker, year, quarter)
	);`)

	return err
}

func (db *postgresDB) GetRowKeys() (map[statement.RowKey]bool, error) {

	rows, err := db.conn.Query(
		context.Background(),
		`SELECT ticker, year, quarter FROM quarter_row;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[statement.RowKey]bool)
	for rows.Next() {
		k := statement.RowKey{}
		if err := rows.Scan(&k.Ticker, &k.Year, &k.Quarter); err != nil {
			return nil, err
		}
		keys[k] = true
	}

	return keys, nil
}

func (db *postgresDB) GetRows() ([]*statement.Row, error) {

	rows, err := db.conn.Query(
		context.Background(),
		`SELECT id, ticker, corp_code, year, quarter, date_label,
			revenue, operating_income, net_income, equity, liabilities, assets
			FROM quarter_row;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*statement.Row{}
	for rows.Next() {
		r := &statement.Row{}
		err := rows.Scan(
			&r.Id, &r.Ticker, &r.CorpCode, &r.Year, &r.Quarter, &r.Date,
			&r.Revenue, &r.OperatingIncome, &r.NetIncome,
			&r.Equity, &r.Liabilities, &r.Assets,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}

	return result, nil
}

// we return a map so lookups during the corp-map fallback stay cheap
func (db *postgresDB) GetCorpPairs() (map[string]string, error) {

	rows, err := db.conn.Query(
		context.Background(),
		`SELECT DISTINCT ticker, corp_code FROM quarter_row WHERE corp_code <> '';`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make(map[string]string)
	for rows.Next() {
		var ticker, corp string
		if err := rows.Scan(&ticker, &corp); err != nil {
			return nil, err
		}
		if len(ticker) == 6 {
			pairs[ticker] = corp
		}
	}

	return pairs, nil
}

func (db *postgresDB) InsertRows(rows []*statement.Row) error {

	for _, r := range rows {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}

		_, err = db.conn.Exec(
			context.Background(),
			`INSERT INTO quarter_row (id, ticker, corp_code, year, quarter, date_label,
				revenue, operating_income, net_income, equity, liabilities, assets)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`,
			id, r.Ticker, r.CorpCode, r.Year, r.Quarter, r.Date,
			r.Revenue, r.OperatingIncome, r.NetIncome,
			r.Equity, r.Liabilities, r.Assets,
		)

		err = errorWrapper(err)
		// the row might already be stored in which case we just move on
		if err != nil && err != database.DuplicateErr {
			return err
		}
	}

	return nil
}

func (db *postgresDB) UpdateRow(row *statement.Row) error {

	tag, err := db.conn.Exec(
		context.Background(),
		`UPDATE quarter_row SET corp_code = $2, date_label = $3,
			revenue = $4, operating_income = $5, net_income = $6,
			equity = $7, liabilities = $8, assets = $9
			WHERE id = $1;`,
		row.Id, row.CorpCode, row.Date,
		row.Revenue, row.OperatingIncome, row.NetIncome,
		row.Equity, row.Liabilities, row.Assets,
	)
	if err != nil {
		return errorWrapper(err)
	}
	if tag.RowsAffected() < 1 {
		return database.NotFoundErr
	}

	return nil
}

// Helper Functions

// my error wrapper to use custom created error constants defined in database package
func errorWrapper(err error) error {

	// check if error is even present
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// SQL Error code for violated unique constraint
		if pgErr.Code == "23505" {
			return database.DuplicateErr
		}
	}

	return err
}
