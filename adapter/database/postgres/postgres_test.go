package postgres

import (
	"log"
	"testing"
	"time"

	"github.com/12e2395-dot/stock-collector/domain/statement"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

var db *postgresDB

func TestMain(m *testing.M) {
	// uses a sensible default on windows (tcp/http) and linux/osx (socket)
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	// pulls an image, creates a container based on it and runs it
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16.3",
		Env: []string{
			"POSTGRES_PASSWORD=password123",
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=postgres",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		// set AutoRemove to true so that stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start resource: %s", err)
	}

	resource.Expire(120) // Tell docker to hard kill the container in 120 seconds

	// exponential backoff-retry, because the application in the container might not be ready to accept connections yet
	pool.MaxWait = 120 * time.Second
	if err = pool.Retry(func() error {
		db, err = New("localhost", "5432", "postgres", "postgres", "password123")
		return err
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	if err := db.CreateBaseTables(); err != nil {
		log.Fatalf("Could not create tables: %s", err)
	}

	defer func() {
		if err := pool.Purge(resource); err != nil {
			log.Fatalf("Could not purge resource: %s", err)
		}
	}()

	// run tests
	m.Run()
}

func amount(v int64) *int64 { return &v }

func TestInsertRows(t *testing.T) {
	rows := []*statement.Row{
		{
			Ticker: "005930", CorpCode: "00126380", Year: "2024", Quarter: "Q1", Date: "2024-Q1",
			Metrics: statement.Metrics{Revenue: amount(1000000), OperatingIncome: amount(200000)},
		},
	}
	err := db.InsertRows(rows)
	if err != nil {
		t.Errorf(err.Error())
	}

	// insert again to check that the uniqueness violation is swallowed
	err = db.InsertRows(rows)
	if err != nil {
		t.Errorf(err.Error())
	}

	keys, err := db.GetRowKeys()
	if err != nil {
		t.Fatalf(err.Error())
	}
	if !keys[statement.RowKey{Ticker: "005930", Year: "2024", Quarter: "Q1"}] {
		t.Errorf("Inserted row key missing from index")
	}

	pairs, err := db.GetCorpPairs()
	if err != nil {
		t.Fatalf(err.Error())
	}
	if pairs["005930"] != "00126380" {
		t.Errorf("Got corp pair %q, want 00126380", pairs["005930"])
	}
}

func TestUpdateRow(t *testing.T) {
	seed := []*statement.Row{
		{
			Ticker: "000660", CorpCode: "00164779", Year: "2024", Quarter: "Q2", Date: "2024-Q2",
			Metrics: statement.Metrics{NetIncome: amount(0)},
		},
	}
	if err := db.InsertRows(seed); err != nil {
		t.Fatalf(err.Error())
	}

	stored, err := db.GetRows()
	if err != nil {
		t.Fatalf(err.Error())
	}
	var row *statement.Row
	for _, r := range stored {
		if r.Ticker == "000660" && r.Quarter == "Q2" {
			row = r
		}
	}
	if row == nil {
		t.Fatalf("Seeded row not returned by GetRows")
	}
	if row.NetIncome == nil || *row.NetIncome != 0 {
		t.Errorf("A stored zero must stay a zero, got %v", row.NetIncome)
	}
	if row.Revenue != nil {
		t.Errorf("A stored null must stay absent, got %v", row.Revenue)
	}

	row.Revenue = amount(77)
	row.NetIncome = nil
	if err := db.UpdateRow(row); err != nil {
		t.Errorf(err.Error())
	}

	stored, err = db.GetRows()
	if err != nil {
		t.Fatalf(err.Error())
	}
	for _, r := range stored {
		if r.Id == row.Id {
			if r.Revenue == nil || *r.Revenue != 77 {
				t.Errorf("Got revenue %v after update, want 77", r.Revenue)
			}
			if r.NetIncome != nil {
				t.Errorf("Got net income %v after update, want absent", r.NetIncome)
			}
		}
	}
}
