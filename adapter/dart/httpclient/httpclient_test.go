package httpclient

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/12e2395-dot/stock-collector/adapter/dart"
)

// countingLimiter admits instantly and records how often a token was taken.
type countingLimiter struct {
	mutex sync.Mutex
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.mutex.Lock()
	l.waits++
	l.mutex.Unlock()
	return nil
}

func newTestClient(serverUrl string, limiter Limiter) *httpClient {
	c := New("test-key", 100, 2*time.Second).WithBaseURL(serverUrl)
	if limiter != nil {
		c = c.WithLimiter(limiter)
	}
	return c
}

func TestStatementsParsesLineItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("corp_code"); got != "00126380" {
			t.Errorf("Got corp_code %s, want 00126380", got)
		}
		w.Write([]byte(`{"status":"000","message":"ok","list":[
			{"account_id":"ifrs-full_Revenue","account_nm":"매출액","sj_div":"IS","thstrm_amount":"1,000,000"},
			{"account_cd":"dart_OperatingIncomeLoss","account_nm":"영업이익","sj_div":"IS","thstrm_amount":"200,000"}
		]}`))
	}))
	defer srv.Close()

	items, raw, err := newTestClient(srv.URL, &countingLimiter{}).
		Statements(context.Background(), "00126380", "2024", "11013", "CFS")
	if err != nil {
		t.Fatalf(err.Error())
	}
	if len(raw) < 1 {
		t.Errorf("Got empty raw body")
	}
	if len(items) != 2 {
		t.Fatalf("Got %d items, want 2", len(items))
	}
	if items[0].Id != "ifrs-full_Revenue" || items[0].Amount != "1,000,000" {
		t.Errorf("Got item %+v", items[0])
	}
	// account_cd serves as the identifier when account_id is missing
	if items[1].Id != "dart_OperatingIncomeLoss" {
		t.Errorf("Got item id %s, want dart_OperatingIncomeLoss", items[1].Id)
	}
}

func TestStatementsNonZeroStatusIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"013","message":"no data"}`))
	}))
	defer srv.Close()

	items, _, err := newTestClient(srv.URL, &countingLimiter{}).
		Statements(context.Background(), "00000000", "2024", "11013", "CFS")
	if err != nil {
		t.Errorf("Got error %v, want no-data result", err)
	}
	if items != nil {
		t.Errorf("Got %d items, want none", len(items))
	}
}

func TestGetRetriesRetryableStatus(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"000","list":[{"account_id":"ifrs-full_Assets","thstrm_amount":"5"}]}`))
	}))
	defer srv.Close()

	limiter := &countingLimiter{}
	items, _, err := newTestClient(srv.URL, limiter).
		Statements(context.Background(), "x", "2024", "11011", "OFS")
	if err != nil {
		t.Fatalf(err.Error())
	}
	if len(items) != 1 {
		t.Errorf("Got %d items, want 1", len(items))
	}
	if attempts != 3 {
		t.Errorf("Got %d attempts, want 3", attempts)
	}
	// every attempt must pay for its own token
	if limiter.waits != 3 {
		t.Errorf("Got %d token waits, want 3", limiter.waits)
	}
}

func TestGetPermanentStatusFailsFast(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv.URL, &countingLimiter{}).
		Statements(context.Background(), "x", "2024", "11011", "CFS")
	if !errors.Is(err, dart.ErrUnavailable) {
		t.Errorf("Got %v, want ErrUnavailable", err)
	}
	if attempts != 1 {
		t.Errorf("Got %d attempts, want 1", attempts)
	}
}

func TestGetExhaustionReturnsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, _, err := newTestClient(srv.URL, &countingLimiter{}).
		Statements(context.Background(), "x", "2024", "11011", "CFS")
	if !errors.Is(err, dart.ErrUnavailable) {
		t.Errorf("Got %v, want ErrUnavailable", err)
	}
}

func TestCorpEntries(t *testing.T) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	f, err := zw.Create("CORPCODE.xml")
	if err != nil {
		t.Fatalf(err.Error())
	}
	f.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
		<result>
			<list><corp_code>00126380</corp_code><stock_code>005930</stock_code></list>
			<list><corp_code>00999999</corp_code><stock_code> </stock_code></list>
		</result>`))
	zw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	entries, err := newTestClient(srv.URL, nil).CorpEntries(context.Background())
	if err != nil {
		t.Fatalf(err.Error())
	}
	if len(entries) != 2 {
		t.Fatalf("Got %d entries, want 2", len(entries))
	}
	if entries[0].CorpCode != "00126380" || entries[0].StockCode != "005930" {
		t.Errorf("Got entry %+v", entries[0])
	}
	if entries[1].StockCode != "" {
		t.Errorf("Got stock code %q, want trimmed empty", entries[1].StockCode)
	}
}

func TestCorpEntriesNonZipBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"020","message":"quota exceeded"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).CorpEntries(context.Background())
	if err == nil {
		t.Fatalf("Got nil error for a non-zip body")
	}
}
