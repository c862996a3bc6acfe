package httpclient

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/12e2395-dot/stock-collector/adapter/dart"
	"github.com/12e2395-dot/stock-collector/domain/statement"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	corpCodeURL  = "https://opendart.fss.or.kr/api/corpCode.xml"
	statementURL = "https://opendart.fss.or.kr/api/fnlttSinglAcntAll.json"
	userAgent    = "dart-collector/4.2"

	maxAttempts = 3
	baseDelay   = 500 * time.Millisecond

	// the corp listing is a multi-megabyte zip and gets a longer deadline
	// than the statement queries
	downloadTimeout = 20 * time.Second
)

// Limiter admits one outbound request per token.
//
// rate.Limiter implements this interface.
type Limiter interface {
	Wait(ctx context.Context) error
}

type httpClient struct {
	client   *http.Client
	download *http.Client
	limiter  Limiter
	apiKey   string

	corpCodeUrl  string
	statementUrl string
}

// New builds a client that shares one token bucket of rps requests per
// second across every caller and every retry attempt.
func New(apiKey string, rps float64, timeout time.Duration) *httpClient {
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return &httpClient{
		client:       &http.Client{Timeout: timeout},
		download:     &http.Client{Timeout: downloadTimeout},
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		apiKey:       apiKey,
		corpCodeUrl:  corpCodeURL,
		statementUrl: statementURL,
	}
}

func (c *httpClient) WithLimiter(l Limiter) *httpClient {
	c.limiter = l
	return c
}

func (c *httpClient) WithBaseURL(base string) *httpClient {
	c.corpCodeUrl = base + "/api/corpCode.xml"
	c.statementUrl = base + "/api/fnlttSinglAcntAll.json"
	return c
}

func (c *httpClient) CorpEntries(ctx context.Context) ([]*dart.CorpEntry, error) {

	params := url.Values{}
	params.Set("crtfc_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.corpCodeUrl+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, notZipError(data, resp.Header.Get("Content-Type"))
	}
	if len(archive.File) < 1 {
		return nil, fmt.Errorf("Corp listing archive is empty")
	}
	entry, err := archive.File[0].Open()
	if err != nil {
		return nil, err
	}
	defer entry.Close()

	return parseCorpList(entry)
}

func (c *httpClient) Statements(
	ctx context.Context,
	corpCode, year, periodCode, division string,
) ([]*statement.LineItem, []byte, error) {

	params := url.Values{}
	params.Set("crtfc_key", c.apiKey)
	params.Set("corp_code", corpCode)
	params.Set("bsns_year", year)
	params.Set("reprt_code", periodCode)
	params.Set("fs_div", division)

	body, err := c.get(ctx, c.statementUrl, params)
	if err != nil {
		return nil, nil, err
	}

	res := &statementResponse{}
	if err := json.Unmarshal(body, res); err != nil {
		// a malformed body means no data for this division, not a failure
		return nil, body, nil
	}
	if res.Status != "000" || len(res.List) < 1 {
		return nil, body, nil
	}

	return res.transform(division), body, nil
}

// get performs one rate-limited request with bounded retries. A token is
// acquired before every attempt, retries included.
func (c *httpClient) get(ctx context.Context, rawUrl string, params url.Values) ([]byte, error) {

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx)

	var body []byte
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawUrl+"?"+params.Encode(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "*/*")

		resp, err := c.client.Do(req)
		if err != nil {
			// timeouts and connection failures are worth another attempt
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			body, err = io.ReadAll(resp.Body)
			return err
		}
		io.Copy(io.Discard, resp.Body)
		if retryable(resp.StatusCode) {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return backoff.Permanent(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %s", dart.ErrUnavailable, err.Error())
	}
	return body, nil
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}

// notZipError keeps enough of the response around to tell an API error
// message apart from a broken download.
func notZipError(data []byte, contentType string) error {
	apiErr := make(map[string]any)
	if err := json.Unmarshal(data, &apiErr); err == nil {
		return fmt.Errorf("Service refused the corp listing: %v", apiErr)
	}
	preview := data
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return fmt.Errorf("Corp listing is neither zip nor json. CT=%s Preview=%q", contentType, preview)
}

type corpList struct {
	Items []struct {
		CorpCode  string `xml:"corp_code"`
		StockCode string `xml:"stock_code"`
	} `xml:"list"`
}

func parseCorpList(r io.Reader) ([]*dart.CorpEntry, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	listing := &corpList{}
	if err := dec.Decode(listing); err != nil {
		return nil, err
	}

	entries := []*dart.CorpEntry{}
	for _, item := range listing.Items {
		entries = append(entries, &dart.CorpEntry{
			CorpCode:  strings.TrimSpace(item.CorpCode),
			StockCode: strings.TrimSpace(item.StockCode),
		})
	}
	return entries, nil
}

type statementResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	List    []struct {
		AccountId    string `json:"account_id"`
		AccountCd    string `json:"account_cd"`
		AccountNm    string `json:"account_nm"`
		SjDiv        string `json:"sj_div"`
		ThstrmAmount string `json:"thstrm_amount"`
		FrmtrmAmount string `json:"frmtrm_amount"`
	} `json:"list"`
}

func (r *statementResponse) transform(division string) []*statement.LineItem {
	items := []*statement.LineItem{}
	for _, v := range r.List {
		id := strings.TrimSpace(v.AccountId)
		if id == "" {
			// some filers only carry the legacy account code field
			id = strings.TrimSpace(v.AccountCd)
		}
		items = append(items, &statement.LineItem{
			Id:          id,
			Name:        strings.TrimSpace(v.AccountNm),
			Division:    division + "/" + v.SjDiv,
			Amount:      v.ThstrmAmount,
			PriorAmount: v.FrmtrmAmount,
		})
	}
	return items
}
