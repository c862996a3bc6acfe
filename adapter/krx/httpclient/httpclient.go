package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	dataURL = "http://data.krx.co.kr/comm/bldAttendant/getJsonData.cmd"
	listBld = "dbms/MDC/STAT/standard/MDCSTAT01901"
)

// markets queried for the listed-issuer set: KOSPI and KOSDAQ.
var markets = []string{"STK", "KSQ"}

type httpClient struct {
	client *http.Client
	url    string
}

func New(client *http.Client) *httpClient {
	return &httpClient{client: client, url: dataURL}
}

func (c *httpClient) WithURL(u string) *httpClient {
	c.url = u
	return c
}

func (c *httpClient) ListedTickers(ctx context.Context) (map[string]bool, error) {

	listed := make(map[string]bool)
	for _, market := range markets {
		tickers, err := c.marketTickers(ctx, market)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", market, err)
		}
		for _, t := range tickers {
			listed[t] = true
		}
	}
	return listed, nil
}

func (c *httpClient) marketTickers(ctx context.Context, market string) ([]string, error) {

	form := url.Values{}
	form.Set("bld", listBld)
	form.Set("mktId", market)
	form.Set("share", "1")
	form.Set("csvxls_isNo", "false")

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "http://data.krx.co.kr/")

	resp, err := c.client.Do(req)
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

	res := &listResponse{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, err
	}

	tickers := []string{}
	for _, v := range res.Block {
		t := strings.TrimSpace(v.ShortCode)
		if len(t) == 6 {
			tickers = append(tickers, t)
		}
	}
	return tickers, nil
}

type listResponse struct {
	Block []struct {
		ShortCode string `json:"ISU_SRT_CD"`
	} `json:"OutBlock_1"`
}
