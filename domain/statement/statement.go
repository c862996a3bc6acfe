package statement

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Period selects one cumulative filing of a business year.
type Period struct {
	Code  string
	Label string
}

// Periods holds the four report period codes defined by the upstream API,
// in filing order within a year.
var Periods = []Period{
	{Code: "11013", Label: "Q1"},
	{Code: "11012", Label: "H1"},
	{Code: "11014", Label: "Q3"},
	{Code: "11011", Label: "ANNUAL"},
}

// Quarters are the standalone output quarters derived from the cumulative periods.
var Quarters = []string{"Q1", "Q2", "Q3", "Q4"}

// Task is one (company, year, period) fetch unit of the collection run.
type Task struct {
	Ticker      string
	CorpCode    string
	Year        string
	PeriodCode  string
	PeriodLabel string
}

// Key identifies the task in the checkpoint set.
func (t *Task) Key() string {
	return fmt.Sprintf("%s-%s-%s", t.Ticker, t.Year, t.PeriodLabel)
}

// LineItem is one disclosed account row of a statement response.
type LineItem struct {
	Id          string
	Name        string
	Division    string
	Amount      string
	PriorAmount string
}

// Metrics holds the six canonical figures of one statement. A nil field
// means the filer disclosed no matching account, which is different from
// a reported zero.
type Metrics struct {
	Revenue         *int64 `json:"revenue"`
	OperatingIncome *int64 `json:"operating_income"`
	NetIncome       *int64 `json:"net_income"`
	Assets          *int64 `json:"assets"`
	Liabilities     *int64 `json:"liabilities"`
	Equity          *int64 `json:"equity"`
}

// CoreAbsent reports whether all three income-statement figures are missing.
func (m Metrics) CoreAbsent() bool {
	return m.Revenue == nil && m.OperatingIncome == nil && m.NetIncome == nil
}

// PeriodSeries accumulates one year of cumulative metrics per period label.
type PeriodSeries map[string]Metrics

// RowKey identifies one output row.
type RowKey struct {
	Ticker  string
	Year    string
	Quarter string
}

// Row is one standalone-quarter output record.
type Row struct {
	Id       uuid.UUID `json:"id"`
	Ticker   string    `json:"ticker"`
	CorpCode string    `json:"corp_code"`
	Year     string    `json:"year"`
	Quarter  string    `json:"quarter"`
	Date     string    `json:"date"`
	Metrics
}

func (r *Row) Key() RowKey {
	return RowKey{Ticker: r.Ticker, Year: r.Year, Quarter: r.Quarter}
}

/*
Account resolution

The identifier sets and name patterns encode real label variance across
filers in the upstream taxonomy and must not be trimmed.
*/

var revenueIds = idSet(
	"ifrs-full_Revenue", "ifrs_Revenue", "dart_Revenue", "dart_SalesRevenue",
	"ifrs-full_RevenueFromContractsWithCustomers", "ifrs_RevenueFromContractsWithCustomers",
)
var operatingIncomeIds = idSet("ifrs-full_OperatingIncomeLoss", "dart_OperatingIncomeLoss")
var netIncomeIds = idSet(
	"ifrs-full_ProfitLoss", "dart_NetIncomeLoss", "ifrs-full_ProfitLossAttributableToOwnersOfParent",
)
var assetsIds = idSet("ifrs-full_Assets")
var liabilitiesIds = idSet("ifrs-full_Liabilities")
var equityIds = idSet("ifrs-full_Equity", "ifrs-full_EquityAttributableToOwnersOfParent")

var revenueNameRe = regexp.MustCompile(`(?i)(매\s*출|매출액|영업수익|상품매출|제품매출|수수료수익|이자수익|보험료수익|수익\(영업\))`)
var operatingNameRe = regexp.MustCompile(`(?i)(영업\s*이익|영업이익\(손실\)|영업손실)`)
var netIncomeNameRe = regexp.MustCompile(`(?i)(당기\s*순\s*이익|분기\s*순\s*이익|당기순손익|지배주주지분순이익)`)
var assetsNameRe = regexp.MustCompile(`(?i)(자산\s*총계|자산$)`)
var liabilitiesNameRe = regexp.MustCompile(`(?i)(부채\s*총계|부채$)`)
var equityNameRe = regexp.MustCompile(`(?i)(자기\s*자본|자본\s*총계|지배기업의소유주지분)`)

// operatingRevenueRe matches the primary revenue lines of financial-industry
// filers whose statements carry no ordinary sales account.
var operatingRevenueRe = regexp.MustCompile(`(?i)(영업수익|이자수익|보험료수익|수수료수익)`)

// Resolve picks the six canonical metrics out of one statement response.
// Every matched line item is consumed and never serves a second category.
// If operatingRevenueAsSales is set, a missing revenue figure is retried
// against the financial-industry revenue labels.
func Resolve(items []*LineItem, operatingRevenueAsSales bool) Metrics {
	used := make(map[string]bool)

	revenue, rk := pick(items, revenueIds, revenueNameRe, used)
	if revenue == nil && operatingRevenueAsSales {
		revenue, rk = pick(items, nil, operatingRevenueRe, used)
	}
	if rk != "" {
		used[rk] = true
	}

	m := Metrics{Revenue: revenue}
	m.OperatingIncome = pickUsed(items, operatingIncomeIds, operatingNameRe, used)
	m.NetIncome = pickUsed(items, netIncomeIds, netIncomeNameRe, used)
	m.Assets = pickUsed(items, assetsIds, assetsNameRe, used)
	m.Liabilities = pickUsed(items, liabilitiesIds, liabilitiesNameRe, used)
	m.Equity = pickUsed(items, equityIds, equityNameRe, used)
	return m
}

// ParseAmount converts a raw amount string into a signed integer. Thousands
// separators and whitespace are stripped; an empty string or a dash-like
// placeholder means the figure was not disclosed and yields nil.
func ParseAmount(v string) *int64 {
	s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
	if s == "" || s == "-" || s == "–" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n := int64(f)
	return &n
}

// QuarterSingles converts one year of cumulative metrics into standalone
// quarters. Flow metrics are differenced against the previous cumulative
// snapshot; a missing operand keeps the quarter missing instead of forcing
// it to zero. Balance metrics are point-in-time and are copied from the
// quarter's own snapshot.
func QuarterSingles(series PeriodSeries) map[string]Metrics {
	q1 := series["Q1"]
	h1 := series["H1"]
	q3 := series["Q3"]
	an := series["ANNUAL"]

	return map[string]Metrics{
		"Q1": {
			Revenue:         q1.Revenue,
			OperatingIncome: q1.OperatingIncome,
			NetIncome:       q1.NetIncome,
			Assets:          q1.Assets,
			Liabilities:     q1.Liabilities,
			Equity:          q1.Equity,
		},
		"Q2": {
			Revenue:         sub(h1.Revenue, q1.Revenue),
			OperatingIncome: sub(h1.OperatingIncome, q1.OperatingIncome),
			NetIncome:       sub(h1.NetIncome, q1.NetIncome),
			Assets:          h1.Assets,
			Liabilities:     h1.Liabilities,
			Equity:          h1.Equity,
		},
		"Q3": {
			Revenue:         sub(q3.Revenue, h1.Revenue),
			OperatingIncome: sub(q3.OperatingIncome, h1.OperatingIncome),
			NetIncome:       sub(q3.NetIncome, h1.NetIncome),
			Assets:          q3.Assets,
			Liabilities:     q3.Liabilities,
			Equity:          q3.Equity,
		},
		"Q4": {
			Revenue:         sub(an.Revenue, q3.Revenue),
			OperatingIncome: sub(an.OperatingIncome, q3.OperatingIncome),
			NetIncome:       sub(an.NetIncome, q3.NetIncome),
			Assets:          an.Assets,
			Liabilities:     an.Liabilities,
			Equity:          an.Equity,
		},
	}
}

/*
Helper functions
*/

func idSet(ids ...string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// pick scans for an unused item by identifier first, then by display name.
// It returns the parsed amount and the discriminator under which the match
// must be recorded as consumed.
func pick(items []*LineItem, ids map[string]bool, nameRe *regexp.Regexp, used map[string]bool) (*int64, string) {
	for _, it := range items {
		id := strings.TrimSpace(it.Id)
		if id == "" || !ids[id] || used["id:"+id] {
			continue
		}
		if val := ParseAmount(it.Amount); val != nil {
			return val, "id:" + id
		}
	}
	for _, it := range items {
		nm := strings.TrimSpace(it.Name)
		if !nameRe.MatchString(nm) || used["nm:"+nm] {
			continue
		}
		if val := ParseAmount(it.Amount); val != nil {
			return val, "nm:" + nm
		}
	}
	return nil, ""
}

func pickUsed(items []*LineItem, ids map[string]bool, nameRe *regexp.Regexp, used map[string]bool) *int64 {
	val, key := pick(items, ids, nameRe, used)
	if key != "" {
		used[key] = true
	}
	return val
}

func sub(a, b *int64) *int64 {
	if a == nil || b == nil {
		return nil
	}
	d := *a - *b
	return &d
}
