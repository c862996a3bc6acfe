package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/12e2395-dot/stock-collector/adapter/bucket"
	"github.com/12e2395-dot/stock-collector/adapter/database"
	"github.com/12e2395-dot/stock-collector/adapter/logger"
	"github.com/12e2395-dot/stock-collector/adapter/queue"
	"github.com/12e2395-dot/stock-collector/domain/statement"
)

// Fetcher hides the statement API behind the single call a worker needs.
type Fetcher interface {
	Fetch(ctx context.Context, corpCode, year, periodCode, ticker string) (statement.Metrics, int)
}

// Config carries the scheduling knobs of one collection run.
type Config struct {
	Workers       int
	Years         []string
	SampleTickers int
	SkipIfExists  bool
	CheckpointKey string
}

// Result summarizes one run for the caller and the logs.
type Result struct {
	Tasks      int
	Dispatched int
	SavedRows  int
	LimitHit   bool
}

type Service struct {
	fetcher Fetcher
	db      database.Database
	ckpt    bucket.Bucket
	queue   queue.Queue
	logger  logger.Logger
	cfg     Config
}

func New(
	f Fetcher,
	db database.Database,
	ckpt bucket.Bucket,
	q queue.Queue,
	l logger.Logger,
	cfg Config,
) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Service{fetcher: f, db: db, ckpt: ckpt, queue: q, logger: l, cfg: cfg}
}

// Run builds the full task cross-product, filters it against the checkpoint
// and the existing-record index, drains it through a bounded worker pool
// within the call budget, and queues the derived standalone-quarter rows.
// The checkpoint persisted at the end is the union of the loaded one and
// the keys actually dispatched in this run, so the next invocation resumes
// exactly where this one stopped.
func (s *Service) Run(ctx context.Context, corpMap map[string]string, budget *Budget) (*Result, error) {

	existing, err := s.db.GetRowKeys()
	if err != nil {
		s.logger.Warn(fmt.Sprintf("Failed to load existing data: %s", err.Error()))
		existing = make(map[statement.RowKey]bool)
	}
	s.logger.Log(fmt.Sprintf("[EXISTING] Loaded %d existing records", len(existing)))

	tasks := s.buildTasks(corpMap)
	s.logger.Log(fmt.Sprintf("[TASKS] %d", len(tasks)))

	done := s.loadCheckpoint()

	type accKey struct {
		Ticker string
		Year   string
	}

	var mutex sync.Mutex
	acc := make(map[accKey]statement.PeriodSeries)
	corpOf := make(map[accKey]string)
	doneToday := make(map[string]bool)
	var dispatched, completed int64
	var limitHit atomic.Bool

	taskCh := make(chan *statement.Task)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for t := range taskCh {

			current := atomic.AddInt64(&completed, 1)
			if current%1000 == 0 {
				s.logger.Log(fmt.Sprintf("[PROGRESS] %d/%d | calls_left≈%d", current, len(tasks), budget.Left()))
			}

			if limitHit.Load() || ctx.Err() != nil {
				continue
			}
			if done[t.Key()] {
				continue
			}
			key := statement.RowKey{Ticker: t.Ticker, Year: t.Year, Quarter: t.PeriodLabel}
			if s.cfg.SkipIfExists && existing[key] {
				// already stored, save the calls
				continue
			}

			// reserve room for the consolidated and the standalone request
			if !budget.Take(2) {
				if limitHit.CompareAndSwap(false, true) {
					s.logger.Log("[LIMIT] Hit the call budget. Saving checkpoint.")
				}
				continue
			}

			fin, calls := s.fetcher.Fetch(ctx, t.CorpCode, t.Year, t.PeriodCode, t.Ticker)
			budget.Refund(2 - calls)

			atomic.AddInt64(&dispatched, 1)
			ak := accKey{Ticker: t.Ticker, Year: t.Year}

			mutex.Lock()
			doneToday[t.Key()] = true
			if acc[ak] == nil {
				acc[ak] = statement.PeriodSeries{}
				corpOf[ak] = t.CorpCode
			}
			acc[ak][t.PeriodLabel] = fin
			mutex.Unlock()
		}
	}

	wg.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		go worker()
	}
	for _, t := range tasks {
		taskCh <- t
	}
	close(taskCh)
	wg.Wait()

	union := make(map[string]bool, len(done)+len(doneToday))
	for k := range done {
		union[k] = true
	}
	for k := range doneToday {
		union[k] = true
	}
	s.saveCheckpoint(union)

	saved := 0
	for ak, series := range acc {
		singles := statement.QuarterSingles(series)
		for _, q := range statement.Quarters {
			if existing[statement.RowKey{Ticker: ak.Ticker, Year: ak.Year, Quarter: q}] {
				continue
			}
			fin := singles[q]
			if fin.CoreAbsent() {
				continue
			}
			row := &statement.Row{
				Ticker:   ak.Ticker,
				CorpCode: corpOf[ak],
				Year:     ak.Year,
				Quarter:  q,
				Date:     fmt.Sprintf("%s-%s", ak.Year, q),
				Metrics:  fin,
			}
			data, err := json.Marshal(row)
			if err != nil {
				s.logger.Error(fmt.Sprintf("Serialization error: %s", err.Error()))
				continue
			}
			if err := s.queue.SendMessage(data); err != nil {
				s.logger.Error(fmt.Sprintf("Queue error: %s", err.Error()))
				continue
			}
			saved++
		}
	}

	res := &Result{
		Tasks:      len(tasks),
		Dispatched: int(dispatched),
		SavedRows:  saved,
		LimitHit:   limitHit.Load(),
	}
	s.logger.Log(fmt.Sprintf("[DONE] saved_rows=%d | calls_left≈%d", saved, budget.Left()))
	return res, nil
}

// buildTasks crosses every resolved ticker with the configured years and
// the four report periods, optionally capped to a ticker sample.
func (s *Service) buildTasks(corpMap map[string]string) []*statement.Task {

	tickers := make([]string, 0, len(corpMap))
	for t := range corpMap {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	if s.cfg.SampleTickers > 0 && len(tickers) > s.cfg.SampleTickers {
		tickers = tickers[:s.cfg.SampleTickers]
		s.logger.Log(fmt.Sprintf("[SAMPLE] limiting to %d tickers", len(tickers)))
	}

	tasks := []*statement.Task{}
	for _, ticker := range tickers {
		for _, year := range s.cfg.Years {
			for _, p := range statement.Periods {
				tasks = append(tasks, &statement.Task{
					Ticker:      ticker,
					CorpCode:    corpMap[ticker],
					Year:        year,
					PeriodCode:  p.Code,
					PeriodLabel: p.Label,
				})
			}
		}
	}
	return tasks
}

func (s *Service) loadCheckpoint() map[string]bool {

	done := make(map[string]bool)
	data, err := s.ckpt.GetObject(s.cfg.CheckpointKey)
	if err != nil {
		// a missing checkpoint just means a fresh start
		return done
	}

	keys := []string{}
	if err := json.Unmarshal(data, &keys); err != nil {
		s.logger.Warn(fmt.Sprintf("load_checkpoint failed: %s, starting fresh", err.Error()))
		return done
	}
	for _, k := range keys {
		done[k] = true
	}
	return done
}

func (s *Service) saveCheckpoint(done map[string]bool) {

	keys := make([]string, 0, len(done))
	for k := range done {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data, err := json.Marshal(keys)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("save_checkpoint failed: %s", err.Error()))
		return
	}
	if err := s.ckpt.PutObject(s.cfg.CheckpointKey, data); err != nil {
		s.logger.Warn(fmt.Sprintf("save_checkpoint failed: %s", err.Error()))
	}
}
