package writer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/12e2395-dot/stock-collector/adapter/database"
	"github.com/12e2395-dot/stock-collector/adapter/logger"
	"github.com/12e2395-dot/stock-collector/adapter/queue"
	"github.com/12e2395-dot/stock-collector/domain/statement"
)

const batchSize = 200

// writeLock serializes batch writes against the shared table.
var writeLock sync.Mutex

type Service struct {
	db     database.Database
	cons   queue.Queue // the queue from which this service consumes
	logger logger.Logger
}

func New(db database.Database, cons queue.Queue, l logger.Logger) *Service {
	return &Service{db: db, cons: cons, logger: l}
}

// SaveRows drains the row queue and appends to the table in batches. It
// returns once the queue has been closed and emptied.
func (s *Service) SaveRows() error {

	batch := []*statement.Row{}
	total := 0

	for {
		msg, err := s.cons.RecvMessage()
		if err != nil {
			// queue drained, flush what is left
			total += s.flush(batch, "final")
			s.logger.Log(fmt.Sprintf("[SAVE] total rows written: %d", total))
			return nil
		}

		row := &statement.Row{}
		if err := json.Unmarshal(msg, row); err != nil {
			s.logger.Error(fmt.Sprintf("Serialization error: %s", err.Error()))
			continue
		}

		batch = append(batch, row)
		if len(batch) >= batchSize {
			total += s.flush(batch, fmt.Sprintf("batch-%d", total+len(batch)))
			batch = []*statement.Row{}
		}
	}
}

// flush writes one batch, splitting it in half on failure so a single bad
// row cannot sink the whole batch.
func (s *Service) flush(rows []*statement.Row, tag string) int {
	if len(rows) < 1 {
		return 0
	}

	writeLock.Lock()
	err := s.db.InsertRows(rows)
	writeLock.Unlock()

	if err == nil {
		s.logger.Log(fmt.Sprintf("[SAVE] %d rows (%s)", len(rows), tag))
		return len(rows)
	}
	if len(rows) == 1 {
		s.logger.Error(fmt.Sprintf("Database error: %s", err.Error()))
		return 0
	}

	mid := len(rows) / 2
	return s.flush(rows[:mid], tag+"-A") + s.flush(rows[mid:], tag+"-B")
}
