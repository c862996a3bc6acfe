package collect

import "sync"

// Budget is the shared request-count ceiling of one run. Workers reserve
// calls up front and refund what they did not spend, so the ceiling is
// never overdrawn even while requests are in flight.
type Budget struct {
	mutex sync.Mutex
	left  int
}

func NewBudget(calls int) *Budget {
	return &Budget{left: calls}
}

// Take reserves n calls, or reserves nothing and reports false.
func (b *Budget) Take(n int) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.left < n {
		return false
	}
	b.left -= n
	return true
}

func (b *Budget) Refund(n int) {
	if n < 1 {
		return
	}
	b.mutex.Lock()
	b.left += n
	b.mutex.Unlock()
}

func (b *Budget) Left() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.left
}
