package processing

import "sync"

const (
	encodeCeiling  = 90
	publishCeiling = 99
)

// progressTracker keeps progress monotonic and calls persist only when the
// integer percentage actually moves.
type progressTracker struct {
	mu      sync.Mutex
	current int
	persist func(int)
}

func newProgressTracker(start int, persist func(int)) *progressTracker {
	return &progressTracker{current: start, persist: persist}
}

func (t *progressTracker) advance(p int) {
	if p > 100 {
		p = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if p <= t.current {
		return
	}
	t.current = p
	if t.persist != nil {
		t.persist(p)
	}
}

func (t *progressTracker) value() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// encodeProgress maps done/total segments onto 0..90.
func encodeProgress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * encodeCeiling / total
}

// publishProgress maps done/total uploads onto 90..99.
func publishProgress(done, total int) int {
	if total <= 0 {
		return encodeCeiling
	}
	return encodeCeiling + done*(publishCeiling-encodeCeiling)/total
}
