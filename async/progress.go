package async

import "sync"

type progWindow struct{ min, max, val int64 }

// additiveProgress sums several named progress windows into one,
// implementing the additive forwarding rule from spec section 4.4
// ("exposed progress = parent.max + self.max") and section 4.3's
// Track, which "adopts the linked handle's progress window
// additively". Each source's window replaces its own prior
// contribution; the total is recomputed and pushed on every update.
type additiveProgress struct {
	mu      sync.Mutex
	sources map[int]progWindow
	push    func(min, max, val int64)
}

func newAdditiveProgress(push func(min, max, val int64)) *additiveProgress {
	return &additiveProgress{sources: make(map[int]progWindow), push: push}
}

func (a *additiveProgress) set(id int, min, max, val int64) {
	a.mu.Lock()
	a.sources[id] = progWindow{min, max, val}
	var totalMin, totalMax, totalVal int64
	for _, w := range a.sources {
		totalMin += w.min
		totalMax += w.max
		totalVal += w.val
	}
	a.mu.Unlock()
	a.push(totalMin, totalMax, totalVal)
}

const (
	progressParent = iota
	progressSelf
)
