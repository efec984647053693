package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/imf/internal/shared/clock"
)

// Budget bounds how often a recovery action may run. It starts full with
// Max tokens and refills one token every Window/Max, so at most Max actions
// happen in any rolling Window.
type Budget struct {
	clock   clock.Clock
	limiter *rate.Limiter
	max     int
	window  time.Duration

	mu      sync.Mutex
	allowed uint64
	denied  uint64
}

// BudgetStats is a point-in-time view of a budget
type BudgetStats struct {
	Max       int           `json:"max"`
	Window    time.Duration `json:"window"`
	Available float64       `json:"available"`
	Allowed   uint64        `json:"allowed"`
	Denied    uint64        `json:"denied"`
}

// NewBudget creates a budget of max actions per window. A non-positive max
// or window yields a budget that never allows.
func NewBudget(max int, window time.Duration, c clock.Clock) *Budget {
	if c == nil {
		c = clock.Real{}
	}
	var limiter *rate.Limiter
	if max > 0 && window > 0 {
		limiter = rate.NewLimiter(rate.Every(window/time.Duration(max)), max)
	} else {
		limiter = rate.NewLimiter(0, 0)
		max = 0
	}
	return &Budget{
		clock:   c,
		limiter: limiter,
		max:     max,
		window:  window,
	}
}

// Allow consumes one token if available
func (b *Budget) Allow() bool {
	ok := b.limiter.AllowN(b.clock.Now(), 1)

	b.mu.Lock()
	if ok {
		b.allowed++
	} else {
		b.denied++
	}
	b.mu.Unlock()
	return ok
}

// Stats returns the current counters
func (b *Budget) Stats() BudgetStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BudgetStats{
		Max:       b.max,
		Window:    b.window,
		Available: b.limiter.TokensAt(b.clock.Now()),
		Allowed:   b.allowed,
		Denied:    b.denied,
	}
}
