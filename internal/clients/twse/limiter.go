package twse

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/weihanlu/investrack/internal/domain"
)

// DailyLimiter is a process-wide token bucket sized to the TWSE daily
// request ceiling. Tokens refill continuously at limit/day so a burst early
// in the day cannot exhaust the whole quota at once, and the bucket is
// reset whenever the UTC+8 calendar day rolls over.
type DailyLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	limit   int
	day     string
	used    int
}

// NewDailyLimiter creates a limiter allowing limit requests per day.
func NewDailyLimiter(limit int) *DailyLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &DailyLimiter{
		limiter: newDayBucket(limit),
		limit:   limit,
		day:     today(),
	}
}

func newDayBucket(limit int) *rate.Limiter {
	perSecond := rate.Limit(float64(limit) / (24 * 60 * 60))
	return rate.NewLimiter(perSecond, limit)
}

func today() string {
	return time.Now().In(domain.DisplayLocation).Format(domain.DateFormat)
}

// Allow consumes one token. It returns RateLimitExceeded when the day's
// quota is spent.
func (l *DailyLimiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d := today(); d != l.day {
		l.limiter = newDayBucket(l.limit)
		l.day = d
		l.used = 0
	}

	if !l.limiter.Allow() {
		return domain.ErrRateLimitExceeded
	}
	l.used++
	return nil
}

// LimiterState is a point-in-time view for diagnostics.
type LimiterState struct {
	Day   string `json:"day"`
	Limit int    `json:"limit"`
	Used  int    `json:"used"`
}

// State reports the current day's usage.
func (l *DailyLimiter) State() LimiterState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterState{Day: l.day, Limit: l.limit, Used: l.used}
}
