package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"variance-backend/internal/shared/metrics"
	"variance-backend/internal/shared/server/respond"
)

const (
	defaultRateLimitGroup = "DEFAULT"
	// LLMRateLimitGroup covers the endpoints that call the generation API.
	LLMRateLimitGroup = "LLM"
	// SessionCreateRateLimitGroup covers session creation.
	SessionCreateRateLimitGroup = "SESSION_CREATE"

	// idle buckets are dropped once the map grows past this size.
	pruneThreshold = 4096

	// absorbs float error in refill arithmetic.
	tokenEpsilon = 1e-9
)

// RateLimitRule is a token bucket refilling Rate tokens per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

func (r RateLimitRule) enabled() bool { return r.Rate > 0 && r.Burst > 0 }

// fullAfter is how long an empty bucket takes to refill completely.
func (r RateLimitRule) fullAfter() time.Duration {
	return time.Duration(float64(r.Burst) / r.Rate * float64(time.Second))
}

// RateLimitConfig selects rules per request. Rules are keyed by session id
// when the route carries one, ClientRules always by client IP. A group with
// both must pass both. Groups without any rule are not limited.
type RateLimitConfig struct {
	Rules        map[string]RateLimitRule
	ClientRules  map[string]RateLimitRule
	DefaultGroup string
	GroupFor     func(*gin.Context) string
	Limiter      *RateLimiter
}

// PerMinute builds a rule allowing n requests per minute with a burst of n.
func PerMinute(n int) RateLimitRule {
	if n <= 0 {
		return RateLimitRule{}
	}
	return RateLimitRule{Rate: float64(n) / 60.0, Burst: n}
}

// RateLimit rejects requests over their group's rules with 429 and Retry-After.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(nil)
	}
	fallback := cfg.DefaultGroup
	if fallback == "" {
		fallback = defaultRateLimitGroup
	}

	return func(c *gin.Context) {
		group := fallback
		if cfg.GroupFor != nil {
			if g := strings.TrimSpace(cfg.GroupFor(c)); g != "" {
				group = g
			}
		}

		limits := make([]Limit, 0, 2)
		if rule, ok := cfg.Rules[group]; ok && rule.enabled() {
			principal := strings.TrimSpace(SessionIDFromContext(c))
			if principal == "" {
				principal = c.ClientIP()
			}
			limits = append(limits, Limit{Key: group + "|" + principal, Rule: rule})
		}
		if rule, ok := cfg.ClientRules[group]; ok && rule.enabled() {
			limits = append(limits, Limit{Key: group + "|client|" + c.ClientIP(), Rule: rule})
		}
		if len(limits) == 0 {
			c.Next()
			return
		}

		wait, allowed := limiter.TakeAll(limits...)
		if allowed {
			c.Next()
			return
		}

		metrics.IncRateLimited(group)
		retryMs := max(wait.Milliseconds(), 1)
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(float64(retryMs)/1000)), 10))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.", gin.H{
			"retryAfterMs": retryMs,
			"group":        group,
		})
	}
}

// RateLimiter holds one token bucket per group and principal.
type RateLimiter struct {
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens  float64
	updated time.Time
	full    time.Duration
}

// NewRateLimiter constructs a limiter; now defaults to time.Now.
func NewRateLimiter(now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{now: now, buckets: make(map[string]*bucket)}
}

// Limit names one bucket and the rule governing it.
type Limit struct {
	Key  string
	Rule RateLimitRule
}

// Take consumes a token for key. When none is available it reports how long
// until one will be.
func (l *RateLimiter) Take(key string, rule RateLimitRule) (time.Duration, bool) {
	return l.TakeAll(Limit{Key: key, Rule: rule})
}

// TakeAll consumes one token from every bucket, or from none when any of them
// is empty. The wait reported is the longest among the empty buckets.
func (l *RateLimiter) TakeAll(limits ...Limit) (time.Duration, bool) {
	if l == nil {
		return 0, true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var wait time.Duration
	buckets := make([]*bucket, 0, len(limits))
	for _, lim := range limits {
		if !lim.Rule.enabled() {
			continue
		}
		b := l.refillLocked(lim.Key, lim.Rule, now)
		if b.tokens < 1-tokenEpsilon {
			w := time.Duration((1 - b.tokens) / lim.Rule.Rate * float64(time.Second))
			wait = max(wait, w.Round(time.Millisecond), time.Millisecond)
		}
		buckets = append(buckets, b)
	}
	if wait > 0 {
		return wait, false
	}
	for _, b := range buckets {
		b.tokens--
	}
	return 0, true
}

func (l *RateLimiter) refillLocked(key string, rule RateLimitRule, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= pruneThreshold {
			l.pruneLocked(now)
		}
		b = &bucket{tokens: float64(rule.Burst), updated: now, full: rule.fullAfter()}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.updated); elapsed > 0 {
		b.tokens = math.Min(float64(rule.Burst), b.tokens+elapsed.Seconds()*rule.Rate)
		b.updated = now
	}
	return b
}

// Len reports the number of tracked buckets.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// pruneLocked drops buckets that have been idle long enough to be full again;
// recreating them later gives the same result.
func (l *RateLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.updated) >= b.full {
			delete(l.buckets, key)
		}
	}
}
