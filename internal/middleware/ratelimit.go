package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/time/rate"

	"github.com/symptom-likelihood-server/internal/domain"
)

// ClientIDHeader optionally names the caller for analysis history. It is an
// identifier, not a credential, and never feeds the rate limiter.
const ClientIDHeader = "X-Client-ID"

const defaultMaxClients = 10000

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. At most maxClients
// buckets are tracked; the least recently seen is dropped first.
type RateLimiter struct {
	mu      sync.Mutex
	clients *simplelru.LRU[string, *clientLimiter]
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

// NewRateLimiter allows perSecond requests per client with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return newRateLimiter(perSecond, burst, defaultMaxClients)
}

func newRateLimiter(perSecond float64, burst, maxClients int) *RateLimiter {
	clients, err := simplelru.NewLRU[string, *clientLimiter](maxClients, nil)
	if err != nil {
		// Only a non-positive size fails.
		clients, _ = simplelru.NewLRU[string, *clientLimiter](defaultMaxClients, nil)
	}
	return &RateLimiter{
		clients: clients,
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether the client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictIdle(now)

	cl, ok := rl.clients.Get(client)
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients.Add(client, cl)
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.clients.Len()
}

// evictIdle drops clients not seen within idleTTL. The LRU is ordered by
// last access, so it stops at the first client still active.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for {
		_, cl, ok := rl.clients.GetOldest()
		if !ok || now.Sub(cl.lastSeen) < rl.idleTTL {
			return
		}
		rl.clients.RemoveOldest()
	}
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrRateLimit, "Rate limit exceeded", "", c.GetString(CorrelationIDKey)))
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) retryAfter() int {
	if rl.limit <= 0 {
		return 1
	}
	seconds := int(1 / float64(rl.limit))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// ClientKey names the owner of analysis history: the client IP, qualified
// by the X-Client-ID header when present so several users behind one
// address stay apart. It scopes data to a caller; it does not authenticate.
func ClientKey(c *gin.Context) string {
	ip := c.ClientIP()
	if id := strings.TrimSpace(c.GetHeader(ClientIDHeader)); id != "" {
		return ip + "/" + id
	}
	return ip
}
