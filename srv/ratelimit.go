package srv

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// RateLimiter implements a simple token bucket rate limiter per key. Keys
// are bot channels when a chat bot relays the request, otherwise client IPs.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // tokens per interval
	interval time.Duration // refill interval
	burst    int           // max tokens
	done     chan struct{}

	closeOnce sync.Once
}

type visitor struct {
	tokens     int
	lastRefill time.Time
	lastSeen   time.Time
}

// NewRateLimiter creates a rate limiter that allows `rate` requests per `interval`
// with a burst capacity of `burst`.
func NewRateLimiter(rate int, interval time.Duration, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		burst:    burst,
		done:     make(chan struct{}),
	}
	// Cleanup stale entries every minute
	go rl.cleanup()
	return rl
}

// NewCooldown allows one request per key every d, like a chat command
// cooldown.
func NewCooldown(d time.Duration) *RateLimiter {
	return NewRateLimiter(1, d, 1)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}
		stale := 5 * time.Minute
		if rl.interval > stale {
			stale = rl.interval
		}
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > stale {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		if rl.done != nil {
			close(rl.done)
		}
	})
}

// Allow checks if a request with the given key should be allowed.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.Reserve(key)
	return ok
}

// Reserve takes a token for key. When none is left it reports how long until
// the next one is available.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	now := time.Now()

	if !exists {
		rl.visitors[key] = &visitor{tokens: rl.burst - 1, lastRefill: now, lastSeen: now}
		return true, 0
	}
	v.lastSeen = now

	// Refill whole intervals only, so denied requests do not push the
	// next refill further away.
	if n := int(now.Sub(v.lastRefill) / rl.interval); n > 0 {
		v.tokens += n * rl.rate
		v.lastRefill = v.lastRefill.Add(time.Duration(n) * rl.interval)
		if v.tokens > rl.burst {
			v.tokens = rl.burst
		}
	}

	if v.tokens > 0 {
		v.tokens--
		return true, 0
	}
	return false, v.lastRefill.Add(rl.interval).Sub(now)
}

// getRateLimitKey picks the bucket for a request: the bot channel when a
// chat bot relayed it, otherwise the client address. A ?channel= parameter
// is chosen by the caller and never picks the bucket.
func getRateLimitKey(r *http.Request) (key, keyType string) {
	if ch := GetBotChannel(r); ch != nil && ch.Source != BotSourceQuery {
		return "channel:" + ch.Key(), "channel"
	}
	// Use X-Forwarded-For if behind proxy, otherwise RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		client, _, _ := strings.Cut(fwd, ",")
		return "ip:" + strings.TrimSpace(client), "ip"
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return "ip:" + ip, "ip"
}

// Middleware wraps an http.Handler with rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, keyType := getRateLimitKey(r)

		if ok, retry := rl.Reserve(key); !ok {
			RecordSecurityEvent(r.Context(), "rate_limited",
				attribute.String("rate_limit.key", key),
				attribute.String("rate_limit.key_type", keyType),
				attribute.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds()+0.999)))
			http.Error(w, "Rate limit exceeded. Try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
