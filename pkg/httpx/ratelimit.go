package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"golang.org/x/time/rate"
)

// Profile is the token bucket budget for one class of endpoint.
type Profile struct {
	// Name selects the environment overrides: RATELIMIT_<Name>_REQUESTS,
	// RATELIMIT_<Name>_WINDOW_SEC and RATELIMIT_<Name>_BURST.
	Name string

	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Built-in profiles, read once from the environment at startup.
var (
	// StrictLimit guards credential endpoints: login, refresh, registration.
	StrictLimit = Profile{Name: "STRICT", RequestsPerWindow: 5, Window: time.Minute, Burst: 5}.FromEnv()

	// ModerateLimit guards authenticated writes such as logout.
	ModerateLimit = Profile{Name: "MODERATE", RequestsPerWindow: 20, Window: time.Minute, Burst: 20}.FromEnv()

	// LenientLimit guards authenticated reads.
	LenientLimit = Profile{Name: "LENIENT", RequestsPerWindow: 100, Window: time.Minute, Burst: 100}.FromEnv()

	// PublicLimit guards service-to-service calls like introspection.
	PublicLimit = Profile{Name: "PUBLIC", RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}.FromEnv()
)

// FromEnv returns p with any RATELIMIT_<Name>_* overrides applied. Values
// that are not positive integers are ignored.
func (p Profile) FromEnv() Profile {
	env := func(field string) (int, bool) {
		n, err := strconv.Atoi(os.Getenv("RATELIMIT_" + p.Name + "_" + field))
		return n, err == nil && n > 0
	}

	if n, ok := env("REQUESTS"); ok {
		p.RequestsPerWindow = n
	}
	if n, ok := env("WINDOW_SEC"); ok {
		p.Window = time.Duration(n) * time.Second
	}
	if n, ok := env("BURST"); ok {
		p.Burst = n
	}
	return p
}

// Rate is the steady refill rate in tokens per second.
func (p Profile) Rate() rate.Limit {
	return rate.Limit(float64(p.RequestsPerWindow) / p.Window.Seconds())
}

// refill is how long an empty bucket takes to fill back up to Burst.
func (p Profile) refill() time.Duration {
	return time.Duration(float64(p.Burst) / float64(p.Rate()) * float64(time.Second))
}

// KeyFunc groups requests into rate limit buckets. An empty key means the
// request cannot be attributed and is let through.
type KeyFunc func(*http.Request) string

// ClientIP keys by the address the nearest proxy saw: the last
// X-Forwarded-For hop, then X-Real-IP, then the connection's remote address.
// Earlier hops are whatever the client sent and are not trusted.
func ClientIP(r *http.Request) string {
	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(values[len(values)-1], ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// maxKeyBodyBytes bounds how much of a request body JSONField reads.
const maxKeyBodyBytes = 64 << 10

// JSONField keys by a top-level string field of a JSON body, such as the
// username of a login attempt. The body is put back for the handler.
func JSONField(name string) KeyFunc {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxKeyBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return ""
		}

		var value string
		if err := json.Unmarshal(fields[name], &value); err != nil {
			return ""
		}
		return value
	}
}

// JoinKeys combines key functions, skipping empty parts.
func JoinKeys(sep string, fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(fns))
		for _, fn := range fns {
			if k := fn(r); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, sep)
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per key. Buckets idle for longer than the
// profile's refill time are full again, so they are dropped on the next
// sweep without changing any outcome.
type Limiter struct {
	profile Profile
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewLimiter returns an empty Limiter for p.
func NewLimiter(p Profile) *Limiter {
	return NewLimiterWithClock(p, time.Now)
}

// NewLimiterWithClock is NewLimiter with an injected clock.
func NewLimiterWithClock(p Profile, now func() time.Time) *Limiter {
	return &Limiter{
		profile:   p,
		now:       now,
		buckets:   make(map[string]*bucket),
		lastSweep: now(),
	}
}

// Allow takes a token from key's bucket. When the bucket is empty it
// reports how long until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.profile.Rate(), l.profile.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, l.profile.Window
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len is the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweepLocked(now time.Time) {
	idle := l.profile.refill()
	if now.Sub(l.lastSweep) < idle {
		return
	}
	l.lastSweep = now

	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= idle {
			delete(l.buckets, key)
		}
	}
}

// Middleware rejects requests over budget with 429 and a Retry-After header.
func (l *Limiter) Middleware(key KeyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			k := key(r)
			if k == "" {
				log.Warn("rate limit key unavailable, allowing request", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			ok, retry := l.Allow(k)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			seconds := max(int(math.Ceil(retry.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.profile.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Window", l.profile.Window.String())

			log.Warn("rate limit exceeded",
				"profile", l.profile.Name,
				"path", r.URL.Path,
				"retry_after", seconds,
			)
			WriteError(w, http.StatusTooManyRequests, CodeTooManyRequests,
				"Too many requests. Please try again later.")
		})
	}
}

// RateLimit is shorthand for NewLimiter(p).Middleware(key).
func RateLimit(p Profile, key KeyFunc) Middleware {
	return NewLimiter(p).Middleware(key)
}

// RateLimitByIP limits per client address.
func RateLimitByIP(p Profile) Middleware {
	return RateLimit(p, ClientIP)
}

// RateLimitByIPAndJSONField limits per client address and body field, so one
// address guessing passwords for one username does not lock out others.
func RateLimitByIPAndJSONField(p Profile, field string) Middleware {
	return RateLimit(p, JoinKeys(":", ClientIP, JSONField(field)))
}
