package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/Alvaro1251/Learnify/pkg/clientip"
	"golang.org/x/time/rate"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerXXSSProtection          = "X-XSS-Protection"
	headerContentSecurityPolicy   = "Content-Security-Policy"
	headerStrictTransportSecurity = "Strict-Transport-Security"
)

// SecurityHeaders sets security-related response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerXContentTypeOptions, "nosniff")
		w.Header().Set(headerXFrameOptions, "DENY")
		w.Header().Set(headerXXSSProtection, "1; mode=block")
		w.Header().Set(headerContentSecurityPolicy, "default-src 'self'")
		w.Header().Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterTTL             = 30 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// IPRateLimiter keeps one token bucket per client IP and forgets IPs idle
// for longer than limiterTTL.
type IPRateLimiter struct {
	limit      rate.Limit
	burst      int
	trustProxy bool
	message    string

	mu      sync.Mutex
	entries map[string]*limiterEntry
	stop    chan struct{}
	once    sync.Once
}

// NewIPRateLimiter starts the cleanup loop; call Stop to end it.
func NewIPRateLimiter(limit rate.Limit, burst int, trustProxy bool, message string) *IPRateLimiter {
	l := &IPRateLimiter{
		limit:      limit,
		burst:      burst,
		trustProxy: trustProxy,
		message:    message,
		entries:    make(map[string]*limiterEntry),
		stop:       make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func (l *IPRateLimiter) cleanup() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, e := range l.entries {
				if now.Sub(e.lastUse) > limiterTTL {
					delete(l.entries, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the cleanup loop.
func (l *IPRateLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Handler returns 429 once the client IP exhausts its bucket.
func (l *IPRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientip.RealClientIP(r, l.trustProxy)
		if !l.get(ip).Allow() {
			writeJSONError(w, http.StatusTooManyRequests, l.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Production limits: 1 req/s burst 10 per IP globally, 1 per 5s burst 2 on sign-in.
const (
	globalRateLimitRPS   = 1
	globalRateLimitBurst = 10
	loginRateLimitEvery  = 5 * time.Second
	loginRateLimitBurst  = 2
)

// ProductionSecurity bundles the production middleware chain:
// SecurityHeaders, then the global per-IP limiter.
type ProductionSecurity struct {
	Global *IPRateLimiter
	Login  *IPRateLimiter
}

func NewProductionSecurity(trustProxy bool) *ProductionSecurity {
	return &ProductionSecurity{
		Global: NewIPRateLimiter(rate.Limit(globalRateLimitRPS), globalRateLimitBurst, trustProxy,
			"Too many requests. Please slow down."),
		Login: NewIPRateLimiter(rate.Every(loginRateLimitEvery), loginRateLimitBurst, trustProxy,
			"Too many login attempts. Please try again later."),
	}
}

// Middlewares returns the router-wide chain. Login is applied per route.
func (p *ProductionSecurity) Middlewares() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{SecurityHeaders, p.Global.Handler}
}

func (p *ProductionSecurity) Stop() {
	p.Global.Stop()
	p.Login.Stop()
}
