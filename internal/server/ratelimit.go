package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// connRateLimiter is ambient DoS hygiene for the accept loop, grounded on
// the teacher's ConnectionRateLimiter (internal/shared/limits/
// connection_rate_limiter.go): a global token bucket plus one per-IP token
// bucket, both backed by golang.org/x/time/rate. It rejects connection
// *rate*, never identity — independent of the Non-goal "authentication".
type connRateLimiter struct {
	ipMu     sync.Mutex
	ipLimits map[string]*ipEntry
	ipBurst  int
	ipRate   float64
	ipTTL    time.Duration

	global *rate.Limiter

	logger zerolog.Logger

	stop chan struct{}
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiterConfig configures the connection rate limiter; zero values fall
// back to the teacher's defaults.
type RateLimiterConfig struct {
	IPBurst     int
	IPRate      float64
	IPTTL       time.Duration
	GlobalBurst int
	GlobalRate  float64
}

func newConnRateLimiter(cfg RateLimiterConfig, logger zerolog.Logger) *connRateLimiter {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = 10
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = 1.0
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = 5 * time.Minute
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = 300
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = 50.0
	}

	rl := &connRateLimiter{
		ipLimits: make(map[string]*ipEntry),
		ipBurst:  cfg.IPBurst,
		ipRate:   cfg.IPRate,
		ipTTL:    cfg.IPTTL,
		global:   rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		logger:   logger.With().Str("component", "conn_rate_limiter").Logger(),
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// allow reports whether a connection attempt from ip may proceed, checking
// the global bucket first (cheap, no map lookup) and then the per-IP
// bucket.
func (rl *connRateLimiter) allow(ip string) bool {
	if !rl.global.Allow() {
		rl.logger.Debug().Str("ip", ip).Msg("connection rejected: global rate limit exceeded")
		return false
	}
	if !rl.ipLimiter(ip).Allow() {
		rl.logger.Debug().Str("ip", ip).Msg("connection rejected: per-ip rate limit exceeded")
		return false
	}
	return true
}

func (rl *connRateLimiter) ipLimiter(ip string) *rate.Limiter {
	rl.ipMu.Lock()
	defer rl.ipMu.Unlock()

	if e, ok := rl.ipLimits[ip]; ok {
		e.lastAccess = time.Now()
		return e.limiter
	}
	e := &ipEntry{limiter: rate.NewLimiter(rate.Limit(rl.ipRate), rl.ipBurst), lastAccess: time.Now()}
	rl.ipLimits[ip] = e
	return e.limiter
}

func (rl *connRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *connRateLimiter) cleanup() {
	rl.ipMu.Lock()
	defer rl.ipMu.Unlock()
	now := time.Now()
	for ip, e := range rl.ipLimits {
		if now.Sub(e.lastAccess) > rl.ipTTL {
			delete(rl.ipLimits, ip)
		}
	}
}

func (rl *connRateLimiter) Stop() {
	close(rl.stop)
}
