package main

import (
	"sync"
	"time"
)

// CommandLimiter is a token bucket bounding outgoing control messages.
// The server enforces its own per-session limit and answers violations
// with a 429 error frame; staying under it locally avoids the chatter.
// Allows bursts up to the rate, refilling at rate tokens per second.
type CommandLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewCommandLimiter creates a limiter allowing rate commands per second.
// A rate of zero or less disables limiting.
func NewCommandLimiter(rate int) *CommandLimiter {
	if rate <= 0 {
		return &CommandLimiter{
			tokens:     1,
			maxTokens:  1,
			refillRate: 0,
			lastRefill: time.Now(),
		}
	}

	return &CommandLimiter{
		tokens:     float64(rate),
		maxTokens:  float64(rate),
		refillRate: float64(rate),
		lastRefill: time.Now(),
	}
}

// Allow reports whether a command may be sent now, consuming a token if so.
func (rl *CommandLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.refillRate == 0 {
		return true
	}

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}
