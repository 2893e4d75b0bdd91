package provider

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/siteintel/analyzer/internal/analysis"
)

// RetryPolicy retries transient failures with jittered backoff.
// Non-transient categories (invalid_response, provider_error) are
// never retried: the backend answered, it just answered badly.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries == 0 {
		p.MaxRetries = 2
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 250 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	return p
}

// ShouldRetry decides whether another attempt is allowed for the kind.
func (p RetryPolicy) ShouldRetry(kind analysis.FailureKind, attempt int) bool {
	if p.MaxRetries < 0 || attempt >= p.MaxRetries {
		return false
	}
	return kind.Transient()
}

// Backoff returns the jittered wait before the next attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
