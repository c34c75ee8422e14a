package engine

import (
	"context"
	"time"

	"github.com/fluxline/fluxline/internal/domain"
)

// retryPolicy is the effective per-node policy after layering the node
// spec's overrides over the node type's capability and the engine defaults.
type retryPolicy struct {
	enabled    bool
	maxRetries int
	baseDelay  time.Duration
}

func (d *Dispatcher) policyFor(spec domain.NodeSpec, typ *domain.NodeType) retryPolicy {
	p := retryPolicy{
		enabled:    true,
		maxRetries: d.config.MaxRetries,
		baseDelay:  d.config.RetryBaseDelay,
	}

	if typ != nil && !typ.SupportsRetry {
		p.enabled = false
	}
	if spec.Retry != nil {
		if spec.Retry.Disabled {
			p.enabled = false
		}
		if spec.Retry.MaxRetries > 0 {
			p.maxRetries = spec.Retry.MaxRetries
		}
		if spec.Retry.BaseDelay > 0 {
			p.baseDelay = spec.Retry.BaseDelay.Std()
		}
	}

	return p
}

// shouldRetry reports whether a failed attempt is eligible for another one.
// retryCount is the number of retries already performed, so the retry count
// never exceeds maxRetries.
func (p retryPolicy) shouldRetry(err error, retryCount int) bool {
	if !p.enabled {
		return false
	}
	if !domain.IsRetryable(err) {
		return false
	}
	return retryCount < p.maxRetries
}

// delay computes the exponential backoff before retry attempt n (1-indexed):
// baseDelay * 2^(n-1).
func (p retryPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.baseDelay << uint(attempt-1)
}

// sleep waits out the backoff delay, returning early if the run is
// cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
