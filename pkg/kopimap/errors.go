package kopimap

import (
	"errors"
	"time"

	"github.com/kopimap/kopimap-api/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
	ErrRateLimited  = domain.ErrRateLimited
	ErrBackend      = domain.ErrBackend
)

// RetryAfter reports how long a rate limited caller should wait.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *domain.RateLimitedError
	if !errors.As(err, &rl) {
		return 0, false
	}
	return time.Duration(rl.RetryAfterSec) * time.Second, true
}
