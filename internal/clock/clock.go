// Package clock abstracts time so waits are testable without wall-clock delays.
package clock

import (
	"context"
	"time"
)

// Clock supplies the current time and context-aware sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}
