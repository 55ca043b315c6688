package dogstats

import (
	"math"
	"net/http"
	"time"
)

// Outcome classifies one fetch attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeForbidden
	OutcomeThrottled
	OutcomeNotFound
	OutcomeHTTPError
	OutcomeNetworkError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// classify maps a response status and transport error to an outcome.
// Transport errors have no usable status, so they win.
func classify(status int, err error) Outcome {
	if err != nil {
		return OutcomeNetworkError
	}
	switch {
	case status == http.StatusForbidden:
		return OutcomeForbidden
	case status == http.StatusTooManyRequests:
		return OutcomeThrottled
	case status == http.StatusNotFound:
		return OutcomeNotFound
	case status >= 200 && status < 300:
		return OutcomeOK
	default:
		return OutcomeHTTPError
	}
}

// Policy holds the retry shape. The waits are the pattern the stats site
// tolerates without escalating to longer blocks.
type Policy struct {
	MaxAttempts   int
	BackoffFactor float64
}

// Retryable reports whether the outcome warrants another attempt.
// Success and not-found are terminal regardless of attempts left.
func (p Policy) Retryable(o Outcome, attempt int) bool {
	if o == OutcomeOK || o == OutcomeNotFound {
		return false
	}
	return attempt < p.MaxAttempts-1
}

// Wait returns the deterministic hold-off before the next attempt.
// attempt is zero-based. Blocking gets a steeper linear wait than
// ordinary errors; throttling backs off exponentially. The caller adds
// jitter for the throttled case.
func (p Policy) Wait(o Outcome, attempt int, base time.Duration) time.Duration {
	switch o {
	case OutcomeForbidden:
		return time.Duration(float64(base) * float64(attempt+2))
	case OutcomeThrottled:
		return time.Duration(float64(base) * math.Pow(p.BackoffFactor, float64(attempt+1)))
	default:
		return time.Duration(float64(base) * float64(attempt+1))
	}
}
