package port

import "time"

// CheckoutRecorder receives one call per checkout attempt.
type CheckoutRecorder interface {
	CheckoutFinished(outcome string, elapsed time.Duration)
}
