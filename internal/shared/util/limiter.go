// Package util holds small shared helpers.
package util

import "golang.org/x/time/rate"

// Limiter is a token bucket for one stream of inbound actions.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter allows perSecond events on average with bursts of up to burst.
// A burst below one is raised to one.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{inner: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow takes one token if available.
func (l *Limiter) Allow() bool {
	return l.inner.Allow()
}
