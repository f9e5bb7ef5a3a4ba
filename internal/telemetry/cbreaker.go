package telemetry

import (
	"sync"
	"time"
)

// CircuitBreaker opens after threshold consecutive failures and rejects calls until openFor elapses.
type CircuitBreaker struct {
	name       string
	mu         sync.Mutex
	failures   int
	openedTill time.Time
	threshold  int
	openFor    time.Duration
	open       bool
	now        func() time.Time
}

func NewBreaker(name string, threshold int, openFor time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	b := &CircuitBreaker{name: name, threshold: threshold, openFor: openFor, now: time.Now}
	// expose initial state
	SetBreakerState(name, false)
	return b
}

func (b *CircuitBreaker) Name() string { return b.name }

func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.now().Before(b.openedTill) {
		b.open = true
		SetBreakerState(b.name, true)
		return false
	}
	if b.open { // transition to closed
		b.open = false
		SetBreakerState(b.name, false)
	}
	return true
}

func (b *CircuitBreaker) ReportSuccess() {
	b.mu.Lock()
	b.failures = 0
	if b.open {
		b.open = false
		SetBreakerState(b.name, false)
	}
	b.mu.Unlock()
}

func (b *CircuitBreaker) ReportFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openedTill = b.now().Add(b.openFor)
		b.failures = 0
		b.open = true
		SetBreakerState(b.name, true)
	}
}

// Report is a convenience for callers that already hold the call error.
func (b *CircuitBreaker) Report(err error) {
	if err == nil {
		b.ReportSuccess()
		return
	}
	b.ReportFailure()
}
