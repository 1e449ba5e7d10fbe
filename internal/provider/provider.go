package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var ErrNoNumber = errors.New("no number available")

// NumberIssuer allocates a dialable number for a provider, country and
// service. Real provider clients implement it.
type NumberIssuer interface {
	IssueNumber(ctx context.Context, provider, country, service string) (string, error)
}

// NumberReplacer is implemented by issuers that can hand out a number
// different from the current one.
type NumberReplacer interface {
	ReplaceNumber(ctx context.Context, provider, country, service, current string) (string, error)
}

// Stub hands out fixed placeholder numbers until real provisioning exists.
type Stub struct {
	Numbers []string
}

func NewStub() *Stub {
	return &Stub{Numbers: []string{"+99900012345", "+99900054321"}}
}

func (s *Stub) IssueNumber(ctx context.Context, provider, country, service string) (string, error) {
	if len(s.Numbers) == 0 {
		return "", ErrNoNumber
	}
	return s.Numbers[0], nil
}

func (s *Stub) ReplaceNumber(ctx context.Context, provider, country, service, current string) (string, error) {
	for _, n := range s.Numbers {
		if n != current {
			return n, nil
		}
	}
	return "", ErrNoNumber
}

// Breaker guards an issuer with a circuit breaker so a failing provider is
// not hammered by every order.
type Breaker struct {
	next NumberIssuer
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(name string, next NumberIssuer) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) IssueNumber(ctx context.Context, provider, country, service string) (string, error) {
	return b.execute(func() (string, error) {
		return b.next.IssueNumber(ctx, provider, country, service)
	})
}

func (b *Breaker) ReplaceNumber(ctx context.Context, provider, country, service, current string) (string, error) {
	replacer, ok := b.next.(NumberReplacer)
	if !ok {
		return b.IssueNumber(ctx, provider, country, service)
	}
	return b.execute(func() (string, error) {
		return replacer.ReplaceNumber(ctx, provider, country, service, current)
	})
}

func (b *Breaker) execute(fn func() (string, error)) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return "", fmt.Errorf("provider %s: %w", b.cb.Name(), err)
	}
	return out.(string), nil
}
