package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
)

const (
	defaultInterval  = 3 * time.Second
	minInterval      = 10 * time.Millisecond
	defaultMaxErrors = 5
)

// ErrNotFound is returned by a Fetcher when no intent exists for the
// reference yet. Polling continues: the row may still be in flight.
var ErrNotFound = errors.New("payment not found")

// ErrTooManyErrors stops polling after MaxErrors consecutive fetch failures.
var ErrTooManyErrors = errors.New("too many consecutive status fetch errors")

// Fetcher reads the current status of a payment intent.
type Fetcher interface {
	FetchStatus(ctx context.Context, reference string) (enums.PaymentStatus, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, reference string) (enums.PaymentStatus, error)

func (f FetcherFunc) FetchStatus(ctx context.Context, reference string) (enums.PaymentStatus, error) {
	return f(ctx, reference)
}

// Observation is one poll result. A missing row is reported as pending with
// NotFound set.
type Observation struct {
	Reference string
	Attempt   int
	Status    enums.PaymentStatus
	NotFound  bool
	Err       error
	At        time.Time
}

// Terminal reports whether the observation ends polling.
func (o Observation) Terminal() bool {
	return o.Err == nil && o.Status.IsTerminal()
}

type Options struct {
	Interval      time.Duration
	MaxErrors     int
	OnObservation func(Observation)
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.Interval < minInterval {
		o.Interval = minInterval
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = defaultMaxErrors
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Poll fetches the status of reference every Interval until a terminal status
// is observed, ctx is done, or MaxErrors fetches fail in a row. The last
// observation is always returned.
func Poll(ctx context.Context, fetcher Fetcher, reference string, opts Options) (Observation, error) {
	reference = strings.TrimSpace(reference)
	if fetcher == nil {
		return Observation{}, errors.New("fetcher required")
	}
	if reference == "" {
		return Observation{}, errors.New("reference required")
	}
	opts = opts.withDefaults()

	attempt := 0
	consecutiveErrors := 0
	observe := func() Observation {
		attempt++
		obs := Observation{Reference: reference, Attempt: attempt, At: opts.Now()}
		status, err := fetcher.FetchStatus(ctx, reference)
		switch {
		case errors.Is(err, ErrNotFound):
			obs.Status = enums.PaymentStatusPending
			obs.NotFound = true
			consecutiveErrors = 0
		case err != nil:
			obs.Err = err
			consecutiveErrors++
		default:
			obs.Status = status
			consecutiveErrors = 0
		}
		if opts.OnObservation != nil {
			opts.OnObservation(obs)
		}
		return obs
	}

	last := observe()
	if last.Terminal() {
		return last, nil
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		if consecutiveErrors >= opts.MaxErrors {
			return last, fmt.Errorf("%w: %v", ErrTooManyErrors, last.Err)
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
			last = observe()
			if last.Terminal() {
				return last, nil
			}
		}
	}
}
