package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberbrief/cyberbrief-backend/pkg/enums"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	results []scripted
	calls   int
}

type scripted struct {
	status enums.PaymentStatus
	err    error
}

func (f *scriptedFetcher) FetchStatus(context.Context, string) (enums.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.calls++
	return f.results[idx].status, f.results[idx].err
}

func TestPollStopsOnTerminalStatus(t *testing.T) {
	fetcher := &scriptedFetcher{results: []scripted{
		{err: ErrNotFound},
		{status: enums.PaymentStatusPending},
		{status: enums.PaymentStatusUnknown},
		{status: enums.PaymentStatusFulfilled},
		{status: enums.PaymentStatusTimedOut},
	}}
	var seen []Observation

	last, err := Poll(context.Background(), fetcher, "ref-1", Options{
		Interval:      10 * time.Millisecond,
		OnObservation: func(o Observation) { seen = append(seen, o) },
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFulfilled, last.Status)
	assert.Equal(t, 4, last.Attempt)
	assert.Equal(t, 4, fetcher.calls)

	require.Len(t, seen, 4)
	assert.True(t, seen[0].NotFound)
	assert.Equal(t, enums.PaymentStatusPending, seen[0].Status)
	assert.False(t, seen[2].Terminal(), "unknown keeps polling")
}

func TestPollReturnsImmediatelyWhenAlreadyTerminal(t *testing.T) {
	fetcher := &scriptedFetcher{results: []scripted{{status: enums.PaymentStatusCancelled}}}

	last, err := Poll(context.Background(), fetcher, "ref-2", Options{Interval: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCancelled, last.Status)
	assert.Equal(t, 1, fetcher.calls)
}

func TestPollGivesUpAfterConsecutiveErrors(t *testing.T) {
	boom := errors.New("connection refused")
	fetcher := &scriptedFetcher{results: []scripted{
		{err: boom},
		{status: enums.PaymentStatusPending},
		{err: boom},
	}}

	last, err := Poll(context.Background(), fetcher, "ref-3", Options{Interval: 10 * time.Millisecond, MaxErrors: 3})
	require.ErrorIs(t, err, ErrTooManyErrors)
	assert.ErrorIs(t, last.Err, boom)
	assert.Equal(t, 5, fetcher.calls, "a success resets the error streak")
}

func TestPollHonoursCancellation(t *testing.T) {
	fetcher := &scriptedFetcher{results: []scripted{{status: enums.PaymentStatusPending}}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	last, err := Poll(ctx, fetcher, "ref-4", Options{Interval: 10 * time.Millisecond})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, enums.PaymentStatusPending, last.Status)
}

func TestPollValidatesInput(t *testing.T) {
	_, err := Poll(context.Background(), nil, "ref", Options{})
	require.Error(t, err)

	_, err = Poll(context.Background(), FetcherFunc(func(context.Context, string) (enums.PaymentStatus, error) {
		return enums.PaymentStatusPending, nil
	}), "  ", Options{})
	require.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{Interval: time.Nanosecond}.withDefaults()
	assert.Equal(t, minInterval, opts.Interval)
	assert.Equal(t, defaultMaxErrors, opts.MaxErrors)

	opts = Options{}.withDefaults()
	assert.Equal(t, defaultInterval, opts.Interval)
}
