package scheduling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStale is returned by Fetcher.Fetch when a newer Fetch started before
// the result was ready. The result must not be shown.
var ErrStale = errors.New("stale result")

// DayViewSource computes day views. *Service implements it.
type DayViewSource interface {
	DayView(ctx context.Context, doctorID string, date time.Time) (*DayView, error)
}

// DayViewRequest is one selection of doctor and day.
type DayViewRequest struct {
	DoctorID string    `json:"doctor_id"`
	Date     time.Time `json:"date"`
}

// Fetcher serializes the visible outcome of overlapping day-view requests:
// each Fetch is numbered, starting one cancels the previous in-flight call,
// and only the latest generation may deliver a result.
type Fetcher struct {
	src DayViewSource
	gen atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewFetcher(src DayViewSource) *Fetcher {
	return &Fetcher{src: src}
}

// Fetch computes the day view for req. It returns the generation assigned
// to this call; err is ErrStale when a later Fetch has superseded it.
func (f *Fetcher) Fetch(ctx context.Context, req DayViewRequest) (*DayView, uint64, error) {
	ctx, cancel, gen := f.begin(ctx)
	defer cancel()
	return f.run(ctx, req, gen)
}

// Go is Fetch in the background. The generation is assigned before Go
// returns, so calls issued in order are superseded in order. deliver runs
// on the background goroutine with the same results Fetch would return.
func (f *Fetcher) Go(ctx context.Context, req DayViewRequest, deliver func(*DayView, uint64, error)) uint64 {
	ctx, cancel, gen := f.begin(ctx)
	go func() {
		defer cancel()
		deliver(f.run(ctx, req, gen))
	}()
	return gen
}

func (f *Fetcher) begin(ctx context.Context) (context.Context, context.CancelFunc, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	gen := f.gen.Add(1)
	if f.cancel != nil {
		f.cancel()
	}
	f.cancel = cancel
	return ctx, cancel, gen
}

func (f *Fetcher) run(ctx context.Context, req DayViewRequest, gen uint64) (*DayView, uint64, error) {
	view, err := f.src.DayView(ctx, req.DoctorID, req.Date)

	f.mu.Lock()
	latest := f.gen.Load() == gen
	if latest {
		f.cancel = nil
	}
	f.mu.Unlock()

	if !latest {
		return nil, gen, ErrStale
	}
	if err != nil {
		return nil, gen, err
	}
	return view, gen, nil
}

// Current returns the generation of the most recent Fetch.
func (f *Fetcher) Current() uint64 { return f.gen.Load() }

// Cancel aborts the in-flight Fetch, if any, and invalidates its result.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen.Add(1)
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
