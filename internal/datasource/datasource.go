// Package datasource provides reloadable remote data holders for the form's
// selector fields. Each Source caches the latest fetch result together with
// a loading flag and a generation counter; results of a superseded fetch are
// discarded instead of overwriting newer data.
package datasource

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/buildhive/aws-connections/internal/metrics"
)

// State is one observed snapshot of a source.
type State[T any] struct {
	// Loading reports an in-flight fetch for a newer generation.
	Loading bool
	// Err is the failure of the most recent completed fetch. Data keeps the
	// last good value alongside it.
	Err error
	// Data is the last successfully fetched value.
	Data T
	// Generation identifies the fetch that produced this snapshot.
	Generation uint64
}

// Source caches the result of one fetch function.
type Source[T any] struct {
	name  string
	fetch func(ctx context.Context) (T, error)

	mu         sync.Mutex
	generation uint64
	state      State[T]
	onChange   func()
}

// New builds a Source around fetch. The name labels log records only.
func New[T any](name string, fetch func(ctx context.Context) (T, error)) *Source[T] {
	return &Source[T]{name: name, fetch: fetch}
}

// OnChange registers the single observer notified after every state
// transition. The callback runs outside the source's lock.
func (s *Source[T]) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns the current state.
func (s *Source[T]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh fetches on the calling goroutine and commits the result unless a
// newer Refresh started in the meantime. The returned error is the fetch
// error, or nil when the result was superseded.
func (s *Source[T]) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state.Loading = true
	s.mu.Unlock()
	s.notify()

	data, err := s.fetch(ctx)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	s.state.Loading = false
	s.state.Generation = gen
	if err != nil {
		s.state.Err = err
	} else {
		s.state.Err = nil
		s.state.Data = data
	}
	s.mu.Unlock()
	s.notify()

	metrics.DataSourceRefreshesTotal.WithLabelValues(s.name, metrics.OperationStatus(err)).Inc()
	if err != nil {
		slog.Warn("data source refresh failed", "source", s.name, "err", err)
	}
	return err
}

// Reload is Refresh on its own goroutine. A reload while a fetch is already
// in flight is collapsed into the pending one.
func (s *Source[T]) Reload(ctx context.Context) {
	s.mu.Lock()
	inFlight := s.state.Loading
	s.mu.Unlock()
	if inFlight {
		return
	}
	go func() {
		_ = s.Refresh(ctx)
	}()
}

func (s *Source[T]) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Refresher is the part of Source that RefreshAll needs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshAll refreshes all sources concurrently and returns the first fetch
// error. Sources that fail leave their own error in their state, so a
// partial failure never blocks the others.
func RefreshAll(ctx context.Context, sources ...Refresher) error {
	var g errgroup.Group
	for _, s := range sources {
		g.Go(func() error {
			return s.Refresh(ctx)
		})
	}
	return g.Wait()
}
