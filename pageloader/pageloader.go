package pageloader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/tiercache/errors"
)

// State describes what the loader is currently doing.
type State int

const (
	// StateIdle means the loader has data and is not fetching.
	StateIdle State = iota
	// StateLoadingInitial means the first page is being fetched.
	StateLoadingInitial
	// StateLoadingMore means a subsequent page is being fetched.
	StateLoadingMore
	// StateExhausted means every page has been loaded.
	StateExhausted
	// StateErrored means the last fetch failed; loading may be retried.
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingInitial:
		return "loading_initial"
	case StateLoadingMore:
		return "loading_more"
	case StateExhausted:
		return "exhausted"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

const (
	defaultPageSize        = 20
	defaultScrollThreshold = 0.8
	defaultDebounce        = 250 * time.Millisecond
)

// Config assembles a Loader. Fetch is required.
type Config[T any] struct {
	// Fetch returns up to limit items starting at offset.
	Fetch func(ctx context.Context, offset, limit int) ([]T, error)

	// PageSize is the number of items requested per page. Defaults to 20.
	PageSize int

	// ScrollThreshold is the scroll fraction past which a next-page load
	// triggers. Defaults to 0.8.
	ScrollThreshold float64

	// Debounce is the quiet period for coalescing load triggers.
	// Defaults to 250ms.
	Debounce time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Loader loads pages incrementally and accumulates their items. All
// methods are safe for concurrent use.
type Loader[T any] struct {
	mu      sync.Mutex
	cfg     Config[T]
	logger  *slog.Logger
	items   []T
	offset  int
	hasMore bool
	state   State
	lastErr error
	closed  bool

	// gen invalidates in-flight fetches when the loader is reset or
	// closed; a completing fetch from an older generation is discarded.
	gen uint64

	timer *time.Timer
}

// New creates a Loader.
func New[T any](cfg Config[T]) (*Loader[T], error) {
	if cfg.Fetch == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"pageloader", "New", "fetch function is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.ScrollThreshold <= 0 || cfg.ScrollThreshold > 1 {
		cfg.ScrollThreshold = defaultScrollThreshold
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Loader[T]{
		cfg:     cfg,
		logger:  cfg.Logger,
		hasMore: true,
	}, nil
}

// LoadInitial resets the cursor and fetches the first page, replacing any
// accumulated items. In-flight fetches from before the reset are discarded
// when they complete.
func (l *Loader[T]) LoadInitial(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.WrapInvalid(errors.ErrClosed, "pageloader", "LoadInitial", "loader closed")
	}
	l.gen++
	gen := l.gen
	l.state = StateLoadingInitial
	pageSize := l.cfg.PageSize
	l.mu.Unlock()

	page, err := l.cfg.Fetch(ctx, 0, pageSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen || l.closed {
		return nil
	}

	if err != nil {
		l.state = StateErrored
		l.lastErr = err
		return errors.WrapTransient(err, "pageloader", "LoadInitial", "fetch first page")
	}

	l.items = page
	l.offset = len(page)
	l.finishPage(len(page))
	return nil
}

// Refresh discards everything and reloads from the start. This is the only
// way hasMore returns to true after exhaustion.
func (l *Loader[T]) Refresh(ctx context.Context) error {
	return l.LoadInitial(ctx)
}

// LoadNext fetches the next page and appends its items. It is a no-op when
// a load is already running or no more pages exist; a previous error does
// not block a retry.
func (l *Loader[T]) LoadNext(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.WrapInvalid(errors.ErrClosed, "pageloader", "LoadNext", "loader closed")
	}
	if l.state == StateLoadingInitial || l.state == StateLoadingMore || !l.hasMore {
		l.mu.Unlock()
		return nil
	}
	gen := l.gen
	offset := l.offset
	pageSize := l.cfg.PageSize
	l.state = StateLoadingMore
	l.mu.Unlock()

	page, err := l.cfg.Fetch(ctx, offset, pageSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen || l.closed {
		return nil
	}

	if err != nil {
		l.state = StateErrored
		l.lastErr = err
		return errors.WrapTransient(err, "pageloader", "LoadNext", "fetch next page")
	}

	l.items = append(l.items, page...)
	l.offset += len(page)
	l.finishPage(len(page))
	return nil
}

// finishPage updates hasMore and state after a successful fetch. Must be
// called with the lock held.
func (l *Loader[T]) finishPage(got int) {
	l.lastErr = nil
	l.hasMore = got == l.cfg.PageSize
	if l.hasMore {
		l.state = StateIdle
	} else {
		l.state = StateExhausted
	}
}

// LoadNextDebounced schedules a LoadNext after the configured quiet
// period. Repeated calls within the period coalesce into one load.
func (l *Loader[T]) LoadNextDebounced() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.hasMore {
		return
	}
	if l.timer != nil {
		l.timer.Reset(l.cfg.Debounce)
		return
	}
	l.timer = time.AfterFunc(l.cfg.Debounce, func() {
		l.mu.Lock()
		l.timer = nil
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return
		}
		if err := l.LoadNext(context.Background()); err != nil {
			l.logger.Warn("debounced page load failed", "error", err)
		}
	})
}

// OnScroll reports a scroll position within a total extent. Crossing the
// threshold fraction triggers a debounced next-page load.
func (l *Loader[T]) OnScroll(position, extent float64) {
	if extent <= 0 {
		return
	}
	if position/extent >= l.cfg.ScrollThreshold {
		l.LoadNextDebounced()
	}
}

// Items returns a copy of the accumulated items.
func (l *Loader[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// HasMore reports whether another page may exist.
func (l *Loader[T]) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// State returns the loader's current state.
func (l *Loader[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the error from the most recent failed fetch, or nil.
func (l *Loader[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Close stops the debounce timer and invalidates in-flight fetches. Safe
// to call more than once.
func (l *Loader[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
