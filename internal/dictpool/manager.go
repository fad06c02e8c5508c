// Package dictpool implements the dictionary manager: a LIFO pool of
// reusable dict.Dict shells sitting in front of a byte-buffer allocator, so
// that a framer emitting one dictionary per frame doesn't churn the
// allocator on every frame boundary.
//
// The manager is not safe for concurrent use. Per the single-threaded
// cooperative model this core is built for, one framer drives one manager
// from one goroutine; no internal locking is attempted.
package dictpool

import (
	"log/slog"

	"github.com/zsiec/framecore/internal/dict"
)

const (
	defaultMinSize   = 128
	defaultExtraSize = 64
)

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithMinSize sets the minimum buffer size reserved for a freshly allocated
// dictionary. The default is 128 bytes.
func WithMinSize(n int) Option {
	return func(m *Manager) { m.minSize = n }
}

// WithExtraSize sets the extra headroom added to a buffer when Set must
// grow it. The default is 64 bytes.
func WithExtraSize(n int) Option {
	return func(m *Manager) { m.extraSize = n }
}

// WithLogger overrides the manager's logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// Manager pools dict.Dict shells and mediates every allocation-affecting
// operation (Alloc, Dup, Set-driven grow) through a single dict.Allocator.
type Manager struct {
	log       *slog.Logger
	alloc     dict.Allocator
	minSize   int
	extraSize int
	pool      []*dict.Dict
	refs      int
	freed     bool
}

// NewManager creates a Manager backed by alloc. If alloc is nil,
// dict.SliceAllocator{} is used.
func NewManager(alloc dict.Allocator, opts ...Option) *Manager {
	if alloc == nil {
		alloc = dict.SliceAllocator{}
	}
	m := &Manager{
		log:       slog.Default(),
		alloc:     alloc,
		minSize:   defaultMinSize,
		extraSize: defaultExtraSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "dictpool")
	return m
}

// popShell pops a shell off the LIFO pool, or returns a fresh zero-value
// Dict if the pool is empty.
func (m *Manager) popShell() *dict.Dict {
	n := len(m.pool)
	if n == 0 {
		return &dict.Dict{}
	}
	d := m.pool[n-1]
	m.pool[n-1] = nil
	m.pool = m.pool[:n-1]
	return d
}

// Alloc pops a shell from the pool (or allocates a new one), reserves a
// buffer of max(hintSize, minSize), and returns the ready-to-use
// dictionary. It fails, returning the shell to the pool, if the buffer
// allocation fails.
func (m *Manager) Alloc(hintSize int) (*dict.Dict, bool) {
	size := hintSize
	if size < m.minSize {
		size = m.minSize
	}
	d := m.popShell()
	if !d.Init(m.alloc, size) {
		m.pool = append(m.pool, d)
		m.log.Error("dictionary allocation failed", "size", size)
		return nil, false
	}
	m.refs++
	return d, true
}

// Dup allocates a new dictionary with capacity src.Len() and copies src's
// used prefix into it.
func (m *Manager) Dup(src *dict.Dict) (*dict.Dict, bool) {
	dst := m.popShell()
	if !dst.Init(m.alloc, src.Len()) {
		m.pool = append(m.pool, dst)
		m.log.Error("dictionary dup allocation failed", "size", src.Len())
		return nil, false
	}
	dst.CopyFrom(src)
	m.refs++
	return dst, true
}

// Free releases d's buffer and returns its shell to the pool for reuse.
// Manager destruction (see Close) is deferred while refs remains above
// zero.
func (m *Manager) Free(d *dict.Dict) {
	if d == nil {
		return
	}
	d.Reset()
	m.pool = append(m.pool, d)
	if m.refs > 0 {
		m.refs--
	}
	if m.freed && m.refs == 0 {
		m.destroy()
	}
}

// Vacuum drains the pool, dropping every idle shell so their buffers (if
// any survived, which they shouldn't after Reset) can be collected.
func (m *Manager) Vacuum() {
	m.pool = nil
}

// Outstanding reports the number of dictionaries currently allocated
// through this manager and not yet freed.
func (m *Manager) Outstanding() int { return m.refs }

// Allocator returns the buffer allocator backing this manager, for callers
// that need to grow a dictionary's value slots directly (dict.Dict.Set).
func (m *Manager) Allocator() dict.Allocator { return m.alloc }

// ExtraSize returns the grow headroom configured for this manager.
func (m *Manager) ExtraSize() int { return m.extraSize }

// Close vacuums the pool and marks the manager for destruction once every
// outstanding dictionary has been freed. Destruction happens immediately
// if none are outstanding.
func (m *Manager) Close() {
	m.Vacuum()
	m.freed = true
	if m.refs == 0 {
		m.destroy()
	}
}

func (m *Manager) destroy() {
	m.log.Debug("dictionary manager destroyed")
	m.alloc = nil
}
