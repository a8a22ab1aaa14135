package transfer

import (
	"log/slog"
	"sync"
)

// Handle addresses a pool slot.
type Handle int

// NoHandle is never returned by Acquire.
const NoHandle Handle = -1

// PoolStats is a snapshot of the pool bookkeeping.
// Used+Free == Allocated always holds.
type PoolStats struct {
	Allocated     int
	Used          int
	Free          int
	StaleReleases int
}

type slot struct {
	buf  *Buffer
	used bool
}

// Pool is an arena of fixed-capacity buffers addressed by handle.
// Slots are allocated on demand, never shrink and are recycled forever.
type Pool struct {
	mu       sync.Mutex
	capacity Capacity
	slots    []slot
	free     []Handle // LIFO
	used     int
	stale    int
	closed   bool
	logger   *slog.Logger
}

// NewPool creates an empty pool whose buffers use capacity c.
// A nil logger uses slog.Default().
func NewPool(c Capacity, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{capacity: c, logger: logger}
}

// Acquire returns an empty buffer, reusing a released slot when possible.
// It panics if the pool is closed.
func (p *Pool) Acquire() (Handle, *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		panic("transfer: Acquire on closed pool")
	}

	var h Handle
	if n := len(p.free); n > 0 {
		h = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		p.slots = append(p.slots, slot{buf: NewBuffer(p.capacity)})
		h = Handle(len(p.slots) - 1)
	}
	s := &p.slots[h]
	s.used = true
	s.buf.Reset()
	p.used++
	return h, s.buf
}

// Release returns the slot to the free set. Releasing a handle that is not in use
// is a no-op that returns false and is counted as a stale release.
func (p *Pool) Release(h Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || h < 0 || int(h) >= len(p.slots) || !p.slots[h].used {
		p.stale++
		p.logger.Debug("stale buffer release", "handle", int(h), "closed", p.closed)
		return false
	}
	p.slots[h].used = false
	p.free = append(p.free, h)
	p.used--
	return true
}

// Buffer returns the buffer of a used slot, or nil.
func (p *Pool) Buffer(h Handle) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h < 0 || int(h) >= len(p.slots) || !p.slots[h].used {
		return nil
	}
	return p.slots[h].buf
}

// Stats returns the current bookkeeping.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Allocated:     len(p.slots),
		Used:          p.used,
		Free:          len(p.slots) - p.used,
		StaleReleases: p.stale,
	}
}

// Close drops the storage of every buffer the pool ever allocated, used or free.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for i := range p.slots {
		p.slots[i].buf.release()
		p.slots[i].used = false
	}
	p.slots = nil
	p.free = nil
	p.used = 0
	p.closed = true
}
