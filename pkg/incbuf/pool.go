package incbuf

import "sync"

// Pool is a tiered sync.Pool-backed allocator for plain byte slices.
// Buffer does not draw from it, and the framing layer allocates its own
// staging slices. It follows the same small/medium/large tier split the rest
// of this codebase's I/O layers use, sized for INC's own traffic shape:
// most control messages fit comfortably in the small tier, bulk transfers
// that aren't large enough to justify the SHM fast path land in medium,
// and large covers the rest up to a pool-worthy ceiling.
type Pool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

const (
	smallTier  = 4 << 10
	mediumTier = 64 << 10
	largeTier  = 1 << 20
)

// NewPool returns a ready-to-use tiered pool.
func NewPool() *Pool {
	p := &Pool{}
	p.small.New = func() any { b := make([]byte, smallTier); return &b }
	p.medium.New = func() any { b := make([]byte, mediumTier); return &b }
	p.large.New = func() any { b := make([]byte, largeTier); return &b }
	return p
}

// Get returns a byte slice of at least n bytes. Slices larger than the
// large tier are allocated directly and are not returned to the pool by
// Put — pooling them would pin arbitrarily large buffers in memory.
func (p *Pool) Get(n int) []byte {
	var ptr *[]byte
	switch {
	case n <= smallTier:
		ptr = p.small.Get().(*[]byte)
	case n <= mediumTier:
		ptr = p.medium.Get().(*[]byte)
	case n <= largeTier:
		ptr = p.large.Get().(*[]byte)
	default:
		return make([]byte, n)
	}
	buf := *ptr
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	return buf[:n]
}

// Put returns a buffer obtained from Get back to its tier. Buffers larger
// than the large tier are silently dropped.
func (p *Pool) Put(buf []byte) {
	c := cap(buf)
	switch {
	case c == smallTier:
		b := buf[:smallTier]
		p.small.Put(&b)
	case c == mediumTier:
		b := buf[:mediumTier]
		p.medium.Put(&b)
	case c == largeTier:
		b := buf[:largeTier]
		p.large.Put(&b)
	}
}

// defaultPool is shared by package-level Get/Put convenience wrappers.
var defaultPool = NewPool()

// Get draws a buffer of at least n bytes from the shared default pool.
func Get(n int) []byte { return defaultPool.Get(n) }

// Put returns buf, previously obtained from Get, to the shared default pool.
func Put(buf []byte) { defaultPool.Put(buf) }
