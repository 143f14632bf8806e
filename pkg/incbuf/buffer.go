// Package incbuf implements the reference-counted, copy-on-write byte
// buffer (ByteBuffer) used throughout the INC protocol stack for wire I/O.
//
// A Buffer may be cheaply shared between holders (incrementing a refcount)
// and is only copied on the first mutation after a share — the classic
// copy-on-write discipline. Two storage modes exist: an owned allocation
// the Buffer manages itself, and a raw view over memory the caller owns
// (FromRaw), released via an optional free callback invoked exactly once
// when the last reference drops.
//
// # Thread Safety
//
// A single Buffer value is not safe for concurrent mutation. The
// underlying refcount is atomic so Share/Release may be called from
// multiple goroutines, but Append/Resize/Reserve on the same Buffer value
// must be externally serialized, matching the single-goroutine-per-
// connection model the protocol package builds on.
package incbuf

import "sync/atomic"

// core is the shared, reference-counted storage behind one or more Buffer
// values. Buffers holding the same core are copy-on-write siblings.
type core struct {
	data    []byte
	refs    atomic.Int32
	raw     bool
	freeCb  func()
	freedMu atomic.Bool
}

func newCore(data []byte) *core {
	c := &core{data: data}
	c.refs.Store(1)
	return c
}

func (c *core) retain() *core {
	c.refs.Add(1)
	return c
}

func (c *core) release() {
	if c.refs.Add(-1) == 0 {
		if c.raw && c.freeCb != nil && c.freedMu.CompareAndSwap(false, true) {
			c.freeCb()
		}
	}
}

// Buffer is a possibly-empty, shareable sequence of bytes with copy-on-write
// mutation semantics. The zero Buffer is a valid null buffer (size 0,
// no storage).
type Buffer struct {
	c   *core
	len int
}

// New returns an empty owned Buffer with the given initial capacity.
func New(capacity int) Buffer {
	if capacity <= 0 {
		return Buffer{}
	}
	return Buffer{c: newCore(make([]byte, 0, capacity))}
}

// FromBytes copies b into a new owned Buffer.
func FromBytes(b []byte) Buffer {
	buf := New(len(b))
	buf.Append(b)
	return buf
}

// FromRaw wraps a borrowed byte slice without copying it. freeCb, if
// non-nil, is invoked exactly once when the last Buffer referencing this
// storage is released. The caller must not mutate ptr's backing array
// for as long as any Buffer derived from it is alive.
func FromRaw(ptr []byte, freeCb func()) Buffer {
	c := newCore(ptr)
	c.raw = true
	c.freeCb = freeCb
	return Buffer{c: c, len: len(ptr)}
}

// IsNull reports whether the buffer has no storage at all (as opposed to
// owning storage of length zero).
func (b Buffer) IsNull() bool {
	return b.c == nil
}

// Len returns the number of valid bytes.
func (b Buffer) Len() int {
	return b.len
}

// Cap returns the capacity of the underlying storage, or 0 for a null
// buffer.
func (b Buffer) Cap() int {
	if b.c == nil {
		return 0
	}
	return cap(b.c.data)
}

// Data returns the valid bytes as a slice. The slice is valid and stable
// until the next mutating call on this Buffer value or its release; callers
// must not retain it across such calls without cloning.
func (b Buffer) Data() []byte {
	if b.c == nil {
		return nil
	}
	return b.c.data[:b.len]
}

// shared reports whether this Buffer's storage is referenced by anything
// else, meaning a mutation must copy first.
func (b Buffer) shared() bool {
	return b.c == nil || b.c.refs.Load() > 1 || b.c.raw
}

// cow ensures unique, owned, mutable storage of at least capacity n bytes,
// leaving b.c pointing at the (possibly new) core to mutate in place.
func (b *Buffer) cow(n int) {
	switch {
	case b.c == nil:
		b.c = newCore(make([]byte, 0, n))
	case b.shared():
		fresh := make([]byte, b.len, growTo(b.len, n))
		copy(fresh, b.c.data[:b.len])
		b.c.release()
		b.c = newCore(fresh)
	case cap(b.c.data) < n:
		fresh := make([]byte, b.len, growTo(b.len, n))
		copy(fresh, b.c.data[:b.len])
		b.c.data = fresh
	}
}

// growTo applies an amortized doubling growth policy so repeated Append
// calls are O(1) amortized, matching the policy spec.md calls for.
func growTo(have, want int) int {
	if want < have {
		want = have
	}
	next := have * 2
	if next < want {
		next = want
	}
	if next < 64 {
		next = 64
	}
	return next
}

// Reserve ensures the buffer can grow to at least n bytes without a further
// reallocation, without changing Len.
func (b *Buffer) Reserve(n int) {
	if b.Cap() >= n && !b.shared() {
		return
	}
	b.cow(n)
}

// Resize sets Len to n, zero-extending if growing and truncating if
// shrinking. Growing beyond capacity reallocates.
func (b *Buffer) Resize(n int) {
	if n < 0 {
		n = 0
	}
	b.cow(n)
	if n > len(b.c.data) {
		b.c.data = append(b.c.data, make([]byte, n-len(b.c.data))...)
	} else {
		b.c.data = b.c.data[:n]
	}
	b.len = n
}

// Append copies p onto the end of the buffer, growing as needed.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.cow(b.len + len(p))
	b.c.data = append(b.c.data[:b.len], p...)
	b.len += len(p)
}

// Detach ensures this Buffer holds storage no other Buffer can observe,
// copying only if currently shared. A no-op when already uniquely held.
func (b *Buffer) Detach() {
	if b.c == nil {
		return
	}
	if !b.shared() {
		return
	}
	fresh := make([]byte, b.len)
	copy(fresh, b.c.data[:b.len])
	b.c.release()
	b.c = newCore(fresh)
}

// Slice returns a new Buffer sharing storage with b over [offset,
// offset+n). The returned Buffer is copy-on-write like any other: writing
// to it detaches its own copy and leaves b unaffected.
func (b Buffer) Slice(offset, n int) Buffer {
	if offset < 0 || n < 0 || offset+n > b.len {
		panic("incbuf: slice out of range")
	}
	if b.c == nil {
		return Buffer{}
	}
	parent := b.c.retain()
	sliced := &core{data: b.c.data[offset : offset+n], raw: true}
	sliced.refs.Store(1)
	sliced.freeCb = func() { parent.release() }
	return Buffer{c: sliced, len: n}
}

// Clone returns an independent deep copy of b.
func (b Buffer) Clone() Buffer {
	return FromBytes(b.Data())
}

// Share increments the reference count and returns a Buffer value that
// shares storage with b (copy-on-write — mutating the returned value will
// not affect b, but until then no copy is made).
func (b Buffer) Share() Buffer {
	if b.c == nil {
		return Buffer{}
	}
	b.c.retain()
	return b
}

// Release drops this Buffer's reference to its storage. A Buffer must not
// be used after Release unless reassigned. Buffers obtained from owned
// allocations are reclaimed by the garbage collector even without Release;
// Release exists primarily so FromRaw's free callback fires deterministically.
func (b *Buffer) Release() {
	if b.c == nil {
		return
	}
	b.c.release()
	b.c = nil
	b.len = 0
}

// Equal reports whether two buffers hold identical byte content.
func Equal(a, b Buffer) bool {
	ad, bd := a.Data(), b.Data()
	if len(ad) != len(bd) {
		return false
	}
	for i := range ad {
		if ad[i] != bd[i] {
			return false
		}
	}
	return true
}
