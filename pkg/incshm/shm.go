// Package incshm implements the shared-memory block abstraction (C2) used
// by the INC protocol's binary fast path: large payloads are placed in an
// OS-backed anonymous region and only a small {id, offset, length} handle
// travels on the wire (pkg/tagstruct's SHMRef tag).
//
// Blocks are created by one process, referenced by id over the transport,
// and mapped on demand by the receiver. Ids are allocated from a
// connection-scoped monotonic counter (see Registry), which is how two
// unrelated processes' ids are kept from colliding: a block is only ever
// looked up within the connection that announced it.
package incshm

import (
	"fmt"
	"sync"

	"github.com/marmos91/incd/pkg/increrr"
)

// ErrUnsupported is returned by Create on platforms that have no
// anonymous shared-memory facility, or when the Registry was created with
// disableSharedMemory set. ServerConfig's DisableMemfd is not read by this
// package. Callers must fall back to an inline binary payload, per
// spec.md §4.2.
var ErrUnsupported = increrr.New(increrr.KindBadSHMRef, "shared memory unsupported")

// Block is a mapped shared-memory region addressable by offset and length.
// A Block is read-only from every process but the creator for the lifetime
// of a single message's view, per spec.md §3.
type Block struct {
	id   uint32
	data []byte // mmap'd region; see mapAnonymous in shm_linux.go
	back backend
}

// ID returns the block's connection-scoped identifier.
func (b *Block) ID() uint32 { return b.id }

// Len returns the block's length in bytes.
func (b *Block) Len() int { return len(b.data) }

// ReadAt returns a borrowed view of length n starting at offset. The
// returned slice aliases the mapped region and must not be retained past
// Detach.
func (b *Block) ReadAt(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(b.data) {
		return nil, fmt.Errorf("incshm: read [%d:%d] out of range for block of length %d", offset, offset+n, len(b.data))
	}
	return b.data[offset : offset+n], nil
}

// WriteAt copies p into the block at offset. Only the creator should write;
// callers that attached a block created elsewhere must treat it read-only
// per the package-level invariant.
func (b *Block) WriteAt(offset int, p []byte) error {
	if offset < 0 || offset+len(p) > len(b.data) {
		return fmt.Errorf("incshm: write [%d:%d) out of range for block of length %d", offset, offset+len(p), len(b.data))
	}
	copy(b.data[offset:offset+len(p)], p)
	return nil
}

// Detach releases this process's mapping of the block. Per spec.md §4.2,
// if the creator has already terminated, other attached receivers keep
// seeing the mapped pages until they themselves detach.
func (b *Block) Detach() error {
	if b.back == nil {
		return nil
	}
	return b.back.unmap(b.data)
}

// Registry owns SHM id allocation and the attach/lookup table for a single
// connection. It is not safe for concurrent use from multiple goroutines,
// matching the single-goroutine-per-connection model the rest of the
// protocol stack assumes.
type Registry struct {
	mu       sync.Mutex // guards nextID only; block map access is single-goroutine
	nextID   uint32
	blocks   map[uint32]*Block
	disabled bool
}

// NewRegistry returns a Registry. If disableSharedMemory is true, Create
// always fails with ErrUnsupported (callers must use the inline binary
// path) while Attach of ids announced by a peer still works.
func NewRegistry(disableSharedMemory bool) *Registry {
	return &Registry{blocks: make(map[uint32]*Block), disabled: disableSharedMemory}
}

// Create allocates a new block of the given size, assigns it the next
// connection-scoped id, and registers it for later Attach/lookup.
func (r *Registry) Create(size int) (*Block, error) {
	if r.disabled {
		return nil, ErrUnsupported
	}
	data, back, err := mapAnonymous(size)
	if err != nil {
		return nil, fmt.Errorf("incshm: create: %w", err)
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	blk := &Block{id: id, data: data, back: back}
	r.blocks[id] = blk
	return blk, nil
}

// Attach looks up a previously created-or-attached block by id. Attaching
// an id this registry has never heard of fails with KindBadSHMRef, per
// spec.md §5 ("Attaching an unknown SHM id fails the containing message").
func (r *Registry) Attach(id uint32) (*Block, error) {
	blk, ok := r.blocks[id]
	if !ok {
		return nil, increrr.New(increrr.KindBadSHMRef, fmt.Sprintf("unknown shm id %d", id))
	}
	return blk, nil
}

// Register records an existing block (e.g. one the local process created
// through another Registry) under its id so Attach can find it.
func (r *Registry) Register(blk *Block) {
	r.blocks[blk.id] = blk
}

// Forget removes a block from the registry without unmapping it — used
// once the caller has separately called Detach.
func (r *Registry) Forget(id uint32) {
	delete(r.blocks, id)
}

// backend abstracts the platform-specific unmap call so Block.Detach does
// not need a build-tagged switch of its own.
type backend interface {
	unmap(data []byte) error
}
