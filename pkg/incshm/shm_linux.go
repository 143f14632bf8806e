//go:build linux

package incshm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// linuxBackend unmaps a region created via memfd_create + mmap.
type linuxBackend struct{}

func (linuxBackend) unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}

// mapAnonymous creates an anonymous, file-backed (memfd) shared-memory
// region of the given size and maps it read/write into this process.
// The backing file descriptor is closed immediately after mmap — the
// mapping itself keeps the pages alive, matching the common Linux idiom
// for memfd-backed shared memory (the fd is only needed to pass to mmap
// and, in a full implementation, to hand to a peer via SCM_RIGHTS).
func mapAnonymous(size int) ([]byte, backend, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("incshm: size must be positive, got %d", size)
	}

	fd, err := unix.MemfdCreate("incd-shm", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("memfd_create: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, nil, fmt.Errorf("ftruncate: %w", err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap: %w", err)
	}

	return data, linuxBackend{}, nil
}
