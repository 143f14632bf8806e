//go:build !linux

package incshm

import "fmt"

// mapAnonymous has no implementation outside linux: this package only
// wires real anonymous shared memory via memfd_create/mmap (shm_linux.go).
// Per spec.md §4.2, platforms without anonymous SHM must fail block
// creation so callers fall back to the inline binary payload path instead
// of silently losing cross-process sharing.
func mapAnonymous(size int) ([]byte, backend, error) {
	return nil, nil, fmt.Errorf("incshm: anonymous shared memory not available on this platform: %w", ErrUnsupported)
}
