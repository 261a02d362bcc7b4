// Package snapshot provides an indexed store of saved state images. Each
// image is retrievable and removable exactly once unless the caller asks for
// it to be kept on revert.
package snapshot

import "sync"

// Copier is implemented by state images that can produce an owned deep copy
// of themselves. The registry stores and returns copies only, so a caller can
// never mutate a registered image through a leaked reference.
type Copier[T any] interface {
	Copy() T
}

// Registry stores state images under monotonically increasing ids. A single
// exclusive lock guards the whole registry; snapshot traffic is rare compared
// to transaction execution and must be atomic with respect to itself.
type Registry[T Copier[T]] struct {
	mu     sync.Mutex
	nextID int
	images map[int]T
}

// NewRegistry provides an empty snapshot registry.
func NewRegistry[T Copier[T]]() *Registry[T] {
	return &Registry[T]{images: map[int]T{}}
}

// Create stores an owned copy of the given state image and assigns it the
// next free id.
func (r *Registry[T]) Create(image T) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.images[id] = image.Copy()
	return id
}

// Revert removes the image stored under the given id and returns it. When
// keep is set, an owned copy is re-inserted under the same id so a later
// revert to the same id remains possible; otherwise the id is permanently
// consumed. An unknown id yields the zero value and false.
func (r *Registry[T]) Revert(id int, keep bool) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	image, exists := r.images[id]
	if !exists {
		var zero T
		return zero, false
	}
	delete(r.images, id)
	if keep {
		r.images[id] = image.Copy()
	}
	return image, true
}

// Len reports the number of live snapshots.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.images)
}
