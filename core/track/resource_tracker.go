package track

// ResourceTracker tracks, for one resource kind, which indices the kind
// tracker still owns and which of those are currently pinned by an
// in-flight usage scope. It generalizes the owned-bitset bookkeeping
// BufferTracker already does (see ResourceMetadata) to the eight other
// resource kinds that only need an abandonment check and nothing else -
// real barrier/usage tracking stays local to BufferTracker and any
// per-kind tracker built the same way.
type ResourceTracker struct {
	metadata ResourceMetadata
	pinned   map[TrackerIndex]struct{}
}

// NewResourceTracker creates an empty ResourceTracker.
func NewResourceTracker() *ResourceTracker {
	return &ResourceTracker{
		metadata: NewResourceMetadata(),
		pinned:   make(map[TrackerIndex]struct{}),
	}
}

// Insert starts tracking index as owned.
func (t *ResourceTracker) Insert(index TrackerIndex) {
	t.metadata.SetOwned(index, true)
}

// Pin marks index as referenced by an in-flight usage scope, so
// RemoveAbandoned will refuse to drop it until Unpin is called.
func (t *ResourceTracker) Pin(index TrackerIndex) {
	t.pinned[index] = struct{}{}
}

// Unpin clears a pin set by Pin.
func (t *ResourceTracker) Unpin(index TrackerIndex) {
	delete(t.pinned, index)
}

// IsTracked reports whether index is currently owned.
func (t *ResourceTracker) IsTracked(index TrackerIndex) bool {
	return t.metadata.IsOwned(index)
}

// RemoveAbandoned drops index if it is owned and not pinned, returning true
// if it did so. This is the single method the lifetime tracker's cascade
// needs from a kind tracker: "was this the last reference, and if so,
// forget about it."
func (t *ResourceTracker) RemoveAbandoned(index TrackerIndex) bool {
	if !t.metadata.IsOwned(index) {
		return false
	}
	if _, pinned := t.pinned[index]; pinned {
		return false
	}
	t.metadata.SetOwned(index, false)
	return true
}

// Size returns the number of indices currently owned.
func (t *ResourceTracker) Size() int {
	return t.metadata.Count()
}
