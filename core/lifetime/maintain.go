package lifetime

import (
	"github.com/gogpu/reslife/core"
	"github.com/gogpu/reslife/hal"
)

// MaintainResult bundles everything a device maintenance pass needs to hand
// back to its caller once the lock is released.
type MaintainResult struct {
	WorkDoneClosures []SubmittedWorkDoneClosure
	MapClosures      []MapPendingClosure
}

// Maintain runs one full pass of the lifetime tracker's maintenance
// sequence: suspected resources are triaged first so anything they free up
// is reflected before submissions are checked, pending maps are sorted by
// whichever submission last used them, completed submissions are drained
// against the fence's reported progress, and finally any buffers that are
// now ready get mapped.
//
// fence.CompletedValue() is read once, so the whole pass is consistent with
// a single snapshot of GPU progress.
func (lt *LifetimeTracker) Maintain(trackers *KindTrackers, fence DeviceFence, allocator CommandAllocator, device hal.Device, mapper HALMapper, guard *core.SnatchGuard) MaintainResult {
	lt.TriageSuspected(trackers)
	lt.TriageMapped()
	workDone := lt.TriageSubmissions(fence.CompletedValue(), allocator)
	mapClosures := lt.HandleMapping(device, trackers.Buffers, mapper, guard)

	return MaintainResult{
		WorkDoneClosures: workDone,
		MapClosures:      mapClosures,
	}
}
