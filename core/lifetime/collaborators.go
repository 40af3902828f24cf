package lifetime

import (
	"github.com/gogpu/reslife/core"
	"github.com/gogpu/reslife/core/track"
	"github.com/gogpu/reslife/hal"
	"github.com/gogpu/reslife/types"
)

// KindTracker is satisfied by a per-kind usage tracker (core/track's
// BufferTracker and its siblings). The lifetime tracker only ever needs
// this one entry point: "is this index still in active use, and if not,
// stop tracking it and say so."
type KindTracker interface {
	RemoveAbandoned(index track.TrackerIndex) bool
}

// KindTrackers bundles the nine KindTrackers consulted during
// triage_suspected's cascade, named the way Tracker's fields are named in
// the original: one per resource kind that can be the target of a weak
// back-reference from something higher in the ownership DAG.
type KindTrackers struct {
	RenderBundles    KindTracker
	ComputePipelines KindTracker
	RenderPipelines  KindTracker
	BindGroups       KindTracker
	QuerySets        KindTracker
	Samplers         KindTracker
	TextureViews     KindTracker
	Textures         KindTracker
	Buffers          KindTracker
}

// CommandAllocator recycles the raw HAL command encoder backing a completed
// submission's encoders once triage_submissions drains them.
type CommandAllocator interface {
	ReleaseEncoder(raw hal.CommandEncoder)
}

// EncoderInFlight is a command encoder that was consumed by a queue
// submission and is being kept alive only so its raw HAL handle survives
// until the submission completes.
type EncoderInFlight interface {
	// Land releases the encoder's raw HAL handle back to the caller, for
	// return to a CommandAllocator. It must be called at most once.
	Land() hal.CommandEncoder
}

// DeviceFence reports how far the GPU has actually progressed.
type DeviceFence interface {
	CompletedValue() SubmissionIndex
}

// HALMapper performs the actual host-visible mapping of a buffer once every
// submission that used it has completed. It is the one place
// handle_mapping calls out past the tracker's own bookkeeping.
type HALMapper interface {
	MapBuffer(device hal.Device, buffer *Buffer, offset, size uint64, host types.MapMode, guard *core.SnatchGuard) (uintptr, error)
}

// MapPendingClosure pairs a buffer map operation with the outcome
// handle_mapping decided for it, ready for the caller to invoke outside any
// lock.
type MapPendingClosure struct {
	Op     BufferMapOperation
	Status error
}

// DeviceLostReason discriminates why DeviceLostClosure fired.
type DeviceLostReason uint8

const (
	// DeviceLostReasonUnknown covers driver crashes, GPU resets, and any
	// other loss the caller did not itself initiate.
	DeviceLostReasonUnknown DeviceLostReason = iota
	// DeviceLostReasonDestroyed means the device was dropped or explicitly
	// destroyed by its owner.
	DeviceLostReasonDestroyed
)

// DeviceLostClosure is the single notification the tracker fires at most
// once, when the device it belongs to is lost.
type DeviceLostClosure func(reason DeviceLostReason, message string)
