package lifetime

import (
	"github.com/gogpu/reslife/core"
	"github.com/gogpu/reslife/hal"
)

// LifetimeTracker reconciles a device's three resource-lifetime timelines:
// the user dropping a handle, a queue submission that used it, and the GPU
// actually finishing that submission.
//
// All methods assume the caller has already serialized access (the same
// device-global lock discipline the rest of core uses via Device.mu /
// SnatchLock) - nothing here is internally synchronized.
type LifetimeTracker struct {
	mapped                  []*Buffer
	futureSuspectedBuffers  []*Buffer
	futureSuspectedTextures []*Texture
	suspectedResources      *ResourceMap
	active                  []*ActiveSubmission
	readyToMap              []*Buffer
	workDoneClosures        []SubmittedWorkDoneClosure
	deviceLostClosure       DeviceLostClosure
	deviceLostCalled        bool
}

// NewLifetimeTracker returns an empty tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{
		suspectedResources: NewResourceMap(),
	}
}

// QueueEmpty reports whether there are no queue submissions still in
// flight.
func (lt *LifetimeTracker) QueueEmpty() bool {
	return len(lt.active) == 0
}

// SetDeviceLostClosure installs the closure to fire the first time the
// device is reported lost, replacing any previously installed closure that
// has not yet fired. Only the device's own lost-detection path should call
// this; the tracker never lost-detects on its own.
func (lt *LifetimeTracker) SetDeviceLostClosure(closure DeviceLostClosure) {
	lt.deviceLostClosure = closure
}

// HandleDeviceLost fires the installed device-lost closure, if any, the
// first time it is called; every subsequent call is a no-op, satisfying the
// "called at most once" contract even if the device's loss is reported
// through more than one path.
func (lt *LifetimeTracker) HandleDeviceLost(reason DeviceLostReason, message string) {
	if lt.deviceLostCalled {
		return
	}
	lt.deviceLostCalled = true
	if lt.deviceLostClosure != nil {
		lt.deviceLostClosure(reason, message)
	}
}

// TrackSubmission begins tracking a new queue submission, filing the
// temporary resources it produced (staging buffers, scratch textures,
// pending destructions) into that submission's last-resources table.
//
// index must be strictly greater than the index of every submission already
// in active; a caller handing in a non-monotonic index has a broken
// submission counter, and the tracker's invariants (active sorted by index
// ascending) cannot be restored after the fact, so this is a contract
// violation rather than a recoverable error.
func (lt *LifetimeTracker) TrackSubmission(index SubmissionIndex, tempResources []TempResource, encoders []EncoderInFlight) {
	if n := len(lt.active); n > 0 && index <= lt.active[n-1].Index {
		panic("lifetime: non-monotonic submission index passed to TrackSubmission")
	}

	lastResources := NewResourceMap()
	for _, res := range tempResources {
		res.insertInto(lastResources)
	}

	lt.active = append(lt.active, &ActiveSubmission{
		Index:         index,
		LastResources: lastResources,
		Encoders:      encoders,
	})
}

// PostSubmit moves resources that were used by write_buffer/write_texture
// before any submission existed to track them into suspectedResources,
// where the regular triage_suspected cascade will pick them up.
func (lt *LifetimeTracker) PostSubmit() {
	for _, v := range lt.futureSuspectedBuffers {
		lt.suspectedResources.Buffers[v.Index()] = v
	}
	lt.futureSuspectedBuffers = nil

	for _, v := range lt.futureSuspectedTextures {
		lt.suspectedResources.Textures[v.Index()] = v
	}
	lt.futureSuspectedTextures = nil
}

// Map records that buffer has an outstanding map request, to be resolved
// once its last-use submission completes.
func (lt *LifetimeTracker) Map(buffer *Buffer) {
	lt.mapped = append(lt.mapped, buffer)
}

// AddWorkDoneClosure registers a closure to run once the current tail
// submission completes. If there is no submission in flight, the closure
// is deferred until the next maintenance pass, since it must run after any
// map-async closures already queued ahead of it.
func (lt *LifetimeTracker) AddWorkDoneClosure(closure SubmittedWorkDoneClosure) {
	if n := len(lt.active); n > 0 {
		a := lt.active[n-1]
		a.WorkDoneClosures = append(a.WorkDoneClosures, closure)
		return
	}
	lt.workDoneClosures = append(lt.workDoneClosures, closure)
}

// ScheduleResourceDestruction files a temporary resource into the
// last-resources table of the submission it was last used by, so it is
// freed once that submission completes instead of immediately.
func (lt *LifetimeTracker) ScheduleResourceDestruction(temp TempResource, lastSubmitIndex SubmissionIndex) {
	for _, a := range lt.active {
		if a.Index == lastSubmitIndex {
			temp.insertInto(a.LastResources)
			return
		}
	}
}

// TriageSubmissions assumes every submission up through lastDone has
// completed. Buffers used by those submissions move to readyToMap;
// resources whose final use was in those submissions are freed by simply
// dropping their last-resources table; command encoders are landed and
// returned to allocator. Returns the work-done closures to invoke, in
// order: those deferred while the queue was empty, then each completed
// submission's own closures in submission order.
func (lt *LifetimeTracker) TriageSubmissions(lastDone SubmissionIndex, allocator CommandAllocator) []SubmittedWorkDoneClosure {
	doneCount := len(lt.active)
	for i, a := range lt.active {
		if a.Index > lastDone {
			doneCount = i
			break
		}
	}

	workDoneClosures := lt.workDoneClosures
	lt.workDoneClosures = nil

	for _, a := range lt.active[:doneCount] {
		hal.Logger().Debug("active submission done", "index", a.Index)
		lt.readyToMap = append(lt.readyToMap, a.Mapped...)
		for _, encoder := range a.Encoders {
			raw := encoder.Land()
			allocator.ReleaseEncoder(raw)
		}
		workDoneClosures = append(workDoneClosures, a.WorkDoneClosures...)
	}
	lt.active = append([]*ActiveSubmission{}, lt.active[doneCount:]...)

	return workDoneClosures
}

// triageResources removes every entry of resourceMap whose kind tracker no
// longer owns it, filing removed entries into the last-resources table of
// the submission that last used them (if any is still active), and returns
// the removed resources so the caller can entrain whatever they, in turn,
// own.
func triageResources[T trackedResource](
	resourceMap map[TrackerIndex]T,
	active []*ActiveSubmission,
	kindTracker KindTracker,
	storeInto func(rm *ResourceMap, idx TrackerIndex, res T),
) []T {
	var removed []T
	for idx, resource := range resourceMap {
		if !kindTracker.RemoveAbandoned(idx) {
			continue
		}

		removed = append(removed, resource)
		submitIdx := resource.Info().SubmissionIndex()
		for _, a := range active {
			if a.Index == submitIdx {
				storeInto(a.LastResources, idx, resource)
				break
			}
		}
		delete(resourceMap, idx)
	}
	return removed
}

// triageSuspectedRenderBundles is the first step of the cascade: render
// bundles are the root of the ownership DAG, so everything they use is
// entrained into suspectedResources once the bundle itself is freed.
func (lt *LifetimeTracker) triageSuspectedRenderBundles(trackers *KindTrackers) {
	removed := triageResources(lt.suspectedResources.RenderBundles, lt.active, trackers.RenderBundles,
		func(rm *ResourceMap, idx TrackerIndex, res *RenderBundle) { rm.RenderBundles[idx] = res })

	for _, bundle := range removed {
		for _, v := range bundle.UsedBuffers {
			lt.suspectedResources.Buffers[v.Index()] = v
		}
		for _, v := range bundle.UsedTextures {
			lt.suspectedResources.Textures[v.Index()] = v
		}
		for _, v := range bundle.UsedBindGroups {
			lt.suspectedResources.BindGroups[v.Index()] = v
		}
		for _, v := range bundle.UsedRenderPipelines {
			lt.suspectedResources.RenderPipelines[v.Index()] = v
		}
		for _, v := range bundle.UsedQuerySets {
			lt.suspectedResources.QuerySets[v.Index()] = v
		}
	}
}

func (lt *LifetimeTracker) triageSuspectedComputePipelines(trackers *KindTrackers) {
	removed := triageResources(lt.suspectedResources.ComputePipelines, lt.active, trackers.ComputePipelines,
		func(rm *ResourceMap, idx TrackerIndex, res *ComputePipeline) { rm.ComputePipelines[idx] = res })

	for _, pipeline := range removed {
		if pipeline.Layout != nil {
			lt.suspectedResources.PipelineLayouts[pipeline.Layout.Index()] = pipeline.Layout
		}
	}
}

func (lt *LifetimeTracker) triageSuspectedRenderPipelines(trackers *KindTrackers) {
	removed := triageResources(lt.suspectedResources.RenderPipelines, lt.active, trackers.RenderPipelines,
		func(rm *ResourceMap, idx TrackerIndex, res *RenderPipeline) { rm.RenderPipelines[idx] = res })

	for _, pipeline := range removed {
		if pipeline.Layout != nil {
			lt.suspectedResources.PipelineLayouts[pipeline.Layout.Index()] = pipeline.Layout
		}
	}
}

func (lt *LifetimeTracker) triageSuspectedBindGroups(trackers *KindTrackers) {
	removed := triageResources(lt.suspectedResources.BindGroups, lt.active, trackers.BindGroups,
		func(rm *ResourceMap, idx TrackerIndex, res *BindGroup) { rm.BindGroups[idx] = res })

	for _, group := range removed {
		for _, v := range group.Buffers {
			lt.suspectedResources.Buffers[v.Index()] = v
		}
		for _, v := range group.Textures {
			lt.suspectedResources.Textures[v.Index()] = v
		}
		for _, v := range group.Views {
			lt.suspectedResources.TextureViews[v.Index()] = v
		}
		for _, v := range group.Samplers {
			lt.suspectedResources.Samplers[v.Index()] = v
		}
		if group.Layout != nil {
			lt.suspectedResources.BindGroupLayouts[group.Layout.Index()] = group.Layout
		}
	}
}

// triageSuspectedPipelineLayouts unconditionally frees every suspected
// pipeline layout (nothing keeps a PipelineLayout "tracked" the way a HAL
// resource is; once a pipeline drops it, the layout is no longer usable),
// entraining the bind group layouts it was built from.
func (lt *LifetimeTracker) triageSuspectedPipelineLayouts() {
	removed := make([]*PipelineLayout, 0, len(lt.suspectedResources.PipelineLayouts))
	for idx, layout := range lt.suspectedResources.PipelineLayouts {
		removed = append(removed, layout)
		delete(lt.suspectedResources.PipelineLayouts, idx)
	}

	for _, layout := range removed {
		for _, bgl := range layout.BindGroupLayouts {
			lt.suspectedResources.BindGroupLayouts[bgl.Index()] = bgl
		}
	}
}

// triageSuspectedBindGroupLayouts must run after every suspected pipeline
// has been triaged, since triageSuspectedPipelineLayouts may have just
// added entries here; nothing else can have bumped a layout's reference
// count since the caller holds exclusive access to the tracker.
func (lt *LifetimeTracker) triageSuspectedBindGroupLayouts() {
	lt.suspectedResources.BindGroupLayouts = make(map[TrackerIndex]*BindGroupLayout)
}

func (lt *LifetimeTracker) triageSuspectedQuerySets(trackers *KindTrackers) {
	triageResources(lt.suspectedResources.QuerySets, lt.active, trackers.QuerySets,
		func(rm *ResourceMap, idx TrackerIndex, res *QuerySet) { rm.QuerySets[idx] = res })
}

func (lt *LifetimeTracker) triageSuspectedSamplers(trackers *KindTrackers) {
	triageResources(lt.suspectedResources.Samplers, lt.active, trackers.Samplers,
		func(rm *ResourceMap, idx TrackerIndex, res *Sampler) { rm.Samplers[idx] = res })
}

// triageSuspectedStagingBuffers unconditionally frees every suspected
// staging buffer: they never participate in the ownership DAG, so nothing
// needs to be entrained.
func (lt *LifetimeTracker) triageSuspectedStagingBuffers() {
	lt.suspectedResources.StagingBuffers = make(map[TrackerIndex]*StagingBuffer)
}

func (lt *LifetimeTracker) triageSuspectedTextureViews(trackers *KindTrackers) {
	triageResources(lt.suspectedResources.TextureViews, lt.active, trackers.TextureViews,
		func(rm *ResourceMap, idx TrackerIndex, res *TextureView) { rm.TextureViews[idx] = res })
}

func (lt *LifetimeTracker) triageSuspectedTextures(trackers *KindTrackers) {
	triageResources(lt.suspectedResources.Textures, lt.active, trackers.Textures,
		func(rm *ResourceMap, idx TrackerIndex, res *Texture) { rm.Textures[idx] = res })

	// A texture may have been suspected because a view or bind group that
	// referred to it was dropped. Prune stale back-references so the
	// slices don't grow without bound across repeated cascades.
	for _, texture := range lt.suspectedResources.Textures {
		texture.pruneBackrefs()
	}
}

func (lt *LifetimeTracker) triageSuspectedBuffers(trackers *KindTrackers) {
	triageResources(lt.suspectedResources.Buffers, lt.active, trackers.Buffers,
		func(rm *ResourceMap, idx TrackerIndex, res *Buffer) { rm.Buffers[idx] = res })

	for _, buffer := range lt.suspectedResources.Buffers {
		buffer.pruneBindGroupBackrefs()
	}
}

func (lt *LifetimeTracker) triageSuspectedDestroyedBuffers() {
	for idx, buffer := range lt.suspectedResources.DestroyedBuffers {
		delete(lt.suspectedResources.DestroyedBuffers, idx)
		for _, a := range lt.active {
			if a.Index == buffer.SubmissionIndex {
				a.LastResources.DestroyedBuffers[idx] = buffer
				break
			}
		}
	}
}

func (lt *LifetimeTracker) triageSuspectedDestroyedTextures() {
	for idx, texture := range lt.suspectedResources.DestroyedTextures {
		delete(lt.suspectedResources.DestroyedTextures, idx)
		for _, a := range lt.active {
			if a.Index == texture.SubmissionIndex {
				a.LastResources.DestroyedTextures[idx] = texture
				break
			}
		}
	}
}

// TriageSuspected identifies resources to free according to trackers and
// the current suspected-resource set, removing each from trackers and, if
// trackers held the final reference, either filing it under the
// still-in-flight submission that last used it or dropping it immediately.
//
// The fourteen steps below run in a fixed order because ownership in this
// system is acyclic: each step only entrains resources owned by kinds
// triaged earlier, so working from the roots of the DAG (render bundles)
// toward its leaves (buffers) finds every free-able resource in one pass.
func (lt *LifetimeTracker) TriageSuspected(trackers *KindTrackers) {
	lt.triageSuspectedRenderBundles(trackers)
	lt.triageSuspectedComputePipelines(trackers)
	lt.triageSuspectedRenderPipelines(trackers)
	lt.triageSuspectedBindGroups(trackers)
	lt.triageSuspectedPipelineLayouts()
	lt.triageSuspectedBindGroupLayouts()
	lt.triageSuspectedQuerySets(trackers)
	lt.triageSuspectedSamplers(trackers)
	lt.triageSuspectedStagingBuffers()
	lt.triageSuspectedTextureViews(trackers)
	lt.triageSuspectedTextures(trackers)
	lt.triageSuspectedBuffers(trackers)
	lt.triageSuspectedDestroyedBuffers()
	lt.triageSuspectedDestroyedTextures()
}

// TriageMapped sorts buffers with a pending map request into either the
// still-in-flight submission that last used them, or readyToMap if nothing
// is holding them back.
func (lt *LifetimeTracker) TriageMapped() {
	if len(lt.mapped) == 0 {
		return
	}

	for _, buffer := range lt.mapped {
		submitIdx := buffer.SubmissionIndex()

		var dest *[]*Buffer
		for _, a := range lt.active {
			if a.Index == submitIdx {
				dest = &a.Mapped
				break
			}
		}
		if dest == nil {
			dest = &lt.readyToMap
		}
		*dest = append(*dest, buffer)
	}
	lt.mapped = nil
}

// HandleMapping maps every buffer in readyToMap, returning the
// notifications to send. Buffers dropped by the user in the meantime are
// simply returned to MapStateIdle instead of mapped.
func (lt *LifetimeTracker) HandleMapping(device hal.Device, buffersTracker KindTracker, mapper HALMapper, guard *core.SnatchGuard) []MapPendingClosure {
	if len(lt.readyToMap) == 0 {
		return nil
	}

	pending := make([]MapPendingClosure, 0, len(lt.readyToMap))
	for _, buffer := range lt.readyToMap {
		trackerIndex := buffer.Index()
		if buffersTracker.RemoveAbandoned(trackerIndex) {
			buffer.SetMapState(BufferMapState{Kind: MapStateIdle})
			continue
		}

		// Must not be inlined into the switch below: if the old state were
		// read and matched without first swapping in Idle, handle_mapping
		// would still be holding a conceptual lock on the buffer's map
		// state while calling into the HAL, which is exactly the deadlock
		// this sequencing avoids.
		previous := buffer.SetMapState(BufferMapState{Kind: MapStateIdle})

		var pendingMapping PendingMapping
		switch previous.Kind {
		case MapStateWaiting:
			pendingMapping = previous.Pending
		case MapStateIdle:
			// Mapping was cancelled.
			continue
		case MapStateActive:
			// Queued at least twice by map -> unmap -> map, and was
			// already mapped by an earlier pass.
			buffer.SetMapState(previous)
			continue
		default:
			panic("lifetime: buffer had no pending mapping")
		}

		var status error
		if pendingMapping.Size == 0 {
			buffer.SetMapState(BufferMapState{
				Kind:  MapStateActive,
				Range: [2]uint64{pendingMapping.Offset, pendingMapping.Offset},
				Host:  pendingMapping.Op.Host,
			})
		} else {
			ptr, err := mapper.MapBuffer(device, buffer, pendingMapping.Offset, pendingMapping.Size, pendingMapping.Op.Host, guard)
			if err != nil {
				hal.Logger().Error("buffer mapping failed", "index", trackerIndex, "error", err)
				status = err
			} else {
				buffer.SetMapState(BufferMapState{
					Kind:  MapStateActive,
					Ptr:   ptr,
					Range: [2]uint64{pendingMapping.Offset, pendingMapping.Offset + pendingMapping.Size},
					Host:  pendingMapping.Op.Host,
				})
			}
		}

		pending = append(pending, MapPendingClosure{Op: pendingMapping.Op, Status: status})
	}
	lt.readyToMap = nil

	return pending
}

// assert at compile time that the nine cascade-relevant resource kinds
// satisfy trackedResource with a pointer receiver.
var (
	_ trackedResource = (*Buffer)(nil)
	_ trackedResource = (*Texture)(nil)
	_ trackedResource = (*TextureView)(nil)
	_ trackedResource = (*Sampler)(nil)
	_ trackedResource = (*BindGroup)(nil)
	_ trackedResource = (*RenderBundle)(nil)
	_ trackedResource = (*RenderPipeline)(nil)
	_ trackedResource = (*ComputePipeline)(nil)
	_ trackedResource = (*QuerySet)(nil)
)
