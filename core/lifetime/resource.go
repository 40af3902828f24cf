// Package lifetime tracks when GPU resources created through the device's
// registries actually become safe to destroy.
//
// A resource can be referenced from three independent places at once: the
// user's own handle, a command buffer that was submitted to the queue but
// hasn't finished executing yet, and other resources that hold it (a bind
// group holding a buffer, a texture view holding a texture). This package
// reconciles those three timelines into a single decision: free now, free
// once submission N completes, or keep alive because something else still
// needs it.
package lifetime

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/reslife/core/track"
	"github.com/gogpu/reslife/types"
)

// TrackerIndex identifies a resource within its kind's dense index space.
// Reused from core/track rather than redefined, since it is allocated by
// the same TrackerIndexAllocator that the usage trackers use.
type TrackerIndex = track.TrackerIndex

// SubmissionIndex is a monotonically increasing queue submission counter.
// A device's fence reaches SubmissionIndex N once submission N has finished
// executing on the GPU.
type SubmissionIndex uint64

// ResourceInfo is embedded in every tracked resource. It carries the
// bookkeeping the lifetime tracker needs and nothing about the resource's
// own GPU state.
type ResourceInfo struct {
	index           TrackerIndex
	submissionIndex atomic.Uint64
	refCount        atomic.Int32
}

// NewResourceInfo returns a ResourceInfo for a freshly created resource with
// one outstanding (user-held) reference.
func NewResourceInfo(index TrackerIndex) ResourceInfo {
	ri := ResourceInfo{index: index}
	ri.refCount.Store(1)
	return ri
}

// Index returns the resource's dense tracker index.
func (r *ResourceInfo) Index() TrackerIndex { return r.index }

// SubmissionIndex returns the most recent queue submission that used this
// resource.
func (r *ResourceInfo) SubmissionIndex() SubmissionIndex {
	return SubmissionIndex(r.submissionIndex.Load())
}

// SetSubmissionIndex records that this resource was used by submission idx.
// Called from the encoder/submission path, not from the tracker itself.
func (r *ResourceInfo) SetSubmissionIndex(idx SubmissionIndex) {
	r.submissionIndex.Store(uint64(idx))
}

// Retain adds an external (non-weak) reference.
func (r *ResourceInfo) Retain() { r.refCount.Add(1) }

// ReleaseRef drops an external reference and returns the count remaining.
func (r *ResourceInfo) ReleaseRef() int32 { return r.refCount.Add(-1) }

// RefCount returns the current number of outstanding external references.
func (r *ResourceInfo) RefCount() int32 { return r.refCount.Load() }

// weakRef is a non-owning handle to a resource. It shares the referent's
// refCount field so IsLive reflects the referent's actual liveness without
// keeping the referent itself from being logically collected.
//
// This is a deliberate substitute for Arc/Weak: Go's GC-backed weak.Pointer
// resolves nondeterministically, but the cascade in triage_suspected needs
// "is this back-reference still live" to answer the same way every time it's
// asked within one triage pass.
type weakRef[T any] struct {
	ptr   T
	alive *atomic.Int32
}

func newWeakRef[T any](ptr T, info *ResourceInfo) weakRef[T] {
	return weakRef[T]{ptr: ptr, alive: &info.refCount}
}

// IsLive reports whether the referent still has an outstanding external
// reference.
func (w weakRef[T]) IsLive() bool { return w.alive.Load() > 0 }

// Get returns the referenced pointer. Only meaningful while IsLive is true.
func (w weakRef[T]) Get() T { return w.ptr }

// trackedResource is implemented by every resource kind the tracker manages.
type trackedResource interface {
	Info() *ResourceInfo
}

// Buffer is the lifetime-tracked counterpart of a GPU buffer. BindGroups
// that use it hold a weak back-reference here so the tracker can tell, once
// the buffer itself is suspected, whether any live bind group still depends
// on it.
type Buffer struct {
	ResourceInfo

	mapMu     sync.Mutex
	mapState  BufferMapState
	bindGroup []weakRef[*BindGroup]
}

// NewBuffer creates a Buffer with one outstanding user reference.
func NewBuffer(index TrackerIndex) *Buffer {
	return &Buffer{ResourceInfo: NewResourceInfo(index)}
}

// Info implements trackedResource.
func (b *Buffer) Info() *ResourceInfo { return &b.ResourceInfo }

// MapState returns a snapshot of the buffer's current map state.
func (b *Buffer) MapState() BufferMapState {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()
	return b.mapState
}

// SetMapState overwrites the buffer's map state and returns the previous
// value, matching the swap semantics handle_mapping relies on to avoid
// holding the lock across a HAL call.
func (b *Buffer) SetMapState(next BufferMapState) BufferMapState {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()
	prev := b.mapState
	b.mapState = next
	return prev
}

// addBindGroupBackref records that group uses this buffer.
func (b *Buffer) addBindGroupBackref(group *BindGroup) {
	b.bindGroup = append(b.bindGroup, newWeakRef[*BindGroup](group, &group.ResourceInfo))
}

// pruneBindGroupBackrefs drops back-references to bind groups that are no
// longer externally referenced, so the slice doesn't grow without bound
// across repeated suspect/resurrect cycles.
func (b *Buffer) pruneBindGroupBackrefs() {
	live := b.bindGroup[:0]
	for _, ref := range b.bindGroup {
		if ref.IsLive() {
			live = append(live, ref)
		}
	}
	b.bindGroup = live
}

// StagingBuffer is a short-lived host-visible buffer used to stage writes.
// It never participates in the ownership DAG; it is only ever freed, never
// entrained into another resource's cascade.
type StagingBuffer struct {
	ResourceInfo
}

// NewStagingBuffer creates a StagingBuffer with one outstanding reference.
func NewStagingBuffer(index TrackerIndex) *StagingBuffer {
	return &StagingBuffer{ResourceInfo: NewResourceInfo(index)}
}

// Info implements trackedResource.
func (s *StagingBuffer) Info() *ResourceInfo { return &s.ResourceInfo }

// Texture is the lifetime-tracked counterpart of a GPU texture.
type Texture struct {
	ResourceInfo

	mu        sync.Mutex
	views     []weakRef[*TextureView]
	bindGroup []weakRef[*BindGroup]
}

// NewTexture creates a Texture with one outstanding user reference.
func NewTexture(index TrackerIndex) *Texture {
	return &Texture{ResourceInfo: NewResourceInfo(index)}
}

// Info implements trackedResource.
func (t *Texture) Info() *ResourceInfo { return &t.ResourceInfo }

func (t *Texture) addViewBackref(view *TextureView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.views = append(t.views, newWeakRef[*TextureView](view, &view.ResourceInfo))
}

func (t *Texture) addBindGroupBackref(group *BindGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bindGroup = append(t.bindGroup, newWeakRef[*BindGroup](group, &group.ResourceInfo))
}

// pruneBackrefs drops stale view/bind-group back-references.
func (t *Texture) pruneBackrefs() {
	t.mu.Lock()
	defer t.mu.Unlock()
	liveViews := t.views[:0]
	for _, ref := range t.views {
		if ref.IsLive() {
			liveViews = append(liveViews, ref)
		}
	}
	t.views = liveViews

	liveGroups := t.bindGroup[:0]
	for _, ref := range t.bindGroup {
		if ref.IsLive() {
			liveGroups = append(liveGroups, ref)
		}
	}
	t.bindGroup = liveGroups
}

// TextureView is a view into a Texture. It holds a strong reference to its
// parent, so the parent cannot be freed while any view survives.
type TextureView struct {
	ResourceInfo

	Texture *Texture
}

// NewTextureView creates a TextureView owning a reference to parent.
func NewTextureView(index TrackerIndex, parent *Texture) *TextureView {
	v := &TextureView{ResourceInfo: NewResourceInfo(index), Texture: parent}
	parent.addViewBackref(v)
	return v
}

// Info implements trackedResource.
func (v *TextureView) Info() *ResourceInfo { return &v.ResourceInfo }

// Sampler has no owned dependencies; it is a DAG leaf.
type Sampler struct {
	ResourceInfo
}

// NewSampler creates a Sampler with one outstanding user reference.
func NewSampler(index TrackerIndex) *Sampler {
	return &Sampler{ResourceInfo: NewResourceInfo(index)}
}

// Info implements trackedResource.
func (s *Sampler) Info() *ResourceInfo { return &s.ResourceInfo }

// BindGroupLayout has no owned dependencies relevant to the cascade.
type BindGroupLayout struct {
	ResourceInfo
}

// NewBindGroupLayout creates a BindGroupLayout with one user reference.
func NewBindGroupLayout(index TrackerIndex) *BindGroupLayout {
	return &BindGroupLayout{ResourceInfo: NewResourceInfo(index)}
}

// Info implements trackedResource.
func (l *BindGroupLayout) Info() *ResourceInfo { return &l.ResourceInfo }

// BindGroup strongly owns the resources it binds and the layout it was
// built against.
type BindGroup struct {
	ResourceInfo

	Layout   *BindGroupLayout
	Buffers  []*Buffer
	Textures []*Texture
	Views    []*TextureView
	Samplers []*Sampler
}

// NewBindGroup creates a BindGroup and wires back-references into every
// buffer and texture it uses.
func NewBindGroup(index TrackerIndex, layout *BindGroupLayout, buffers []*Buffer, textures []*Texture, views []*TextureView, samplers []*Sampler) *BindGroup {
	g := &BindGroup{
		ResourceInfo: NewResourceInfo(index),
		Layout:       layout,
		Buffers:      buffers,
		Textures:     textures,
		Views:        views,
		Samplers:     samplers,
	}
	for _, b := range buffers {
		b.addBindGroupBackref(g)
	}
	for _, t := range textures {
		t.addBindGroupBackref(g)
	}
	return g
}

// Info implements trackedResource.
func (g *BindGroup) Info() *ResourceInfo { return &g.ResourceInfo }

// PipelineLayout strongly owns the bind group layouts it was built from.
type PipelineLayout struct {
	ResourceInfo

	BindGroupLayouts []*BindGroupLayout
}

// NewPipelineLayout creates a PipelineLayout.
func NewPipelineLayout(index TrackerIndex, layouts []*BindGroupLayout) *PipelineLayout {
	return &PipelineLayout{ResourceInfo: NewResourceInfo(index), BindGroupLayouts: layouts}
}

// Info implements trackedResource.
func (p *PipelineLayout) Info() *ResourceInfo { return &p.ResourceInfo }

// RenderPipeline strongly owns its pipeline layout.
type RenderPipeline struct {
	ResourceInfo

	Layout *PipelineLayout
}

// NewRenderPipeline creates a RenderPipeline.
func NewRenderPipeline(index TrackerIndex, layout *PipelineLayout) *RenderPipeline {
	return &RenderPipeline{ResourceInfo: NewResourceInfo(index), Layout: layout}
}

// Info implements trackedResource.
func (p *RenderPipeline) Info() *ResourceInfo { return &p.ResourceInfo }

// ComputePipeline strongly owns its pipeline layout.
type ComputePipeline struct {
	ResourceInfo

	Layout *PipelineLayout
}

// NewComputePipeline creates a ComputePipeline.
func NewComputePipeline(index TrackerIndex, layout *PipelineLayout) *ComputePipeline {
	return &ComputePipeline{ResourceInfo: NewResourceInfo(index), Layout: layout}
}

// Info implements trackedResource.
func (p *ComputePipeline) Info() *ResourceInfo { return &p.ResourceInfo }

// RenderBundle is the root of the ownership DAG: it strongly owns every
// resource its recorded commands referenced.
type RenderBundle struct {
	ResourceInfo

	UsedBuffers         []*Buffer
	UsedTextures        []*Texture
	UsedBindGroups      []*BindGroup
	UsedRenderPipelines []*RenderPipeline
	UsedQuerySets       []*QuerySet
}

// NewRenderBundle creates a RenderBundle.
func NewRenderBundle(index TrackerIndex) *RenderBundle {
	return &RenderBundle{ResourceInfo: NewResourceInfo(index)}
}

// Info implements trackedResource.
func (rb *RenderBundle) Info() *ResourceInfo { return &rb.ResourceInfo }

// QuerySet has no owned dependencies; it is a DAG leaf.
type QuerySet struct {
	ResourceInfo
}

// NewQuerySet creates a QuerySet with one user reference.
func NewQuerySet(index TrackerIndex) *QuerySet {
	return &QuerySet{ResourceInfo: NewResourceInfo(index)}
}

// Info implements trackedResource.
func (q *QuerySet) Info() *ResourceInfo { return &q.ResourceInfo }

// DestroyedBuffer is what a Buffer becomes once the user has explicitly
// destroyed it but its last submission may still be in flight.
type DestroyedBuffer struct {
	TrackerIndex    TrackerIndex
	SubmissionIndex SubmissionIndex
}

// DestroyedTexture is the texture counterpart of DestroyedBuffer.
type DestroyedTexture struct {
	TrackerIndex    TrackerIndex
	SubmissionIndex SubmissionIndex
}

// MapStateKind discriminates the variants of BufferMapState.
type MapStateKind uint8

const (
	// MapStateIdle means the buffer is not mapped and nothing is pending.
	MapStateIdle MapStateKind = iota
	// MapStateWaiting means a map request is queued, pending submission
	// completion.
	MapStateWaiting
	// MapStateActive means the buffer is currently mapped and a host
	// pointer is available.
	MapStateActive
)

// BufferMapOperation is the caller-supplied half of a pending map request:
// the requested access mode and the closure to invoke once mapping resolves
// (or fails).
type BufferMapOperation struct {
	Host     types.MapMode
	Callback func(error)
}

// PendingMapping is the payload of MapStateWaiting.
type PendingMapping struct {
	Offset uint64
	Size   uint64
	Op     BufferMapOperation
}

// BufferMapState is a tagged union over the buffer mapping state machine.
// Go has no enum-with-payload, so the payload fields are simply zero except
// for the ones the active Kind uses - the same pattern core/error.go uses
// for its own discriminated error types.
type BufferMapState struct {
	Kind MapStateKind

	// valid when Kind == MapStateWaiting
	Pending PendingMapping

	// valid when Kind == MapStateActive
	Ptr   uintptr
	Range [2]uint64
	Host  types.MapMode
}
