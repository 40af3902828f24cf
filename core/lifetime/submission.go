package lifetime

// ResourceMap holds, per kind, the resources that are no longer needed by
// the user but may still be needed by in-flight GPU work. It is used both
// as LifetimeTracker's suspected-resource set and as the per-submission
// last_resources table.
type ResourceMap struct {
	Buffers           map[TrackerIndex]*Buffer
	StagingBuffers    map[TrackerIndex]*StagingBuffer
	Textures          map[TrackerIndex]*Texture
	TextureViews      map[TrackerIndex]*TextureView
	Samplers          map[TrackerIndex]*Sampler
	BindGroups        map[TrackerIndex]*BindGroup
	BindGroupLayouts  map[TrackerIndex]*BindGroupLayout
	RenderPipelines   map[TrackerIndex]*RenderPipeline
	ComputePipelines  map[TrackerIndex]*ComputePipeline
	PipelineLayouts   map[TrackerIndex]*PipelineLayout
	RenderBundles     map[TrackerIndex]*RenderBundle
	QuerySets         map[TrackerIndex]*QuerySet
	DestroyedBuffers  map[TrackerIndex]*DestroyedBuffer
	DestroyedTextures map[TrackerIndex]*DestroyedTexture
}

// NewResourceMap returns an empty ResourceMap with every kind's map
// allocated.
func NewResourceMap() *ResourceMap {
	return &ResourceMap{
		Buffers:           make(map[TrackerIndex]*Buffer),
		StagingBuffers:    make(map[TrackerIndex]*StagingBuffer),
		Textures:          make(map[TrackerIndex]*Texture),
		TextureViews:      make(map[TrackerIndex]*TextureView),
		Samplers:          make(map[TrackerIndex]*Sampler),
		BindGroups:        make(map[TrackerIndex]*BindGroup),
		BindGroupLayouts:  make(map[TrackerIndex]*BindGroupLayout),
		RenderPipelines:   make(map[TrackerIndex]*RenderPipeline),
		ComputePipelines:  make(map[TrackerIndex]*ComputePipeline),
		PipelineLayouts:   make(map[TrackerIndex]*PipelineLayout),
		RenderBundles:     make(map[TrackerIndex]*RenderBundle),
		QuerySets:         make(map[TrackerIndex]*QuerySet),
		DestroyedBuffers:  make(map[TrackerIndex]*DestroyedBuffer),
		DestroyedTextures: make(map[TrackerIndex]*DestroyedTexture),
	}
}

// Clear empties every kind's map in place, for reuse.
func (m *ResourceMap) Clear() {
	clear(m.Buffers)
	clear(m.StagingBuffers)
	clear(m.Textures)
	clear(m.TextureViews)
	clear(m.Samplers)
	clear(m.BindGroups)
	clear(m.BindGroupLayouts)
	clear(m.RenderPipelines)
	clear(m.ComputePipelines)
	clear(m.PipelineLayouts)
	clear(m.RenderBundles)
	clear(m.QuerySets)
	clear(m.DestroyedBuffers)
	clear(m.DestroyedTextures)
}

// Extend moves every entry of other into m, leaving other empty.
func (m *ResourceMap) Extend(other *ResourceMap) {
	for k, v := range other.Buffers {
		m.Buffers[k] = v
	}
	for k, v := range other.StagingBuffers {
		m.StagingBuffers[k] = v
	}
	for k, v := range other.Textures {
		m.Textures[k] = v
	}
	for k, v := range other.TextureViews {
		m.TextureViews[k] = v
	}
	for k, v := range other.Samplers {
		m.Samplers[k] = v
	}
	for k, v := range other.BindGroups {
		m.BindGroups[k] = v
	}
	for k, v := range other.BindGroupLayouts {
		m.BindGroupLayouts[k] = v
	}
	for k, v := range other.RenderPipelines {
		m.RenderPipelines[k] = v
	}
	for k, v := range other.ComputePipelines {
		m.ComputePipelines[k] = v
	}
	for k, v := range other.PipelineLayouts {
		m.PipelineLayouts[k] = v
	}
	for k, v := range other.RenderBundles {
		m.RenderBundles[k] = v
	}
	for k, v := range other.QuerySets {
		m.QuerySets[k] = v
	}
	for k, v := range other.DestroyedBuffers {
		m.DestroyedBuffers[k] = v
	}
	for k, v := range other.DestroyedTextures {
		m.DestroyedTextures[k] = v
	}
	other.Clear()
}

// SubmittedWorkDoneClosure is invoked once a queue submission (or, for
// closures registered while the queue is empty, the next maintenance pass)
// has completed.
type SubmittedWorkDoneClosure func()

// ActiveSubmission is the bookkeeping the tracker keeps for one in-flight
// queue submission.
//
// It deliberately does not hold strong references to the resources used by
// its commands up front. Instead each resource's ResourceInfo records the
// most recent submission that used it, and only resources the user has
// already dropped get added to LastResources - see
// ScheduleResourceDestruction. This avoids touching every resource's
// reference count on the common path where the user is still holding onto
// everything.
type ActiveSubmission struct {
	Index            SubmissionIndex
	LastResources    *ResourceMap
	Mapped           []*Buffer
	Encoders         []EncoderInFlight
	WorkDoneClosures []SubmittedWorkDoneClosure
}

// TempResourceKind discriminates the variants of TempResource.
type TempResourceKind uint8

const (
	TempResourceBufferKind TempResourceKind = iota
	TempResourceStagingBufferKind
	TempResourceDestroyedBufferKind
	TempResourceTextureKind
	TempResourceDestroyedTextureKind
)

// TempResource is a resource created and consumed entirely within queue
// submission (staging buffers, scratch textures, or a buffer/texture whose
// destruction was requested but whose last submission hasn't completed
// yet). track_submission and ScheduleResourceDestruction file these into
// the appropriate ActiveSubmission.LastResources bucket.
type TempResource struct {
	Kind             TempResourceKind
	Buffer           *Buffer
	StagingBuffer    *StagingBuffer
	DestroyedBuffer  *DestroyedBuffer
	Texture          *Texture
	DestroyedTexture *DestroyedTexture
}

func TempBuffer(b *Buffer) TempResource {
	return TempResource{Kind: TempResourceBufferKind, Buffer: b}
}

func TempStagingBuffer(b *StagingBuffer) TempResource {
	return TempResource{Kind: TempResourceStagingBufferKind, StagingBuffer: b}
}

func TempDestroyedBuffer(b *DestroyedBuffer) TempResource {
	return TempResource{Kind: TempResourceDestroyedBufferKind, DestroyedBuffer: b}
}

func TempTexture(t *Texture) TempResource {
	return TempResource{Kind: TempResourceTextureKind, Texture: t}
}

func TempDestroyedTexture(t *DestroyedTexture) TempResource {
	return TempResource{Kind: TempResourceDestroyedTextureKind, DestroyedTexture: t}
}

// insertInto files a TempResource into the matching slot of rm, keyed by
// its tracker index.
func (t TempResource) insertInto(rm *ResourceMap) {
	switch t.Kind {
	case TempResourceBufferKind:
		rm.Buffers[t.Buffer.Index()] = t.Buffer
	case TempResourceStagingBufferKind:
		rm.StagingBuffers[t.StagingBuffer.Index()] = t.StagingBuffer
	case TempResourceDestroyedBufferKind:
		rm.DestroyedBuffers[t.DestroyedBuffer.TrackerIndex] = t.DestroyedBuffer
	case TempResourceTextureKind:
		rm.Textures[t.Texture.Index()] = t.Texture
	case TempResourceDestroyedTextureKind:
		rm.DestroyedTextures[t.DestroyedTexture.TrackerIndex] = t.DestroyedTexture
	}
}
