package lifetime

import (
	"errors"

	"github.com/gogpu/reslife/core"
	"github.com/gogpu/reslife/hal"
	"github.com/gogpu/reslife/types"
)

// fakeKindTracker is a minimal KindTracker: a set of owned indices plus a
// set of pinned ones, mirroring track.ResourceTracker's contract without
// depending on that package (keeps these tests focused on the cascade).
type fakeKindTracker struct {
	owned  map[TrackerIndex]bool
	pinned map[TrackerIndex]bool
}

func newFakeKindTracker(indices ...TrackerIndex) *fakeKindTracker {
	t := &fakeKindTracker{owned: make(map[TrackerIndex]bool), pinned: make(map[TrackerIndex]bool)}
	for _, idx := range indices {
		t.owned[idx] = true
	}
	return t
}

func (t *fakeKindTracker) pin(idx TrackerIndex) { t.pinned[idx] = true }

func (t *fakeKindTracker) RemoveAbandoned(index TrackerIndex) bool {
	if !t.owned[index] || t.pinned[index] {
		return false
	}
	delete(t.owned, index)
	return true
}

func allTrackers() *KindTrackers {
	return &KindTrackers{
		RenderBundles:    newFakeKindTracker(),
		ComputePipelines: newFakeKindTracker(),
		RenderPipelines:  newFakeKindTracker(),
		BindGroups:       newFakeKindTracker(),
		QuerySets:        newFakeKindTracker(),
		Samplers:         newFakeKindTracker(),
		TextureViews:     newFakeKindTracker(),
		Textures:         newFakeKindTracker(),
		Buffers:          newFakeKindTracker(),
	}
}

// fakeEncoder implements EncoderInFlight.
type fakeEncoder struct {
	raw    hal.CommandEncoder
	landed bool
}

func (e *fakeEncoder) Land() hal.CommandEncoder {
	e.landed = true
	return e.raw
}

// fakeCommandEncoder is the minimal hal.CommandEncoder the fake allocator
// needs to accept back.
type fakeCommandEncoder struct{}

func (fakeCommandEncoder) BeginEncoding(string) error              { return nil }
func (fakeCommandEncoder) EndEncoding() (hal.CommandBuffer, error)  { return nil, nil }
func (fakeCommandEncoder) DiscardEncoding()                        {}
func (fakeCommandEncoder) ResetAll(_ []hal.CommandBuffer)          {}
func (fakeCommandEncoder) TransitionBuffers(_ []hal.BufferBarrier) {}
func (fakeCommandEncoder) TransitionTextures(_ []hal.TextureBarrier) {}
func (fakeCommandEncoder) ClearBuffer(_ hal.Buffer, _, _ uint64)   {}
func (fakeCommandEncoder) CopyBufferToBuffer(_, _ hal.Buffer, _ []hal.BufferCopy)                       {}
func (fakeCommandEncoder) CopyBufferToTexture(_ hal.Buffer, _ hal.Texture, _ []hal.BufferTextureCopy)   {}
func (fakeCommandEncoder) CopyTextureToBuffer(_ hal.Texture, _ hal.Buffer, _ []hal.BufferTextureCopy)   {}
func (fakeCommandEncoder) CopyTextureToTexture(_, _ hal.Texture, _ []hal.TextureCopy)                   {}
func (fakeCommandEncoder) BeginRenderPass(_ *hal.RenderPassDescriptor) hal.RenderPassEncoder            { return nil }
func (fakeCommandEncoder) BeginComputePass(_ *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	return nil
}

// fakeCommandAllocator implements CommandAllocator.
type fakeCommandAllocator struct {
	released []hal.CommandEncoder
}

func (a *fakeCommandAllocator) ReleaseEncoder(raw hal.CommandEncoder) {
	a.released = append(a.released, raw)
}

// fakeFence implements DeviceFence.
type fakeFence struct {
	completed SubmissionIndex
}

func (f *fakeFence) CompletedValue() SubmissionIndex { return f.completed }

// fakeMapper implements HALMapper.
type fakeMapper struct {
	nextPtr uintptr
	err     error
	calls   int
}

func (m *fakeMapper) MapBuffer(_ hal.Device, _ *Buffer, _, _ uint64, _ types.MapMode, _ *core.SnatchGuard) (uintptr, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	m.nextPtr++
	return m.nextPtr, nil
}

var errMapFailed = errors.New("map failed")

func newGuard() *core.SnatchGuard {
	lock := core.NewSnatchLock()
	return lock.Read()
}
