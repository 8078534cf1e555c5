// Copyright 2023 The Halcyon Authors. All rights reserved.

package framegraph

import (
	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/rhi"
)

// Node is one polymorphic unit of GPU work within a frame
// graph. Parameters are written by the importer between
// construction and the first Process and read during Process.
//
// Process records all of the node's work for one snapshot; it
// must leave both command lists balanced (every begun render
// pass and debug region ended). Missing dependencies - a shader
// that is not compiled yet, an absent resource - cause the node
// to skip the frame silently; failures are logged, never
// returned.
type Node interface {
	// Name returns the registered type name.
	Name() string

	// Tag is the optional human identifier used by sibling
	// nodes to locate this node.
	Tag() string
	SetTag(tag string)

	SetString(name, value string)
	SetVec4(name string, v mgl32.Vec4)
	SetResource(name string, r rhi.Resource)
	SetUnresolved(name, resourceName string)

	// Prepare optionally returns a task to run on the worker
	// pool before Process, populating CPU-side caches.
	Prepare(fg *FrameGraph, snap *rhi.Snapshot) func() error

	Process(fg *FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot)

	// Clear releases node-owned caches at graph teardown.
	Clear()
}

// orderedParams is a name→value table that preserves insertion
// order, keeping per-frame iteration deterministic.
type orderedParams[T any] struct {
	keys []string
	vals map[string]T
}

func (p *orderedParams[T]) set(name string, v T) {
	if p.vals == nil {
		p.vals = make(map[string]T)
	}
	if _, ok := p.vals[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.vals[name] = v
}

func (p *orderedParams[T]) get(name string) (T, bool) {
	v, ok := p.vals[name]
	return v, ok
}

func (p *orderedParams[T]) each(fn func(name string, v T)) {
	for _, k := range p.keys {
		fn(k, p.vals[k])
	}
}

// BaseNode carries the parameter tables shared by every node
// type. Concrete nodes embed it and implement Name, Process and
// Clear.
type BaseNode struct {
	tag        string
	strings    orderedParams[string]
	vectors    orderedParams[mgl32.Vec4]
	resources  orderedParams[rhi.Resource]
	unresolved orderedParams[string]
}

func (b *BaseNode) Tag() string       { return b.tag }
func (b *BaseNode) SetTag(tag string) { b.tag = tag }

func (b *BaseNode) SetString(name, value string)            { b.strings.set(name, value) }
func (b *BaseNode) SetVec4(name string, v mgl32.Vec4)       { b.vectors.set(name, v) }
func (b *BaseNode) SetResource(name string, r rhi.Resource) { b.resources.set(name, r) }
func (b *BaseNode) SetUnresolved(name, resourceName string) { b.unresolved.set(name, resourceName) }

// String returns the named string parameter; absent keys read
// as empty.
func (b *BaseNode) String(name string) string {
	v, _ := b.strings.get(name)
	return v
}

// TryString reports whether the parameter was set.
func (b *BaseNode) TryString(name string) (string, bool) {
	return b.strings.get(name)
}

// Vec4 returns the named vector parameter; absent keys read as
// zero.
func (b *BaseNode) Vec4(name string) mgl32.Vec4 {
	v, _ := b.vectors.get(name)
	return v
}

// Float returns the first component of the named vector
// parameter.
func (b *BaseNode) Float(name string) float32 {
	return b.Vec4(name).X()
}

// Resource returns the named resource parameter, or nil.
func (b *BaseNode) Resource(name string) rhi.Resource {
	v, _ := b.resources.get(name)
	return v
}

// ResolvedAttachment resolves the named resource parameter to a
// sampleable texture: a Surface yields its resolve target, a
// Texture yields itself, anything else nil. This hides MSAA
// resolve from most consumers.
func (b *BaseNode) ResolvedAttachment(name string) rhi.Texture {
	switch r := b.Resource(name).(type) {
	case *rhi.Surface:
		return r.Resolved
	case rhi.Texture:
		return r
	}
	return nil
}

// SurfaceParam returns the named parameter as a Surface, or nil
// if it is not one.
func (b *BaseNode) SurfaceParam(name string) *rhi.Surface {
	s, _ := b.Resource(name).(*rhi.Surface)
	return s
}

// TextureParam returns the named parameter as a Texture, or nil
// if it is not one.
func (b *BaseNode) TextureParam(name string) rhi.Texture {
	t, _ := b.Resource(name).(rhi.Texture)
	return t
}

// Unresolved returns the resource name a parameter referenced
// but failed to resolve at build time, or empty.
func (b *BaseNode) Unresolved(name string) string {
	v, _ := b.unresolved.get(name)
	return v
}

// EachVec4 visits every vector parameter in insertion order.
func (b *BaseNode) EachVec4(fn func(name string, v mgl32.Vec4)) { b.vectors.each(fn) }

// EachResource visits every resource parameter in insertion
// order.
func (b *BaseNode) EachResource(fn func(name string, r rhi.Resource)) { b.resources.each(fn) }

// NumVec4 returns the number of vector parameters.
func (b *BaseNode) NumVec4() int { return len(b.vectors.keys) }

// Prepare is a no-op for nodes without CPU-side caches.
func (b *BaseNode) Prepare(fg *FrameGraph, snap *rhi.Snapshot) func() error { return nil }

// SortOrder derives the draw order from the "Sorting" string
// parameter, defaulting to front-to-back.
func (b *BaseNode) SortOrder() rhi.SortingOrder {
	return rhi.ParseSortingOrder(b.String("Sorting"))
}
