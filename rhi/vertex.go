// Copyright 2023 The Halcyon Authors. All rights reserved.

package rhi

import "github.com/go-gl/mathgl/mgl32"

// VertexAttr is a mask of vertex attributes present in a
// vertex layout.
type VertexAttr uint32

// Vertex attributes.
const (
	AttrPosition VertexAttr = 1 << iota
	AttrNormal
	AttrTexcoord
	AttrColor
	AttrTangent
)

// VertexDescription identifies a vertex layout: the attribute
// mask plus the interleaved stride. Layouts with equal attribute
// bits are interchangeable for pipeline creation, which is what
// the depth-only material cache keys on.
type VertexDescription struct {
	Attrs  VertexAttr
	Stride int64
}

// Shared vertex layouts.
var (
	// VertexP3N3UV2C4 is the layout of the fullscreen quad and
	// of imported static meshes.
	VertexP3N3UV2C4 = &VertexDescription{AttrPosition | AttrNormal | AttrTexcoord | AttrColor, 48}

	// VertexP3C4 is the layout of point-sprite meshes such as
	// the star field.
	VertexP3C4 = &VertexDescription{AttrPosition | AttrColor, 28}
)

// VertexPNUC is one vertex of the VertexP3N3UV2C4 layout.
type VertexPNUC struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Texcoord mgl32.Vec2
	Color    mgl32.Vec4
}

// VertexPC is one vertex of the VertexP3C4 layout.
type VertexPC struct {
	Position mgl32.Vec3
	Color    mgl32.Vec4
}

// Mesh pairs a vertex buffer and an index buffer with the
// layout of the vertex data. Buffers may be suballocations;
// index data is always uint32.
type Mesh struct {
	VertexBuffer Buffer
	IndexBuffer  Buffer
	Vertex       *VertexDescription
	Bounds       AABB
}

// Ready reports whether both buffers exist.
func (m *Mesh) Ready() bool {
	return m != nil && m.VertexBuffer != nil && m.IndexBuffer != nil
}

// IndexCount derives the number of indices from the index
// buffer size.
func (m *Mesh) IndexCount() uint32 {
	return uint32(m.IndexBuffer.Size() / 4)
}

// FirstIndex derives the base index from the index buffer's
// suballocation offset.
func (m *Mesh) FirstIndex() uint32 {
	return uint32(m.IndexBuffer.Offset() / 4)
}

// VertexOffset derives the base vertex from the vertex buffer's
// suballocation offset.
func (m *Mesh) VertexOffset() uint32 {
	return uint32(m.VertexBuffer.Offset() / m.Vertex.Stride)
}
