// Copyright 2023 The Halcyon Authors. All rights reserved.

package rhi

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Format describes the format of a pixel.
type Format int

// Pixel formats.
const (
	FormatUndefined Format = iota
	// Color, 8-bit channels.
	FormatR8Unorm
	FormatRG8Unorm
	FormatRGBA8Unorm
	FormatRGBA8SRGB
	FormatBGRA8Unorm
	FormatBGRA8SRGB
	// Color, 16-bit channels.
	FormatR16SFloat
	FormatRG16SFloat
	FormatRGBA16SFloat
	// Color, 32-bit channels.
	FormatR32SFloat
	FormatRG32SFloat
	FormatRGBA32SFloat
	// Depth/stencil.
	FormatD16Unorm
	FormatD32SFloat
	FormatD24UnormS8Uint
	FormatD32SFloatS8Uint
)

var formatNames = map[string]Format{
	"R8_UNORM":            FormatR8Unorm,
	"R8G8_UNORM":          FormatRG8Unorm,
	"R8G8B8A8_UNORM":      FormatRGBA8Unorm,
	"R8G8B8A8_SRGB":       FormatRGBA8SRGB,
	"B8G8R8A8_UNORM":      FormatBGRA8Unorm,
	"B8G8R8A8_SRGB":       FormatBGRA8SRGB,
	"R16_SFLOAT":          FormatR16SFloat,
	"R16G16_SFLOAT":       FormatRG16SFloat,
	"R16G16B16A16_SFLOAT": FormatRGBA16SFloat,
	"R32_SFLOAT":          FormatR32SFloat,
	"R32G32_SFLOAT":       FormatRG32SFloat,
	"R32G32B32A32_SFLOAT": FormatRGBA32SFloat,
	"D16_UNORM":           FormatD16Unorm,
	"D32_SFLOAT":          FormatD32SFloat,
	"D24_UNORM_S8_UINT":   FormatD24UnormS8Uint,
	"D32_SFLOAT_S8_UINT":  FormatD32SFloatS8Uint,
}

// ParseFormat maps a pixel format name from a render description
// to the corresponding Format. Unknown names fall back to
// FormatRGBA16SFloat, the HDR default used by scene color targets.
func ParseFormat(name string) Format {
	if f, ok := formatNames[name]; ok {
		return f
	}
	return FormatRGBA16SFloat
}

// String returns the asset-facing name of f.
func (f Format) String() string {
	for name, v := range formatNames {
		if v == f {
			return name
		}
	}
	return "R16G16B16A16_SFLOAT"
}

// IsDepth returns whether f has a depth aspect.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32SFloat, FormatD24UnormS8Uint, FormatD32SFloatS8Uint:
		return true
	}
	return false
}

// TexelSize returns the size of a single texel in bytes.
func (f Format) TexelSize() int64 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRG8Unorm, FormatR16SFloat, FormatD16Unorm:
		return 2
	case FormatRGBA8Unorm, FormatRGBA8SRGB, FormatBGRA8Unorm, FormatBGRA8SRGB,
		FormatRG16SFloat, FormatR32SFloat, FormatD32SFloat, FormatD24UnormS8Uint:
		return 4
	case FormatRGBA16SFloat, FormatRG32SFloat, FormatD32SFloatS8Uint:
		return 8
	case FormatRGBA32SFloat:
		return 16
	}
	return 4
}

// ImageLayout is the type of an image layout.
type ImageLayout int

// Image layouts.
const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutDepthStencilReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutComputeRead
	LayoutComputeWrite
	LayoutPresent
)

// TextureType is the dimensionality of a texture.
type TextureType int

// Texture types.
const (
	Texture2D TextureType = iota
	Texture3D
	TextureCube
)

// Filtration is the type of sampler filters.
type Filtration int

// Filters.
const (
	FilterNearest Filtration = iota
	FilterLinear
	FilterBicubic
)

// Clamping is the type of sampler address modes.
type Clamping int

// Address modes.
const (
	ClampToEdge Clamping = iota
	ClampRepeat
)

// TextureUsage is a mask of valid uses for a texture.
type TextureUsage int

// Texture usage flags.
const (
	UsageSampled TextureUsage = 1 << iota
	UsageStorage
	UsageColorAttachment
	UsageDepthStencilAttachment
	UsageTransferSrc
	UsageTransferDst
)

// BufferUsage is a mask of valid uses for a buffer.
type BufferUsage int

// Buffer usage flags.
const (
	UsageVertexBuffer BufferUsage = 1 << iota
	UsageIndexBuffer
	UsageIndirectBuffer
	UsageStorageBuffer
	UsageUniformBuffer
	UsageBufferTransferSrc
	UsageBufferTransferDst
)

// MemoryProps is a mask of memory properties for a buffer.
type MemoryProps int

// Memory property flags.
const (
	MemoryDeviceLocal MemoryProps = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)

// Topology determines how vertex data is assembled.
type Topology int

// Primitive topologies.
const (
	TriangleList Topology = iota
	TriangleStrip
	LineList
	PointList
)

// CullMode determines primitive culling by facing direction.
type CullMode int

// Cull modes.
const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// BlendMode determines how fragment output is combined with
// the render target.
type BlendMode int

// Blend modes.
const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAdditive
	BlendMultiply
)

// FillMode determines the final rasterization of triangles.
type FillMode int

// Fill modes.
const (
	FillSolid FillMode = iota
	FillLines
	FillPoint
)

// SortingOrder is the draw order applied to scene batches.
type SortingOrder int

// Sorting orders.
const (
	FrontToBack SortingOrder = iota
	BackToFront
)

// ParseSortingOrder maps a "Sorting" node parameter to a
// SortingOrder, defaulting to FrontToBack.
func ParseSortingOrder(s string) SortingOrder {
	if s == "BackToFront" {
		return BackToFront
	}
	return FrontToBack
}

// RenderState is the fixed-function state a material is
// created with. Two materials with equal render states can
// share a pipeline as long as the rest of their batch key
// matches.
type RenderState struct {
	DepthTest         bool
	ZWrite            bool
	DepthBias         float32
	CustomDepthShader bool
	Cull              CullMode
	Blend             BlendMode
	Fill              FillMode
	Tag               string
	MSAA              bool
}

// DrawIndexedIndirect is the GPU layout of a single indirect
// draw command.
type DrawIndexedIndirect struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  uint32
	FirstInstance uint32
}

// DrawIndexedIndirectSize is the stride of DrawIndexedIndirect
// commands inside an indirect buffer.
const DrawIndexedIndirectSize = 20

// FrameData is the per-frame uniform block written by the
// frame-graph runtime into binding slot 0 of every material.
type FrameData struct {
	View            mgl32.Mat4
	Projection      mgl32.Mat4
	InvProjection   mgl32.Mat4
	CameraPosition  mgl32.Vec4
	ViewportSize    mgl32.Vec2
	CameraZNearZFar mgl32.Vec2
	CurrentTime     float32
	DeltaTime       float32
	_               [2]float32
}

// FrameDataSize is the byte size of the FrameData uniform block.
const FrameDataSize = 3*64 + 16 + 8 + 8 + 16

// Region is an integer rectangle used by blit and clear
// operations.
type Region struct {
	X, Y, W, H int32
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max mgl32.Vec3
}

// Center returns the center point of the box.
func (b AABB) Center() mgl32.Vec3 { return b.Min.Add(b.Max).Mul(0.5) }

// Extent returns the half extents of the box.
func (b AABB) Extent() mgl32.Vec3 { return b.Max.Sub(b.Min).Mul(0.5) }

// Sphere is a bounding sphere.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}
