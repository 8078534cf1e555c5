// Copyright 2023 The Halcyon Authors. All rights reserved.

package framegraph

import (
	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/rhi"
)

// Batch groups proxies that share a pipeline-compatible
// material+mesh pair: one bind_material/bind_bindings is
// amortised across the whole batch and its meshes are drawn
// with a single indirect call.
type Batch struct {
	Material rhi.Material
	Mesh     *rhi.Mesh
}

// batchKey is the comparable identity of a batch. Two batches
// are equal iff material bindings, both shaders, render state
// and the vertex/index buffer identities all match.
type batchKey struct {
	bindings   uint64
	vert, frag rhi.Shader
	state      rhi.RenderState
	vb, ib     uint64
}

func (b Batch) key() batchKey {
	return batchKey{
		bindings: b.Material.Bindings().CompatibilityHash(),
		vert:     b.Material.VertexShader(),
		frag:     b.Material.FragmentShader(),
		state:    b.Material.RenderState(),
		vb:       b.Mesh.VertexBuffer.CompatibilityHash(),
		ib:       b.Mesh.IndexBuffer.CompatibilityHash(),
	}
}

// meshDraws keeps one batch's per-mesh instance data in
// insertion order.
type meshDraws[T any] struct {
	meshes []*rhi.Mesh
	inst   [][]T
	idx    map[*rhi.Mesh]int
}

func (m *meshDraws[T]) add(mesh *rhi.Mesh, v T) {
	if m.idx == nil {
		m.idx = make(map[*rhi.Mesh]int)
	}
	i, ok := m.idx[mesh]
	if !ok {
		i = len(m.meshes)
		m.idx[mesh] = i
		m.meshes = append(m.meshes, mesh)
		m.inst = append(m.inst, nil)
	}
	m.inst[i] = append(m.inst[i], v)
}

// DrawCalls accumulates per-instance data grouped by batch and
// mesh. Batches keep insertion order; so do meshes within a
// batch. T is the node's per-instance GPU row.
type DrawCalls[T any] struct {
	batches  []Batch
	keys     map[batchKey]int
	perBatch []*meshDraws[T]
	total    int
}

// Add records one instance of mesh drawn with material.
func (d *DrawCalls[T]) Add(material rhi.Material, mesh *rhi.Mesh, v T) {
	if d.keys == nil {
		d.keys = make(map[batchKey]int)
	}
	b := Batch{Material: material, Mesh: mesh}
	k := b.key()
	j, ok := d.keys[k]
	if !ok {
		j = len(d.batches)
		d.keys[k] = j
		d.batches = append(d.batches, b)
		d.perBatch = append(d.perBatch, &meshDraws[T]{})
	}
	d.perBatch[j].add(mesh, v)
	d.total++
}

// Batches returns the batch list in insertion order.
func (d *DrawCalls[T]) Batches() []Batch { return d.batches }

// NumBatches returns the number of batches.
func (d *DrawCalls[T]) NumBatches() int { return len(d.batches) }

// NumInstances returns the total instance count across all
// batches.
func (d *DrawCalls[T]) NumInstances() int { return d.total }

// numMeshes returns the number of distinct meshes in batch j.
func (d *DrawCalls[T]) numMeshes(j int) int { return len(d.perBatch[j].meshes) }

// Flatten packs all per-instance rows into one contiguous slice
// ordered by batch then mesh, and returns the per-batch storage
// base indices: storageIndex[j] is storageBase plus the sum of
// instance counts of batches 0..j-1.
func (d *DrawCalls[T]) Flatten(storageBase int) (data []T, storageIndex []uint32) {
	data = make([]T, 0, d.total)
	storageIndex = make([]uint32, len(d.batches))
	for j, md := range d.perBatch {
		storageIndex[j] = uint32(storageBase + len(data))
		for _, inst := range md.inst {
			data = append(data, inst...)
		}
	}
	return data, storageIndex
}

// RecordDrawCalls records the batches [start, end) into cmd as
// indirect draws. Material, vertex-buffer and index-buffer binds
// are emitted only when they change between consecutive batches.
// The indirect buffer is grown (with 256 bytes of slack) when
// too small and its command words are written on cmd itself, so
// the writes precede the indirect reads in program order.
func RecordDrawCalls[T any](
	start, end int,
	d *DrawCalls[T],
	cmd rhi.CommandList,
	drv rhi.Driver,
	sets func(rhi.Material) []rhi.ShaderBindingSet,
	storageIndex []uint32,
	indirect *rhi.Buffer,
	viewport mgl32.Vec4,
	scissors mgl32.Vec4,
) {
	var indirectSize int64
	for j := start; j < end; j++ {
		indirectSize += int64(d.numMeshes(j)) * rhi.DrawIndexedIndirectSize
	}

	if *indirect == nil || (*indirect).Size() < indirectSize {
		const slack = 256
		if *indirect != nil {
			(*indirect).Destroy()
		}
		buf, err := drv.NewIndirectBuffer(indirectSize + slack)
		if err != nil {
			return
		}
		*indirect = buf
	}

	var prevMaterial rhi.Material
	var prevVB, prevIB rhi.Buffer

	var offset int64
	for j := start; j < end; j++ {
		batch := d.batches[j]
		md := d.perBatch[j]

		if prevMaterial != batch.Material {
			cmd.BindMaterial(batch.Material)
			cmd.SetViewport(viewport.X(), viewport.Y(), viewport.Z(), viewport.W(),
				mgl32.Vec2{scissors.X(), scissors.Y()}, mgl32.Vec2{scissors.Z(), scissors.W()},
				0, 1)
			cmd.BindBindingSets(batch.Material, sets(batch.Material))
			prevMaterial = batch.Material
		}
		if prevVB != batch.Mesh.VertexBuffer {
			cmd.BindVertexBuffer(batch.Mesh.VertexBuffer, 0)
			prevVB = batch.Mesh.VertexBuffer
		}
		if prevIB != batch.Mesh.IndexBuffer {
			cmd.BindIndexBuffer(batch.Mesh.IndexBuffer, 0)
			prevIB = batch.Mesh.IndexBuffer
		}

		cmds := make([]rhi.DrawIndexedIndirect, 0, len(md.meshes))
		var ssboOffset uint32
		for i, mesh := range md.meshes {
			cmds = append(cmds, rhi.DrawIndexedIndirect{
				IndexCount:    mesh.IndexCount(),
				InstanceCount: uint32(len(md.inst[i])),
				FirstIndex:    mesh.FirstIndex(),
				VertexOffset:  mesh.VertexOffset(),
				FirstInstance: storageIndex[j] + ssboOffset,
			})
			ssboOffset += uint32(len(md.inst[i]))
		}

		size := int64(len(cmds)) * rhi.DrawIndexedIndirectSize
		cmd.UpdateBuffer(*indirect, cmds, size, offset)
		cmd.DrawIndexedIndirect(*indirect, offset, uint32(len(cmds)), rhi.DrawIndexedIndirectSize)
		offset += size
	}
}
