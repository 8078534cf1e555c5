// Copyright 2023 The Halcyon Authors. All rights reserved.

package framegraph_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
	"halcyon/engine/rhi/trace"
)

type row struct {
	Model mgl32.Mat4
}

func newMesh(t *testing.T, drv *trace.Driver, verts, indices int) *rhi.Mesh {
	t.Helper()
	vb, err := drv.NewBufferImmediate(nil, int64(verts)*rhi.VertexP3N3UV2C4.Stride, rhi.UsageVertexBuffer)
	if err != nil {
		t.Fatal(err)
	}
	ib, err := drv.NewBufferImmediate(nil, int64(indices)*4, rhi.UsageIndexBuffer)
	if err != nil {
		t.Fatal(err)
	}
	return &rhi.Mesh{VertexBuffer: vb, IndexBuffer: ib, Vertex: rhi.VertexP3N3UV2C4}
}

func newMaterial(t *testing.T, drv *trace.Driver, lib *trace.ShaderLibrary, tag string) rhi.Material {
	t.Helper()
	shaders, err := lib.LoadShader("Shaders/Standard.shader")
	if err != nil {
		t.Fatal(err)
	}
	bindings := drv.NewBindingSet()
	bindings.AddSSBO("material", 64, 16, 0, false)
	m, err := drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList,
		rhi.RenderState{DepthTest: true, ZWrite: true, Tag: tag}, shaders, bindings)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDrawCallsGrouping(t *testing.T) {
	drv := trace.New(64, 64, 1)
	lib := &trace.ShaderLibrary{}

	matA := newMaterial(t, drv, lib, "Opaque")
	matB := newMaterial(t, drv, lib, "Opaque")
	meshA := newMesh(t, drv, 8, 12)
	meshB := newMesh(t, drv, 8, 12)

	var dc framegraph.DrawCalls[row]
	dc.Add(matA, meshA, row{})
	dc.Add(matA, meshA, row{})
	dc.Add(matA, meshB, row{})
	dc.Add(matB, meshA, row{})

	// matA+meshA and matA+meshB differ by buffer identity, so
	// they are distinct batches; matB has its own bindings.
	if got := dc.NumBatches(); got != 3 {
		t.Fatalf("NumBatches = %d, want 3", got)
	}
	if got := dc.NumInstances(); got != 4 {
		t.Fatalf("NumInstances = %d, want 4", got)
	}
}

func TestStorageOffsetsArePrefixSums(t *testing.T) {
	drv := trace.New(64, 64, 1)
	lib := &trace.ShaderLibrary{}

	mat := newMaterial(t, drv, lib, "Opaque")
	meshes := []*rhi.Mesh{
		newMesh(t, drv, 8, 12),
		newMesh(t, drv, 8, 12),
		newMesh(t, drv, 8, 12),
	}
	counts := []int{3, 1, 5}

	var dc framegraph.DrawCalls[row]
	for i, mesh := range meshes {
		for j := 0; j < counts[i]; j++ {
			dc.Add(mat, mesh, row{})
		}
	}

	data, storageIndex := dc.Flatten(0)
	if len(data) != 9 {
		t.Fatalf("flattened %d rows, want 9", len(data))
	}

	sum := uint32(0)
	for j := 0; j < dc.NumBatches(); j++ {
		if storageIndex[j] != sum {
			t.Fatalf("storageIndex[%d] = %d, want %d", j, storageIndex[j], sum)
		}
		sum += uint32(counts[j])
	}
}

func TestRecordDrawCallsIndirect(t *testing.T) {
	drv := trace.New(64, 64, 1)
	lib := &trace.ShaderLibrary{}

	mat := newMaterial(t, drv, lib, "Opaque")
	meshA := newMesh(t, drv, 8, 12)
	meshB := newMesh(t, drv, 8, 30)

	var dc framegraph.DrawCalls[row]
	dc.Add(mat, meshA, row{})
	dc.Add(mat, meshA, row{})
	dc.Add(mat, meshB, row{})

	_, storageIndex := dc.Flatten(0)

	cmd := drv.NewCommandList(rhi.QueueGraphics, false).(*trace.CommandList)
	if err := cmd.Begin(true); err != nil {
		t.Fatal(err)
	}

	var indirect rhi.Buffer
	sets := func(m rhi.Material) []rhi.ShaderBindingSet { return nil }
	framegraph.RecordDrawCalls(0, dc.NumBatches(), &dc, cmd, drv, sets,
		storageIndex, &indirect, mgl32.Vec4{0, 0, 64, 64}, mgl32.Vec4{0, 0, 64, 64})
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}

	if indirect == nil {
		t.Fatal("no indirect buffer")
	}
	// Two batches share mat+meshA vs mat+meshB; two indirect
	// draws of one command each, 256 bytes of slack on top.
	wantSize := int64(2*rhi.DrawIndexedIndirectSize) + 256
	if indirect.Size() != wantSize {
		t.Fatalf("indirect size = %d, want %d", indirect.Size(), wantSize)
	}

	if got := len(cmd.Find(trace.OpBindMaterial)); got != 1 {
		t.Fatalf("BindMaterial emitted %d times, want 1 (same material across batches)", got)
	}
	if got := len(cmd.Find(trace.OpBindVertexBuffer)); got != 2 {
		t.Fatalf("BindVertexBuffer emitted %d times, want 2", got)
	}

	updates := cmd.Find(trace.OpUpdateBuffer)
	draws := cmd.Find(trace.OpDrawIndexedIndirect)
	if len(updates) != 2 || len(draws) != 2 {
		t.Fatalf("updates=%d draws=%d, want 2 each", len(updates), len(draws))
	}

	// Batch 0: meshA drawn with 2 instances starting at row 0.
	cmds0 := updates[0].Data.([]rhi.DrawIndexedIndirect)
	if cmds0[0].InstanceCount != 2 || cmds0[0].FirstInstance != 0 {
		t.Fatalf("batch 0 indirect = %+v", cmds0[0])
	}
	if cmds0[0].IndexCount != 12 {
		t.Fatalf("batch 0 index count = %d", cmds0[0].IndexCount)
	}

	// Batch 1: meshB, 1 instance, first_instance = 2.
	cmds1 := updates[1].Data.([]rhi.DrawIndexedIndirect)
	if cmds1[0].InstanceCount != 1 || cmds1[0].FirstInstance != 2 {
		t.Fatalf("batch 1 indirect = %+v", cmds1[0])
	}
	if cmds1[0].IndexCount != 30 {
		t.Fatalf("batch 1 index count = %d", cmds1[0].IndexCount)
	}

	// The second draw reads past the first batch's commands.
	if draws[1].Offset != rhi.DrawIndexedIndirectSize {
		t.Fatalf("draw 1 offset = %d", draws[1].Offset)
	}
	if draws[1].Stride != rhi.DrawIndexedIndirectSize {
		t.Fatalf("draw 1 stride = %d", draws[1].Stride)
	}
}

func TestIndirectBufferReuse(t *testing.T) {
	drv := trace.New(64, 64, 1)
	lib := &trace.ShaderLibrary{}
	mat := newMaterial(t, drv, lib, "Opaque")
	mesh := newMesh(t, drv, 8, 12)

	var dc framegraph.DrawCalls[row]
	dc.Add(mat, mesh, row{})
	_, storageIndex := dc.Flatten(0)

	var indirect rhi.Buffer
	sets := func(rhi.Material) []rhi.ShaderBindingSet { return nil }

	record := func() {
		cmd := drv.NewCommandList(rhi.QueueGraphics, false).(*trace.CommandList)
		if err := cmd.Begin(true); err != nil {
			t.Fatal(err)
		}
		framegraph.RecordDrawCalls(0, 1, &dc, cmd, drv, sets, storageIndex, &indirect,
			mgl32.Vec4{}, mgl32.Vec4{})
		if err := cmd.End(); err != nil {
			t.Fatal(err)
		}
	}

	record()
	first := indirect
	record()
	if indirect != first {
		t.Fatal("indirect buffer reallocated although large enough")
	}
}

// TestBatchKeyUsesCompatibility: distinct materials that share a
// binding set, shaders and render state land in one batch.
func TestBatchKeyUsesCompatibility(t *testing.T) {
	drv := trace.New(64, 64, 1)
	lib := &trace.ShaderLibrary{}

	shaders, _ := lib.LoadShader("Shaders/Standard.shader")
	state := rhi.RenderState{DepthTest: true, Tag: "Opaque"}

	shared := drv.NewBindingSet()
	shared.AddSSBO("material", 64, 16, 0, false)

	m1, _ := drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList, state, shaders, shared)
	m2, _ := drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList, state, shaders, shared)
	mesh := newMesh(t, drv, 8, 12)

	var dc framegraph.DrawCalls[row]
	dc.Add(m1, mesh, row{})
	dc.Add(m2, mesh, row{})

	// Distinct material objects with identical bindings, shaders,
	// state and buffers batch together.
	if got := dc.NumBatches(); got != 1 {
		t.Fatalf("NumBatches = %d, want 1", got)
	}
}
