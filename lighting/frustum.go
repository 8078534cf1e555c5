// Copyright 2023 The Halcyon Authors. All rights reserved.

package lighting

import (
	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/rhi"
)

// Plane is one frustum plane in ax+by+cz+d=0 form, with the
// normal pointing inside the frustum.
type Plane struct {
	N mgl32.Vec3
	D float32
}

func (p *Plane) distance(pt mgl32.Vec3) float32 {
	return p.N.Dot(pt) + p.D
}

func (p *Plane) normalize() {
	l := p.N.Len()
	if l > 0 {
		p.N = p.N.Mul(1 / l)
		p.D /= l
	}
}

// Frustum is a view frustum as six inward-facing planes,
// extracted from a view-projection matrix.
type Frustum struct {
	planes [6]Plane
}

// FrustumFromMatrix extracts the planes of the given
// view-projection matrix.
func FrustumFromMatrix(vp mgl32.Mat4) Frustum {
	row := func(i int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(i, 0), vp.At(i, 1), vp.At(i, 2), vp.At(i, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	var f Frustum
	set := func(i int, v mgl32.Vec4) {
		f.planes[i] = Plane{N: mgl32.Vec3{v.X(), v.Y(), v.Z()}, D: v.W()}
		f.planes[i].normalize()
	}
	set(0, r3.Add(r0))  // left
	set(1, r3.Sub(r0))  // right
	set(2, r3.Add(r1))  // bottom
	set(3, r3.Sub(r1))  // top
	set(4, r3.Add(r2))  // near
	set(5, r3.Sub(r2))  // far
	return f
}

// FrustumFromCamera extracts the planes of a camera's combined
// view-projection.
func FrustumFromCamera(c *rhi.CameraData) Frustum {
	return FrustumFromMatrix(c.ViewProjection())
}

// ContainsSphere reports whether the sphere intersects the
// frustum.
func (f *Frustum) ContainsSphere(s rhi.Sphere) bool {
	for i := range f.planes {
		if f.planes[i].distance(s.Center) < -s.Radius {
			return false
		}
	}
	return true
}

// OverlapsAABB reports whether the box intersects the frustum.
func (f *Frustum) OverlapsAABB(b rhi.AABB) bool {
	for i := range f.planes {
		p := &f.planes[i]
		// Positive vertex of the box relative to the plane normal.
		v := b.Min
		if p.N.X() >= 0 {
			v[0] = b.Max.X()
		}
		if p.N.Y() >= 0 {
			v[1] = b.Max.Y()
		}
		if p.N.Z() >= 0 {
			v[2] = b.Max.Z()
		}
		if p.distance(v) < 0 {
			return false
		}
	}
	return true
}
