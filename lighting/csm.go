// Copyright 2023 The Halcyon Authors. All rights reserved.

package lighting

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// NumCascades is the number of cascaded-shadow-map levels per
// directional light.
const NumCascades = 4

// ShadowCascadeLevels are the cascade split distances as
// fractions of the camera far plane, in ascending order.
var ShadowCascadeLevels = [NumCascades]float32{1.0 / 50, 1.0 / 25, 1.0 / 10, 1.0 / 2}

// shadowCascadeResolutions are the per-cascade depth target
// sizes; smaller cascades cover nearer sub-frusta at higher
// density.
var shadowCascadeResolutions = [NumCascades]int{4096, 2048, 1024, 512}

// cascadeZMult stretches the light-space depth range so casters
// behind the camera frustum still land in the map.
const cascadeZMult = 10.0

// CascadeProjections computes one light-space orthographic
// projection per cascade. lightView transforms world space into
// light space; the returned matrices are multiplied by it to
// obtain each cascade's full light matrix.
func CascadeProjections(lightView mgl32.Mat4, camView mgl32.Mat4, aspect, fovYDegrees, zNear, zFar float32) [NumCascades]mgl32.Mat4 {
	var out [NumCascades]mgl32.Mat4

	prev := zNear
	for k := 0; k < NumCascades; k++ {
		split := zFar * ShadowCascadeLevels[k]
		out[k] = fitCascade(lightView, camView, aspect, fovYDegrees, prev, split)
		prev = split
	}
	return out
}

// fitCascade builds the tight orthographic projection of one
// camera sub-frustum in light space.
func fitCascade(lightView, camView mgl32.Mat4, aspect, fovYDegrees, near, far float32) mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(fovYDegrees), aspect, near, far)
	inv := proj.Mul4(camView).Inv()

	minV := mgl32.Vec3{float32(math.Inf(1)), float32(math.Inf(1)), float32(math.Inf(1))}
	maxV := mgl32.Vec3{float32(math.Inf(-1)), float32(math.Inf(-1)), float32(math.Inf(-1))}

	for x := -1; x <= 1; x += 2 {
		for y := -1; y <= 1; y += 2 {
			for z := -1; z <= 1; z += 2 {
				corner := inv.Mul4x1(mgl32.Vec4{float32(x), float32(y), float32(z), 1})
				corner = corner.Mul(1 / corner.W())
				ls := lightView.Mul4x1(corner)
				for i := 0; i < 3; i++ {
					minV[i] = min(minV[i], ls[i])
					maxV[i] = max(maxV[i], ls[i])
				}
			}
		}
	}

	minZ, maxZ := minV.Z(), maxV.Z()
	if minZ < 0 {
		minZ *= cascadeZMult
	} else {
		minZ /= cascadeZMult
	}
	if maxZ < 0 {
		maxZ /= cascadeZMult
	} else {
		maxZ *= cascadeZMult
	}

	return mgl32.Ortho(minV.X(), maxV.X(), minV.Y(), maxV.Y(), -maxZ, -minZ)
}
