// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("Sky", func() framegraph.Node { return &SkyNode{} })
}

// Sky render resolutions.
const (
	skyResolution = 196
	sunResolution = 32
)

// starScale pushes star sprites out to the far distance.
const starScale = 5000.0

// SkyParams is the full parameter block of the procedural sky.
// Its hash keys the environment node's IBL cubemap cache, so a
// dynamic sky invalidates derived cubemaps.
type SkyParams struct {
	LightDirection      mgl32.Vec4
	CloudsAttenuation1  float32
	CloudsAttenuation2  float32
	CloudsDensity       float32
	CloudsCoverage      float32
	PhaseInfluence1     float32
	PhaseInfluence2     float32
	Eccentricity1       float32
	Eccentricity2       float32
	Fog                 float32
	SunIntensity        float32
	Ambient             float32
	ScatteringSteps     int32
	ScatteringDensity   float32
	ScatteringIntensity float32
	ScatteringPhase     float32
	SunShaftsIntensity  float32
	SunShaftsDistance   int32
}

// DefaultSkyParams returns the parameter block of a clear
// midday sky.
func DefaultSkyParams() SkyParams {
	return SkyParams{
		LightDirection:      mgl32.Vec4{0, -1, 1, 0}.Normalize(),
		CloudsAttenuation1:  0.3,
		CloudsAttenuation2:  0.06,
		CloudsDensity:       0.3,
		CloudsCoverage:      0.56,
		PhaseInfluence1:     0.025,
		PhaseInfluence2:     0.9,
		Eccentricity1:       0.95,
		Eccentricity2:       0.51,
		Fog:                 10,
		SunIntensity:        500,
		Ambient:             0.5,
		ScatteringSteps:     5,
		ScatteringDensity:   0.5,
		ScatteringIntensity: 0.5,
		ScatteringPhase:     0.5,
		SunShaftsIntensity:  0.7,
		SunShaftsDistance:   80,
	}
}

// Hash returns a stable hash of the parameter block.
func (p SkyParams) Hash() uint64 {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, p)
	return xxhash.Sum64(buf.Bytes())
}

// bscHeader is the little-endian header of the BSC5 bright-star
// catalogue.
type bscHeader struct {
	BaseSequenceIndex int32
	FirstStarIndex    int32
	StarCount         int32
	StarIndexType     int32
	ProperMotionFlag  uint32
	MagnitudeType     int32
	StarEntrySize     int32
}

// bscEntry is one packed catalogue record.
type bscEntry struct {
	CatalogNumber float32
	// B1950 right ascension and declination, radians.
	SRA0  float64
	SDEC0 float64
	// Spectral type, two characters.
	IS [2]byte
	// V magnitude × 100.
	Mag  int16
	XRPM float32
	XDPM float32
}

// maxRGBTemperatures spans 1000K..40000K in 100K steps.
const maxRGBTemperatures = (40000 - 1000) / 100

// starTemperatureRanges maps a Morgan-Keenan spectral class to
// its kelvin range.
var starTemperatureRanges = map[byte][2]float32{
	'O': {30000, 40000},
	'B': {10000, 30000},
	'A': {7500, 10000},
	'F': {6000, 7500},
	'G': {5200, 6000},
	'K': {3700, 5200},
	'M': {2400, 3700},
}

func morganKeenanToTemperature(spectralType, subType byte) uint32 {
	r, ok := starTemperatureRanges[spectralType]
	if !ok {
		r = starTemperatureRanges['G']
	}
	step := (r[1] - r[0]) / 9
	subIndex := float32('9' - subType)
	return uint32(r[0] + subIndex*step)
}

type skyPush struct {
	StarsModelView mgl32.Mat4
}

// SkyNode renders the procedural sky: sky and sun draws into
// dedicated off-screen textures, a compose pass onto the scene
// color, and a point-sprite star field built once from the BSC5
// catalogue with Morgan-Keenan spectral colors.
type SkyNode struct {
	framegraph.BaseNode

	params SkyParams

	skyShader     *rhi.ShaderSet
	sunShader     *rhi.ShaderSet
	composeShader *rhi.ShaderSet
	starsShader   *rhi.ShaderSet

	skyMaterial     rhi.Material
	sunMaterial     rhi.Material
	composeMaterial rhi.Material
	starsMaterial   rhi.Material

	bindings rhi.ShaderBindingSet

	skyTexture rhi.Texture
	sunTexture rhi.Texture

	starsMesh      *rhi.Mesh
	starsModelView mgl32.Mat4

	rgbTemperatures [maxRGBTemperatures]mgl32.Vec3

	latitudeRad  float32
	longitudeRad float32
}

func (n *SkyNode) Name() string { return "Sky" }

// SkyParams returns the current sky parameter block.
func (n *SkyNode) SkyParams() SkyParams {
	if n.params == (SkyParams{}) {
		n.params = DefaultSkyParams()
	}
	if dir := n.Vec4("lightDirection"); dir != (mgl32.Vec4{}) {
		n.params.LightDirection = dir.Normalize()
	}
	return n.params
}

// SetLocation sets the observer position used for the star
// field orientation.
func (n *SkyNode) SetLocation(latitudeDegrees, longitudeDegrees float32) {
	n.latitudeRad = mgl32.DegToRad(latitudeDegrees)
	n.longitudeRad = mgl32.DegToRad(longitudeDegrees)
}

// julianDate converts a UTC date to its Julian day number.
func julianDate(year, month, day, hour, minute, second int) float64 {
	a := (14 - month) / 12
	y := year + 4800 - a
	m := month + 12*a - 3
	jdn := day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
	return float64(jdn) + (float64(hour)-12)/24 + float64(minute)/1440 + float64(second)/86400
}

// equatorialToCartesian converts right ascension and declination
// to a unit direction.
func equatorialToCartesian(ra, dec float32) mgl32.Vec3 {
	cosDec := cosf(dec)
	return mgl32.Vec3{
		cosDec * cosf(ra),
		sinf(dec),
		cosDec * sinf(ra),
	}
}

func cosf(v float32) float32 { return float32(math.Cos(float64(v))) }
func sinf(v float32) float32 { return float32(math.Sin(float64(v))) }

func (n *SkyNode) temperatureToColor(temperature uint32) mgl32.Vec3 {
	index := int(temperature/100) - 10
	if index < 0 {
		index = 0
	}
	if index >= maxRGBTemperatures {
		index = maxRGBTemperatures - 1
	}
	return n.rgbTemperatures[index]
}

// loadStarColors fills the temperature→RGB table from the
// 301-row companion file.
func (n *SkyNode) loadStarColors(fg *framegraph.FrameGraph) error {
	text, err := fg.Content.ReadFile("StarsColor.yaml")
	if err != nil {
		return err
	}
	var doc struct {
		Colors [][]float32 `yaml:"colors"`
	}
	if err := yaml.Unmarshal(text, &doc); err != nil {
		return err
	}
	for _, row := range doc.Colors {
		if len(row) < 8 {
			continue
		}
		index := int(row[0]/100) - 10
		if index < 0 || index >= maxRGBTemperatures {
			continue
		}
		n.rgbTemperatures[index] = mgl32.Vec3{row[5], row[6], row[7]}
	}
	return nil
}

// createStarsMesh builds the point-sprite star mesh from the
// binary BSC5 catalogue and orients it by local mean sidereal
// time and the precession of the equinoxes.
func (n *SkyNode) createStarsMesh(fg *framegraph.FrameGraph, transfer rhi.CommandList) {
	if fg.Content == nil {
		return
	}
	drv := fg.Driver()

	transfer.BeginDebugRegion(n.Name(), framegraph.ColorCmdTransfer)
	defer transfer.EndDebugRegion()

	if err := n.loadStarColors(fg); err != nil {
		log.Warn().Err(err).Msg("sky: star color table unavailable")
		return
	}

	if n.latitudeRad == 0 && n.longitudeRad == 0 {
		// Rome.
		n.SetLocation(41.89193, 12.51133)
	}

	jdn := julianDate(2022, 12, 29, 12, 0, 0)
	localMeanSiderealTime := 4.894961 + 230121.675315*jdn + float64(n.longitudeRad)

	backward := mgl32.Vec3{0, 0, -1}
	up := mgl32.Vec3{0, 1, 0}
	right := mgl32.Vec3{1, 0, 0}

	rotation := mgl32.QuatRotate(-float32(localMeanSiderealTime), backward).
		Mul(mgl32.QuatRotate(n.latitudeRad-float32(math.Pi)/2, up))

	precessionZ := mgl32.QuatRotate(0.01118, backward)
	precession := precessionZ.Mul(mgl32.QuatRotate(-0.00972, right)).Mul(precessionZ)

	n.starsModelView = precession.Mul(rotation).Mat4()

	raw, err := fg.Content.ReadFile("BSC5")
	if err != nil {
		log.Warn().Err(err).Msg("sky: star catalogue unavailable")
		return
	}

	r := bytes.NewReader(raw)
	var header bscHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		log.Warn().Err(err).Msg("sky: bad star catalogue header")
		return
	}
	count := int(header.StarCount)
	if count < 0 {
		count = -count
	}

	vertices := make([]rhi.VertexPC, count)
	indices := make([]uint32, count)
	for i := 0; i < count; i++ {
		var entry bscEntry
		if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
			log.Warn().Err(err).Int("star", i).Msg("sky: truncated star catalogue")
			return
		}

		pos := equatorialToCartesian(float32(entry.SRA0), float32(entry.SDEC0))
		pos = pos.Mul(1 / (float32(entry.Mag)/100 + 0.4))
		pos = pos.Mul(starScale)

		color := n.temperatureToColor(morganKeenanToTemperature(entry.IS[0], entry.IS[1]))
		vertices[i] = rhi.VertexPC{Position: pos, Color: color.Vec4(1)}
		indices[i] = uint32(i)
	}

	vb, err := drv.NewBufferOn(transfer, vertices, int64(len(vertices))*rhi.VertexP3C4.Stride,
		rhi.UsageVertexBuffer|rhi.UsageIndexBuffer)
	if err != nil {
		return
	}
	ib, err := drv.NewBufferOn(transfer, indices, int64(len(indices))*4,
		rhi.UsageVertexBuffer|rhi.UsageIndexBuffer)
	if err != nil {
		vb.Destroy()
		return
	}
	n.starsMesh = &rhi.Mesh{
		VertexBuffer: vb,
		IndexBuffer:  ib,
		Vertex:       rhi.VertexP3C4,
		Bounds:       rhi.AABB{Min: mgl32.Vec3{-starScale, -starScale, -starScale}, Max: mgl32.Vec3{starScale, starScale, starScale}},
	}
}

func (n *SkyNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdPostProcess)
	defer graphics.EndDebugRegion()

	if n.skyShader == nil {
		n.skyShader, _ = fg.Shaders().LoadShader("Shaders/Sky.shader", "FILL")
		n.sunShader, _ = fg.Shaders().LoadShader("Shaders/Sky.shader", "SUN")
		n.composeShader, _ = fg.Shaders().LoadShader("Shaders/Sky.shader", "COMPOSE")
	}
	if n.starsShader == nil {
		n.starsShader, _ = fg.Shaders().LoadShader("Shaders/Stars.shader")
	}

	const usage = rhi.UsageTransferSrc | rhi.UsageSampled | rhi.UsageColorAttachment
	if n.skyTexture == nil {
		rt, err := drv.NewRenderTarget(skyResolution, skyResolution, 1, rhi.FormatRGBA16SFloat,
			rhi.FilterBicubic, rhi.ClampRepeat, usage)
		if err != nil {
			return
		}
		drv.SetDebugName(rt, "Sky")
		n.skyTexture = rt
		return
	}
	if n.sunTexture == nil {
		rt, err := drv.NewRenderTarget(skyResolution, skyResolution, 1, rhi.FormatRGBA16SFloat,
			rhi.FilterBicubic, rhi.ClampToEdge, usage)
		if err != nil {
			return
		}
		drv.SetDebugName(rt, "Sun")
		n.sunTexture = rt
		return
	}

	if n.starsMesh == nil {
		n.createStarsMesh(fg, transfer)
	}

	if !n.skyShader.Ready() || !n.sunShader.Ready() || !n.composeShader.Ready() ||
		!n.starsShader.Ready() || !n.starsMesh.Ready() {
		return
	}

	if n.skyMaterial == nil {
		n.bindings = drv.NewBindingSet()
		data := n.bindings.AddUniformBuffer("data", uniformBlockSize(n.NumVec4()), 0)
		n.bindings.AddSampler("skySampler", n.skyTexture, 1)
		n.bindings.AddSampler("sunSampler", n.sunTexture, 2)

		state := rhi.RenderState{Cull: rhi.CullNone, Fill: rhi.FillSolid}
		n.skyMaterial, _ = drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList, state, n.skyShader, n.bindings)
		n.sunMaterial, _ = drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList, state, n.sunShader, n.bindings)
		n.composeMaterial, _ = drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList, state, n.composeShader, n.bindings)

		transfer.UpdateBinding(data, n.SkyParams().LightDirection, 16, 0)
	}
	if n.starsMaterial == nil {
		state := rhi.RenderState{
			DepthTest: true,
			Cull:      rhi.CullBack,
			Blend:     rhi.BlendAlpha,
			Fill:      rhi.FillPoint,
		}
		n.starsMaterial, _ = drv.NewMaterial(rhi.VertexP3C4, rhi.PointList, state, n.starsShader, nil)
	}
	if n.skyMaterial == nil || n.sunMaterial == nil || n.composeMaterial == nil || n.starsMaterial == nil {
		return
	}

	target := n.ResolvedAttachment("color")
	depth := fg.RenderTarget("DepthBuffer")
	if target == nil || depth == nil {
		return
	}
	mesh := fg.FullscreenQuad()

	offscreen := func(label string, tex rhi.Texture, material rhi.Material) {
		graphics.BeginDebugRegion(label, framegraph.ColorCmdPostProcess)
		defer graphics.EndDebugRegion()

		graphics.ImageBarrier(depth, depth.DefaultLayout(), rhi.LayoutDepthStencilReadOnly)
		graphics.ImageBarrier(tex, tex.DefaultLayout(), rhi.LayoutColorAttachment)

		graphics.BindMaterial(material)
		graphics.BindBindingSets(material, []rhi.ShaderBindingSet{snap.FrameBindings, n.bindings})
		graphics.BindVertexBuffer(mesh.VertexBuffer, 0)
		graphics.BindIndexBuffer(mesh.IndexBuffer, 0)

		w, h := tex.Extent()
		graphics.SetViewport(0, 0, float32(w), float32(h),
			mgl32.Vec2{0, 0}, mgl32.Vec2{float32(w), float32(h)}, 0, 1)

		graphics.BeginRenderPass([]rhi.Texture{tex}, depth, fullExtent(tex), false, clearNone, false)
		graphics.DrawIndexed(6, 1, mesh.FirstIndex(), mesh.VertexOffset(), 0)
		graphics.EndRenderPass()

		graphics.ImageBarrier(tex, rhi.LayoutColorAttachment, tex.DefaultLayout())
		graphics.ImageBarrier(depth, rhi.LayoutDepthStencilReadOnly, depth.DefaultLayout())
	}

	offscreen("Sky", n.skyTexture, n.skyMaterial)
	offscreen("Sun", n.sunTexture, n.sunMaterial)

	// Compose onto the scene color.
	graphics.BeginDebugRegion("Compose", framegraph.ColorCmdPostProcess)
	{
		graphics.ImageBarrier(depth, depth.DefaultLayout(), rhi.LayoutDepthStencilReadOnly)
		graphics.ImageBarrier(target, target.DefaultLayout(), rhi.LayoutColorAttachment)
		graphics.ImageBarrier(n.skyTexture, n.skyTexture.DefaultLayout(), rhi.LayoutShaderReadOnly)
		graphics.ImageBarrier(n.sunTexture, n.sunTexture.DefaultLayout(), rhi.LayoutShaderReadOnly)

		graphics.BindMaterial(n.composeMaterial)
		graphics.BindBindingSets(n.composeMaterial, []rhi.ShaderBindingSet{snap.FrameBindings, n.bindings})
		graphics.BindVertexBuffer(mesh.VertexBuffer, 0)
		graphics.BindIndexBuffer(mesh.IndexBuffer, 0)

		w, h := target.Extent()
		graphics.SetViewport(0, 0, float32(w), float32(h),
			mgl32.Vec2{0, 0}, mgl32.Vec2{float32(w), float32(h)}, 0, 1)

		graphics.BeginRenderPass([]rhi.Texture{target}, depth, fullExtent(target), false, clearNone, false)
		graphics.DrawIndexed(6, 1, mesh.FirstIndex(), mesh.VertexOffset(), 0)
		graphics.EndRenderPass()

		graphics.ImageBarrier(n.skyTexture, rhi.LayoutShaderReadOnly, n.skyTexture.DefaultLayout())
		graphics.ImageBarrier(n.sunTexture, rhi.LayoutShaderReadOnly, n.sunTexture.DefaultLayout())
		graphics.ImageBarrier(target, rhi.LayoutColorAttachment, target.DefaultLayout())
		graphics.ImageBarrier(depth, rhi.LayoutDepthStencilReadOnly, depth.DefaultLayout())
	}
	graphics.EndDebugRegion()

	// Point-sprite stars, oriented by the observer's sky.
	graphics.BeginDebugRegion("Stars", framegraph.ColorCmdGraphics)
	{
		push := skyPush{
			StarsModelView: mgl32.Translate3D(
				snap.CameraPosition.X(), snap.CameraPosition.Y(), snap.CameraPosition.Z(),
			).Mul4(n.starsModelView),
		}

		graphics.ImageBarrier(depth, depth.DefaultLayout(), rhi.LayoutDepthStencilReadOnly)
		graphics.ImageBarrier(target, target.DefaultLayout(), rhi.LayoutColorAttachment)

		graphics.BindMaterial(n.starsMaterial)
		graphics.BindBindingSets(n.starsMaterial, []rhi.ShaderBindingSet{snap.FrameBindings, n.bindings})
		graphics.PushConstants(n.starsMaterial, push, 64)
		graphics.BindVertexBuffer(n.starsMesh.VertexBuffer, n.starsMesh.VertexBuffer.Offset())
		graphics.BindIndexBuffer(n.starsMesh.IndexBuffer, n.starsMesh.IndexBuffer.Offset())
		graphics.SetDefaultViewport()

		graphics.BeginRenderPass([]rhi.Texture{target}, depth, fullExtent(target), false, clearNone, false)
		graphics.DrawIndexed(n.starsMesh.IndexCount(), 1, n.starsMesh.FirstIndex(), n.starsMesh.VertexOffset(), 0)
		graphics.EndRenderPass()

		graphics.ImageBarrier(target, rhi.LayoutColorAttachment, target.DefaultLayout())
		graphics.ImageBarrier(depth, rhi.LayoutDepthStencilReadOnly, depth.DefaultLayout())
	}
	graphics.EndDebugRegion()
}

func (n *SkyNode) Clear() {
	n.skyShader, n.sunShader, n.composeShader, n.starsShader = nil, nil, nil, nil
	n.skyMaterial, n.sunMaterial, n.composeMaterial, n.starsMaterial = nil, nil, nil, nil
	n.bindings = nil
	if n.skyTexture != nil {
		n.skyTexture.Destroy()
		n.skyTexture = nil
	}
	if n.sunTexture != nil {
		n.sunTexture.Destroy()
		n.sunTexture = nil
	}
	if n.starsMesh != nil {
		n.starsMesh.VertexBuffer.Destroy()
		n.starsMesh.IndexBuffer.Destroy()
		n.starsMesh = nil
	}
}
