package renderer

import "math"

// Camera is the per-scene camera path in the form the zoompan filter needs.
// Progress p runs from 0 to 1 over RampFrames output frames and then holds.
// Positions are fractions of the input frame.
type Camera struct {
	FromZoom   float64
	ToZoom     float64
	RampFrames int
	FocusX     float64 // target center at p=1; 0.5 keeps the image center
	FocusY     float64
	ShiftX     float64 // motion vector scaled by intensity
	ShiftY     float64
}

// StaticCamera returns a camera that never moves.
func StaticCamera() Camera {
	return Camera{FromZoom: 1, ToZoom: 1, RampFrames: 1, FocusX: 0.5, FocusY: 0.5}
}

// CameraState represents the camera position and zoom at a specific moment
type CameraState struct {
	X    float64 // Pan X position (center point in pixels)
	Y    float64 // Pan Y position (center point in pixels)
	Zoom float64 // Zoom level (1.0 = no zoom)
}

// Progress returns the ramp progress at output frame n.
func (c Camera) Progress(n int) float64 {
	if c.RampFrames <= 1 {
		return 1
	}
	if n <= 0 {
		return 0
	}
	if n >= c.RampFrames {
		return 1
	}
	return float64(n) / float64(c.RampFrames)
}

// Sample evaluates the camera at output frame n for an input of iw x ih
// pixels. It mirrors the zoompan expressions built by GenerateZoomPanFilter,
// without the integer rounding ffmpeg applies to crop offsets.
func Sample(c Camera, n int, iw, ih float64) CameraState {
	p := c.Progress(n)
	zoom := lerp(c.FromZoom, c.ToZoom, p)
	slack := 1 - 1/zoom

	cx := lerp(0.5, c.FocusX, p) + c.ShiftX*slack*p
	cy := lerp(0.5, c.FocusY, p) + c.ShiftY*slack*p

	return CameraState{
		X:    clampCenter(cx*iw, iw/zoom, iw),
		Y:    clampCenter(cy*ih, ih/zoom, ih),
		Zoom: zoom,
	}
}

// clampCenter keeps a window of the given size inside [0, limit].
func clampCenter(center, size, limit float64) float64 {
	half := size / 2
	return math.Max(half, math.Min(limit-half, center))
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
