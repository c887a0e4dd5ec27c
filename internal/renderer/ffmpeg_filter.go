package renderer

import (
	"fmt"
	"strings"
)

// GenerateZoomPanFilter creates the zoompan filter for one scene. The
// input is expected at width x height; totalFrames is the scene length in
// output frames.
func GenerateZoomPanFilter(c Camera, totalFrames, fps, width, height int) string {
	if totalFrames < 1 {
		totalFrames = 1
	}
	return fmt.Sprintf("zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		buildZoomExpression(c), buildPanExpression(c, true), buildPanExpression(c, false),
		totalFrames, width, height, fps)
}

// progressExpression is the ramp progress in terms of the output frame number.
func progressExpression(c Camera) string {
	if c.RampFrames <= 1 {
		return "1"
	}
	return fmt.Sprintf("min(on,%d)/%d", c.RampFrames, c.RampFrames)
}

func buildZoomExpression(c Camera) string {
	if c.FromZoom == c.ToZoom {
		return fmt.Sprintf("%.6f", c.ToZoom)
	}
	return fmt.Sprintf("%.6f+(%.6f)*%s", c.FromZoom, c.ToZoom-c.FromZoom, progressExpression(c))
}

// buildPanExpression returns the top-left crop offset along one axis. The
// window center follows the focus ramp plus the motion shift and is clipped
// so the crop never leaves the input.
func buildPanExpression(c Camera, isX bool) string {
	dim, focus, shift := "ih", c.FocusY, c.ShiftY
	if isX {
		dim, focus, shift = "iw", c.FocusX, c.ShiftX
	}
	p := progressExpression(c)

	var center strings.Builder
	center.WriteString("0.5")
	if focus != 0.5 {
		fmt.Fprintf(&center, "+(%.6f)*%s", focus-0.5, p)
	}
	if shift != 0 {
		fmt.Fprintf(&center, "+(%.6f)*(1-1/zoom)*%s", shift, p)
	}

	return fmt.Sprintf("floor(clip((%s)*%s-%s/zoom/2,0,%s-%s/zoom))", center.String(), dim, dim, dim, dim)
}

// GenerateDebugTextFilter overlays the scene number and timestamp.
func GenerateDebugTextFilter(sceneIndex int) string {
	return fmt.Sprintf("drawtext=text='Scene %d | %%{pts\\:hms}':x=10:y=10:fontsize=24:fontcolor=yellow:box=1:boxcolor=black@0.5", sceneIndex+1)
}
