package analyzer

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/ivlev/phrase2video/internal/system"
)

// ContrastDetector finds high-contrast regions: Sobel edges, dilated so
// nearby strokes merge, then labeled into connected components.
type ContrastDetector struct {
	MinBlockArea  int     // minimum bounding-box area in pixels
	EdgeThreshold float64 // gradient magnitude threshold
	DilateRadius  int
	MaxSide       int // images are downsampled so the longer side fits
}

// NewContrastDetector creates a new contrast-based detector with default settings
func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  500,
		EdgeThreshold: 30.0,
		DilateRadius:  2,
		MaxSide:       640,
	}
}

// Detect returns regions in the coordinates of img.
func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	bounds := img.Bounds()
	gray, scale := d.grayscale(img)
	defer system.PutGray(gray)

	edges := system.GetGray(gray.Rect)
	defer system.PutGray(edges)
	sobel(gray, edges, d.EdgeThreshold)

	mask := system.GetGray(gray.Rect)
	defer system.PutGray(mask)
	dilate(edges, mask, d.DilateRadius)

	minArea := float64(d.MinBlockArea) / (scale * scale)
	var blocks []Block
	for _, r := range components(mask) {
		if float64(r.Dx()*r.Dy()) < minArea {
			continue
		}
		rect := image.Rect(
			int(math.Floor(float64(r.Min.X)*scale)),
			int(math.Floor(float64(r.Min.Y)*scale)),
			int(math.Ceil(float64(r.Max.X)*scale)),
			int(math.Ceil(float64(r.Max.Y)*scale)),
		).Add(bounds.Min).Intersect(bounds)
		blocks = append(blocks, Block{
			Rect:       rect,
			Type:       "unknown",
			Confidence: edgeDensity(edges, r),
		})
	}
	return blocks, nil
}

// grayscale converts img to a pooled gray buffer at origin, downsampled by
// nearest neighbour when it exceeds MaxSide. scale maps buffer pixels back to
// image pixels.
func (d *ContrastDetector) grayscale(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	scale := 1.0
	if side := max(b.Dx(), b.Dy()); d.MaxSide > 0 && side > d.MaxSide {
		scale = float64(side) / float64(d.MaxSide)
	}
	w := max(1, int(float64(b.Dx())/scale))
	h := max(1, int(float64(b.Dy())/scale))

	gray := system.GetGray(image.Rect(0, 0, w, h))
	if scale == 1 {
		draw.Draw(gray, gray.Rect, img, b.Min, draw.Src)
		return gray, scale
	}
	for y := 0; y < h; y++ {
		sy := b.Min.Y + int(float64(y)*scale)
		for x := 0; x < w; x++ {
			sx := b.Min.X + int(float64(x)*scale)
			gray.Pix[y*gray.Stride+x] = color.GrayModel.Convert(img.At(sx, sy)).(color.Gray).Y
		}
	}
	return gray, scale
}

// sobel writes 255 into dst where the gradient magnitude exceeds threshold.
func sobel(src, dst *image.Gray, threshold float64) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	at := func(x, y int) float64 { return float64(src.Pix[y*src.Stride+x]) }
	limit := threshold * threshold

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) - at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if gx*gx+gy*gy > limit {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
}

// dilate sets every pixel of dst within radius (Chebyshev) of a set pixel in src.
func dilate(src, dst *image.Gray, radius int) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	rows := system.GetGray(src.Rect)
	defer system.PutGray(rows)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if src.Pix[y*src.Stride+x] == 0 {
				continue
			}
			for dx := max(0, x-radius); dx <= min(w-1, x+radius); dx++ {
				rows.Pix[y*rows.Stride+dx] = 255
			}
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if rows.Pix[y*rows.Stride+x] == 0 {
				continue
			}
			for dy := max(0, y-radius); dy <= min(h-1, y+radius); dy++ {
				dst.Pix[dy*dst.Stride+x] = 255
			}
		}
	}
}

// components returns the bounding boxes of 4-connected set regions.
func components(mask *image.Gray) []image.Rectangle {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	visited := make([]bool, w*h)
	var rects []image.Rectangle
	var stack []int

	for start := range visited {
		if visited[start] || mask.Pix[(start/w)*mask.Stride+start%w] == 0 {
			continue
		}
		r := image.Rect(start%w, start/w, start%w+1, start/w+1)
		visited[start] = true
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			r = r.Union(image.Rect(x, y, x+1, y+1))

			for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if !visited[j] && mask.Pix[ny*mask.Stride+nx] != 0 {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}
		rects = append(rects, r)
	}
	return rects
}

// edgeDensity is the share of edge pixels inside r, used as confidence.
func edgeDensity(edges *image.Gray, r image.Rectangle) float64 {
	var n int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if edges.Pix[y*edges.Stride+x] != 0 {
				n++
			}
		}
	}
	area := r.Dx() * r.Dy()
	if area == 0 {
		return 0
	}
	return float64(n) / float64(area)
}
