package source

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsImage reports whether name has an image extension the decoders know.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ImageSource is a single still image exposed as a one-page Source.
type ImageSource struct {
	path string
}

func NewImageSource(path string) (*ImageSource, error) {
	if !IsImage(path) {
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &ImageSource{path: path}, nil
}

func (s *ImageSource) PageCount() int {
	return 1
}

func (s *ImageSource) GetPageDimensions(index int) (float64, float64, error) {
	if index != 0 {
		return 0, 0, fmt.Errorf("page %d out of range", index)
	}
	w, h, err := DecodeDimensions(s.path)
	return float64(w), float64(h), err
}

func (s *ImageSource) RenderPage(index int, dpi int) (image.Image, error) {
	if index != 0 {
		return nil, fmt.Errorf("page %d out of range", index)
	}
	return DecodeImage(s.path)
}

func (s *ImageSource) Close() error {
	return nil
}

// DecodeDimensions reads only the image header.
func DecodeDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// DecodeImage decodes the full image.
func DecodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
