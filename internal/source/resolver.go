package source

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ivlev/phrase2video/internal/config"
)

// DefaultDPI is used to rasterize PDF pages.
const DefaultDPI = 150

// Ref is a parsed image name. Page is 1-based and 0 for plain images.
type Ref struct {
	File string
	Page int
}

// ParseRef splits "deck.pdf#3" into the file and page number.
func ParseRef(name string) (Ref, error) {
	file, frag, ok := strings.Cut(name, "#")
	if !ok {
		return Ref{File: name}, nil
	}
	if !strings.EqualFold(filepath.Ext(file), ".pdf") {
		return Ref{}, fmt.Errorf("page reference %q is only valid for PDF files", name)
	}
	page, err := strconv.Atoi(frag)
	if err != nil || page < 1 {
		return Ref{}, fmt.Errorf("invalid page number in %q", name)
	}
	return Ref{File: file, Page: page}, nil
}

// Resolver maps rule image names to readable image files. PDF pages are
// rendered once into WorkDir.
type Resolver struct {
	ImagesDir string
	WorkDir   string
	DPI       int

	mu       sync.Mutex
	rendered map[string]string
}

func NewResolver(imagesDir, workDir string) *Resolver {
	return &Resolver{ImagesDir: imagesDir, WorkDir: workDir, DPI: DefaultDPI}
}

// Path returns the file to feed the encoder for name.
func (r *Resolver) Path(name string) (string, error) {
	ref, err := ParseRef(name)
	if err != nil {
		return "", err
	}
	path := ref.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.ImagesDir, path)
	}
	if ref.Page == 0 {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("image %q: %w", name, err)
		}
		if !IsImage(path) {
			return "", fmt.Errorf("image %q: unsupported format", name)
		}
		return path, nil
	}
	return r.renderPage(name, path, ref.Page)
}

// Dims returns the natural pixel size of name.
func (r *Resolver) Dims(name string) (config.Size, error) {
	src, err := r.open(name)
	if err != nil {
		return config.Size{}, err
	}
	defer src.Close()
	w, h, err := src.GetPageDimensions(0)
	if err != nil {
		return config.Size{}, err
	}
	return config.Size{Width: w, Height: h}, nil
}

// Image decodes name in full.
func (r *Resolver) Image(name string) (image.Image, error) {
	src, err := r.open(name)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return src.RenderPage(0, r.DPI)
}

// open returns the resolved still image of name as a one-page Source.
func (r *Resolver) open(name string) (Source, error) {
	path, err := r.Path(name)
	if err != nil {
		return nil, err
	}
	return NewImageSource(path)
}

func (r *Resolver) renderPage(name, pdfPath string, page int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rendered[name]; ok {
		return p, nil
	}

	src, err := Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", pdfPath, err)
	}
	defer src.Close()

	if page > src.PageCount() {
		return "", fmt.Errorf("image %q: document has %d pages", name, src.PageCount())
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	img, err := src.RenderPage(page-1, dpi)
	if err != nil {
		return "", fmt.Errorf("render %q: %w", name, err)
	}

	dir := r.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	out := filepath.Join(dir, fmt.Sprintf("%s_p%03d.png", base, page))

	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if r.rendered == nil {
		r.rendered = make(map[string]string)
	}
	r.rendered[name] = out
	return out, nil
}
