package system

import (
	"image"
	"sync"
)

// GrayPool reuses *image.Gray buffers of equal bounds across analysis
// passes to keep garbage collection pressure down.
type GrayPool struct {
	pools map[image.Rectangle]*sync.Pool
	mu    sync.RWMutex
}

var globalPool = &GrayPool{
	pools: make(map[image.Rectangle]*sync.Pool),
}

// GetGray returns a zeroed gray buffer with the given bounds.
func GetGray(rect image.Rectangle) *image.Gray {
	return globalPool.Get(rect)
}

// PutGray returns a buffer obtained from GetGray to the pool.
func PutGray(img *image.Gray) {
	globalPool.Put(img)
}

func (p *GrayPool) Get(rect image.Rectangle) *image.Gray {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() any {
					return image.NewGray(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	img := pool.Get().(*image.Gray)
	clear(img.Pix)
	return img
}

func (p *GrayPool) Put(img *image.Gray) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}
