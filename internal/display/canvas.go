// Package display holds the panel framebuffer the decoded tiles are drawn into.
package display

import (
	"image"
	"image/color"
	"sync"
)

const (
	DefaultWidth  = 320
	DefaultHeight = 480
)

// Canvas is an RGBA framebuffer the size of the panel. Tiles are RGB888 and are
// placed relative to the current image origin, so images smaller than the panel
// end up centered.
type Canvas struct {
	mu     sync.RWMutex
	img    *image.RGBA
	origin image.Point
	gen    uint64
}

func NewCanvas(w, h int) *Canvas {
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	c := &Canvas{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	c.Clear(color.RGBA{A: 255})
	return c
}

func (c *Canvas) Bounds() image.Rectangle { return c.img.Bounds() }

func (c *Canvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Center sets the origin so that an image of w x h pixels sits in the middle of
// the panel. Images larger than the panel are anchored at the top left corner.
func (c *Canvas) Center(w, h int) {
	pw, ph := c.Size()
	c.mu.Lock()
	c.origin = image.Pt(max((pw-w)/2, 0), max((ph-h)/2, 0))
	c.mu.Unlock()
}

func (c *Canvas) Clear(col color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.img.Pix
	for i := 0; i < len(p); i += 4 {
		p[i], p[i+1], p[i+2], p[i+3] = col.R, col.G, col.B, col.A
	}
}

// Blit copies a w x h RGB888 tile whose top left corner is (x, y) in image
// coordinates. Parts outside the panel are dropped.
func (c *Canvas) Blit(x, y, w, h int, pix []byte) {
	if len(pix) < w*h*3 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dst := image.Rect(x, y, x+w, y+h).Add(c.origin)
	clip := dst.Intersect(c.img.Bounds())
	if clip.Empty() {
		return
	}
	for py := clip.Min.Y; py < clip.Max.Y; py++ {
		si := ((py-dst.Min.Y)*w + (clip.Min.X - dst.Min.X)) * 3
		di := c.img.PixOffset(clip.Min.X, py)
		for px := clip.Min.X; px < clip.Max.X; px++ {
			c.img.Pix[di] = pix[si]
			c.img.Pix[di+1] = pix[si+1]
			c.img.Pix[di+2] = pix[si+2]
			c.img.Pix[di+3] = 255
			si += 3
			di += 4
		}
	}
}

// Commit marks the current content as a finished frame and returns its
// generation.
func (c *Canvas) Commit() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return c.gen
}

// Generation counts the frames committed so far.
func (c *Canvas) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Snapshot returns a copy of the framebuffer.
func (c *Canvas) Snapshot() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// Restore replaces the framebuffer with img, cropped or padded to the panel.
func (c *Canvas) Restore(img *image.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := img.Bounds().Intersect(c.img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		copy(c.img.Pix[c.img.PixOffset(r.Min.X, y):c.img.PixOffset(r.Max.X, y)],
			img.Pix[img.PixOffset(r.Min.X, y):img.PixOffset(r.Max.X, y)])
	}
}
