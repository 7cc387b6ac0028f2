package tjpeg

import (
	"fmt"
	"image"
	"io"
)

// Scale selects the output reduction. The zero value decodes at full size.
type Scale uint8

const (
	Scale1 Scale = iota
	Scale2
	Scale4
	Scale8
)

// ScaleFromFactor maps a reduction factor of 1, 2, 4 or 8 to its Scale. Any other
// factor decodes at full size.
func ScaleFromFactor(f int) Scale {
	switch f {
	case 2:
		return Scale2
	case 4:
		return Scale4
	case 8:
		return Scale8
	default:
		return Scale1
	}
}

// Factor returns the divisor applied to both dimensions.
func (s Scale) Factor() int {
	if s > Scale8 {
		return 1
	}
	return 1 << s
}

// Format is the pixel layout handed to the output callback.
type Format uint8

const (
	// RGB888 is 3 bytes per pixel in R, G, B order.
	RGB888 Format = iota
	// RGB565 is 2 bytes per pixel, little-endian unless swapped.
	RGB565
)

// BytesPerPixel returns the size of one pixel in f.
func (f Format) BytesPerPixel() int {
	if f == RGB565 {
		return 2
	}
	return 3
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithFormat selects the output pixel format.
func WithFormat(f Format) Option {
	return func(d *Decoder) { d.format = f }
}

// WithSwap emits RGB565 pixels big-endian, as most SPI panels expect.
func WithSwap(swap bool) Option {
	return func(d *Decoder) { d.swap = swap }
}

// OutputFunc receives one decoded tile. rect is in output coordinates and already
// clipped to the image; pix holds rect.Dx()*rect.Dy() pixels row by row and is only
// valid during the call. A non-nil error stops the decode.
type OutputFunc func(rect image.Rectangle, pix []byte) error

// Decompress decodes the scan and emits every MCU through out, left to right and top
// to bottom.
func (d *Decoder) Decompress(scale Scale, out OutputFunc) error {
	if d.used {
		return errState
	}
	d.used = true
	if scale > Scale8 {
		scale = Scale1
	}

	f := scale.Factor()
	bs := 8 / f
	cscale := chromaScale(scale, max(d.hmax, d.vmax))
	cbs := 8 / cscale.Factor()
	mcuW, mcuH := 8*d.hmax, 8*d.vmax
	mcusX := (d.width + mcuW - 1) / mcuW
	mcusY := (d.height + mcuH - 1) / mcuH
	tileW, tileH := mcuW/f, mcuH/f
	outW, outH := d.Bounds(scale)
	bpp := d.format.BytesPerPixel()

	n := 0
	rst := 0
	for my := 0; my < mcusY; my++ {
		for mx := 0; mx < mcusX; mx++ {
			if d.restart > 0 && n > 0 && n%d.restart == 0 {
				if err := d.restartSync(rst); err != nil {
					return err
				}
				rst++
			}
			n++

			if err := d.decodeMCU(scale, cscale); err != nil {
				return err
			}

			x0, y0 := mx*tileW, my*tileH
			w, h := min(tileW, outW-x0), min(tileH, outH-y0)
			pix := d.ws.tile[:w*h*bpp]
			d.convert(pix, w, h, bs, cbs)
			if err := out(image.Rect(x0, y0, x0+w, y0+h), pix); err != nil {
				return fmt.Errorf("%w: %v", ErrInterrupted, err)
			}
		}
	}
	return nil
}

// chromaScale is the scale the chroma blocks are transformed at. Subsampled chroma
// keeps one sample per output pixel for as long as the block allows it.
func chromaScale(scale Scale, factor int) Scale {
	for factor > 1 && scale > Scale1 {
		scale--
		factor /= 2
	}
	return scale
}

func (d *Decoder) decodeMCU(scale, cscale Scale) error {
	b := 0
	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		s := scale
		if i > 0 {
			s = cscale
		}
		for k := 0; k < c.h*c.v; k++ {
			if err := d.decodeBlock(c); err != nil {
				return err
			}
			idct(&d.ws.coef, &d.ws.samples[b], s)
			b++
		}
	}
	return nil
}

// convert writes the w x h visible part of the current MCU into pix. bs and cbs are
// the per-block sample widths of luma and chroma at the current scale.
func (d *Decoder) convert(pix []byte, w, h, bs, cbs int) {
	hy, vy := d.comp[0].h, d.comp[0].v
	lumaBlocks := hy * vy
	bpp := d.format.BytesPerPixel()
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			blk := (y/bs)*hy + x/bs
			yy := int32(d.ws.samples[blk][(y%bs)*bs+x%bs])
			r, g, b := yy, yy, yy
			if d.ncomp == 3 {
				cb, cr := d.chroma(lumaBlocks, x, y, cbs, hy*bs, vy*bs)
				r = clamp8(yy + (91881*cr+1<<15)>>16)
				g = clamp8(yy - (22554*cb+46802*cr+1<<15)>>16)
				b = clamp8(yy + (116130*cb+1<<15)>>16)
			}
			d.put(pix[i:i+bpp], r, g, b)
			i += bpp
		}
	}
}

// chroma returns the centered Cb and Cr of output pixel (x, y) of an mcuW x mcuH
// tile. The chroma blocks hold cbs x cbs samples spread over the tile; samples
// that fall on the same pixel are averaged.
func (d *Decoder) chroma(base, x, y, cbs, mcuW, mcuH int) (int32, int32) {
	x0 := x * cbs / mcuW
	x1 := max((x+1)*cbs/mcuW, x0+1)
	y0 := y * cbs / mcuH
	y1 := max((y+1)*cbs/mcuH, y0+1)

	cbBlk, crBlk := &d.ws.samples[base], &d.ws.samples[base+1]
	var sb, sr, n int32
	for cy := y0; cy < y1; cy++ {
		for cx := x0; cx < x1; cx++ {
			o := cy*cbs + cx
			sb += int32(cbBlk[o])
			sr += int32(crBlk[o])
			n++
		}
	}
	if n == 1 {
		return sb - 128, sr - 128
	}
	return (sb+n/2)/n - 128, (sr+n/2)/n - 128
}

func (d *Decoder) put(p []byte, r, g, b int32) {
	if d.format == RGB888 {
		p[0], p[1], p[2] = byte(r), byte(g), byte(b)
		return
	}
	v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
	if d.swap {
		p[0], p[1] = byte(v>>8), byte(v)
	} else {
		p[0], p[1] = byte(v), byte(v>>8)
	}
}

func clamp8(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// Decode prepares src and decompresses it in one call.
func Decode(src io.Reader, ws *Workspace, scale Scale, out OutputFunc, opts ...Option) error {
	d, err := Prepare(src, ws, opts...)
	if err != nil {
		return err
	}
	return d.Decompress(scale, out)
}
