// Package tjpeg is a small-footprint baseline JPEG decoder.
//
// The decoder pulls compressed bytes from an io.Reader through a fixed input buffer
// and hands the image to the caller one MCU tile at a time, so a full frame is never
// held in memory. All tables and scratch blocks live in a Workspace whose size does
// not depend on the image.
package tjpeg

import (
	"errors"
	"fmt"
	"io"
)

// JPEG markers.
const (
	mSOF0 = 0xC0
	mSOF1 = 0xC1
	mSOF2 = 0xC2
	mSOF3 = 0xC3
	mDHT  = 0xC4
	mSOF5 = 0xC5
	mSOF7 = 0xC7
	mJPG  = 0xC8
	mSOF9 = 0xC9
	mDAC  = 0xCC
	mSOFF = 0xCF
	mRST0 = 0xD0
	mRST7 = 0xD7
	mSOI  = 0xD8
	mEOI  = 0xD9
	mSOS  = 0xDA
	mDQT  = 0xDB
	mDNL  = 0xDC
	mDRI  = 0xDD
)

type component struct {
	id     byte
	h, v   int
	tq     int
	td, ta int
	pred   int32
}

// Decoder holds the parsed headers of one image. It is single use.
type Decoder struct {
	src io.Reader
	ws  *Workspace

	format Format
	swap   bool

	width, height int
	ncomp         int
	comp          [3]component
	hmax, vmax    int
	restart       int

	head, tail int

	acc    uint32
	nbits  uint
	marker byte

	used bool
}

// Prepare reads the stream headers up to the start of the first scan.
func Prepare(src io.Reader, ws *Workspace, opts ...Option) (*Decoder, error) {
	if ws == nil {
		return nil, ErrWorkspace
	}
	ws.reset()
	d := &Decoder{src: src, ws: ws, format: RGB888}
	for _, opt := range opts {
		opt(d)
	}

	b0, err := d.readByte()
	if err != nil {
		return nil, noJPEG(err)
	}
	b1, err := d.readByte()
	if err != nil {
		return nil, noJPEG(err)
	}
	if b0 != 0xFF || b1 != mSOI {
		return nil, ErrNoJPEG
	}

	sof := false
	for {
		m, err := d.nextMarker()
		if err != nil {
			return nil, err
		}
		switch {
		case m == mSOF0 || m == mSOF1:
			if err := d.readSOF(); err != nil {
				return nil, err
			}
			sof = true
		case m == mSOF2 || m == mSOF3 || (m >= mSOF5 && m <= mSOF7) || (m >= mSOF9 && m <= mSOFF && m != mDAC) || m == mJPG:
			return nil, fmt.Errorf("%w: SOF marker 0x%02X", ErrUnsupported, m)
		case m == mDAC:
			return nil, fmt.Errorf("%w: arithmetic coding", ErrUnsupported)
		case m == mDHT:
			if err := d.readDHT(); err != nil {
				return nil, err
			}
		case m == mDQT:
			if err := d.readDQT(); err != nil {
				return nil, err
			}
		case m == mDRI:
			if err := d.readDRI(); err != nil {
				return nil, err
			}
		case m == mSOS:
			if !sof {
				return nil, fmt.Errorf("%w: scan before frame header", ErrSyntax)
			}
			if err := d.readSOS(); err != nil {
				return nil, err
			}
			return d, nil
		case m == mEOI:
			return nil, fmt.Errorf("%w: end of image before scan", ErrSyntax)
		case m == mDNL:
			return nil, fmt.Errorf("%w: DNL marker", ErrUnsupported)
		case m >= mRST0 && m <= mRST7:
			return nil, fmt.Errorf("%w: restart marker outside scan", ErrSyntax)
		default:
			if err := d.skipSegment(); err != nil {
				return nil, err
			}
		}
	}
}

// Width returns the image width in pixels at scale 1.
func (d *Decoder) Width() int { return d.width }

// Height returns the image height in pixels at scale 1.
func (d *Decoder) Height() int { return d.height }

// Components returns 1 for grayscale and 3 for YCbCr images.
func (d *Decoder) Components() int { return d.ncomp }

// Bounds returns the output size at the given scale.
func (d *Decoder) Bounds(scale Scale) (w, h int) {
	f := scale.Factor()
	return (d.width + f - 1) / f, (d.height + f - 1) / f
}

func noJPEG(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrNoJPEG
	}
	return err
}

// nextMarker skips to the next marker and returns its code. Fill bytes (0xFF) are
// allowed before the code.
func (d *Decoder) nextMarker() (byte, error) {
	b, err := d.readByte()
	if err != nil {
		return 0, err
	}
	for b != 0xFF {
		if b, err = d.readByte(); err != nil {
			return 0, err
		}
	}
	for b == 0xFF {
		if b, err = d.readByte(); err != nil {
			return 0, err
		}
	}
	if b == 0x00 {
		return 0, fmt.Errorf("%w: stuffed byte outside scan", ErrSyntax)
	}
	return b, nil
}

func (d *Decoder) segmentLength() (int, error) {
	n, err := d.readUint16()
	if err != nil {
		return 0, err
	}
	if n < 2 {
		return 0, fmt.Errorf("%w: segment length %d", ErrSyntax, n)
	}
	return int(n) - 2, nil
}

func (d *Decoder) skipSegment() error {
	n, err := d.segmentLength()
	if err != nil {
		return err
	}
	return d.skip(n)
}

func (d *Decoder) readSOF() error {
	n, err := d.segmentLength()
	if err != nil {
		return err
	}
	if n < 6 {
		return fmt.Errorf("%w: short frame header", ErrSyntax)
	}
	prec, err := d.readByte()
	if err != nil {
		return err
	}
	h, err := d.readUint16()
	if err != nil {
		return err
	}
	w, err := d.readUint16()
	if err != nil {
		return err
	}
	nc, err := d.readByte()
	if err != nil {
		return err
	}
	if prec != 8 {
		return fmt.Errorf("%w: %d-bit precision", ErrUnsupported, prec)
	}
	if h == 0 {
		return fmt.Errorf("%w: height defined by DNL", ErrUnsupported)
	}
	if w == 0 {
		return fmt.Errorf("%w: zero width", ErrSyntax)
	}
	if nc != 1 && nc != 3 {
		return fmt.Errorf("%w: %d components", ErrUnsupported, nc)
	}
	if n != 6+3*int(nc) {
		return fmt.Errorf("%w: frame header length", ErrSyntax)
	}
	d.width, d.height, d.ncomp = int(w), int(h), int(nc)

	for i := 0; i < d.ncomp; i++ {
		var p [3]byte
		if err := d.readFull(p[:]); err != nil {
			return err
		}
		c := &d.comp[i]
		c.id = p[0]
		c.h, c.v = int(p[1]>>4), int(p[1]&0x0F)
		c.tq = int(p[2])
		if c.h < 1 || c.h > 4 || c.v < 1 || c.v > 4 {
			return fmt.Errorf("%w: sampling factor", ErrSyntax)
		}
		if c.tq >= quantSlots {
			return fmt.Errorf("%w: quantization table %d", ErrSyntax, c.tq)
		}
	}

	if d.ncomp == 1 {
		// a single component scan is never interleaved, its MCU is one block
		d.comp[0].h, d.comp[0].v = 1, 1
	} else {
		if d.comp[1].h != 1 || d.comp[1].v != 1 || d.comp[2].h != 1 || d.comp[2].v != 1 {
			return fmt.Errorf("%w: chroma subsampling", ErrUnsupported)
		}
		if d.comp[0].h*d.comp[0].v > maxLumaBlocks {
			return fmt.Errorf("%w: %dx%d luma sampling", ErrWorkspace, d.comp[0].h, d.comp[0].v)
		}
		if d.comp[0].h == 3 || d.comp[0].v == 3 {
			return fmt.Errorf("%w: 3x luma sampling", ErrUnsupported)
		}
	}
	d.hmax, d.vmax = d.comp[0].h, d.comp[0].v
	return nil
}

func (d *Decoder) readDQT() error {
	n, err := d.segmentLength()
	if err != nil {
		return err
	}
	for n > 0 {
		pt, err := d.readByte()
		if err != nil {
			return err
		}
		n--
		pq, tq := pt>>4, int(pt&0x0F)
		if pq != 0 {
			return fmt.Errorf("%w: 16-bit quantization table", ErrUnsupported)
		}
		if tq >= quantSlots {
			return fmt.Errorf("%w: quantization table %d", ErrWorkspace, tq)
		}
		if n < 64 {
			return fmt.Errorf("%w: short quantization table", ErrSyntax)
		}
		q := &d.ws.qt[tq]
		for k := 0; k < 64; k++ {
			v, err := d.readByte()
			if err != nil {
				return err
			}
			q[zigzag[k]] = int32(v)
		}
		d.ws.qv[tq] = true
		n -= 64
	}
	return nil
}

func (d *Decoder) readDHT() error {
	n, err := d.segmentLength()
	if err != nil {
		return err
	}
	for n > 0 {
		if n < 17 {
			return fmt.Errorf("%w: short Huffman table", ErrSyntax)
		}
		tcth, err := d.readByte()
		if err != nil {
			return err
		}
		tc, th := tcth>>4, int(tcth&0x0F)
		if tc > 1 {
			return fmt.Errorf("%w: Huffman class %d", ErrSyntax, tc)
		}
		if th >= huffSlots {
			return fmt.Errorf("%w: Huffman table %d", ErrWorkspace, th)
		}
		var counts [16]byte
		if err := d.readFull(counts[:]); err != nil {
			return err
		}
		n -= 17

		t := &d.ws.dc[th]
		if tc == 1 {
			t = &d.ws.ac[th]
		}
		total := 0
		for _, c := range counts {
			total += int(c)
		}
		if total == 0 || total > len(t.vals) || total > n {
			return fmt.Errorf("%w: Huffman table size", ErrSyntax)
		}
		if err := d.readFull(t.vals[:total]); err != nil {
			return err
		}
		n -= total
		if err := t.build(&counts); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) readDRI() error {
	n, err := d.segmentLength()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("%w: restart interval length", ErrSyntax)
	}
	ri, err := d.readUint16()
	if err != nil {
		return err
	}
	d.restart = int(ri)
	return nil
}

func (d *Decoder) readSOS() error {
	n, err := d.segmentLength()
	if err != nil {
		return err
	}
	ns, err := d.readByte()
	if err != nil {
		return err
	}
	if int(ns) != d.ncomp {
		return fmt.Errorf("%w: non-interleaved scan", ErrUnsupported)
	}
	if n != 4+2*int(ns) {
		return fmt.Errorf("%w: scan header length", ErrSyntax)
	}
	for i := 0; i < int(ns); i++ {
		var p [2]byte
		if err := d.readFull(p[:]); err != nil {
			return err
		}
		c := &d.comp[i]
		if c.id != p[0] {
			return fmt.Errorf("%w: scan component order", ErrUnsupported)
		}
		c.td, c.ta = int(p[1]>>4), int(p[1]&0x0F)
		if c.td >= huffSlots || c.ta >= huffSlots {
			return fmt.Errorf("%w: Huffman selector", ErrWorkspace)
		}
		if !d.ws.dc[c.td].valid || !d.ws.ac[c.ta].valid {
			return fmt.Errorf("%w: missing Huffman table", ErrSyntax)
		}
		if !d.ws.qv[c.tq] {
			return fmt.Errorf("%w: missing quantization table", ErrSyntax)
		}
	}
	var p [3]byte
	if err := d.readFull(p[:]); err != nil {
		return err
	}
	if p[0] != 0 || p[1] != 63 || p[2] != 0 {
		return fmt.Errorf("%w: spectral selection", ErrUnsupported)
	}
	return nil
}

// fill refills the input buffer. A clean end of input at this point is always a
// truncation.
func (d *Decoder) fill() error {
	for {
		n, err := d.src.Read(d.ws.in[:])
		if n > 0 {
			d.head, d.tail = 0, n
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
}

func (d *Decoder) readByte() (byte, error) {
	if d.head == d.tail {
		if err := d.fill(); err != nil {
			return 0, err
		}
	}
	b := d.ws.in[d.head]
	d.head++
	return b, nil
}

func (d *Decoder) readUint16() (uint16, error) {
	hi, err := d.readByte()
	if err != nil {
		return 0, err
	}
	lo, err := d.readByte()
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

func (d *Decoder) readFull(p []byte) error {
	for len(p) > 0 {
		if d.head == d.tail {
			if err := d.fill(); err != nil {
				return err
			}
		}
		c := copy(p, d.ws.in[d.head:d.tail])
		d.head += c
		p = p[c:]
	}
	return nil
}

func (d *Decoder) skip(n int) error {
	for n > 0 {
		if d.head == d.tail {
			if err := d.fill(); err != nil {
				return err
			}
		}
		c := min(n, d.tail-d.head)
		d.head += c
		n -= c
	}
	return nil
}
