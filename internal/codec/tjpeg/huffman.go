package tjpeg

import "fmt"

// zigzag maps the coded coefficient order to natural (row-major) order.
var zigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// build derives the canonical code ranges from the per-length code counts.
func (t *huffTable) build(counts *[16]byte) error {
	code, k := int32(0), int32(0)
	for l := 1; l <= 16; l++ {
		n := int32(counts[l-1])
		t.valptr[l] = k
		t.mincode[l] = code
		code += n
		k += n
		if n == 0 {
			t.maxcode[l] = -1
		} else {
			t.maxcode[l] = code - 1
		}
		if code > 1<<l {
			return fmt.Errorf("%w: over-subscribed Huffman table", ErrSyntax)
		}
		code <<= 1
	}
	t.valid = true
	return nil
}

// bit returns the next bit of entropy-coded data. After a marker is hit the scan is
// padded with zeros and the marker is kept for the restart logic.
func (d *Decoder) bit() (int32, error) {
	if d.nbits == 0 {
		if d.marker != 0 {
			d.acc, d.nbits = 0, 8
		} else {
			b, err := d.readByte()
			if err != nil {
				return 0, err
			}
			if b == 0xFF {
				n, err := d.readByte()
				if err != nil {
					return 0, err
				}
				for n == 0xFF {
					if n, err = d.readByte(); err != nil {
						return 0, err
					}
				}
				if n != 0x00 {
					d.marker = n
					b = 0
				}
			}
			d.acc, d.nbits = uint32(b), 8
		}
	}
	d.nbits--
	return int32(d.acc>>d.nbits) & 1, nil
}

func (d *Decoder) receive(s int) (int32, error) {
	var v int32
	for i := 0; i < s; i++ {
		b, err := d.bit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

// extend converts an s-bit magnitude category value to a signed coefficient.
func extend(v int32, s int) int32 {
	if s == 0 {
		return 0
	}
	if v < 1<<(s-1) {
		return v - (1 << s) + 1
	}
	return v
}

func (d *Decoder) decodeHuff(t *huffTable) (int, error) {
	code := int32(0)
	for l := 1; l <= 16; l++ {
		b, err := d.bit()
		if err != nil {
			return 0, err
		}
		code = code<<1 | b
		if code <= t.maxcode[l] {
			return int(t.vals[t.valptr[l]+code-t.mincode[l]]), nil
		}
	}
	return 0, fmt.Errorf("%w: bad Huffman code", ErrSyntax)
}

// decodeBlock decodes one 8x8 block into ws.coef as dequantized coefficients in
// natural order.
func (d *Decoder) decodeBlock(c *component) error {
	blk := &d.ws.coef
	*blk = [64]int32{}
	q := &d.ws.qt[c.tq]

	s, err := d.decodeHuff(&d.ws.dc[c.td])
	if err != nil {
		return err
	}
	if s > 11 {
		return fmt.Errorf("%w: DC magnitude %d", ErrSyntax, s)
	}
	v, err := d.receive(s)
	if err != nil {
		return err
	}
	c.pred += extend(v, s)
	blk[0] = c.pred * q[0]

	ac := &d.ws.ac[c.ta]
	for k := 1; k < 64; {
		rs, err := d.decodeHuff(ac)
		if err != nil {
			return err
		}
		r, s := rs>>4, rs&0x0F
		if s == 0 {
			if r != 15 {
				break // end of block
			}
			k += 16
			continue
		}
		k += r
		if k > 63 {
			return fmt.Errorf("%w: coefficient index", ErrSyntax)
		}
		v, err := d.receive(s)
		if err != nil {
			return err
		}
		z := zigzag[k]
		blk[z] = extend(v, s) * q[z]
		k++
	}
	return nil
}

// restartSync discards the remaining bits of the interval, consumes the RSTn marker
// and resets the DC predictors.
func (d *Decoder) restartSync(want int) error {
	d.nbits = 0
	m := d.marker
	d.marker = 0
	if m == 0 {
		var err error
		if m, err = d.nextMarker(); err != nil {
			return err
		}
	}
	if m != byte(mRST0+want&7) {
		return fmt.Errorf("%w: expected RST%d, got marker 0x%02X", ErrSyntax, want&7, m)
	}
	for i := range d.comp {
		d.comp[i].pred = 0
	}
	return nil
}
