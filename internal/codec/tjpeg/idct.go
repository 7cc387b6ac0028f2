package tjpeg

import "math"

// idctCos[x][u] = C(u)/2 * cos((2x+1)uπ/16)
var idctCos [8][8]float32

func init() {
	for x := 0; x < 8; x++ {
		for u := 0; u < 8; u++ {
			cu := 1.0
			if u == 0 {
				cu = 1 / math.Sqrt2
			}
			idctCos[x][u] = float32(cu * math.Cos(float64((2*x+1)*u)*math.Pi/16) / 2)
		}
	}
}

func clampSample(v float32) uint8 {
	v += 128.5
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// idct transforms the dequantized block and writes (8/f)x(8/f) samples to dst, each
// the mean of an f x f box of the full-resolution output. At 1/8 only the DC term is
// needed.
func idct(blk *[64]int32, dst *[64]uint8, scale Scale) {
	if scale == Scale8 {
		dst[0] = clampSample(float32(blk[0]) / 8)
		return
	}

	var tmp, out [64]float32
	for v := 0; v < 8; v++ {
		row := blk[v*8 : v*8+8]
		zero := true
		for u := 1; u < 8; u++ {
			if row[u] != 0 {
				zero = false
				break
			}
		}
		if zero {
			dc := float32(row[0]) * idctCos[0][0]
			for x := 0; x < 8; x++ {
				tmp[v*8+x] = dc
			}
			continue
		}
		for x := 0; x < 8; x++ {
			var s float32
			for u := 0; u < 8; u++ {
				s += float32(row[u]) * idctCos[x][u]
			}
			tmp[v*8+x] = s
		}
	}
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			var s float32
			for v := 0; v < 8; v++ {
				s += tmp[v*8+x] * idctCos[y][v]
			}
			out[y*8+x] = s
		}
	}

	f := scale.Factor()
	if f == 1 {
		for i, s := range out {
			dst[i] = clampSample(s)
		}
		return
	}
	n := 8 / f
	inv := 1 / float32(f*f)
	for by := 0; by < n; by++ {
		for bx := 0; bx < n; bx++ {
			var s float32
			for y := by * f; y < by*f+f; y++ {
				for x := bx * f; x < bx*f+f; x++ {
					s += out[y*8+x]
				}
			}
			dst[by*n+bx] = clampSample(s * inv)
		}
	}
}
