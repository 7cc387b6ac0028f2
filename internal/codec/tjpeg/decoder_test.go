package tjpeg

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"
	"testing/iotest"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

type result struct {
	img   *image.RGBA
	rects []image.Rectangle
}

func decode(t *testing.T, data []byte, scale Scale) result {
	t.Helper()
	d, err := Prepare(bytes.NewReader(data), NewWorkspace())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	w, h := d.Bounds(scale)
	res := result{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	err = d.Decompress(scale, func(r image.Rectangle, pix []byte) error {
		if len(pix) != r.Dx()*r.Dy()*3 {
			t.Fatalf("tile %v carries %d bytes", r, len(pix))
		}
		res.rects = append(res.rects, r)
		i := 0
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				res.img.SetRGBA(x, y, color.RGBA{pix[i], pix[i+1], pix[i+2], 255})
				i += 3
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	return res
}

func reference(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("stdlib decode: %v", err)
	}
	return img
}

// boxAverage reduces img by f using plain box averaging, clipping partial boxes.
func boxAverage(img image.Image, f int) *image.RGBA {
	b := img.Bounds()
	w, h := (b.Dx()+f-1)/f, (b.Dy()+f-1)/f
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for oy := 0; oy < h; oy++ {
		for ox := 0; ox < w; ox++ {
			var sr, sg, sb, n int
			for y := oy * f; y < min(oy*f+f, b.Dy()); y++ {
				for x := ox * f; x < min(ox*f+f, b.Dx()); x++ {
					c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
					sr += int(c.R)
					sg += int(c.G)
					sb += int(c.B)
					n++
				}
			}
			out.SetRGBA(ox, oy, color.RGBA{uint8(sr / n), uint8(sg / n), uint8(sb / n), 255})
		}
	}
	return out
}

func diff(a, b image.Image) (mean float64, max int) {
	r := a.Bounds()
	var sum, n int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			ca := color.RGBAModel.Convert(a.At(x, y)).(color.RGBA)
			cb := color.RGBAModel.Convert(b.At(x, y)).(color.RGBA)
			for _, d := range []int{
				int(ca.R) - int(cb.R),
				int(ca.G) - int(cb.G),
				int(ca.B) - int(cb.B),
			} {
				if d < 0 {
					d = -d
				}
				sum += d
				if d > max {
					max = d
				}
				n++
			}
		}
	}
	return float64(sum) / float64(n), max
}

func TestDecode_MatchesStdlib(t *testing.T) {
	for _, tc := range []struct {
		name string
		img  image.Image
	}{
		{"ycbcr_420", gradient(64, 48)},
		{"odd_size", gradient(50, 37)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data := encode(t, tc.img)
			got := decode(t, data, Scale1)
			want := reference(t, data)
			if got.img.Bounds().Size() != want.Bounds().Size() {
				t.Fatalf("got size %v want %v", got.img.Bounds().Size(), want.Bounds().Size())
			}
			mean, max := diff(got.img, want)
			if mean > 2 || max > 16 {
				t.Fatalf("pixels differ from image/jpeg: mean %.2f max %d", mean, max)
			}
		})
	}
}

func TestDecode_Gray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 24, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			src.SetGray(x, y, color.Gray{uint8(x * 10)})
		}
	}
	data := encode(t, src)
	d, err := Prepare(bytes.NewReader(data), NewWorkspace())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if d.Components() != 1 {
		t.Fatalf("got %d components want 1", d.Components())
	}
	got := decode(t, data, Scale1)
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			c := got.img.RGBAAt(x, y)
			if c.R != c.G || c.G != c.B {
				t.Fatalf("pixel (%d,%d) is not gray: %v", x, y, c)
			}
		}
	}
	mean, max := diff(got.img, reference(t, data))
	if mean > 2 || max > 12 {
		t.Fatalf("pixels differ from image/jpeg: mean %.2f max %d", mean, max)
	}
}

func TestDecode_TilesCoverOutputOnce(t *testing.T) {
	data := encode(t, gradient(100, 60))
	for _, scale := range []Scale{Scale1, Scale2, Scale4, Scale8} {
		res := decode(t, data, scale)
		f := scale.Factor()
		w, h := (100+f-1)/f, (60+f-1)/f
		if got := res.img.Bounds().Size(); got != image.Pt(w, h) {
			t.Fatalf("scale 1/%d: got size %v want %dx%d", f, got, w, h)
		}
		hits := make([]int, w*h)
		for _, r := range res.rects {
			if !r.In(image.Rect(0, 0, w, h)) {
				t.Fatalf("scale 1/%d: tile %v outside output", f, r)
			}
			for y := r.Min.Y; y < r.Max.Y; y++ {
				for x := r.Min.X; x < r.Max.X; x++ {
					hits[y*w+x]++
				}
			}
		}
		for i, n := range hits {
			if n != 1 {
				t.Fatalf("scale 1/%d: pixel (%d,%d) covered %d times", f, i%w, i/w, n)
			}
		}
	}
}

func TestDecode_HalfScaleQuartersArea(t *testing.T) {
	data := encode(t, gradient(128, 64))
	area := func(rs []image.Rectangle) int {
		n := 0
		for _, r := range rs {
			n += r.Dx() * r.Dy()
		}
		return n
	}
	full := area(decode(t, data, Scale1).rects)
	half := area(decode(t, data, Scale2).rects)
	if full != 128*64 || half*4 != full {
		t.Fatalf("got areas %d (1/1) and %d (1/2)", full, half)
	}
}

func TestDecode_ScaledCloseToBoxAverage(t *testing.T) {
	data := encode(t, gradient(96, 64))
	want := reference(t, data)
	for _, scale := range []Scale{Scale2, Scale4, Scale8} {
		got := decode(t, data, scale)
		// the decoder averages in YCbCr and the reference in RGB
		limit := 2 + float64(scale.Factor())/2
		mean, _ := diff(got.img, boxAverage(want, scale.Factor()))
		if mean > limit {
			t.Fatalf("scale 1/%d: mean difference %.2f", scale.Factor(), mean)
		}
	}
}

func TestDecode_RGB565(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+1], src.Pix[i+2], src.Pix[i+3] = 200, 100, 48, 255
	}
	data := encode(t, src)

	collect := func(swap bool) []byte {
		var out []byte
		err := Decode(bytes.NewReader(data), NewWorkspace(), Scale1, func(r image.Rectangle, pix []byte) error {
			if len(pix) != r.Dx()*r.Dy()*2 {
				t.Fatalf("tile %v carries %d bytes", r, len(pix))
			}
			out = append(out, pix...)
			return nil
		}, WithFormat(RGB565), WithSwap(swap))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out
	}

	le := collect(false)
	be := collect(true)
	if len(le) != 16*16*2 || len(be) != len(le) {
		t.Fatalf("got %d and %d bytes", len(le), len(be))
	}
	for i := 0; i < len(le); i += 2 {
		if le[i] != be[i+1] || le[i+1] != be[i] {
			t.Fatalf("pixel %d: swap did not reverse byte order", i/2)
		}
		v := uint16(le[i]) | uint16(le[i+1])<<8
		r, g, b := int(v>>11), int(v>>5&0x3F), int(v&0x1F)
		if abs(r-200>>3) > 1 || abs(g-100>>2) > 1 || abs(b-48>>3) > 1 {
			t.Fatalf("pixel %d: got 565 (%d,%d,%d)", i/2, r, g, b)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestDecode_ShortReads(t *testing.T) {
	data := encode(t, gradient(40, 40))
	var n int
	err := Decode(iotest.OneByteReader(bytes.NewReader(data)), NewWorkspace(), Scale1, func(r image.Rectangle, _ []byte) error {
		n += r.Dx() * r.Dy()
		return nil
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != 40*40 {
		t.Fatalf("got %d pixels want %d", n, 40*40)
	}
}

func TestDecode_Errors(t *testing.T) {
	valid := encode(t, gradient(64, 64))
	progressive := []byte{
		0xFF, 0xD8,
		0xFF, 0xC2, 0x00, 0x0B, 0x08, 0x00, 0x10, 0x00, 0x10, 0x01, 0x01, 0x11, 0x00,
	}
	sixteenBit := []byte{
		0xFF, 0xD8,
		0xFF, 0xC0, 0x00, 0x0B, 0x0C, 0x00, 0x10, 0x00, 0x10, 0x01, 0x01, 0x11, 0x00,
	}
	arithmetic := []byte{0xFF, 0xD8, 0xFF, 0xCC, 0x00, 0x04, 0x00, 0x00}
	noScan := []byte{0xFF, 0xD8, 0xFF, 0xFE, 0x00, 0x03, 'h', 0xFF, 0xD9}

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrNoJPEG},
		{"not_jpeg", []byte("hello world"), ErrNoJPEG},
		{"progressive", progressive, ErrUnsupported},
		{"twelve_bit", sixteenBit, ErrUnsupported},
		{"arithmetic", arithmetic, ErrUnsupported},
		{"eoi_before_scan", noScan, ErrSyntax},
		{"truncated_header", valid[:40], io.ErrUnexpectedEOF},
		{"truncated_scan", valid[:len(valid)/2], io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode(bytes.NewReader(tt.in), NewWorkspace(), Scale1, func(image.Rectangle, []byte) error { return nil })
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}

	t.Run("nil_workspace", func(t *testing.T) {
		if _, err := Prepare(bytes.NewReader(valid), nil); !errors.Is(err, ErrWorkspace) {
			t.Fatalf("got %v want %v", err, ErrWorkspace)
		}
	})
}

func TestDecode_Interrupted(t *testing.T) {
	data := encode(t, gradient(64, 64))
	stop := errors.New("panel gone")
	calls := 0
	err := Decode(bytes.NewReader(data), NewWorkspace(), Scale1, func(image.Rectangle, []byte) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v want %v", err, ErrInterrupted)
	}
	if calls != 2 {
		t.Fatalf("output called %d times after stop", calls)
	}
}

func TestDecoder_SingleUse(t *testing.T) {
	data := encode(t, gradient(16, 16))
	d, err := Prepare(bytes.NewReader(data), NewWorkspace())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	noop := func(image.Rectangle, []byte) error { return nil }
	if err := d.Decompress(Scale1, noop); err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if err := d.Decompress(Scale1, noop); err == nil {
		t.Fatal("second decompress succeeded")
	}
}

func TestScaleFromFactor(t *testing.T) {
	for f, want := range map[int]Scale{1: Scale1, 2: Scale2, 4: Scale4, 8: Scale8, 3: Scale1, 0: Scale1, 16: Scale1} {
		if got := ScaleFromFactor(f); got != want {
			t.Fatalf("factor %d: got %d want %d", f, got, want)
		}
	}
}

func TestDecode_EighthScaleKeepsChroma(t *testing.T) {
	// 8 pixel wide red and blue stripes: each 4:2:0 MCU holds one of each
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			c := color.RGBA{200, 30, 30, 255}
			if x%16 >= 8 {
				c = color.RGBA{30, 30, 200, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}

	got := decode(t, encode(t, img), Scale8).img
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			px := got.RGBAAt(x, y)
			red := int(px.R) - int(px.B)
			if x%2 == 0 && red < 80 || x%2 == 1 && red > -80 {
				t.Fatalf("pixel (%d,%d) = %v, stripes blended", x, y, px)
			}
		}
	}
}
