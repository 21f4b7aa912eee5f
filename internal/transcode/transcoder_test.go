package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"arstate/internal/media"
	"arstate/pkg/imgutil"
)

type fakeLegacy struct {
	out []byte
	err error
}

func (f fakeLegacy) DecodeToStandard(ctx context.Context, data []byte) ([]byte, error) {
	return f.out, f.err
}

func TestTranscodeAllKinds(t *testing.T) {
	img := photo(64, 48, 1)
	pngSrc := encode(t, img, "png")
	jpegSrc := encode(t, img, "jpeg")

	tr := New(fakeLegacy{out: pngSrc}, zerolog.Nop())

	sources := []struct {
		kind media.SourceKind
		data []byte
	}{
		{media.SourcePNG, pngSrc},
		{media.SourceJPEG, jpegSrc},
		{media.SourceLegacy, []byte("heic bytes handled by the fake")},
	}
	targets := map[media.OutputKind]imgutil.Kind{
		media.OutputPNG: imgutil.KindPNG,
		media.OutputJPG: imgutil.KindJPEG,
		media.OutputICO: imgutil.KindICO,
	}

	for _, src := range sources {
		for target, want := range targets {
			for _, quality := range []int{40, media.Lossless} {
				req := media.Request{Target: target, Quality: quality, Scale: 100}
				res, err := tr.Transcode(context.Background(), "src", src.data, src.kind, req)
				if err != nil {
					t.Fatalf("%s -> %s q%d: %v", src.kind, target, quality, err)
				}
				if len(res.Data) == 0 {
					t.Fatalf("%s -> %s: empty output", src.kind, target)
				}
				if got := imgutil.Detect(res.Data); got != want {
					t.Fatalf("%s -> %s: got %s bytes", src.kind, target, got)
				}
			}
		}
	}
}

func TestTranscodeDimensions(t *testing.T) {
	tr := New(nil, zerolog.Nop())
	src := encode(t, gradient(1000, 800), "png")

	cases := []struct {
		req  media.Request
		w, h int
	}{
		{media.Request{Target: media.OutputPNG, Quality: media.Lossless, Scale: 100}, 1000, 800},
		{media.Request{Target: media.OutputJPG, Quality: 80, Scale: 50}, 500, 400},
		{media.Request{Target: media.OutputICO, Quality: 80, Scale: 10}, 32, 32},
		{media.Request{Target: media.OutputICO, Quality: 80, Scale: 100}, 32, 32},
	}
	for _, tc := range cases {
		res, err := tr.Transcode(context.Background(), "gradient.png", src, media.SourcePNG, tc.req)
		if err != nil {
			t.Fatalf("transcode %+v: %v", tc.req, err)
		}
		if res.Width != tc.w || res.Height != tc.h {
			t.Fatalf("%+v: got %dx%d, want %dx%d", tc.req, res.Width, res.Height, tc.w, tc.h)
		}
		if tc.req.Target == media.OutputICO {
			continue
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Data))
		if err != nil {
			t.Fatalf("decode config: %v", err)
		}
		if cfg.Width != tc.w || cfg.Height != tc.h {
			t.Fatalf("encoded %dx%d, want %dx%d", cfg.Width, cfg.Height, tc.w, tc.h)
		}
	}
}

func TestTargetSizeFloorsAtOnePixel(t *testing.T) {
	w, h := TargetSize(3, 1, media.Request{Target: media.OutputPNG, Scale: 10})
	if w != 1 || h != 1 {
		t.Fatalf("got %dx%d, want 1x1", w, h)
	}
	w, h = TargetSize(333, 7, media.Request{Target: media.OutputJPG, Scale: 0.5})
	if w != 2 || h != 1 {
		t.Fatalf("got %dx%d, want 2x1", w, h)
	}
}

func TestLosslessPNGKeepsPixels(t *testing.T) {
	img := photo(40, 30, 2)
	src := encode(t, img, "png")

	tr := New(nil, zerolog.Nop())
	res, err := tr.Transcode(context.Background(), "a.png", src, media.SourcePNG,
		media.Request{Target: media.OutputPNG, Quality: media.Lossless, Scale: 100})
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}

	out, err := png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			want := color.NRGBAModel.Convert(img.At(x, y))
			got := color.NRGBAModel.Convert(out.At(x, y))
			if want != got {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestLossyPNGIsSmaller(t *testing.T) {
	src := encode(t, noisyScene(192, 128, 3), "png")
	tr := New(nil, zerolog.Nop())

	sizeAt := func(q int) int {
		res, err := tr.Transcode(context.Background(), "p.png", src, media.SourcePNG,
			media.Request{Target: media.OutputPNG, Quality: q, Scale: 100})
		if err != nil {
			t.Fatalf("transcode q%d: %v", q, err)
		}
		return len(res.Data)
	}

	lossy, lossless := sizeAt(50), sizeAt(media.Lossless)
	if lossy >= lossless {
		t.Fatalf("expected q50 (%d bytes) < lossless (%d bytes)", lossy, lossless)
	}
}

func TestHEICContentUsesLegacyDecoder(t *testing.T) {
	tr := New(fakeLegacy{out: encode(t, gradient(16, 8), "png")}, zerolog.Nop())
	heicBytes := []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00")

	res, err := tr.Transcode(context.Background(), "misnamed.jpg", heicBytes, media.SourceJPEG,
		media.Request{Target: media.OutputPNG, Quality: media.Lossless, Scale: 100})
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if res.Width != 16 || res.Height != 8 {
		t.Fatalf("got %dx%d, want 16x8", res.Width, res.Height)
	}
}

func TestDecodeErrors(t *testing.T) {
	req := media.Request{Target: media.OutputPNG, Quality: 90, Scale: 100}

	tr := New(fakeLegacy{err: errors.New("bad heic")}, zerolog.Nop())
	_, err := tr.Transcode(context.Background(), "x.png", []byte("not an image"), media.SourcePNG, req)
	if !media.IsKind(err, media.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}

	_, err = tr.Transcode(context.Background(), "x.heic", []byte("heic"), media.SourceLegacy, req)
	if !media.IsKind(err, media.ErrDecode) {
		t.Fatalf("expected decode error for legacy failure, got %v", err)
	}

	tr = New(fakeLegacy{out: []byte("still not an image")}, zerolog.Nop())
	_, err = tr.Transcode(context.Background(), "x.heic", []byte("heic"), media.SourceLegacy, req)
	if !media.IsKind(err, media.ErrDecode) {
		t.Fatalf("expected decode error for bad intermediate, got %v", err)
	}
}

func TestEncodeEmptyImage(t *testing.T) {
	tr := New(nil, zerolog.Nop())
	_, err := tr.Encode("empty", image.NewNRGBA(image.Rect(0, 0, 0, 0)), media.OutputPNG, 90)
	if !media.IsKind(err, media.ErrEncode) {
		t.Fatalf("expected encode error, got %v", err)
	}
}

func TestEXIFOrientationApplied(t *testing.T) {
	src := withOrientation(t, encode(t, gradient(40, 20), "jpeg"), 6)
	if got := readOrientation(src); got != 6 {
		t.Fatalf("readOrientation = %d, want 6", got)
	}

	tr := New(nil, zerolog.Nop())
	res, err := tr.Transcode(context.Background(), "rotated.jpg", src, media.SourceJPEG,
		media.Request{Target: media.OutputJPG, Quality: 90, Scale: 100})
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if res.Width != 20 || res.Height != 40 {
		t.Fatalf("got %dx%d, want 20x40", res.Width, res.Height)
	}
}

func TestOrientationDefaultsToUpright(t *testing.T) {
	if got := readOrientation(encode(t, gradient(8, 8), "jpeg")); got != 1 {
		t.Fatalf("plain jpeg: readOrientation = %d, want 1", got)
	}
	if got := readOrientation(encode(t, gradient(8, 8), "png")); got != 1 {
		t.Fatalf("png: readOrientation = %d, want 1", got)
	}
	if got := readOrientation(withOrientation(t, encode(t, gradient(8, 8), "jpeg"), 42)); got != 1 {
		t.Fatalf("out of range tag: readOrientation = %d, want 1", got)
	}
}

func TestWrapICOHeader(t *testing.T) {
	out, err := wrapICO([]byte{1, 2, 3}, 32, 32)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if len(out) != icoHeaderSize+icoEntrySize+3 {
		t.Fatalf("unexpected length %d", len(out))
	}
	if out[6] != 32 || out[7] != 32 {
		t.Fatalf("unexpected dimensions %d x %d", out[6], out[7])
	}
	if binary.LittleEndian.Uint32(out[18:22]) != icoHeaderSize+icoEntrySize {
		t.Fatal("unexpected payload offset")
	}
	if _, err := wrapICO(nil, 300, 32); err == nil {
		t.Fatal("expected error for oversized icon")
	}
}

// photo builds a gradient with per-pixel noise, which behaves like
// photographic content under JPEG compression.
func photo(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := func(base int) uint8 {
				v := base + rng.Intn(41) - 20
				if v < 0 {
					v = 0
				}
				if v > 255 {
					v = 255
				}
				return uint8(v)
			}
			img.Set(x, y, color.NRGBA{
				R: n(x * 255 / w),
				G: n(y * 255 / h),
				B: n((x + y) * 255 / (w + h)),
				A: 0xff,
			})
		}
	}
	return img
}

// noisyScene builds a shot of flat regions (sky, ground, an object) with mild
// per-channel sensor noise. Region edges sit on 16-pixel boundaries.
func noisyScene(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := color.NRGBA{R: 110, G: 150, B: 200}
			switch {
			case x >= 64 && x < 128 && y >= 32 && y < 96:
				base = color.NRGBA{R: 180, G: 90, B: 70}
			case y >= h/2:
				base = color.NRGBA{R: 90, G: 120, B: 60}
			}
			n := func(v uint8) uint8 { return uint8(int(v) + rng.Intn(9) - 4) }
			img.Set(x, y, color.NRGBA{R: n(base.R), G: n(base.G), B: n(base.B), A: 0xff})
		}
	}
	return img
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 0x80, A: 0xff})
		}
	}
	return img
}

func encode(t *testing.T, img image.Image, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	if format == "png" {
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

// withOrientation inserts an APP1 EXIF segment carrying only the Orientation
// tag right after the JPEG SOI marker.
func withOrientation(t *testing.T, jpg []byte, orientation uint16) []byte {
	t.Helper()

	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(3))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiff, binary.LittleEndian, orientation)
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write(jpg[:2])
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpg[2:])
	return out.Bytes()
}
