// Package transcode re-encodes raster images to PNG, JPG or ICO at a requested
// quality and resolution.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"arstate/internal/media"
	"arstate/pkg/imgutil"
)

// IconSize is the fixed edge length of ICO outputs.
const IconSize = 32

// Result is an encoded image and its pixel dimensions.
type Result struct {
	Data   []byte
	Width  int
	Height int
}

type Transcoder struct {
	legacy LegacyDecoder
	log    zerolog.Logger
}

// New returns a transcoder. A nil legacy decoder selects the HEIC decoder.
func New(legacy LegacyDecoder, log zerolog.Logger) *Transcoder {
	if legacy == nil {
		legacy = HEICDecoder{}
	}
	return &Transcoder{legacy: legacy, log: log.With().Str("comp", "transcode").Logger()}
}

// Transcode decodes one image source and re-encodes it per req. Legacy sources,
// and HEIC bytes behind a standard name, go through DecodeLegacy first, then
// share the standard path.
func (t *Transcoder) Transcode(ctx context.Context, name string, data []byte, hint media.SourceKind, req media.Request) (Result, error) {
	if hint == media.SourceLegacy || imgutil.Detect(data) == imgutil.KindHEIC {
		std, err := t.DecodeLegacy(ctx, name, data)
		if err != nil {
			return Result{}, err
		}
		data = std
	}
	return t.transcodeStandard(ctx, name, data, req)
}

// DecodeLegacy converts a HEIC/HEIF buffer into an intermediate PNG buffer.
func (t *Transcoder) DecodeLegacy(ctx context.Context, name string, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	std, err := t.legacy.DecodeToStandard(ctx, data)
	if err != nil {
		return nil, media.DecodeError(name, err)
	}
	if len(std) == 0 {
		return nil, media.DecodeError(name, fmt.Errorf("legacy decoder returned no data"))
	}
	t.log.Debug().Str("source", name).Int("bytes", len(std)).Msg("legacy image decoded")
	return std, nil
}

func (t *Transcoder) transcodeStandard(ctx context.Context, name string, data []byte, req media.Request) (Result, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, media.DecodeError(name, err)
	}
	if orientation := readOrientation(data); orientation > 1 {
		img = applyOrientation(img, orientation)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), req)
	if w != b.Dx() || h != b.Dy() {
		img = imaging.Resize(img, w, h, imaging.Linear)
	}

	out, err := t.Encode(name, img, req.Target, req.Quality)
	if err != nil {
		return Result{}, err
	}
	t.log.Debug().
		Str("source", name).
		Str("target", req.Target.Ext()).
		Int("quality", req.Quality).
		Int("width", w).
		Int("height", h).
		Int("bytes", len(out)).
		Msg("transcoded")
	return Result{Data: out, Width: w, Height: h}, nil
}

// TargetSize computes output dimensions: a fixed icon size for ICO, else the
// scaled native size floored at one pixel.
func TargetSize(width, height int, req media.Request) (int, int) {
	if req.Target == media.OutputICO {
		return IconSize, IconSize
	}
	return scaleDim(width, req.Scale), scaleDim(height, req.Scale)
}

func scaleDim(n int, percent float64) int {
	v := int(math.Round(float64(n) * percent / 100))
	if v < 1 {
		return 1
	}
	return v
}

// Encode writes img in the target format without resizing it.
//
// PNG has no quality setting, so a lossy PNG request is served by encoding to
// JPEG at the requested quality, decoding that JPEG, and encoding the result as
// PNG. The output size follows the quality control the same way JPG does.
func (t *Transcoder) Encode(name string, img image.Image, target media.OutputKind, quality int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, media.EncodeError(name, fmt.Errorf("empty image"))
	}

	var (
		out  []byte
		err  error
		want imgutil.Kind
	)
	switch target {
	case media.OutputJPG:
		want = imgutil.KindJPEG
		out, err = encodeJPEG(img, jpegQuality(quality))
	case media.OutputPNG:
		want = imgutil.KindPNG
		if quality <= 100 {
			img, err = jpegRoundTrip(img, jpegQuality(quality))
			if err != nil {
				break
			}
		}
		out, err = encodePNG(img)
	case media.OutputICO:
		want = imgutil.KindICO
		var payload []byte
		payload, err = encodePNG(img)
		if err == nil {
			out, err = wrapICO(payload, img.Bounds().Dx(), img.Bounds().Dy())
		}
	default:
		err = fmt.Errorf("unsupported output kind %d", target)
	}
	if err != nil {
		return nil, media.EncodeError(name, err)
	}
	if len(out) == 0 {
		return nil, media.EncodeError(name, fmt.Errorf("encoder produced no output"))
	}
	if got := imgutil.Detect(out); got != want {
		return nil, media.EncodeError(name, fmt.Errorf("encoder produced %s, want %s", got, want))
	}
	return out, nil
}

func jpegQuality(quality int) int {
	switch {
	case quality > 100:
		return 100
	case quality < 1:
		return 1
	default:
		return quality
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func jpegRoundTrip(img image.Image, quality int) (image.Image, error) {
	lossy, err := encodeJPEG(img, quality)
	if err != nil {
		return nil, err
	}
	return imaging.Decode(bytes.NewReader(lossy))
}
