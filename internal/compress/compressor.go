// Package compress shrinks PDF documents by rasterizing every page and
// rebuilding the document from JPEG page images.
package compress

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"arstate/internal/media"
	"arstate/internal/rasterize"
)

// DefaultBaseScale is the render scale for compression, independent of the
// converter's base scale.
const DefaultBaseScale = 1.5

const pdfMIME = "application/pdf"

type Compressor struct {
	rasterizer *rasterize.Rasterizer
	encoder    rasterize.Encoder
	baseScale  float64
	log        zerolog.Logger
}

func New(r *rasterize.Rasterizer, enc rasterize.Encoder, baseScale float64, log zerolog.Logger) *Compressor {
	if baseScale <= 0 {
		baseScale = DefaultBaseScale
	}
	return &Compressor{
		rasterizer: r,
		encoder:    enc,
		baseScale:  baseScale,
		log:        log.With().Str("comp", "compress").Logger(),
	}
}

// Compress returns a new PDF whose pages are JPEG images at the given quality.
// Pages keep the size of the original in points.
func (c *Compressor) Compress(ctx context.Context, src media.Source, quality int) (media.Assembly, error) {
	if !src.Kind.Paginated() {
		return media.Assembly{}, media.Unsupported(src.Name, src.MIME)
	}
	if quality < media.MinQuality || quality > 100 {
		return media.Assembly{}, fmt.Errorf("quality %d out of range [1,100]", quality)
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt"})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)

	pages := 0
	for page, err := range c.rasterizer.Pages(ctx, src.Name, src.Data, c.baseScale) {
		if err != nil {
			return media.Assembly{}, err
		}
		jpg, err := c.encoder.Encode(src.Name, page.Image, media.OutputJPG, quality)
		if err != nil {
			return media.Assembly{}, media.RasterizationError(src.Name, page.Index, err)
		}

		b := page.Image.Bounds()
		w := float64(b.Dx()) / c.baseScale
		h := float64(b.Dy()) / c.baseScale
		imageName := fmt.Sprintf("page-%d", page.Index)
		opts := fpdf.ImageOptions{ImageType: "JPG"}

		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		pdf.RegisterImageOptionsReader(imageName, opts, bytes.NewReader(jpg))
		pdf.ImageOptions(imageName, 0, 0, w, h, false, opts, 0, "")
		if !pdf.Ok() {
			return media.Assembly{}, media.AssemblyError(fmt.Errorf("page %d: %w", page.Index, pdf.Error()))
		}
		pages++
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return media.Assembly{}, media.AssemblyError(err)
	}

	name := src.Base() + "_compressed.pdf"
	c.log.Debug().
		Str("source", src.Name).
		Int("pages", pages).
		Int("quality", quality).
		Int("before", len(src.Data)).
		Int("after", buf.Len()).
		Msg("compressed")

	return media.Assembly{
		Name:    name,
		MIME:    pdfMIME,
		Data:    buf.Bytes(),
		Entries: []string{name},
	}, nil
}

// Estimate predicts the compressed size by running the full compression.
func (c *Compressor) Estimate(ctx context.Context, src media.Source, quality int) (media.Snapshot, error) {
	asm, err := c.Compress(ctx, src, quality)
	if err != nil {
		return media.Snapshot{}, err
	}
	return media.Snapshot{Bytes: int64(len(asm.Data))}, nil
}
