// Package rasterize renders paginated documents page by page and encodes each
// page with the raster transcoder.
package rasterize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"

	"github.com/rs/zerolog"

	"arstate/internal/media"
)

// DefaultBaseScale renders pages at roughly double screen resolution before the
// request's resolution scale is applied.
const DefaultBaseScale = 2.0

// Document is an opened paginated source. Page indexes are 0-based.
type Document interface {
	NumPages() int
	RenderPage(index int, scale float64) (image.Image, error)
	Close() error
}

type DocumentDecoder interface {
	Open(data []byte) (Document, error)
}

// Encoder is the encode-only step of the transcoder; pages are already at
// their final size when they reach it.
type Encoder interface {
	Encode(name string, img image.Image, target media.OutputKind, quality int) ([]byte, error)
}

// Page is one rendered page. Index is 1-based.
type Page struct {
	Index int
	Image image.Image
}

type Rasterizer struct {
	decoder   DocumentDecoder
	encoder   Encoder
	baseScale float64
	log       zerolog.Logger
}

// New returns a rasterizer. A nil decoder selects go-fitz and a non-positive
// base scale selects DefaultBaseScale.
func New(decoder DocumentDecoder, encoder Encoder, baseScale float64, log zerolog.Logger) *Rasterizer {
	if decoder == nil {
		decoder = FitzDecoder{}
	}
	if baseScale <= 0 {
		baseScale = DefaultBaseScale
	}
	return &Rasterizer{
		decoder:   decoder,
		encoder:   encoder,
		baseScale: baseScale,
		log:       log.With().Str("comp", "rasterize").Logger(),
	}
}

func (r *Rasterizer) BaseScale() float64 {
	return r.baseScale
}

// Pages renders the document lazily in ascending page order. Iteration stops
// after the first error. Each range over the sequence reopens the document
// from the start, and the document is closed however the range ends.
func (r *Rasterizer) Pages(ctx context.Context, name string, data []byte, scale float64) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		doc, err := r.decoder.Open(data)
		if err != nil {
			yield(Page{}, media.DecodeError(name, err))
			return
		}
		defer func() {
			if err := doc.Close(); err != nil {
				r.log.Warn().Err(err).Str("source", name).Msg("close document")
			}
		}()

		total := doc.NumPages()
		if total < 1 {
			yield(Page{}, media.DecodeError(name, errors.New("document has no pages")))
			return
		}

		for i := 0; i < total; i++ {
			if err := ctx.Err(); err != nil {
				yield(Page{}, err)
				return
			}
			img, err := doc.RenderPage(i, scale)
			if err == nil && (img == nil || img.Bounds().Empty()) {
				err = errors.New("page rendered empty")
			}
			if err != nil {
				yield(Page{Index: i + 1}, media.RasterizationError(name, i+1, err))
				return
			}
			if !yield(Page{Index: i + 1, Image: img}, nil) {
				return
			}
		}
	}
}

// Transcode rasterizes src at the base scale times req.Scale and encodes every
// page. A failing page fails the whole document.
func (r *Rasterizer) Transcode(ctx context.Context, src media.Source, req media.Request) ([]media.Output, error) {
	if req.Target == media.OutputICO {
		return nil, media.EncodeError(src.Name, fmt.Errorf("%s output is not available for documents", req.Target))
	}

	scale := r.baseScale * req.Scale / 100
	var outputs []media.Output
	for page, err := range r.Pages(ctx, src.Name, src.Data, scale) {
		if err != nil {
			return nil, err
		}
		data, err := r.encoder.Encode(src.Name, page.Image, req.Target, req.Quality)
		if err != nil {
			return nil, media.RasterizationError(src.Name, page.Index, err)
		}
		b := page.Image.Bounds()
		outputs = append(outputs, media.Output{
			SourceID: src.ID,
			Base:     src.Base(),
			Page:     page.Index,
			Ext:      req.Target.Ext(),
			Data:     data,
			Width:    b.Dx(),
			Height:   b.Dy(),
		})
		r.log.Debug().
			Str("source", src.Name).
			Int("page", page.Index).
			Int("width", b.Dx()).
			Int("height", b.Dy()).
			Int("bytes", len(data)).
			Msg("page encoded")
	}
	return outputs, nil
}
