package rasterize

import (
	"image"

	"github.com/gen2brain/go-fitz"
)

// pointsPerInch is the PDF user-space unit; scale 1.0 renders one pixel per point.
const pointsPerInch = 72.0

// FitzDecoder opens PDF documents with MuPDF through go-fitz.
type FitzDecoder struct{}

func (FitzDecoder) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPages() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) RenderPage(index int, scale float64) (image.Image, error) {
	return d.doc.ImageDPI(index, pointsPerInch*scale)
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
