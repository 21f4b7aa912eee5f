package transcode

import (
	"bytes"
	"context"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/heic"
)

// LegacyDecoder turns a HEIC/HEIF buffer into a standard raster buffer (PNG).
type LegacyDecoder interface {
	DecodeToStandard(ctx context.Context, data []byte) ([]byte, error)
}

// HEICDecoder decodes HEIC/HEIF with gen2brain/heic.
type HEICDecoder struct{}

func (HEICDecoder) DecodeToStandard(ctx context.Context, data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
