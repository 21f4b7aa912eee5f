package transcode

import (
	"image"

	"github.com/disintegration/imaging"
	exif "github.com/dsoprea/go-exif/v3"

	"arstate/pkg/imgutil"
)

// readOrientation returns the EXIF Orientation of a JPEG (1..8), or 1 when the
// buffer carries none.
func readOrientation(data []byte) int {
	if imgutil.Detect(data) != imgutil.KindJPEG {
		return 1
	}

	raw, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 1
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return 1
	}

	for _, tag := range tags {
		if tag.TagName != "Orientation" {
			continue
		}
		var v int
		switch value := tag.Value.(type) {
		case []uint16:
			if len(value) > 0 {
				v = int(value[0])
			}
		case []uint32:
			if len(value) > 0 {
				v = int(value[0])
			}
		}
		if v >= 1 && v <= 8 {
			return v
		}
		return 1
	}
	return 1
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
