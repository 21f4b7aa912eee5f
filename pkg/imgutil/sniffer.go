package imgutil

import "bytes"

// Kind identifies a file format recognized by its leading bytes.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindICO
	KindHEIC
	KindPDF
)

// HeaderSize is the number of leading bytes needed to tell every kind apart.
const HeaderSize = 12

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindICO:
		return "ico"
	case KindHEIC:
		return "heic"
	case KindPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

var (
	pngSig  = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig = []byte{0xff, 0xd8, 0xff}
	icoSig  = []byte{0x00, 0x00, 0x01, 0x00}
	pdfSig  = []byte("%PDF-")
	ftyp    = []byte("ftyp")

	heifBrands = [][]byte{
		[]byte("heic"), []byte("heix"), []byte("hevc"), []byte("hevx"),
		[]byte("heim"), []byte("heis"), []byte("mif1"), []byte("msf1"),
	}
)

// Detect inspects the leading bytes of data for known signatures. Input too
// short to carry a signature is unknown.
func Detect(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, jpegSig):
		return KindJPEG
	case bytes.HasPrefix(data, pngSig):
		return KindPNG
	case bytes.HasPrefix(data, pdfSig):
		return KindPDF
	case len(data) >= 6 && bytes.HasPrefix(data, icoSig) && (data[4] != 0 || data[5] != 0):
		return KindICO
	case len(data) >= HeaderSize && bytes.Equal(data[4:8], ftyp):
		for _, brand := range heifBrands {
			if bytes.Equal(data[8:12], brand) {
				return KindHEIC
			}
		}
	}
	return KindUnknown
}
