// Package media holds the shared vocabulary of the conversion pipeline: source
// and output kinds, conversion requests, transcoded outputs and the errors the
// pipeline components report.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceJPEG
	SourcePNG
	SourceLegacy
	SourceDocument
)

func (k SourceKind) String() string {
	switch k {
	case SourceJPEG:
		return "jpeg"
	case SourcePNG:
		return "png"
	case SourceLegacy:
		return "heic"
	case SourceDocument:
		return "pdf"
	default:
		return "unknown"
	}
}

// Raster reports whether the kind decodes to a single image.
func (k SourceKind) Raster() bool {
	return k == SourceJPEG || k == SourcePNG || k == SourceLegacy
}

// Paginated reports whether the kind must be rasterized page by page.
func (k SourceKind) Paginated() bool {
	return k == SourceDocument
}

type OutputKind int

const (
	OutputPNG OutputKind = iota
	OutputJPG
	OutputICO
)

func (k OutputKind) String() string {
	return k.Ext()
}

// Ext returns the file extension used for outputs of this kind, without the dot.
func (k OutputKind) Ext() string {
	switch k {
	case OutputJPG:
		return "jpg"
	case OutputICO:
		return "ico"
	default:
		return "png"
	}
}

func (k OutputKind) MIME() string {
	switch k {
	case OutputJPG:
		return "image/jpeg"
	case OutputICO:
		return "image/x-icon"
	default:
		return "image/png"
	}
}

// ParseOutputKind accepts the names used on the command line and in forms.
func ParseOutputKind(s string) (OutputKind, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "png":
		return OutputPNG, nil
	case "jpg", "jpeg":
		return OutputJPG, nil
	case "ico":
		return OutputICO, nil
	default:
		return OutputPNG, fmt.Errorf("unknown output format %q", s)
	}
}

const (
	// Lossless is the quality value that disables lossy compression.
	Lossless   = 101
	MinQuality = 1
	MaxScale   = 100.0
)

// Request is one conversion (or estimation) applied uniformly to a batch.
type Request struct {
	Target  OutputKind
	Quality int
	Scale   float64 // percent of native pixel dimensions, (0,100]
}

func (r Request) Validate() error {
	if r.Target < OutputPNG || r.Target > OutputICO {
		return fmt.Errorf("invalid output kind %d", r.Target)
	}
	if r.Quality < MinQuality || r.Quality > Lossless {
		return fmt.Errorf("quality %d out of range [%d,%d]", r.Quality, MinQuality, Lossless)
	}
	if r.Scale <= 0 || r.Scale > MaxScale {
		return fmt.Errorf("resolution scale %g out of range (0,100]", r.Scale)
	}
	return nil
}

// Lossy reports whether the request asks for a quality-reducing encode.
func (r Request) Lossy() bool {
	return r.Quality <= 100
}

// Source is a classified input file. It is not modified after NewSource.
type Source struct {
	ID   string
	Name string
	MIME string
	Kind SourceKind
	// Content is the kind the leading bytes look like, SourceUnknown when
	// they match no known signature.
	Content SourceKind
	Data    []byte
}

// ContentMismatch reports whether the bytes look like a different kind than
// the name and declared type say.
func (s Source) ContentMismatch() bool {
	return s.Content != SourceUnknown && s.Content != s.Kind
}

// Base is the file name without directory and extension.
func (s Source) Base() string {
	return BaseName(s.Name)
}

func BaseName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == "/" {
		return "file"
	}
	return base
}

// Output is one encoded buffer produced from a source, or from one page of a
// paginated source.
type Output struct {
	SourceID string
	Base     string
	Page     int // 1-indexed; 0 when the source is not paginated
	Ext      string
	Data     []byte
	Width    int
	Height   int
}

func (o Output) Size() int64 {
	return int64(len(o.Data))
}

// Name is the entry name of the output relative to its source folder.
func (o Output) Name() string {
	if o.Page > 0 {
		return PageName(o.Page, o.Ext)
	}
	return o.Base + "." + o.Ext
}

func PageName(page int, ext string) string {
	return fmt.Sprintf("page_%03d.%s", page, ext)
}

// Assembly is what a host hands to the user: a single file or a zip archive.
type Assembly struct {
	Name    string
	MIME    string
	Data    []byte
	Archive bool
	Entries []string
}

// Snapshot is the latest size (and, when meaningful, dimension) prediction.
type Snapshot struct {
	Bytes         int64
	Width         int
	Height        int
	HasDimensions bool
}
