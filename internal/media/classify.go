package media

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"arstate/pkg/imgutil"
)

var extKinds = map[string]SourceKind{
	".jpg":  SourceJPEG,
	".jpeg": SourceJPEG,
	".png":  SourcePNG,
	".heic": SourceLegacy,
	".heif": SourceLegacy,
	".pdf":  SourceDocument,
}

var mimeKinds = map[string]SourceKind{
	"image/jpeg":          SourceJPEG,
	"image/jpg":           SourceJPEG,
	"image/pjpeg":         SourceJPEG,
	"image/png":           SourcePNG,
	"image/heic":          SourceLegacy,
	"image/heif":          SourceLegacy,
	"image/heic-sequence": SourceLegacy,
	"image/heif-sequence": SourceLegacy,
	"application/pdf":     SourceDocument,
}

// Classify assigns an input kind from the file extension, falling back to the
// declared MIME type when the extension is not recognized.
func Classify(filename, mimeType string) (SourceKind, bool) {
	if kind, ok := extKinds[strings.ToLower(filepath.Ext(filename))]; ok {
		return kind, true
	}
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if kind, ok := mimeKinds[mt]; ok {
		return kind, true
	}
	return SourceUnknown, false
}

// NewSource classifies and wraps an input file. Rejected files return an
// UnsupportedFileType error; callers count them and carry on with the batch.
func NewSource(name, mimeType string, data []byte) (Source, error) {
	kind, ok := Classify(name, mimeType)
	if !ok {
		return Source{}, Unsupported(name, mimeType)
	}
	return Source{
		ID:      uuid.NewString(),
		Name:    name,
		MIME:    mimeType,
		Kind:    kind,
		Content: ContentKind(data),
		Data:    data,
	}, nil
}

// ContentKind identifies an input kind from the leading bytes alone. It
// returns SourceUnknown for anything the sniffer does not recognize.
func ContentKind(data []byte) SourceKind {
	switch imgutil.Detect(data) {
	case imgutil.KindJPEG:
		return SourceJPEG
	case imgutil.KindPNG:
		return SourcePNG
	case imgutil.KindHEIC:
		return SourceLegacy
	case imgutil.KindPDF:
		return SourceDocument
	default:
		return SourceUnknown
	}
}

// AvailableOutputs lists the output kinds offered for a batch. ICO is only
// offered when no source is a paginated document.
func AvailableOutputs(sources []Source) []OutputKind {
	kinds := []OutputKind{OutputPNG, OutputJPG}
	for _, s := range sources {
		if s.Kind.Paginated() {
			return kinds
		}
	}
	return append(kinds, OutputICO)
}

// ResolveOutput keeps the previous selection when it is still offered and
// falls back to the first available kind otherwise.
func ResolveOutput(previous OutputKind, sources []Source) OutputKind {
	available := AvailableOutputs(sources)
	for _, k := range available {
		if k == previous {
			return previous
		}
	}
	return available[0]
}

// HasPaginated reports whether any source in the batch is a document.
func HasPaginated(sources []Source) bool {
	for _, s := range sources {
		if s.Kind.Paginated() {
			return true
		}
	}
	return false
}
