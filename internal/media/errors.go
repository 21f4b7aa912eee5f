package media

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type ErrorKind string

const (
	ErrUnsupported   ErrorKind = "unsupported_file_type"
	ErrDecode        ErrorKind = "decode"
	ErrEncode        ErrorKind = "encode"
	ErrRasterization ErrorKind = "rasterization"
	ErrAssembly      ErrorKind = "assembly"
)

// Error is a pipeline failure tied to a source and, for documents, a page.
type Error struct {
	Kind   ErrorKind
	Source string
	Page   int
	Err    error
}

func (e *Error) Error() string {
	where := e.Source
	if e.Page > 0 {
		where = fmt.Sprintf("%s page %d", e.Source, e.Page)
	}
	switch {
	case where != "" && e.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Kind, where, e.Err)
	case where != "":
		return fmt.Sprintf("[%s] %s", e.Kind, where)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("[%s]", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, source string, page int, err error) error {
	return pkgerrors.WithStack(&Error{Kind: kind, Source: source, Page: page, Err: err})
}

func Unsupported(name, mimeType string) error {
	if mimeType == "" {
		mimeType = "unknown type"
	}
	return newError(ErrUnsupported, name, 0, fmt.Errorf("%s is not a supported input", mimeType))
}

func DecodeError(source string, err error) error {
	return newError(ErrDecode, source, 0, err)
}

func EncodeError(source string, err error) error {
	return newError(ErrEncode, source, 0, err)
}

func RasterizationError(source string, page int, err error) error {
	return newError(ErrRasterization, source, page, err)
}

func AssemblyError(err error) error {
	return newError(ErrAssembly, "", 0, err)
}

// KindOf returns the pipeline error kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// UserMessage turns any pipeline error into the single line shown to users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var perr *Error
	if !errors.As(err, &perr) {
		return fmt.Sprintf("Conversion failed: %v", err)
	}
	name := perr.Source
	if name == "" {
		name = "the batch"
	}
	switch perr.Kind {
	case ErrUnsupported:
		return fmt.Sprintf("%s is not a supported file type.", name)
	case ErrDecode:
		return fmt.Sprintf("Could not read %s. The file may be damaged or not a valid image or document.", name)
	case ErrEncode:
		return fmt.Sprintf("Could not encode the output for %s.", name)
	case ErrRasterization:
		return fmt.Sprintf("Could not render page %d of %s.", perr.Page, name)
	case ErrAssembly:
		return "Could not package the converted files. Please try again."
	default:
		return fmt.Sprintf("Conversion failed: %v", err)
	}
}

// IgnoredNotice is the non-blocking notice for files dropped by the classifier.
func IgnoredNotice(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "1 file was ignored due to unsupported type"
	default:
		return fmt.Sprintf("%d files were ignored due to unsupported type", n)
	}
}
