package assemble

import (
	"bytes"
	"time"

	"github.com/klauspost/compress/zip"
)

// ArchiveBuilder collects named entries and produces archive bytes.
type ArchiveBuilder interface {
	Add(name string, data []byte) error
	Finish() ([]byte, error)
}

type zipArchive struct {
	buf      bytes.Buffer
	w        *zip.Writer
	modified time.Time
}

// NewZip returns an ArchiveBuilder writing a zip archive in memory.
func NewZip() ArchiveBuilder {
	a := &zipArchive{modified: time.Now()}
	a.w = zip.NewWriter(&a.buf)
	return a
}

func (a *zipArchive) Add(name string, data []byte) error {
	w, err := a.w.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: a.modified,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (a *zipArchive) Finish() ([]byte, error) {
	if err := a.w.Close(); err != nil {
		return nil, err
	}
	return a.buf.Bytes(), nil
}
