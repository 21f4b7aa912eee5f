package transcode

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	icoHeaderSize = 6
	icoEntrySize  = 16
)

// wrapICO places a PNG payload in a single-image ICO container.
func wrapICO(png []byte, width, height int) ([]byte, error) {
	if width < 1 || width > 256 || height < 1 || height > 256 {
		return nil, fmt.Errorf("icon size %dx%d out of range", width, height)
	}

	var buf bytes.Buffer
	buf.Grow(icoHeaderSize + icoEntrySize + len(png))

	// ICONDIR: reserved, type (1 = icon), image count
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})

	// ICONDIRENTRY; 0 encodes 256
	buf.WriteByte(byte(width % 256))
	buf.WriteByte(byte(height % 256))
	buf.WriteByte(0)
	buf.WriteByte(0)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(32))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(png)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(icoHeaderSize+icoEntrySize))

	buf.Write(png)
	return buf.Bytes(), nil
}
