package zip

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	localFileHeaderSignature = 0x04034b50
	localFileHeaderFixedSize = 30
)

// LocalFileHeader is the record written directly in front of an entry's data.
type LocalFileHeader struct {
	Signature        uint32
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FileNameLength   uint16
	ExtraFieldLength uint16

	FileName   string
	ExtraField []byte
}

// ReadLocalFileHeader decodes the local file header at the start of data.
func ReadLocalFileHeader(data []byte) (*LocalFileHeader, error) {
	if len(data) < localFileHeaderFixedSize {
		return nil, errors.Wrap(ErrTruncated, "local file header")
	}
	if signature := binary.LittleEndian.Uint32(data); signature != localFileHeaderSignature {
		return nil, errors.Wrapf(ErrSignature, "local file header signature 0x%08x", signature)
	}

	r := newFieldReader(data)
	h := &LocalFileHeader{
		Signature:        r.uint32(),
		VersionNeeded:    r.uint16(),
		Flags:            r.uint16(),
		Method:           r.uint16(),
		ModifiedTime:     r.uint16(),
		ModifiedDate:     r.uint16(),
		CRC32:            r.uint32(),
		CompressedSize:   r.uint32(),
		UncompressedSize: r.uint32(),
		FileNameLength:   r.uint16(),
		ExtraFieldLength: r.uint16(),
	}

	if len(data) < h.HeaderSize() {
		return nil, errors.Wrap(ErrTruncated, "local file header")
	}
	h.FileName = r.string(int(h.FileNameLength))
	h.ExtraField = r.bytes(int(h.ExtraFieldLength))

	return h, nil
}

// HeaderSize is the distance from the start of the header to the entry data.
func (h *LocalFileHeader) HeaderSize() int {
	return localFileHeaderFixedSize + int(h.FileNameLength) + int(h.ExtraFieldLength)
}
