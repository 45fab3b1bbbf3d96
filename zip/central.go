package zip

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	centralDirectorySignature = 0x02014b50
	centralDirectoryFixedSize = 46
)

// CentralDirectoryHeader describes one entry in the archive's central
// directory.
type CentralDirectoryHeader struct {
	Signature          uint32
	VersionMadeBy      uint16
	VersionNeeded      uint16
	Flags              uint16
	Method             uint16
	ModifiedTime       uint16
	ModifiedDate       uint16
	CRC32              uint32
	CompressedSize     uint32
	UncompressedSize   uint32
	FileNameLength     uint16
	ExtraFieldLength   uint16
	FileCommentLength  uint16
	DiskNumberStart    uint16
	InternalAttributes uint16
	ExternalAttributes uint32
	LocalHeaderOffset  uint32

	FileName    string
	ExtraField  []byte
	FileComment string
}

// ReadCentralDirectory decodes consecutive central directory headers from
// the start of data. It stops at the end of data or at the first record
// without a central directory signature; a record cut short by the end of
// data is an error.
func ReadCentralDirectory(data []byte) ([]*CentralDirectoryHeader, error) {
	var headers []*CentralDirectoryHeader

	for len(data) >= 4 && binary.LittleEndian.Uint32(data) == centralDirectorySignature {
		if len(data) < centralDirectoryFixedSize {
			return nil, errors.Wrapf(ErrTruncated, "central directory header %d", len(headers))
		}

		r := newFieldReader(data)
		h := &CentralDirectoryHeader{
			Signature:          r.uint32(),
			VersionMadeBy:      r.uint16(),
			VersionNeeded:      r.uint16(),
			Flags:              r.uint16(),
			Method:             r.uint16(),
			ModifiedTime:       r.uint16(),
			ModifiedDate:       r.uint16(),
			CRC32:              r.uint32(),
			CompressedSize:     r.uint32(),
			UncompressedSize:   r.uint32(),
			FileNameLength:     r.uint16(),
			ExtraFieldLength:   r.uint16(),
			FileCommentLength:  r.uint16(),
			DiskNumberStart:    r.uint16(),
			InternalAttributes: r.uint16(),
			ExternalAttributes: r.uint32(),
			LocalHeaderOffset:  r.uint32(),
		}

		if len(data) < h.Size() {
			return nil, errors.Wrapf(ErrTruncated, "central directory header %d", len(headers))
		}
		h.FileName = r.string(int(h.FileNameLength))
		h.ExtraField = r.bytes(int(h.ExtraFieldLength))
		h.FileComment = r.string(int(h.FileCommentLength))

		headers = append(headers, h)
		data = data[h.Size():]
	}

	return headers, nil
}

// Size is the length of the record including its variable fields.
func (h *CentralDirectoryHeader) Size() int {
	return centralDirectoryFixedSize + int(h.FileNameLength) + int(h.ExtraFieldLength) + int(h.FileCommentLength)
}

// IsDir reports whether the entry names a directory.
func (h *CentralDirectoryHeader) IsDir() bool {
	return strings.HasSuffix(h.FileName, "/")
}

// Mode returns the permission bits recorded by a unix archiver, or a default.
func (h *CentralDirectoryHeader) Mode() os.FileMode {
	const creatorUnix = 3

	if h.VersionMadeBy>>8 == creatorUnix {
		if mode := os.FileMode(h.ExternalAttributes>>16) & os.ModePerm; mode != 0 {
			return mode
		}
	}
	if h.IsDir() {
		return 0755
	}
	return 0644
}

// Modified converts the MS-DOS date and time fields to a time in UTC.
func (h *CentralDirectoryHeader) Modified() time.Time {
	return time.Date(
		int(h.ModifiedDate>>9)+1980,
		time.Month(h.ModifiedDate>>5&0xf),
		int(h.ModifiedDate&0x1f),
		int(h.ModifiedTime>>11),
		int(h.ModifiedTime>>5&0x3f),
		int(h.ModifiedTime&0x1f)*2,
		0,
		time.UTC,
	)
}

// checkSupported rejects entries this package cannot decode faithfully.
func (h *CentralDirectoryHeader) checkSupported() error {
	switch {
	case h.DiskNumberStart != 0:
		return errors.Wrapf(ErrUnsupportedFeature, "%s: entry on disk %d", h.FileName, h.DiskNumberStart)
	case h.CompressedSize == 0xffffffff || h.UncompressedSize == 0xffffffff || h.LocalHeaderOffset == 0xffffffff:
		return errors.Wrapf(ErrUnsupportedFeature, "%s: ZIP64 entry", h.FileName)
	case h.Flags&flagEncrypted != 0:
		return errors.Wrapf(ErrUnsupportedFeature, "%s: encrypted entry", h.FileName)
	case h.Flags&flagUTF8 != 0 && !utf8.ValidString(h.FileName):
		return errors.Wrapf(ErrUnsupportedFeature, "%q: invalid UTF-8 file name", h.FileName)
	case h.Flags&flagUTF8 == 0 && !isASCII(h.FileName):
		return errors.Wrapf(ErrUnsupportedFeature, "%q: non UTF-8 file name encoding", h.FileName)
	case h.Method != MethodStore && h.Method != MethodDeflate:
		return errors.Wrapf(ErrUnsupportedMethod, "%s: method %d", h.FileName, h.Method)
	}
	return nil
}

func (h *CentralDirectoryHeader) String() string {
	s := fmt.Sprintf("CDH: Signature: 0x%x", h.Signature)
	if h.FileName == "" {
		return s + " No filename"
	}
	return s + " Filename: " + h.FileName
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
