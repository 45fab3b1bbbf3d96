package zip

import (
	"encoding/binary"
	"fmt"
)

const (
	eocdSignature = 0x06054b50

	// EOCDMinSize is the size of an end of central directory record without
	// a comment.
	EOCDMinSize = 22
)

// EOCD is the end of central directory record that closes every archive.
type EOCD struct {
	Signature              uint32
	DiskNumber             uint16
	CentralDirectoryDisk   uint16
	EntriesThisDisk        uint16
	TotalEntries           uint16
	CentralDirectorySize   uint32
	CentralDirectoryOffset uint32
	CommentLength          uint16
	Comment                string
}

// FindEOCD scans backwards from the end of data for the end of central
// directory record and returns it along with its offset. A signature match
// only counts when the record's comment runs exactly to the end of data; a
// mismatch keeps the scan going, since comments may hold anything.
func FindEOCD(data []byte) (*EOCD, int, error) {
	if len(data) < EOCDMinSize {
		return nil, 0, ErrShortArchive
	}

	for pos := len(data) - EOCDMinSize; pos >= 0; pos-- {
		if binary.LittleEndian.Uint32(data[pos:]) != eocdSignature {
			continue
		}

		e := parseEOCD(data[pos:])
		if int(e.CommentLength) != len(data)-pos-EOCDMinSize {
			continue
		}
		e.Comment = string(data[pos+EOCDMinSize:])

		return e, pos, nil
	}

	return nil, 0, ErrEOCDNotFound
}

func parseEOCD(data []byte) *EOCD {
	r := newFieldReader(data)
	return &EOCD{
		Signature:              r.uint32(),
		DiskNumber:             r.uint16(),
		CentralDirectoryDisk:   r.uint16(),
		EntriesThisDisk:        r.uint16(),
		TotalEntries:           r.uint16(),
		CentralDirectorySize:   r.uint32(),
		CentralDirectoryOffset: r.uint32(),
		CommentLength:          r.uint16(),
	}
}

// usesZip64 reports whether any field holds the marker value that defers to a
// ZIP64 record.
func (e *EOCD) usesZip64() bool {
	return e.TotalEntries == 0xffff ||
		e.EntriesThisDisk == 0xffff ||
		e.CentralDirectorySize == 0xffffffff ||
		e.CentralDirectoryOffset == 0xffffffff
}

func (e *EOCD) spansDisks() bool {
	return e.DiskNumber != 0 || e.CentralDirectoryDisk != 0 || e.EntriesThisDisk != e.TotalEntries
}

func (e *EOCD) String() string {
	s := fmt.Sprintf("EOCD: Signature: 0x%x Size of central directory: %d", e.Signature, e.CentralDirectorySize)
	if e.Comment == "" {
		return s + " No comment"
	}
	return s + " Comment: " + e.Comment
}
