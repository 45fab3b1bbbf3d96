// Package zip locates the entries of a ZIP archive held in memory and decodes
// them with the inflate package, checking each against its CRC-32.
//
// Only single-disk archives without ZIP64 records are read. Entries must be
// stored or deflated, unencrypted, and named in ASCII or flagged UTF-8.
package zip

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/JoshVarga/inflate"
)

var (
	// ErrShortArchive is returned when the input cannot hold an EOCD record.
	ErrShortArchive = errors.New("zip: not enough bytes for an EOCD")
	// ErrEOCDNotFound is returned when no EOCD record is found.
	ErrEOCDNotFound = errors.New("zip: unable to find EOCD")
	// ErrSignature is returned when a record does not start with its signature.
	ErrSignature = errors.New("zip: invalid record signature")
	// ErrTruncated is returned when a record or entry runs past the data it must fit in.
	ErrTruncated = errors.New("zip: truncated archive")
	// ErrUnsupportedMethod is returned for entries compressed with anything but store or deflate.
	ErrUnsupportedMethod = errors.New("zip: unsupported compression method")
	// ErrUnsupportedFeature is returned for ZIP64, multi-disk, encrypted and similar archives or entries.
	ErrUnsupportedFeature = errors.New("zip: unsupported feature")
	// ErrChecksum is returned when decoded data does not match its CRC-32.
	ErrChecksum = errors.New("zip: checksum error")
	// ErrSizeMismatch is returned when decoded data does not have the recorded size.
	ErrSizeMismatch = errors.New("zip: uncompressed size mismatch")
	// ErrUnsafePath is returned for entries that would extract outside the target directory.
	ErrUnsafePath = errors.New("zip: entry path escapes target directory")
)

// Compression methods.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

// General purpose flag bits.
const (
	flagEncrypted      = 1 << 0
	flagDataDescriptor = 1 << 3
	flagUTF8           = 1 << 11
)

// ChecksumError reports an entry whose decoded data failed its CRC-32 check.
type ChecksumError struct {
	Name     string
	Expected uint32
	Actual   uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("zip: checksum error in %s: expected 0x%08x, got 0x%08x", e.Name, e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksum
}

// Entry is one archived file: its central directory header, its local
// header, and the compressed bytes that follow the local header.
type Entry struct {
	*CentralDirectoryHeader
	Local *LocalFileHeader

	compressed  []byte
	unsupported error
}

// Supported returns nil if the entry can be decoded, or the reason it can not.
func (e *Entry) Supported() error {
	return e.unsupported
}

// ExpectedCRC is the checksum the decoded data must match. The local header
// is authoritative unless it left the field zero, as entries followed by a
// data descriptor do; the central directory copy is used then.
func (e *Entry) ExpectedCRC() uint32 {
	if e.Local != nil && e.Local.CRC32 != 0 {
		return e.Local.CRC32
	}
	return e.CRC32
}

// HasDataDescriptor reports whether sizes and CRC trail the entry data.
func (e *Entry) HasDataDescriptor() bool {
	return e.Flags&flagDataDescriptor != 0
}

// Archive is a parsed ZIP archive over one contiguous buffer.
type Archive struct {
	EOCD    *EOCD
	Entries []*Entry

	data    []byte
	mapping mmap.MMap
	file    *os.File
	log     *logrus.Entry
	skipCRC bool
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger the archive reports per-entry failures to.
func WithLogger(log *logrus.Entry) Option {
	return func(a *Archive) {
		a.log = log
	}
}

// SkipChecksum turns off CRC-32 verification of decoded entries.
func SkipChecksum() Option {
	return func(a *Archive) {
		a.skipCRC = true
	}
}

// NewArchive parses the archive held in data. Entries keep references into
// data, which must stay unchanged while the archive is used.
func NewArchive(data []byte, options ...Option) (*Archive, error) {
	a := &Archive{
		data: data,
		log:  logrus.WithField("pkg", "zip"),
	}
	for _, option := range options {
		option(a)
	}

	eocd, eocdOffset, err := FindEOCD(data)
	if err != nil {
		return nil, err
	}
	if eocd.spansDisks() {
		return nil, errors.Wrap(ErrUnsupportedFeature, "multi-disk archive")
	}
	if eocd.usesZip64() {
		return nil, errors.Wrap(ErrUnsupportedFeature, "ZIP64 archive")
	}
	a.EOCD = eocd

	start := int(eocd.CentralDirectoryOffset)
	end := start + int(eocd.CentralDirectorySize)
	if end > eocdOffset {
		return nil, errors.Wrapf(ErrTruncated, "central directory at %d..%d overlaps EOCD at %d", start, end, eocdOffset)
	}

	headers, err := ReadCentralDirectory(data[start:end])
	if err != nil {
		return nil, errors.Wrap(err, "unable to read central directory")
	}
	if len(headers) != int(eocd.TotalEntries) {
		return nil, errors.Wrapf(ErrTruncated, "found %d central directory headers, EOCD records %d",
			len(headers), eocd.TotalEntries)
	}

	for _, header := range headers {
		entry, err := a.newEntry(header)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to locate data of %s", header.FileName)
		}
		a.Entries = append(a.Entries, entry)
	}

	return a, nil
}

// OpenFile maps the archive at path into memory and parses it. Close releases
// the mapping; entry data must not be used after that.
func OpenFile(path string, options ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open archive")
	}

	info, err := f.Stat()
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, errors.Wrap(err, "unable to stat archive")
	}
	if info.Size() < EOCDMinSize {
		f.Close() // nolint: errcheck
		return nil, ErrShortArchive
	}

	mapping, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, errors.Wrap(err, "unable to map archive")
	}

	a, err := NewArchive(mapping, options...)
	if err != nil {
		mapping.Unmap() // nolint: errcheck
		f.Close()       // nolint: errcheck
		return nil, err
	}
	a.mapping = mapping
	a.file = f

	return a, nil
}

// Close releases the memory mapping made by OpenFile. It is a no-op for
// archives made with NewArchive.
func (a *Archive) Close() error {
	if a.mapping == nil {
		return nil
	}
	if err := a.mapping.Unmap(); err != nil {
		return errors.Wrap(err, "unable to unmap archive")
	}
	a.mapping = nil
	return a.file.Close()
}

func (a *Archive) newEntry(header *CentralDirectoryHeader) (*Entry, error) {
	entry := &Entry{CentralDirectoryHeader: header}
	if entry.unsupported = header.checkSupported(); entry.unsupported != nil {
		return entry, nil
	}

	offset := int(header.LocalHeaderOffset)
	if offset >= len(a.data) {
		return nil, errors.Wrapf(ErrTruncated, "local header offset %d", offset)
	}
	local, err := ReadLocalFileHeader(a.data[offset:])
	if err != nil {
		return nil, err
	}

	start := offset + local.HeaderSize()
	end := start + int(header.CompressedSize)
	if end > len(a.data) {
		return nil, errors.Wrapf(ErrTruncated, "entry data at %d..%d", start, end)
	}

	entry.Local = local
	entry.compressed = a.data[start:end]
	return entry, nil
}

// Decompress decodes one entry and checks its size and CRC-32.
func (a *Archive) Decompress(entry *Entry) ([]byte, error) {
	if entry.unsupported != nil {
		return nil, entry.unsupported
	}

	var out []byte
	switch entry.Method {
	case MethodStore:
		out = append([]byte(nil), entry.compressed...)
	case MethodDeflate:
		decoded, consumed, err := inflate.DecompressPrefix(entry.compressed)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to inflate %s", entry.FileName)
		}
		if consumed != len(entry.compressed) {
			return nil, errors.Wrapf(ErrUnsupportedFeature, "%s: %d bytes follow the final deflate block",
				entry.FileName, len(entry.compressed)-consumed)
		}
		out = decoded
	}

	if len(out) != int(entry.UncompressedSize) {
		return nil, errors.Wrapf(ErrSizeMismatch, "%s: expected %d bytes, got %d",
			entry.FileName, entry.UncompressedSize, len(out))
	}
	if a.skipCRC {
		return out, nil
	}
	if actual := Checksum(out); actual != entry.ExpectedCRC() {
		return nil, &ChecksumError{Name: entry.FileName, Expected: entry.ExpectedCRC(), Actual: actual}
	}

	return out, nil
}
