package zip_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
	kzip "github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"

	"github.com/JoshVarga/inflate/zip"
)

type fixture struct {
	name    string
	body    string
	method  uint16
	mode    os.FileMode
	comment string
}

type rawFixture struct {
	name         string
	method       uint16
	data         []byte
	crc          uint32
	uncompressed int
}

type nopCompressor struct {
	io.Writer
}

func (nopCompressor) Close() error {
	return nil
}

type ArchiveTestSuite struct {
	suite.Suite
	ctx    context.Context
	logger *logrus.Logger
	hook   *test.Hook
}

func (suite *ArchiveTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.logger, suite.hook = test.NewNullLogger()
}

func (suite *ArchiveTestSuite) TestDecompressEntries() {
	fixtures := []fixture{
		{name: "deflated.txt", body: strings.Repeat("deflate me, deflate me again. ", 200), method: zip.MethodDeflate},
		{name: "stored.txt", body: "stored-payload", method: zip.MethodStore},
		{name: "empty.txt", method: zip.MethodDeflate},
		{name: "dir/", method: zip.MethodStore},
		{name: "dir/héllo.txt", body: "unicode name", method: zip.MethodDeflate},
	}

	archive := suite.openArchive(suite.createArchive(fixtures, "archive comment"))
	suite.Require().Equal("archive comment", archive.EOCD.Comment)
	suite.Require().Len(archive.Entries, len(fixtures))

	for i, entry := range archive.Entries {
		suite.Require().Equal(fixtures[i].name, entry.FileName)
		suite.Require().Equal(fixtures[i].method, entry.Method)
		suite.Require().NoError(entry.Supported())

		data, err := archive.Decompress(entry)
		suite.Require().NoError(err, entry.FileName)
		suite.Require().Equal(fixtures[i].body, string(data))
	}

	suite.Require().True(archive.Entries[3].IsDir())
	suite.Require().True(archive.Entries[0].HasDataDescriptor())
	suite.Require().Equal(archive.Entries[0].CRC32, archive.Entries[0].ExpectedCRC())
}

func (suite *ArchiveTestSuite) TestExtractAllReportsChecksumErrors() {
	fixtures := []fixture{
		{name: "a.txt", body: strings.Repeat("a", 1000), method: zip.MethodDeflate},
		{name: "corrupt.txt", body: "stored-payload", method: zip.MethodStore},
		{name: "c.txt", body: "ccc", method: zip.MethodStore},
	}

	data := suite.createArchive(fixtures, "")
	offset := bytes.Index(data, []byte("stored-payload"))
	suite.Require().Greater(offset, 0)
	data[offset] = 'S'

	archive := suite.openArchive(data)

	var handled []string
	results, err := archive.ExtractAll(suite.ctx, 1, func(entry *zip.Entry, data []byte) error {
		handled = append(handled, entry.FileName)
		return nil
	})
	suite.Require().NoError(err)
	suite.Require().Equal([]string{"a.txt", "c.txt"}, handled)
	suite.Require().Len(results, 3)

	suite.Require().NoError(results[0].Err)
	suite.Require().Equal(1000, results[0].Size)
	suite.Require().NoError(results[2].Err)

	var checksumErr *zip.ChecksumError
	suite.Require().True(errors.As(results[1].Err, &checksumErr))
	suite.Require().True(errors.Is(results[1].Err, zip.ErrChecksum))
	suite.Require().Equal("corrupt.txt", checksumErr.Name)
	suite.Require().Equal(zip.Checksum([]byte("stored-payload")), checksumErr.Expected)
	suite.Require().Equal(zip.Checksum([]byte("Stored-payload")), checksumErr.Actual)

	suite.Require().Len(suite.hook.Entries, 1)
	suite.Require().Equal(logrus.WarnLevel, suite.hook.LastEntry().Level)
	suite.Require().Equal("corrupt.txt", suite.hook.LastEntry().Data["name"])
}

func (suite *ArchiveTestSuite) TestSkipChecksum() {
	data := suite.createArchive([]fixture{
		{name: "corrupt.txt", body: "stored-payload", method: zip.MethodStore},
	}, "")
	data[bytes.Index(data, []byte("stored-payload"))] = 'S'

	archive, err := zip.NewArchive(data, zip.SkipChecksum())
	suite.Require().NoError(err)

	decoded, err := archive.Decompress(archive.Entries[0])
	suite.Require().NoError(err)
	suite.Require().Equal("Stored-payload", string(decoded))
}

func (suite *ArchiveTestSuite) TestExtractAllHandlerError() {
	archive := suite.openArchive(suite.createArchive([]fixture{
		{name: "a.txt", body: "a", method: zip.MethodStore},
		{name: "b.txt", body: "b", method: zip.MethodStore},
	}, ""))

	results, err := archive.ExtractAll(suite.ctx, 2, func(entry *zip.Entry, data []byte) error {
		if entry.FileName == "a.txt" {
			return errors.New("disk full")
		}
		return nil
	})
	suite.Require().NoError(err)
	suite.Require().Len(results, 2)

	suite.Require().Error(results[0].Err)
	suite.Require().Contains(results[0].Err.Error(), "disk full")
	suite.Require().Contains(results[0].Err.Error(), "a.txt")
	suite.Require().NoError(results[1].Err)
	suite.Require().Equal(1, results[1].Size)

	suite.Require().Len(suite.hook.Entries, 1)
	suite.Require().Equal("a.txt", suite.hook.LastEntry().Data["name"])
}

func (suite *ArchiveTestSuite) TestExtractAllCancelled() {
	archive := suite.openArchive(suite.createArchive([]fixture{
		{name: "a.txt", body: "a", method: zip.MethodStore},
		{name: "b.txt", body: "b", method: zip.MethodStore},
	}, ""))

	ctx, cancel := context.WithCancel(suite.ctx)
	cancel()

	results, err := archive.ExtractAll(ctx, 1, func(entry *zip.Entry, data []byte) error {
		suite.Fail("handler called after cancellation", entry.FileName)
		return nil
	})
	suite.Require().True(errors.Is(err, context.Canceled), "got %v", err)
	for i, result := range results {
		suite.Require().Equal(archive.Entries[i], result.Entry)
		suite.Require().True(errors.Is(result.Err, context.Canceled))
	}
}

func (suite *ArchiveTestSuite) TestLocalChecksumTakesPrecedence() {
	body := []byte("local header wins")

	// central directory copy is wrong, local header is right
	data := suite.createRawArchive([]rawFixture{
		{name: "local.txt", method: zip.MethodStore, data: body, crc: zip.Checksum(body), uncompressed: len(body)},
	})
	centralOffset := bytes.Index(data, []byte("PK\x01\x02"))
	suite.Require().Greater(centralOffset, 0)
	binary.LittleEndian.PutUint32(data[centralOffset+16:], 0xdeadbeef)

	archive := suite.openArchive(data)
	entry := archive.Entries[0]
	suite.Require().False(entry.HasDataDescriptor())
	suite.Require().Equal(uint32(0xdeadbeef), entry.CRC32)
	suite.Require().Equal(zip.Checksum(body), entry.Local.CRC32)
	suite.Require().Equal(zip.Checksum(body), entry.ExpectedCRC())

	decoded, err := archive.Decompress(entry)
	suite.Require().NoError(err)
	suite.Require().Equal(body, decoded)

	// local header is wrong, central directory copy is right
	data = suite.createRawArchive([]rawFixture{
		{name: "local.txt", method: zip.MethodStore, data: body, crc: zip.Checksum(body), uncompressed: len(body)},
	})
	binary.LittleEndian.PutUint32(data[14:], 0xdeadbeef)

	archive = suite.openArchive(data)
	_, err = archive.Decompress(archive.Entries[0])

	var checksumErr *zip.ChecksumError
	suite.Require().True(errors.As(err, &checksumErr), "got %v", err)
	suite.Require().Equal(uint32(0xdeadbeef), checksumErr.Expected)
	suite.Require().Equal(zip.Checksum(body), checksumErr.Actual)
}

func (suite *ArchiveTestSuite) TestTrailingBytesAfterFinalBlock() {
	body := []byte("one deflate member")
	compressed := append(suite.deflate(body), 0x00)

	archive := suite.openArchive(suite.createRawArchive([]rawFixture{
		{name: "trailing.bin", method: zip.MethodDeflate, data: compressed, crc: zip.Checksum(body), uncompressed: len(body)},
	}))

	_, err := archive.Decompress(archive.Entries[0])
	suite.Require().True(errors.Is(err, zip.ErrUnsupportedFeature), "got %v", err)
	suite.Require().Contains(err.Error(), "1 bytes follow the final deflate block")
}

func (suite *ArchiveTestSuite) TestUncompressedSizeMismatch() {
	body := []byte("sized wrong")

	archive := suite.openArchive(suite.createRawArchive([]rawFixture{
		{name: "deflated.txt", method: zip.MethodDeflate, data: suite.deflate(body), crc: zip.Checksum(body), uncompressed: len(body) + 1},
		{name: "stored.txt", method: zip.MethodStore, data: body, crc: zip.Checksum(body), uncompressed: len(body) - 1},
	}))

	for _, entry := range archive.Entries {
		_, err := archive.Decompress(entry)
		suite.Require().True(errors.Is(err, zip.ErrSizeMismatch), "%s: got %v", entry.FileName, err)
	}
}

func (suite *ArchiveTestSuite) TestUnsupportedMethod() {
	archive := suite.openArchive(suite.createArchive([]fixture{
		{name: "odd.bin", body: "odd", method: 99},
		{name: "ok.txt", body: "ok", method: zip.MethodDeflate},
	}, ""))

	suite.Require().True(errors.Is(archive.Entries[0].Supported(), zip.ErrUnsupportedMethod))
	suite.Require().Nil(archive.Entries[0].Local)

	results, err := archive.ExtractAll(suite.ctx, 0, nil)
	suite.Require().NoError(err)
	suite.Require().True(errors.Is(results[0].Err, zip.ErrUnsupportedMethod))
	suite.Require().NoError(results[1].Err)
	suite.Require().Equal(2, results[1].Size)
}

func (suite *ArchiveTestSuite) TestMalformedArchives() {
	data := suite.createArchive([]fixture{
		{name: "a.txt", body: "hello", method: zip.MethodStore},
	}, "")

	_, err := zip.NewArchive(data[:10])
	suite.Require().Equal(zip.ErrShortArchive, err)

	_, err = zip.NewArchive(data[:len(data)-1])
	suite.Require().Equal(zip.ErrEOCDNotFound, err)

	// claim a second entry that the central directory does not hold
	eocd, offset, err := zip.FindEOCD(data)
	suite.Require().NoError(err)
	suite.Require().EqualValues(1, eocd.TotalEntries)
	moreEntries := append([]byte(nil), data...)
	moreEntries[offset+8], moreEntries[offset+10] = 2, 2
	_, err = zip.NewArchive(moreEntries)
	suite.Require().True(errors.Is(err, zip.ErrTruncated), "got %v", err)

	// break the local header signature
	badLocal := append([]byte(nil), data...)
	badLocal[0] = 0
	_, err = zip.NewArchive(badLocal)
	suite.Require().True(errors.Is(err, zip.ErrSignature), "got %v", err)

	// multi-disk
	multiDisk := append([]byte(nil), data...)
	multiDisk[offset+4] = 1
	_, err = zip.NewArchive(multiDisk)
	suite.Require().True(errors.Is(err, zip.ErrUnsupportedFeature), "got %v", err)

	// entry counts deferred to a ZIP64 record
	zip64 := append([]byte(nil), data...)
	binary.LittleEndian.PutUint16(zip64[offset+8:], 0xffff)
	binary.LittleEndian.PutUint16(zip64[offset+10:], 0xffff)
	_, err = zip.NewArchive(zip64)
	suite.Require().True(errors.Is(err, zip.ErrUnsupportedFeature), "got %v", err)
	suite.Require().Contains(err.Error(), "ZIP64")
}

func (suite *ArchiveTestSuite) TestOpenFile() {
	path := filepath.Join(suite.T().TempDir(), "test.zip")
	suite.Require().NoError(os.WriteFile(path, suite.createArchive([]fixture{
		{name: "mapped.txt", body: strings.Repeat("mapped ", 100), method: zip.MethodDeflate},
	}, ""), 0644))

	archive, err := zip.OpenFile(path, zip.WithLogger(logrus.NewEntry(suite.logger)))
	suite.Require().NoError(err)

	data, err := archive.Decompress(archive.Entries[0])
	suite.Require().NoError(err)
	suite.Require().Equal(strings.Repeat("mapped ", 100), string(data))
	suite.Require().NoError(archive.Close())
	suite.Require().NoError(archive.Close())

	empty := filepath.Join(suite.T().TempDir(), "empty.zip")
	suite.Require().NoError(os.WriteFile(empty, nil, 0644))
	_, err = zip.OpenFile(empty)
	suite.Require().Equal(zip.ErrShortArchive, err)

	_, err = zip.OpenFile(filepath.Join(suite.T().TempDir(), "missing.zip"))
	suite.Require().Error(err)
}

func (suite *ArchiveTestSuite) TestExtractTo() {
	archive := suite.openArchive(suite.createArchive([]fixture{
		{name: "top.txt", body: "top", method: zip.MethodDeflate},
		{name: "nested/", method: zip.MethodStore},
		{name: "nested/inner.txt", body: "inner", method: zip.MethodStore, mode: 0600},
		{name: "../escape.txt", body: "escape", method: zip.MethodStore},
	}, ""))

	root := suite.T().TempDir()
	target := filepath.Join(root, "out")

	results, err := archive.ExtractTo(suite.ctx, target, zip.ExtractOptions{Workers: 2})
	suite.Require().NoError(err)
	suite.Require().Len(results, 4)
	suite.Require().Equal("../escape.txt", results[3].Entry.FileName)
	suite.Require().True(errors.Is(results[3].Err, zip.ErrUnsafePath))

	suite.requireFileContents(filepath.Join(target, "top.txt"), "top")
	suite.requireFileContents(filepath.Join(target, "nested", "inner.txt"), "inner")
	suite.Require().NoFileExists(filepath.Join(root, "escape.txt"))

	info, err := os.Stat(filepath.Join(target, "nested", "inner.txt"))
	suite.Require().NoError(err)
	suite.Require().Equal(os.FileMode(0600), info.Mode().Perm())

	// existing files are kept unless overwrite is set
	results, err = archive.ExtractTo(suite.ctx, target, zip.ExtractOptions{})
	suite.Require().NoError(err)
	suite.Require().Len(results, 4)
	suite.Require().True(errors.Is(results[0].Err, os.ErrExist), "got %v", results[0].Err)
	suite.Require().NoError(results[1].Err)
	suite.Require().True(errors.Is(results[2].Err, os.ErrExist), "got %v", results[2].Err)

	results, err = archive.ExtractTo(suite.ctx, target, zip.ExtractOptions{Overwrite: true})
	suite.Require().NoError(err)
	for _, result := range results[:3] {
		suite.Require().NoError(result.Err, result.Entry.FileName)
	}
}

func (suite *ArchiveTestSuite) createArchive(fixtures []fixture, comment string) []byte {
	var buf bytes.Buffer

	writer := kzip.NewWriter(&buf)
	writer.RegisterCompressor(99, func(out io.Writer) (io.WriteCloser, error) {
		return nopCompressor{out}, nil
	})

	for _, f := range fixtures {
		header := &kzip.FileHeader{
			Name:    f.name,
			Method:  f.method,
			Comment: f.comment,
		}
		if f.mode != 0 {
			header.SetMode(f.mode)
		}

		w, err := writer.CreateHeader(header)
		suite.Require().NoError(err)
		_, err = io.WriteString(w, f.body)
		suite.Require().NoError(err)
	}

	if comment != "" {
		suite.Require().NoError(writer.SetComment(comment))
	}
	suite.Require().NoError(writer.Close())

	return buf.Bytes()
}

// createRawArchive writes entries whose data, sizes and CRC are taken as
// given, with no data descriptor, so the local header carries the CRC.
func (suite *ArchiveTestSuite) createRawArchive(fixtures []rawFixture) []byte {
	var buf bytes.Buffer

	writer := kzip.NewWriter(&buf)
	for _, f := range fixtures {
		w, err := writer.CreateRaw(&kzip.FileHeader{
			Name:               f.name,
			Method:             f.method,
			CRC32:              f.crc,
			CompressedSize64:   uint64(len(f.data)),
			UncompressedSize64: uint64(f.uncompressed),
		})
		suite.Require().NoError(err)
		_, err = w.Write(f.data)
		suite.Require().NoError(err)
	}
	suite.Require().NoError(writer.Close())

	return buf.Bytes()
}

func (suite *ArchiveTestSuite) deflate(data []byte) []byte {
	var buf bytes.Buffer

	w, err := flate.NewWriter(&buf, flate.BestCompression)
	suite.Require().NoError(err)
	_, err = w.Write(data)
	suite.Require().NoError(err)
	suite.Require().NoError(w.Close())

	return buf.Bytes()
}

func (suite *ArchiveTestSuite) openArchive(data []byte) *zip.Archive {
	archive, err := zip.NewArchive(data, zip.WithLogger(logrus.NewEntry(suite.logger)))
	suite.Require().NoError(err)
	return archive
}

func (suite *ArchiveTestSuite) requireFileContents(path string, expected string) {
	contents, err := os.ReadFile(path)
	suite.Require().NoError(err)
	suite.Require().Equal(expected, string(contents))
}

func TestArchiveTestSuite(t *testing.T) {
	suite.Run(t, new(ArchiveTestSuite))
}
