package renderer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	kzip "github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/JoshVarga/inflate/zip"
)

type RendererTestSuite struct {
	suite.Suite
	output   bytes.Buffer
	renderer *Renderer
	archive  *zip.Archive
}

func (suite *RendererTestSuite) SetupTest() {
	color.NoColor = true

	suite.output.Reset()
	suite.renderer = NewRenderer(&suite.output)

	var buf bytes.Buffer
	writer := kzip.NewWriter(&buf)
	modified := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

	for _, f := range []struct {
		name   string
		body   string
		method uint16
	}{
		{name: "docs/", method: kzip.Store},
		{name: "docs/readme.txt", body: strings.Repeat("read me ", 64), method: kzip.Deflate},
		{name: "raw.bin", body: "0123456789", method: kzip.Store},
	} {
		w, err := writer.CreateHeader(&kzip.FileHeader{Name: f.name, Method: f.method, Modified: modified})
		suite.Require().NoError(err)
		_, err = w.Write([]byte(f.body))
		suite.Require().NoError(err)
	}
	suite.Require().NoError(writer.Close())

	archive, err := zip.NewArchive(buf.Bytes())
	suite.Require().NoError(err)
	suite.archive = archive
}

func (suite *RendererTestSuite) TestRenderTable() {
	suite.renderer.RenderTable(
		[]interface{}{"A", "B"},
		[][]interface{}{{"x", 1}, {"yy", 22}},
		nil)

	lines := strings.Split(strings.TrimRight(suite.output.String(), "\n"), "\n")
	suite.Require().Len(lines, 3)
	suite.Require().Equal([]string{"A", "|", "B"}, strings.Fields(lines[0]))
	suite.Require().Equal([]string{"x", "|", "1"}, strings.Fields(lines[1]))
	suite.Require().Equal([]string{"yy", "|", "22"}, strings.Fields(lines[2]))
}

func (suite *RendererTestSuite) TestRenderEntries() {
	suite.renderer.RenderEntries(suite.archive.Entries)

	output := suite.output.String()
	for _, expected := range []string{
		"NAME", "METHOD", "CRC-32",
		"docs/readme.txt", "deflate", "raw.bin", "store",
		"2024-03-09 14:30",
		"2 FILES",
	} {
		suite.Require().Contains(output, expected)
	}
	suite.Require().Contains(output, "522")
}

func (suite *RendererTestSuite) TestRenderEntriesJSON() {
	suite.Require().NoError(suite.renderer.RenderEntriesJSON(suite.archive.Entries))

	var records []EntryRecord
	suite.Require().NoError(json.Unmarshal(suite.output.Bytes(), &records))
	suite.Require().Len(records, 3)
	suite.Require().Equal(EntryRecord{
		Name:             "raw.bin",
		Method:           "store",
		CompressedSize:   10,
		UncompressedSize: 10,
		CRC32:            "a684c7c6",
		Modified:         "2024-03-09 14:30",
	}, records[2])
}

func (suite *RendererTestSuite) TestRenderResults() {
	entries := suite.archive.Entries
	failures := suite.renderer.RenderResults([]zip.Result{
		{Entry: entries[1], Size: 512},
		{Entry: entries[2], Err: errors.Wrap(zip.ErrChecksum, "raw.bin")},
	})

	suite.Require().Equal(1, failures)
	suite.Require().Equal(
		"OK     docs/readme.txt (512 bytes)\n"+
			"FAILED raw.bin: raw.bin: zip: checksum error\n",
		suite.output.String())
}

func TestRendererTestSuite(t *testing.T) {
	suite.Run(t, new(RendererTestSuite))
}
