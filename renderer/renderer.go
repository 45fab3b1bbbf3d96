package renderer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/JoshVarga/inflate/zip"
)

type Renderer struct {
	output io.Writer
}

func NewRenderer(output io.Writer) *Renderer {
	return &Renderer{
		output: output,
	}
}

// EntryRecord is the listing view of one archive entry.
type EntryRecord struct {
	Name             string `json:"name"`
	Method           string `json:"method"`
	CompressedSize   uint32 `json:"compressedSize"`
	UncompressedSize uint32 `json:"uncompressedSize"`
	CRC32            string `json:"crc32"`
	Modified         string `json:"modified"`
	Comment          string `json:"comment,omitempty"`
}

func (r *Renderer) RenderTable(header []interface{}, records [][]interface{}, footer []interface{}) {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.output)
	tw.SetStyle(table.Style{
		Name: "Inflate",
		Box: table.BoxStyle{
			MiddleVertical: "|",
			PaddingLeft:    " ",
			PaddingRight:   " ",
		},
		Options: table.Options{
			DoNotColorBordersAndSeparators: true,
			DrawBorder:                     false,
			SeparateColumns:                true,
			SeparateFooter:                 false,
			SeparateHeader:                 false,
			SeparateRows:                   false,
		},
		Color:  table.ColorOptionsDefault,
		Format: table.FormatOptionsDefault,
		HTML:   table.DefaultHTMLOptions,
		Title:  table.TitleOptionsDefault,
	})
	tw.AppendHeader(r.rowInterfaceToTableRow(header), table.RowConfig{})
	tw.AppendRows(r.rowsStringToTableRows(records), table.RowConfig{})
	if footer != nil {
		tw.AppendFooter(r.rowInterfaceToTableRow(footer), table.RowConfig{})
	}
	tw.Render()
}

func (r *Renderer) RenderJSON(items interface{}) error {
	body, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "unable to render JSON")
	}

	var pbody bytes.Buffer
	if err := json.Indent(&pbody, body, "", "\t"); err != nil {
		return errors.Wrap(err, "unable to indent JSON")
	}

	fmt.Fprintln(r.output, pbody.String()) // nolint: errcheck

	return nil
}

// RenderEntries lists entries as a table with a totals footer.
func (r *Renderer) RenderEntries(entries []*zip.Entry) {
	records := lo.Map(NewEntryRecords(entries), func(record EntryRecord, _ int) []interface{} {
		return []interface{}{
			record.Name,
			record.Method,
			record.CompressedSize,
			record.UncompressedSize,
			record.CRC32,
			record.Modified,
		}
	})

	files := lo.Reject(entries, func(entry *zip.Entry, _ int) bool {
		return entry.IsDir()
	})
	compressed := lo.SumBy(entries, func(entry *zip.Entry) uint64 {
		return uint64(entry.CompressedSize)
	})
	uncompressed := lo.SumBy(entries, func(entry *zip.Entry) uint64 {
		return uint64(entry.UncompressedSize)
	})

	r.RenderTable(
		[]interface{}{"Name", "Method", "Compressed", "Size", "CRC-32", "Modified"},
		records,
		[]interface{}{fmt.Sprintf("%d files", len(files)), "", compressed, uncompressed, "", ""})
}

// RenderEntriesJSON lists entries as JSON.
func (r *Renderer) RenderEntriesJSON(entries []*zip.Entry) error {
	return r.RenderJSON(NewEntryRecords(entries))
}

// RenderResults prints one colored status line per result and returns the
// number of failures.
func (r *Renderer) RenderResults(results []zip.Result) int {
	ok := color.New(color.FgGreen, color.Bold)
	failed := color.New(color.FgRed, color.Bold)

	for _, result := range results {
		if result.Err != nil {
			fmt.Fprintf(r.output, "%s %s: %s\n", failed.Sprint("FAILED"), result.Entry.FileName, result.Err) // nolint: errcheck
			continue
		}
		fmt.Fprintf(r.output, "%s     %s (%d bytes)\n", ok.Sprint("OK"), result.Entry.FileName, result.Size) // nolint: errcheck
	}

	return lo.CountBy(results, func(result zip.Result) bool {
		return result.Err != nil
	})
}

// NewEntryRecords converts entries to their listing view.
func NewEntryRecords(entries []*zip.Entry) []EntryRecord {
	return lo.Map(entries, func(entry *zip.Entry, _ int) EntryRecord {
		return EntryRecord{
			Name:             entry.FileName,
			Method:           methodName(entry.Method),
			CompressedSize:   entry.CompressedSize,
			UncompressedSize: entry.UncompressedSize,
			CRC32:            fmt.Sprintf("%08x", entry.CRC32),
			Modified:         entry.Modified().Format("2006-01-02 15:04"),
			Comment:          entry.FileComment,
		}
	})
}

func methodName(method uint16) string {
	switch method {
	case zip.MethodStore:
		return "store"
	case zip.MethodDeflate:
		return "deflate"
	default:
		return fmt.Sprintf("method %d", method)
	}
}

func (r *Renderer) rowsStringToTableRows(rows [][]interface{}) []table.Row {
	tableRows := make([]table.Row, len(rows))
	for rowIndex, rowValue := range rows {
		tableRows[rowIndex] = r.rowInterfaceToTableRow(rowValue)
	}
	return tableRows
}

func (r *Renderer) rowInterfaceToTableRow(row []interface{}) table.Row {
	tableRow := make(table.Row, len(row))
	copy(tableRow, row)
	return tableRow
}
