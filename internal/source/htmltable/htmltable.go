// Package htmltable implements source.Accessor over an HTML <table>,
// so published tabular pages can be profiled without a CSV export step.
//
// The selected table is extracted once with goquery into the same in-memory
// column-store shape the CSV accessor uses; header cells come from the
// first row's <th> (or <td>) elements.
package htmltable

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dataprofiler/internal/source"
	"dataprofiler/internal/source/csvfile"
)

// Options control table selection.
type Options struct {
	// Selector picks the table to profile. Empty means "table" (the first
	// table in the document).
	Selector string
}

// Open parses the HTML file at path and extracts the selected table.
func Open(path string, opt Options) (source.Accessor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("htmltable: %w", err)
	}
	defer f.Close()
	return New(f, opt)
}

// New parses HTML from r and extracts the selected table.
//
// Ragged rows (fewer/more cells than the header) are skipped rather than
// failing the run; real-world pages are rarely clean.
func New(r io.Reader, opt Options) (source.Accessor, error) {
	sel := opt.Selector
	if sel == "" {
		sel = "table"
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("htmltable: parse html: %w", err)
	}

	table := doc.Find(sel).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("htmltable: no table matches selector %q", sel)
	}

	rows := table.Find("tr")
	if rows.Length() == 0 {
		return nil, fmt.Errorf("htmltable: selected table has no rows")
	}

	var headers []string
	var records [][]string
	rows.EachWithBreak(func(i int, tr *goquery.Selection) bool {
		cells := cellTexts(tr)
		if i == 0 {
			headers = cells
			return len(headers) > 0
		}
		if len(cells) == len(headers) {
			records = append(records, cells)
		}
		return true
	})
	if len(headers) == 0 {
		return nil, fmt.Errorf("htmltable: selected table has no header cells")
	}

	// Reuse the CSV column store: render the extracted rows back through
	// the delimited path so NULL semantics (empty cell) stay identical
	// across flat-file sources.
	var b strings.Builder
	writeRecord(&b, headers)
	for _, rec := range records {
		writeRecord(&b, rec)
	}
	return csvfile.New(strings.NewReader(b.String()), csvfile.Options{})
}

func cellTexts(tr *goquery.Selection) []string {
	var out []string
	tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		out = append(out, strings.TrimSpace(cell.Text()))
	})
	return out
}

func writeRecord(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
