package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format selects how Summary renders.
type Format int

const (
	FormatText Format = iota
	FormatMarkdown
)

// Summary renders res as up to three tables (tagged, warnings, failed)
// followed by a one-line count.
func Summary(res Result, format Format) string {
	var b strings.Builder

	if len(res.Successes) > 0 {
		rows := make([][]string, 0, len(res.Successes))
		for _, s := range res.Successes {
			rows = append(rows, []string{
				filepath.Base(s.Path),
				s.Record.Title,
				s.Record.Artist,
				s.Record.Album,
			})
		}
		writeSection(&b, format, "Tagged", []string{"File", "Title", "Artist", "Album"}, rows)
	}

	if len(res.Warnings) > 0 {
		rows := make([][]string, 0, len(res.Warnings))
		for _, w := range res.Warnings {
			rows = append(rows, []string{w.Item, w.Message})
		}
		writeSection(&b, format, "Warnings", []string{"Item", "Message"}, rows)
	}

	if len(res.Failures) > 0 {
		rows := make([][]string, 0, len(res.Failures))
		for _, f := range res.Failures {
			rows = append(rows, []string{f.Item, f.Message})
		}
		writeSection(&b, format, "Failed", []string{"Item", "Error"}, rows)
	}

	fmt.Fprintf(&b, "%d tagged, %d warning(s), %d failed\n",
		len(res.Successes), len(res.Warnings), len(res.Failures))
	return b.String()
}

func writeSection(b *strings.Builder, format Format, title string, headers []string, rows [][]string) {
	tw := table.NewWriter()

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	switch format {
	case FormatMarkdown:
		fmt.Fprintf(b, "### %s\n\n%s\n\n", title, tw.RenderMarkdown())
	default:
		tw.SetStyle(table.StyleRounded)
		tw.SetTitle(title)
		tw.Style().Title.Align = text.AlignLeft
		fmt.Fprintf(b, "%s\n", tw.Render())
	}
}
