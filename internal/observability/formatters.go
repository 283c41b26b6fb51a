// Package observability formats pipeline progress, dreams and reports for
// the command line.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/pipeline"
	"github.com/jonathan/dream-bridge/internal/report"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of rows shown in a box list
	maxItemsToShow = 5
)

// Printer handles formatted CLI output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(truncate(line, inner), inner))
	}
	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad right-pads s with spaces to width runes. fmt's %-*s counts bytes.
func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// PrintProgress prints one line per pipeline event.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(event pipeline.ProgressEvent) {
	marker := "✓"
	switch event.Kind {
	case pipeline.Degraded.String():
		marker = "~"
	case pipeline.Fatal.String():
		marker = "✗"
	}
	label := string(event.Stage)
	if def, ok := pipeline.StageRegistry[event.Stage]; ok {
		label = fmt.Sprintf("%d/%d %s", def.Order, len(pipeline.OrderedStages()), def.Label)
	}
	fmt.Fprintf(p.out, "%s %s", marker, label)
	if event.Message != "" {
		fmt.Fprintf(p.out, ": %s", event.Message)
	}
	fmt.Fprintln(p.out)
}

// PrintDream outputs the fields of a processed dream and the message shown
// with it.
func (p *Printer) PrintDream(dream *db.Dream, message string) {
	if dream == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:   %s\n", dream.Status))
	if dream.Emotion != "" {
		sb.WriteString(fmt.Sprintf("Emotion:  %s\n", dream.Emotion))
	}
	if dream.GeneratedImage != nil {
		sb.WriteString(fmt.Sprintf("Image:    %s\n", *dream.GeneratedImage))
	}
	if dream.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Error:    %s\n", dream.ErrorMessage))
	}
	if dream.Transcription != "" {
		sb.WriteString("\nTranscription:\n")
		sb.WriteString(wrap(dream.Transcription, boxWidth-6, "  "))
	}
	if dream.ImagePrompt != "" {
		sb.WriteString("\nImage prompt:\n")
		sb.WriteString(wrap(dream.ImagePrompt, boxWidth-6, "  "))
	}
	if message != "" {
		sb.WriteString("\nMessage:\n")
		sb.WriteString(wrap(message, boxWidth-6, "  "))
	}

	p.printBox("DREAM "+dream.ID.String(), strings.TrimSuffix(sb.String(), "\n"))
}

// wrap breaks s into lines of at most width runes on word boundaries.
func wrap(s string, width int, indent string) string {
	var sb strings.Builder
	line := ""
	for _, word := range strings.Fields(s) {
		if line != "" && utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) > width {
			sb.WriteString(indent + line + "\n")
			line = ""
		}
		if line == "" {
			line = word
		} else {
			line += " " + word
		}
	}
	if line != "" {
		sb.WriteString(indent + line + "\n")
	}
	return sb.String()
}

// PrintDreams outputs a table of dreams, newest first as given.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintDreams(dreams []db.Dream) {
	if len(dreams) == 0 {
		fmt.Fprintln(p.out, "No dreams found.")
		return
	}
	rows := make([][]string, 0, len(dreams))
	for _, d := range dreams {
		rows = append(rows, []string{
			d.ID.String(),
			d.CreatedAt.UTC().Format("2006-01-02 15:04"),
			string(d.Status),
			string(d.Emotion),
			truncate(strings.Join(strings.Fields(d.Transcription), " "), 40),
		})
	}
	fmt.Fprintln(p.out, renderTable(
		[]string{"ID", "Created", "Status", "Emotion", "Transcription"},
		rows,
		nil,
	))
}

// PrintReport outputs the report summary, its emotion distribution and the
// transcription length trend.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintReport(r *report.Report) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Period:     %s\n", r.Period))
	if r.Emotion != "" {
		sb.WriteString(fmt.Sprintf("Emotion:    %s\n", r.Emotion))
	}
	sb.WriteString(fmt.Sprintf("Dreams:     %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Frequency:  %.2f%% of days", r.Frequency))
	p.printBox("DREAM REPORT", sb.String())

	if len(r.Distribution) > 0 {
		emotions := make([]db.Emotion, 0, len(r.Distribution))
		for e := range r.Distribution {
			emotions = append(emotions, e)
		}
		sort.Slice(emotions, func(i, j int) bool {
			if r.Distribution[emotions[i]] != r.Distribution[emotions[j]] {
				return r.Distribution[emotions[i]] > r.Distribution[emotions[j]]
			}
			return emotions[i] < emotions[j]
		})
		rows := make([][]string, 0, len(emotions))
		for _, e := range emotions {
			rows = append(rows, []string{string(e), strconv.FormatFloat(r.Distribution[e]*100, 'f', 1, 64) + "%"})
		}
		fmt.Fprintln(p.out, renderTable([]string{"Emotion", "Share"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(r.Trend) > 0 {
		count := len(r.Trend)
		start := 0
		if r.Period == report.All && count > maxItemsToShow*2 {
			start = count - maxItemsToShow*2
		}
		rows := make([][]string, 0, count-start)
		for _, point := range r.Trend[start:] {
			rows = append(rows, []string{point.Date, strconv.FormatFloat(point.AvgLength, 'f', 1, 64)})
		}
		fmt.Fprintln(p.out, renderTable([]string{"Day", "Avg length"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
