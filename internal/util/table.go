package util

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// TableColumn represents a column in a table
type TableColumn struct {
	Header string
	Key    string // key to extract from each row
}

var ansiCode = regexp.MustCompile("\x1b\\[[0-9;]*m")

// RenderTable writes rows as aligned columns. Cells may contain ANSI colors.
func RenderTable(w io.Writer, columns []TableColumn, rows []map[string]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No data to display")
		return
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = displayWidth(col.Header)
		for _, row := range rows {
			if n := displayWidth(row[col.Key]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = pad(col.Header, widths[i])
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))

	for i := range columns {
		parts[i] = strings.Repeat("-", widths[i])
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))

	for _, row := range rows {
		for i, col := range columns {
			parts[i] = pad(row[col.Key], widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
}

// displayWidth counts runes, ignoring ANSI escape codes
func displayWidth(s string) int {
	return utf8.RuneCountInString(ansiCode.ReplaceAllString(s, ""))
}

func pad(s string, width int) string {
	if n := displayWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
