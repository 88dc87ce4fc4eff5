package document

import (
	"regexp"
	"strconv"
	"strings"
)

// reColumnGap separates columns in pdftotext -layout output.
var reColumnGap = regexp.MustCompile(`\s{2,}`)

const minTableRows = 2

// tablesFromLayout derives tables from layout-preserving text: runs of at
// least two consecutive lines that split into two or more columns.
func tablesFromLayout(layout string) [][][]string {
	var tables [][][]string
	for _, page := range strings.Split(layout, "\f") {
		var cur [][]string
		flush := func() {
			if len(cur) >= minTableRows {
				tables = append(tables, cur)
			}
			cur = nil
		}
		for _, line := range strings.Split(page, "\n") {
			cells := splitColumns(line)
			if len(cells) < 2 {
				flush()
				continue
			}
			cur = append(cur, cells)
		}
		flush()
	}
	return tables
}

func splitColumns(line string) []string {
	line = strings.TrimSpace(strings.ReplaceAll(line, "\t", "  "))
	if line == "" {
		return nil
	}
	parts := reColumnGap.Split(line, -1)
	cells := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

// FormatTables renders tables as "Table N:" blocks with cells joined by " | ".
func FormatTables(tables [][][]string) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Table ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(":\n")
		for _, row := range t {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
	}
	return b.String()
}
