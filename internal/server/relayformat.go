package server

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xoity/medicinedb/internal/relay"
)

// formatRelayResponse renders a relay reply as transcript text: errors and
// messages verbatim, result sets as an aligned text table.
func formatRelayResponse(resp relay.Response) string {
	if resp.Error != "" {
		return resp.Error
	}
	if resp.Message != "" {
		return resp.Message
	}
	if len(resp.Results) == 0 {
		return "No rows returned."
	}
	return "Results:\n" + resultsTable(resp.Results)
}

// resultsTable lays the rows out with stable, sorted column order.
func resultsTable(rows []map[string]interface{}) string {
	colSet := map[string]bool{}
	for _, row := range rows {
		for col := range row {
			colSet[col] = true
		}
	}
	cols := make([]string, 0, len(colSet))
	for col := range colSet {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	widths := make([]int, len(cols))
	cells := make([][]string, len(rows))
	for i, col := range cols {
		widths[i] = utf8.RuneCountInString(col)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(cols))
		for i, col := range cols {
			v := ""
			if row[col] != nil {
				v = fmt.Sprintf("%v", row[col])
			}
			cells[r][i] = v
			if n := utf8.RuneCountInString(v); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	writeRow := func(values []string) {
		for i, v := range values {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(v)
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(v)))
		}
		b.WriteString("\n")
	}
	writeRow(cols)
	for _, row := range cells {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), " \n")
}
