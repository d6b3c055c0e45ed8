package common

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// NewTable returns a table writer mirrored to w in the light style.
func NewTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// JoinOrDash joins values, or returns "-" when there are none.
func JoinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
