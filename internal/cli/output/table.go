package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table is a header row plus data rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable returns a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table with columns aligned on two spaces.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// TableFormatter renders Tabular values and tables. Anything else is
// printed with %v.
type TableFormatter struct{}

func (TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case nil:
		return nil
	case *Table:
		return v.Render(w)
	case Tabular:
		return v.Table().Render(w)
	case fmt.Stringer:
		_, err := fmt.Fprintln(w, v.String())
		return err
	default:
		_, err := fmt.Fprintf(w, "%v\n", v)
		return err
	}
}
