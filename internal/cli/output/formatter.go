package output

import (
	"fmt"
	"io"
	"strings"
)

// Format names an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts "table" (or "text"), "json" and "yaml". Empty means table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table", "text":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Tabular is implemented by values with a text table rendering.
type Tabular interface {
	Table() *Table
}

// Formatter writes data to w.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the formatter for format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return JSONFormatter{}
	case FormatYAML:
		return YAMLFormatter{}
	default:
		return TableFormatter{}
	}
}
