package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mscrnt/drivecheck/pkg/structure"
)

var (
	colorGray    = lipgloss.Color("#6272A4")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")

	headerStyle = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	nameStyle   = cellStyle.Foreground(colorMagenta)
	hexStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colorGray)
)

// newTable returns a bordered table with styled headers.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// Display selects how debug prints a decoded structure.
type Display string

const (
	DisplayPretty    Display = "pretty"
	DisplayRaw       Display = "raw"
	DisplayByteArray Display = "bytearray"
)

func parseDisplay(s string) (Display, error) {
	switch d := Display(s); d {
	case DisplayPretty, DisplayRaw, DisplayByteArray:
		return d, nil
	}
	return "", fmt.Errorf("unknown display %q (pretty, raw or bytearray)", s)
}

func writeStructure(w io.Writer, d *structure.Decoded, display Display) error {
	var err error
	switch display {
	case DisplayRaw:
		_, err = w.Write(d.Encode())
	case DisplayByteArray:
		_, err = io.WriteString(w, byteArrayLiteral(d.Encode()))
	default:
		_, err = fmt.Fprintln(w, prettyStructure(d))
	}
	return err
}

// prettyStructure renders every field with its bit range. Nested structures
// become nested tables, byte arrays become hex and ASCII columns.
func prettyStructure(d *structure.Decoded) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		BorderRow(true).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1:
				return nameStyle
			}
			return cellStyle
		}).
		Headers("Offset", "Name", "Value")

	for _, f := range d.Fields() {
		offset := fmt.Sprintf("[%03d:%03d]", f.BitOffset, f.BitOffset+f.BitWidth)
		switch f.Kind {
		case structure.ByteArray:
			t.Row(offset, f.Name, hexDump(f.Bytes))
		case structure.Nested:
			t.Row(offset, f.Name, prettyStructure(f.Nested[0]))
		case structure.Repeated:
			for i, e := range f.Nested {
				size := uint(e.Description().Size()) * 8
				start := f.BitOffset + uint(i)*size
				t.Row(fmt.Sprintf("[%03d:%03d]", start, start+size), fmt.Sprintf("%s[%d]", f.Name, i), prettyStructure(e))
			}
		default:
			t.Row(offset, f.Name, fmt.Sprintf("0x%03X", f.Value.Big()))
		}
	}
	return t.String()
}

const dumpWidth = 20

// hexDump prints dumpWidth bytes per line as hex followed by printable ASCII.
func hexDump(b []byte) string {
	var lines []string
	for start := 0; start < len(b); start += dumpWidth {
		end := min(start+dumpWidth, len(b))
		chunk := b[start:end]

		hex := make([]string, len(chunk))
		ascii := make([]byte, len(chunk))
		for i, c := range chunk {
			hex[i] = fmt.Sprintf("%02X", c)
			if c >= 32 && c <= 126 {
				ascii[i] = c
			} else {
				ascii[i] = '.'
			}
		}
		line := fmt.Sprintf("%-*s  %s", dumpWidth*3-1, strings.Join(hex, " "), ascii)
		lines = append(lines, hexStyle.Render(line))
	}
	return strings.Join(lines, "\n")
}

// byteArrayLiteral formats b as a Go byte slice literal, 16 bytes a line.
func byteArrayLiteral(b []byte) string {
	var sb strings.Builder
	sb.WriteString("[]byte{\n")
	for start := 0; start < len(b); start += 16 {
		end := min(start+16, len(b))
		sb.WriteString("\t")
		for i, c := range b[start:end] {
			if i > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "0x%02x,", c)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}
