package export

import "fmt"

// Format names an export encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Table is one titled block of positional rows.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Document is an ordered set of tables rendered into a single file.
type Document struct {
	Title  string
	Tables []Table
}

// Renderer encodes a document.
type Renderer interface {
	Render(doc Document) ([]byte, error)
	ContentType() string
	Extension() string
}

// RendererFor returns the renderer registered for the format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatCSV:
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func validate(doc Document) error {
	if len(doc.Tables) == 0 {
		return fmt.Errorf("document has no tables")
	}
	for _, table := range doc.Tables {
		if len(table.Headers) == 0 {
			return fmt.Errorf("table %q requires at least one header", table.Title)
		}
	}
	return nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
