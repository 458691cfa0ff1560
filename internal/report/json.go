package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
)

// JSONWriter writes the result as a JSON document.
type JSONWriter struct {
	out    io.Writer
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents output by two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) { w.indent = "  " }
}

// NewJSONWriter creates a JSONWriter.
func NewJSONWriter(out io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{out: out}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write encodes res.
func (w *JSONWriter) Write(res analyzer.Result) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent != "" {
		data, err = json.MarshalIndent(res, "", w.indent)
	} else {
		data, err = json.Marshal(res)
	}
	if err != nil {
		return 0, fmt.Errorf("marshal result: %w", err)
	}
	data = append(data, '\n')
	return w.out.Write(data)
}
