package output

import (
	"encoding/json"
	"io"
	"os"
)

// Response is the success envelope for JSON output.
type Response struct {
	OK      bool           `json:"ok"`
	Data    any            `json:"data,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorResponse is the error envelope for JSON output.
type ErrorResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Code   string `json:"code"`
	Hint   string `json:"hint,omitempty"`
	Status int    `json:"status,omitempty"`
}

// Format specifies the output format.
type Format int

const (
	FormatAuto Format = iota // Auto-detect: TTY → Styled, non-TTY → JSON
	FormatJSON
	FormatStyled // ANSI styled output (forced, even when piped)
	FormatQuiet  // Data only, no envelope
)

// ParseFormat maps a config/flag value to a Format. Unknown values fall back to auto.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "styled":
		return FormatStyled
	case "quiet":
		return FormatQuiet
	default:
		return FormatAuto
	}
}

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer
	// JQ, when set, filters the data field before it is written.
	JQ string
}

// Writer handles all output formatting.
type Writer struct {
	opts Options
}

// New creates a new output writer.
func New(opts Options) *Writer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &Writer{opts: opts}
}

// Format returns the effective format, resolving auto-detection.
func (w *Writer) Format() Format {
	if w.opts.Format != FormatAuto {
		return w.opts.Format
	}
	if isTTY(w.opts.Writer) {
		return FormatStyled
	}
	return FormatJSON
}

// OK outputs a success response.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}
	if w.opts.JQ != "" {
		filtered, err := Filter(w.opts.JQ, resp.Data)
		if err != nil {
			return err
		}
		resp.Data = filtered
	}
	return w.write(resp)
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	return w.write(&ErrorResponse{
		OK:     false,
		Error:  e.Message,
		Code:   e.Code,
		Hint:   e.Hint,
		Status: e.HTTPStatus,
	})
}

func (w *Writer) write(v any) error {
	switch w.Format() {
	case FormatQuiet:
		if resp, ok := v.(*Response); ok {
			return w.writeJSON(resp.Data)
		}
		return w.writeJSON(v)
	case FormatStyled:
		r := NewRenderer(w.opts.Writer, true)
		switch resp := v.(type) {
		case *Response:
			return r.RenderResponse(w.opts.Writer, resp)
		case *ErrorResponse:
			return r.RenderError(w.opts.Writer, resp)
		}
		return w.writeJSON(v)
	default:
		return w.writeJSON(v)
	}
}

// isTTY checks if the writer is a terminal.
func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NormalizeData converts arbitrary Go values (structs, json.RawMessage) into
// plain JSON-shaped values: map[string]any, []any, string, float64, bool, nil.
func NormalizeData(data any) any {
	var raw []byte
	switch d := data.(type) {
	case nil:
		return nil
	case json.RawMessage:
		raw = d
	case map[string]any, []any, string, float64, bool:
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return data
		}
		raw = b
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return data
	}
	return out
}

// ResponseOption modifies a Response.
type ResponseOption func(*Response)

// WithSummary adds a summary to the response.
func WithSummary(s string) ResponseOption {
	return func(r *Response) { r.Summary = s }
}

// WithMeta adds metadata to the response.
func WithMeta(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = value
	}
}
