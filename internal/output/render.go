package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Renderer handles styled terminal output.
type Renderer struct {
	width  int
	styled bool

	Summary lipgloss.Style
	Muted   lipgloss.Style
	Data    lipgloss.Style
	Error   lipgloss.Style
	Hint    lipgloss.Style
	Header  lipgloss.Style
}

// NewRenderer creates a renderer. Styling is enabled when writing to a TTY,
// or when forceStyled is true. NO_COLOR disables it unconditionally.
func NewRenderer(w io.Writer, forceStyled bool) *Renderer {
	width, tty := terminalInfo(w)
	styled := (tty || forceStyled) && os.Getenv("NO_COLOR") == ""

	r := &Renderer{width: width, styled: styled}
	if styled {
		r.Summary = lipgloss.NewStyle().Foreground(lipgloss.Color("#7AA2F7")).Bold(true)
		r.Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("#737AA2"))
		r.Data = lipgloss.NewStyle().Foreground(lipgloss.Color("#C0CAF5"))
		r.Error = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7768E")).Bold(true)
		r.Hint = lipgloss.NewStyle().Foreground(lipgloss.Color("#737AA2")).Italic(true)
		r.Header = lipgloss.NewStyle().Foreground(lipgloss.Color("#C0CAF5")).Bold(true)
	} else {
		r.Summary = lipgloss.NewStyle()
		r.Muted = lipgloss.NewStyle()
		r.Data = lipgloss.NewStyle()
		r.Error = lipgloss.NewStyle()
		r.Hint = lipgloss.NewStyle()
		r.Header = lipgloss.NewStyle()
	}
	return r
}

// terminalInfo returns the terminal width and whether the writer is a TTY.
func terminalInfo(w io.Writer) (width int, isTTY bool) {
	width = 80
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(f.Fd()); err == nil && cols >= 40 {
			width = cols
		}
		isTTY = term.IsTerminal(f.Fd())
	}
	return width, isTTY
}

// RenderResponse renders a success response to the writer.
func (r *Renderer) RenderResponse(w io.Writer, resp *Response) error {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(r.Summary.Render(resp.Summary))
		b.WriteString("\n\n")
	}
	r.renderData(&b, NormalizeData(resp.Data))

	if pg, ok := resp.Meta["pagination"]; ok {
		if m, ok := NormalizeData(pg).(map[string]any); ok {
			b.WriteString("\n")
			b.WriteString(r.Muted.Render(fmt.Sprintf("Page %s of %s (%s items)",
				formatCell(m["currentPage"]), formatCell(m["totalPages"]), formatCell(m["totalItems"]))))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderError renders an error response to the writer.
func (r *Renderer) RenderError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder

	msg := "Error: " + resp.Error
	if resp.Status > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", resp.Status)
	}
	b.WriteString(r.Error.Render(msg))
	b.WriteString("\n")
	if resp.Hint != "" {
		b.WriteString(r.Hint.Render("Hint: " + resp.Hint))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case map[string]any:
		r.renderObject(b, d)
	case []any:
		if len(d) == 0 {
			b.WriteString(r.Muted.Render("(no results)"))
			b.WriteString("\n")
			return
		}
		if maps := toMapSlice(d); maps != nil {
			r.renderTable(b, maps)
			return
		}
		for _, item := range d {
			b.WriteString(r.Data.Render("• " + formatCell(item)))
			b.WriteString("\n")
		}
	case nil:
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
	default:
		b.WriteString(r.Data.Render(formatCell(d)))
		b.WriteString("\n")
	}
}

func toMapSlice(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		out = append(out, m)
	}
	return out
}

func (r *Renderer) renderObject(b *strings.Builder, data map[string]any) {
	keys := scalarKeys(data)
	if len(keys) == 0 {
		b.WriteString(r.Muted.Render("(no data)"))
		b.WriteString("\n")
		return
	}

	maxLen := 0
	for _, k := range keys {
		if l := len(formatHeader(k)); l > maxLen {
			maxLen = l
		}
	}
	for _, k := range keys {
		label := r.Muted.Render(fmt.Sprintf("%-*s: ", maxLen, formatHeader(k)))
		b.WriteString(label + r.Data.Render(formatCell(data[k])) + "\n")
	}
}

func (r *Renderer) renderTable(b *strings.Builder, rows []map[string]any) {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for _, k := range scalarKeys(row) {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return columnRank(cols[i]) < columnRank(cols[j]) })

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(formatHeader(c))
		for _, row := range rows {
			if l := len(formatCell(row[c])); l > widths[i] {
				widths[i] = l
			}
		}
	}

	// Drop trailing columns that would overflow the terminal.
	total := 0
	for i := range cols {
		total += widths[i] + 2
		if total > r.width && i > 0 {
			cols, widths = cols[:i], widths[:i]
			break
		}
	}

	for i, c := range cols {
		b.WriteString(r.Header.Render(fmt.Sprintf("%-*s  ", widths[i], formatHeader(c))))
	}
	b.WriteString("\n")
	for _, row := range rows {
		for i, c := range cols {
			b.WriteString(r.Data.Render(fmt.Sprintf("%-*s  ", widths[i], formatCell(row[c]))))
		}
		b.WriteString("\n")
	}
}

func scalarKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		switch v.(type) {
		case map[string]any:
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := columnRank(keys[i]), columnRank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// columnRank orders identifying columns first.
func columnRank(key string) int {
	switch strings.ToLower(key) {
	case "id":
		return 0
	case "name", "displayname", "title":
		return 1
	case "email", "role":
		return 2
	default:
		return 50
	}
}

var titleCaser = cases.Title(language.English)

// formatHeader turns snake_case and camelCase keys into title-cased labels.
func formatHeader(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	var prev rune
	for _, ch := range key {
		switch {
		case ch == '_' || ch == '-' || ch == ' ':
			flush()
		case unicode.IsUpper(ch) && unicode.IsLower(prev):
			flush()
			cur = append(cur, unicode.ToLower(ch))
		default:
			cur = append(cur, unicode.ToLower(ch))
		}
		prev = ch
	}
	flush()
	return titleCaser.String(strings.Join(words, " "))
}

func formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		if len(v) > 40 {
			return v[:37] + "..."
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%.2f", v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, formatCell(item))
		}
		return strings.Join(items, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
