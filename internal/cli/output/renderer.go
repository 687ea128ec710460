// Package output renders command results for terminals, pipes and machines.
//
// Output adapts to the environment: a TTY gets styled text, a pipe gets
// markdown, and --output json gets machine-readable JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// OutputMode selects how results are rendered.
type OutputMode string

// Output modes.
const (
	ModeAuto     OutputMode = "auto"
	ModeText     OutputMode = "text"
	ModeMarkdown OutputMode = "markdown"
	ModeJSON     OutputMode = "json"
)

// Mode converts a config value into an OutputMode. Unknown values are auto.
func Mode(s string) OutputMode {
	switch m := OutputMode(strings.ToLower(s)); m {
	case ModeText, ModeMarkdown, ModeJSON:
		return m
	default:
		return ModeAuto
	}
}

// Renderer writes formatted output.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	isTTY  bool
	mode   OutputMode
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode OutputMode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode OutputMode) *Renderer {
	lr := lipgloss.NewRenderer(out)
	if isTTY {
		lr.SetColorProfile(termenv.ANSI256)
	} else {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		isTTY:  isTTY,
		mode:   mode,
		styles: NewStyles(lr),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// EffectiveMode resolves auto: TTY=text, non-TTY=markdown.
func (r *Renderer) EffectiveMode() OutputMode {
	if r.mode != ModeAuto && r.mode != "" {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// Styles returns the text-mode styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Out returns the primary writer.
func (r *Renderer) Out() io.Writer { return r.out }

// Println writes a line to stdout.
func (r *Renderer) Println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// Header writes a styled header.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.Header.Render(text))
		return
	}
	r.Println(FormatHeader(level, text))
}

// Success writes a success line.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render("✓ " + msg))
}

// Warning writes a warning line to stderr.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("! "+msg))
}

// Error writes an error line to stderr.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("✗ "+msg))
}

// Muted writes de-emphasized text.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

// KeyValue writes one labelled value.
func (r *Renderer) KeyValue(key, value string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.Key.Render(key+":") + " " + r.styles.Value.Render(value))
		return
	}
	r.Println(FormatKeyValue(key, value))
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// Table writes rows under headers: a box table in text mode, a markdown
// table otherwise.
func (r *Renderer) Table(headers []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeText {
		t.SetStyle(table.StyleLight)
		t.Render()
		return
	}
	t.RenderMarkdown()
}

// Status renders a stage status with its color.
func (r *Renderer) Status(status string) string {
	if r.EffectiveMode() != ModeText {
		return status
	}
	switch status {
	case "success":
		return r.styles.Success.Render(status)
	case "failed":
		return r.styles.Error.Render(status)
	case "running":
		return r.styles.Warning.Render(status)
	default:
		return status
	}
}

// FormatHeader returns a markdown header.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue returns a markdown key/value line.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("**%s:** %s", key, value)
}
