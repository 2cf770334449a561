package cmd

import (
	"fmt"
	"io"
	"strings"

	"coffeectl/internal/color"
	"coffeectl/internal/deploy"
	"coffeectl/internal/prober"
)

// printer writes human-facing progress lines. Logs go to stderr through
// pkg/logging; this is what the operator reads.
type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) printer {
	return printer{w: w}
}

func (p printer) header(format string, args ...interface{}) {
	fmt.Fprintln(p.w, color.HeaderStyle.Render("==> "+fmt.Sprintf(format, args...)))
}

func (p printer) ok(format string, args ...interface{}) {
	fmt.Fprintln(p.w, color.OKStyle.Render("  ✓ ")+fmt.Sprintf(format, args...))
}

func (p printer) fail(format string, args ...interface{}) {
	fmt.Fprintln(p.w, color.FailStyle.Render("  ✗ ")+fmt.Sprintf(format, args...))
}

func (p printer) skipped(format string, args ...interface{}) {
	fmt.Fprintln(p.w, color.SkipStyle.Render("  - "+fmt.Sprintf(format, args...)))
}

func (p printer) line(format string, args ...interface{}) {
	fmt.Fprintln(p.w, "    "+fmt.Sprintf(format, args...))
}

func (p printer) hint(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintln(p.w, color.HintStyle.Render("  hint: "+text))
}

func (p printer) output(text string) {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintln(p.w, color.OutputStyle.Render(text))
}

func (p printer) errorLine(err error) {
	fmt.Fprintln(p.w, color.FailStyle.Render("Error: ")+err.Error())
}

func (p printer) checks(checks []prober.Check) {
	for _, c := range checks {
		label := c.Name
		if c.Detail != "" {
			label += ": " + c.Detail
		}
		if c.OK {
			p.ok("%s", label)
		} else {
			p.fail("%s", label)
		}
	}
}

// event renders one deploy pipeline event.
func (p printer) event(e deploy.Event) {
	title := strings.ToUpper(string(e.Step[:1])) + string(e.Step[1:])
	switch e.Status {
	case deploy.StatusStarted:
		if e.Detail != "" {
			p.header("%s (%s)", title, e.Detail)
		} else {
			p.header("%s", title)
		}
	case deploy.StatusDone:
		p.ok("%s", withDefault(e.Detail, string(e.Step)+" done"))
	case deploy.StatusSkipped:
		p.skipped("%s skipped", e.Step)
	case deploy.StatusFailed:
		p.fail("%s failed", e.Step)
	default:
		// tier transitions inside the manifest step
		p.line("[%s] %s", e.Status, e.Detail)
	}
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
