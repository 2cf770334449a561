package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"coffeectl/internal/kube"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// Format selects the output of Render.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an output format name. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Render writes snap to w in the given format.
func Render(w io.Writer, snap Snapshot, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable, "":
		return renderTables(w, snap)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTables(w io.Writer, snap Snapshot) error {
	fmt.Fprintf(w, "%s %s  %s %s\n\n",
		text.FgHiBlue.Sprint("Context:"), snap.Context,
		text.FgHiBlue.Sprint("Namespace:"), snap.Namespace)

	if snap.NamespaceMissing {
		fmt.Fprintln(w, text.FgYellow.Sprintf("Namespace %s does not exist. Run `coffeectl deploy` first.", snap.Namespace))
		return nil
	}

	section(w, "Pods", len(snap.Pods), func(t table.Writer) {
		t.AppendHeader(header("name", "ready", "status", "restarts", "age", "node"))
		for _, p := range snap.Pods {
			t.AppendRow(table.Row{p.Name, p.Ready, podStatus(p), p.Restarts, p.Age, dash(p.Node)})
		}
	})
	section(w, "Services", len(snap.Services), func(t table.Writer) {
		t.AppendHeader(header("name", "type", "cluster-ip", "ports"))
		for _, s := range snap.Services {
			t.AppendRow(table.Row{s.Name, s.Type, dash(s.ClusterIP), s.Ports})
		}
	})
	section(w, "Deployments", len(snap.Deployments), func(t table.Writer) {
		t.AppendHeader(header("name", "ready", "up-to-date", "available", "age"))
		for _, d := range snap.Deployments {
			t.AppendRow(table.Row{d.Name, d.Ready, d.UpToDate, d.Available, d.Age})
		}
	})
	section(w, "Autoscalers", len(snap.Autoscalers), func(t table.Writer) {
		t.AppendHeader(header("name", "reference", "targets", "min", "max", "replicas"))
		for _, h := range snap.Autoscalers {
			t.AppendRow(table.Row{h.Name, h.Reference, dash(h.Targets), h.Min, h.Max, h.Current})
		}
	})

	if snap.UsageUnavailable != "" {
		fmt.Fprintf(w, "%s\n%s\n\n", text.Bold.Sprint("Resource usage"), text.FgHiBlack.Sprint(snap.UsageUnavailable))
	} else {
		section(w, "Resource usage", len(snap.Usage), func(t table.Writer) {
			t.AppendHeader(header("pod", "cpu", "memory"))
			for _, u := range snap.Usage {
				t.AppendRow(table.Row{u.Pod, u.CPU, u.Memory})
			}
		})
	}

	section(w, fmt.Sprintf("Recent events (last %d)", len(snap.Events)), len(snap.Events), func(t table.Writer) {
		t.AppendHeader(header("time", "type", "reason", "object", "message"))
		for _, e := range snap.Events {
			t.AppendRow(table.Row{e.Time.Format("15:04:05"), eventType(e.Type), e.Reason, e.Object, truncate(e.Message, 80)})
		}
	})
	return nil
}

func section(w io.Writer, title string, n int, fill func(t table.Writer)) {
	fmt.Fprintln(w, text.Bold.Sprint(title))
	if n == 0 {
		fmt.Fprintf(w, "%s\n\n", text.FgYellow.Sprint("No items found"))
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	fill(t)
	t.Render()
	fmt.Fprintln(w)
}

func header(cols ...string) table.Row {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = text.FgHiCyan.Sprint(strings.ToUpper(c))
	}
	return row
}

func podStatus(p kube.PodSummary) string {
	status := p.Phase
	if p.Reason != "" {
		status = p.Reason
	}
	switch {
	case p.Phase == "Running" && p.Reason == "":
		return text.FgGreen.Sprint(status)
	case p.Phase == "Succeeded":
		return text.FgHiBlack.Sprint(status)
	case p.Phase == "Pending" || p.Phase == "Terminating":
		return text.FgYellow.Sprint(status)
	default:
		return text.FgRed.Sprint(status)
	}
}

func eventType(t string) string {
	if t == "Warning" {
		return text.FgYellow.Sprint(t)
	}
	return t
}

func dash(s string) string {
	if s == "" {
		return text.FgHiBlack.Sprint("-")
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
