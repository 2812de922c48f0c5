package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sreq-inc/solo/internal/vars"
)

type previewStyles struct {
	resolved   lipgloss.Style
	unresolved lipgloss.Style
	muted      lipgloss.Style
}

// newPreviewStyles binds styles to w so colour is dropped when w is not a
// terminal.
func newPreviewStyles(w io.Writer) previewStyles {
	r := lipgloss.NewRenderer(w)
	return previewStyles{
		resolved:   r.NewStyle().Foreground(lipgloss.Color("2")),
		unresolved: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:      r.NewStyle().Faint(true),
	}
}

// renderPreview highlights every placeholder in text and lists what each one
// resolves to, once per name.
func renderPreview(styles previewStyles, text string, ps []vars.Placeholder) string {
	var b strings.Builder
	last := 0
	for _, p := range ps {
		b.WriteString(text[last:p.Start])
		if p.Resolvable {
			b.WriteString(styles.resolved.Render(p.Raw))
		} else {
			b.WriteString(styles.unresolved.Render(p.Raw))
		}
		last = p.End
	}
	b.WriteString(text[last:])

	seen := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		b.WriteString("\n  ")
		if p.Resolvable {
			b.WriteString(fmt.Sprintf("%s = %s", p.Name, p.Value))
		} else {
			b.WriteString(styles.unresolved.Render(p.Name) + styles.muted.Render(" (unresolved)"))
		}
	}
	return b.String()
}
