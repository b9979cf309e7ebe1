package panel

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hazyhaar/kango/hops"
)

const (
	msgWrongPage = "Hops are not available on this page."
	msgEmpty     = "No hops on this page yet. Right-click an element to add one."
	flagGlyph    = "⚑"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	urlStyle      = lipgloss.NewStyle().Faint(true)
	mutedStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#6b7280"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
)

// View renders the list; selected is highlighted, -1 for none.
func View(url string, list []hops.Hop, selected int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Hops"))
	b.WriteString("\n")
	b.WriteString(urlStyle.Render(url))
	b.WriteString("\n\n")

	switch {
	case !hops.Annotatable(url):
		b.WriteString(mutedStyle.Render(msgWrongPage))
		b.WriteString("\n")
		return b.String()
	case len(list) == 0:
		b.WriteString(mutedStyle.Render(msgEmpty))
		b.WriteString("\n")
		return b.String()
	}

	for i, h := range list {
		flag := lipgloss.NewStyle().Foreground(lipgloss.Color(h.Color)).Render(flagGlyph)
		title := h.Title
		if i == selected {
			title = selectedStyle.Render(title)
		}
		fmt.Fprintf(&b, "%2d. %s %s\n", i+1, flag, title)
	}
	return b.String()
}

// Render writes the current list to w.
func (p *Panel) Render(w io.Writer) error {
	_, err := io.WriteString(w, View(p.URL(), p.Hops(), -1))
	return err
}
