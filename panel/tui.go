package panel

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hazyhaar/kango/hops"
)

const tuiHelp = "↑/↓ select · K/J move · enter scroll · d delete · r reload · q quit"

type reloadMsg struct{ list []hops.Hop }

// TUI is the terminal rendition of the panel.
type TUI struct {
	ctx    context.Context
	p      *Panel
	list   []hops.Hop
	cursor int
	status string
}

// NewTUI returns a bubbletea model over p. p should be started (Start) so
// that store changes reach the view.
func NewTUI(ctx context.Context, p *Panel) TUI {
	return TUI{ctx: ctx, p: p, list: p.Hops()}
}

// RunTUI runs the model full screen until the user quits or ctx ends.
func RunTUI(ctx context.Context, p *Panel) error {
	_, err := tea.NewProgram(NewTUI(ctx, p), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m TUI) waitChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.p.Changed():
			return reloadMsg{list: m.p.Hops()}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m TUI) Init() tea.Cmd { return m.waitChange() }

func (m TUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case reloadMsg:
		m.setList(msg.list)
		return m, m.waitChange()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.list)-1 {
				m.cursor++
			}
		case "K":
			m.move(-1)
		case "J":
			m.move(1)
		case "enter":
			if h, ok := m.selected(); ok {
				m.status = "scrolled to " + h.Title
				if err := m.p.Navigate(m.ctx, h.ID); err != nil {
					m.status = "scroll failed: " + err.Error()
				}
			}
		case "d":
			if h, ok := m.selected(); ok {
				m.status = "deleted " + h.Title
				if err := m.p.Delete(m.ctx, h.ID); err != nil {
					m.status = "delete failed: " + err.Error()
				}
				m.setList(m.p.Hops())
			}
		case "r":
			m.setList(m.p.Load(m.ctx))
			m.status = ""
		}
	}
	return m, nil
}

func (m TUI) View() string {
	var b strings.Builder
	b.WriteString(View(m.p.URL(), m.list, m.cursor))
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(tuiHelp))
	return b.String()
}

// Selected returns the index under the cursor.
func (m TUI) Selected() int { return m.cursor }

func (m *TUI) selected() (hops.Hop, bool) {
	if m.cursor < 0 || m.cursor >= len(m.list) {
		return hops.Hop{}, false
	}
	return m.list[m.cursor], true
}

func (m *TUI) move(delta int) {
	to := m.cursor + delta
	if _, ok := m.selected(); !ok || to < 0 || to >= len(m.list) {
		return
	}
	list, err := m.p.Reorder(m.ctx, m.cursor, to)
	if err != nil {
		m.status = fmt.Sprintf("reorder failed: %v", err)
		return
	}
	m.cursor = to
	m.setList(list)
}

func (m *TUI) setList(list []hops.Hop) {
	m.list = list
	if m.cursor >= len(list) {
		m.cursor = len(list) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}
