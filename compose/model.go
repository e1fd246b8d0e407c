package compose

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const MaxLetters = 500

var (
	captionStyle = lipgloss.NewStyle().Bold(true).PaddingLeft(2)
	helpStyle    = lipgloss.NewStyle().Faint(true).PaddingLeft(2)
	statusStyle  = lipgloss.NewStyle().PaddingLeft(2)
)

type publishedMsg struct {
	err error
}

type model struct {
	textarea textarea.Model
	publish  func(content string) error
	status   string
}

func initialModel(publish func(content string) error) model {
	ti := textarea.New()
	ti.Placeholder = "enter your message"
	ti.CharLimit = MaxLetters
	ti.ShowLineNumbers = false
	ti.SetWidth(60)
	ti.Focus()

	return model{
		textarea: ti,
		publish:  publish,
	}
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func publishCmd(publish func(string) error, content string) tea.Cmd {
	return func() tea.Msg {
		return publishedMsg{err: publish(content)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlS:
			content := m.textarea.Value()
			m.textarea.SetValue("")
			m.status = "publishing..."
			return m, publishCmd(m.publish, content)
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		default:
			if !m.textarea.Focused() {
				cmd = m.textarea.Focus()
				cmds = append(cmds, cmd)
			}
		}

	case publishedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("publish failed: %v", msg.err)
		} else {
			m.status = "published"
		}
		return m, nil
	}

	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) lettersLeft() int {
	return m.textarea.CharLimit - m.textarea.Length()
}

func (m model) View() string {
	caption := captionStyle.Render("new note")
	body := lipgloss.NewStyle().Padding(1, 2).Render(m.textarea.View())
	help := helpStyle.Render(fmt.Sprintf("characters left: %d\n\npost: ctrl+s · quit: ctrl+c", m.lettersLeft()))
	status := statusStyle.Render(m.status)

	return fmt.Sprintf("%s\n%s\n%s\n\n%s\n", caption, body, help, status)
}
