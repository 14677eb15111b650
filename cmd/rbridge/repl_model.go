package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	primaryPrompt      = "> "
	continuationPrompt = "+ "

	// header, input line and help line
	chromeHeight = 3
)

type evalDoneMsg struct {
	src string
	res evalResult
}

type replModel struct {
	eval       evalFunc
	input      textinput.Model
	view       viewport.Model
	transcript strings.Builder
	pending    string
	history    []string
	histIdx    int
	busy       bool
}

func newReplModel(eval evalFunc) *replModel {
	ti := textinput.New()
	ti.Prompt = primaryPrompt
	ti.PromptStyle = promptStyle
	ti.Focus()

	return &replModel{
		eval:  eval,
		input: ti,
		view:  viewport.New(80, 20),
	}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-chromeHeight, 1)
		m.input.Width = max(msg.Width-len(primaryPrompt)-1, 1)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			if m.busy {
				return m, nil
			}
			return m, m.submit()

		case "up":
			m.recall(-1)
			return m, nil

		case "down":
			m.recall(1)
			return m, nil

		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

	case evalDoneMsg:
		m.busy = false
		if msg.res.incomplete {
			m.pending = msg.src
			m.input.Prompt = continuationPrompt
			return m, nil
		}
		m.pending = ""
		m.input.Prompt = primaryPrompt
		m.appendResult(msg.res)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit echoes the line and evaluates it together with any pending
// continuation lines.
func (m *replModel) submit() tea.Cmd {
	line := m.input.Value()
	m.input.SetValue("")

	m.transcript.WriteString(promptStyle.Render(m.input.Prompt) + line + "\n")
	m.refresh()

	if strings.TrimSpace(line) != "" {
		m.history = append(m.history, line)
	}
	m.histIdx = len(m.history)

	src := m.pending + line + "\n"
	m.busy = true
	eval := m.eval
	return func() tea.Msg {
		return evalDoneMsg{src: src, res: eval(src)}
	}
}

func (m *replModel) recall(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.histIdx = min(max(m.histIdx+delta, 0), len(m.history))
	if m.histIdx == len(m.history) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.histIdx])
	m.input.CursorEnd()
}

func (m *replModel) appendResult(res evalResult) {
	for _, c := range res.output {
		if c.warn {
			m.transcript.WriteString(warnStyle.Render(c.text))
		} else {
			m.transcript.WriteString(outputStyle.Render(c.text))
		}
	}
	if res.err != nil {
		m.transcript.WriteString(errorStyle.Render("Error: "+res.err.Error()) + "\n")
	}
	m.refresh()
}

func (m *replModel) refresh() {
	m.view.SetContent(m.transcript.String())
	m.view.GotoBottom()
}

func (m *replModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("R"))
	b.WriteString(" ")
	b.WriteString(helpStyle.Render("rbridge console"))
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.busy {
		b.WriteString(helpStyle.Render("evaluating..."))
	} else {
		b.WriteString(helpStyle.Render("enter run • ↑/↓ history • pgup/pgdown scroll • ctrl+d quit"))
	}
	return b.String()
}
