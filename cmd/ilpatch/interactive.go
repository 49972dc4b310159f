package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/ilpatch/il"
	"github.com/wippyai/ilpatch/il/asm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	patchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelect modelState = iota
	stateListing
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	session  *session
	filename string
	result   string
	routines []*il.Method
	inputs   []textinput.Model
	view     viewport.Model
	selected int
	focusIdx int
	width    int
	height   int
	patched  bool
	state    modelState
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(s *session, filename string) *interactiveModel {
	var routines []*il.Method
	for _, m := range s.mgr.Routines() {
		if m.Static {
			routines = append(routines, m)
		}
	}
	return &interactiveModel{
		session:  s,
		filename: filename,
		routines: routines,
		view:     viewport.New(80, 20),
		state:    stateSelect,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) current() *il.Method {
	return m.routines[m.selected]
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-6, 5)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
				return m, nil
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.routines)-1 {
				m.selected++
				return m, nil
			}

		case "l":
			if m.state == stateSelect && len(m.routines) > 0 {
				m.patched = m.session.mgr.Collection(m.current()).Len() > 0
				m.showListing()
				m.state = stateListing
				return m, nil
			}

		case "tab":
			switch m.state {
			case stateListing:
				m.patched = !m.patched
				m.showListing()
				return m, nil
			case stateInputArgs:
				if len(m.inputs) > 1 {
					m.inputs[m.focusIdx].Blur()
					m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
					m.inputs[m.focusIdx].Focus()
				}
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateSelect, stateListing:
				if len(m.routines) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callRoutine
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callRoutine

			case stateShowResult:
				m.reset()
				return m, nil
			}

		case "esc":
			m.reset()
			return m, nil
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	switch m.state {
	case stateInputArgs:
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case stateListing:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelect
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) showListing() {
	mgr := m.session.mgr
	body := mgr.Original(m.current())
	if m.patched {
		body = mgr.Current(m.current())
	}
	m.view.SetContent(asm.FormatRoutine(body))
	m.view.GotoTop()
}

func (m *interactiveModel) prepareInputs() {
	f := m.current()
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = p.Type.String()
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callRoutine() tea.Msg {
	f := m.current()
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	args, err := parseArgs(f, values)
	if err != nil {
		return callResultMsg{err: err}
	}

	result, err := m.session.mgr.Machine().Call(context.Background(), f, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	if f.IsVoid() {
		return callResultMsg{result: "(void)"}
	}
	return callResultMsg{result: formatValue(result)}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("IL Patch"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	if len(m.routines) == 0 {
		b.WriteString("No static routines.\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch m.state {
	case stateSelect:
		b.WriteString("Select a routine:\n\n")
		for i, f := range m.routines {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + asm.Signature(f)))
			} else {
				b.WriteString("  " + m.formatRoutine(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • l listing • enter call • q quit"))

	case stateListing:
		which := "original"
		if m.patched {
			which = "patched"
		}
		b.WriteString(fmt.Sprintf("%s (%s)\n\n", funcStyle.Render(m.current().String()), which))
		b.WriteString(m.view.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("tab original/patched • ↑/↓ scroll • enter call • esc back"))

	case stateInputArgs:
		f := m.current()
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.String())))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.Params[i].Type.String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(m.current().String())))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		if counters := m.session.natives.snapshot(); len(counters) > 0 {
			b.WriteString("\n\nCounters: ")
			b.WriteString(typeStyle.Render(strings.Join(counters, " ")))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatRoutine(f *il.Method) string {
	var params []string
	for _, p := range f.Params {
		params = append(params, typeStyle.Render(p.Type.String())+" "+p.Name)
	}
	line := funcStyle.Render(f.FullName()) + "(" + strings.Join(params, ", ") + ") " + typeStyle.Render(f.Return.String())
	if n := m.session.mgr.Collection(f).Len(); n > 0 {
		line += patchStyle.Render(fmt.Sprintf("  [%d patches]", n))
	}
	return line
}

func runInteractive(s *session, filename string) error {
	p := tea.NewProgram(newInteractiveModel(s, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
