package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/warehouselabs/dockcast/pkg/session"
	"github.com/warehouselabs/dockcast/pkg/settings"
)

// sessionUpdateMsg carries a session state change into the TUI.
type sessionUpdateMsg struct {
	update session.Update
}

// sessionClosedMsg indicates the session's update feed ended.
type sessionClosedMsg struct{}

// startFailedMsg indicates the sharing attempt could not begin.
type startFailedMsg struct {
	err error
}

const maxLogLines = 8

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	liveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	recoveringStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

type tuiModel struct {
	app *app
	mgr *settings.Manager

	signalURL string
	cursor    int
	sharing   string // screen id currently shared to, "" when idle
	state     session.State
	sess      *session.Session
	errText   string
	logs      []string
	quitting  bool
}

func initialModel(a *app, mgr *settings.Manager, signalURL, lastScreen string) tuiModel {
	cursor := 0
	for i, s := range deploymentScreens {
		if s.ID == lastScreen {
			cursor = i
			break
		}
	}
	return tuiModel{
		app:       a,
		mgr:       mgr,
		signalURL: signalURL,
		cursor:    cursor,
		state:     session.StateIdle,
	}
}

// RunTUI drives the controller's terminal UI until the user quits.
func RunTUI(a *app, mgr *settings.Manager, signalURL, lastScreen string) error {
	p := tea.NewProgram(initialModel(a, mgr, signalURL, lastScreen))
	_, err := p.Run()
	return err
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

// waitForUpdate blocks on the session's update feed.
func waitForUpdate(s *session.Session) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-s.Updates()
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionUpdateMsg{update: u}
	}
}

func (m *tuiModel) addLog(line string) {
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), line))
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionUpdateMsg:
		m.state = msg.update.State
		if msg.update.Err != nil {
			m.errText = msg.update.Err.Error()
			m.addLog("error: " + m.errText)
		}
		switch msg.update.State {
		case session.StateNegotiating:
			m.addLog("negotiating with " + screenName(m.sharing))
		case session.StateLive:
			m.errText = ""
			m.addLog("live on " + screenName(m.sharing))
		case session.StateRecovering:
			m.addLog("connection lost, recovering")
		case session.StateIdle:
			m.sharing = ""
			m.sess = nil
			return m, nil
		case session.StateTerminated:
			m.sharing = ""
			m.sess = nil
			return m, nil
		}
		return m, waitForUpdate(m.sess)

	case sessionClosedMsg:
		if m.sharing != "" {
			m.addLog("sharing stopped")
		}
		m.sharing = ""
		m.sess = nil
		m.state = session.StateIdle
		return m, nil

	case startFailedMsg:
		m.errText = msg.err.Error()
		m.addLog("error: " + m.errText)
		m.sharing = ""
		m.state = session.StateIdle
		return m, nil
	}

	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.app.stop()
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(deploymentScreens)-1 {
			m.cursor++
		}

	case "enter", " ":
		if m.sharing != "" {
			return m, nil
		}
		target := deploymentScreens[m.cursor]
		sess, err := m.app.start(target.ID)
		if err != nil {
			m.errText = err.Error()
			m.addLog("error: " + m.errText)
			return m, nil
		}
		m.sess = sess
		m.sharing = target.ID
		m.errText = ""
		m.addLog("sharing to " + target.Name)
		m.mgr.Save(settings.Settings{Screen: target.ID, SignalURL: m.signalURL})
		return m, waitForUpdate(sess)

	case "s":
		if m.sharing == "" {
			return m, nil
		}
		m.app.stop()
		m.addLog("stop requested")
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return ""
	}

	s := titleStyle.Render("Dockcast - Screen Sharing Control") + "\n\n"

	for i, screen := range deploymentScreens {
		cursor := "  "
		style := normalStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		label := screen.Name
		if screen.ID == m.sharing {
			label += "  " + liveStyle.Render("["+m.state.String()+"]")
		}
		s += cursor + style.Render(label) + "\n"
	}

	s += "\n" + m.statusLine() + "\n"

	if m.errText != "" {
		s += errorStyle.Render("error: "+m.errText) + "\n"
	}

	if len(m.logs) > 0 {
		s += "\n"
		for _, line := range m.logs {
			s += dimStyle.Render(line) + "\n"
		}
	}

	s += "\n" + helpStyle.Render("enter: share  s: stop  j/k: move  q: quit")
	return s
}

func (m tuiModel) statusLine() string {
	if m.sharing == "" {
		return dimStyle.Render("not sharing")
	}
	status := fmt.Sprintf("sharing to %s - %s", screenName(m.sharing), m.state)
	switch m.state {
	case session.StateLive:
		return liveStyle.Render(status)
	case session.StateRecovering:
		return recoveringStyle.Render(status)
	default:
		return statusStyle.Render(status)
	}
}
