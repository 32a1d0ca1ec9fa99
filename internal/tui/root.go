// Package tui is the terminal interface: login, the task lists, task
// detail with inline field editing, chat and model settings.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qisumi/qisumi-tui/internal/app"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/logger"
	"github.com/qisumi/qisumi-tui/internal/notify"
	"github.com/qisumi/qisumi-tui/internal/reconcile"
)

// ViewMode represents the current view
type ViewMode int

const (
	ViewModeLogin ViewMode = iota
	ViewModeList
	ViewModeDetail
	ViewModeChat
	ViewModeSettings
	ViewModeHelp
)

func (v ViewMode) String() string {
	switch v {
	case ViewModeList:
		return "任务"
	case ViewModeDetail:
		return "详情"
	case ViewModeChat:
		return "对话"
	case ViewModeSettings:
		return "模型设置"
	case ViewModeHelp:
		return "帮助"
	default:
		return "登录"
	}
}

// Model is the main application model
type Model struct {
	ctx     context.Context
	app     *app.App
	session *app.Session
	recon   *reconcile.Reconciler
	events  chan tea.Msg
	now     func() time.Time

	// UI state
	width    int
	height   int
	viewMode ViewMode
	prevMode ViewMode // view to return to from help
	ticking  bool     // toast expiry tick running

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	login    loginForm
	list     listState
	detail   detailState
	chat     chatState
	settings settingsForm
}

// New creates the model. session is the resumed session, nil to start at
// the login form.
func New(ctx context.Context, a *app.App, session *app.Session) Model {
	events := make(chan tea.Msg, eventQueueSize)
	a.Toasts.OnNotify(func(t notify.Toast) { deliver(events, toastMsg{toast: t}) })
	a.OnSignedOut(func(err error) { deliver(events, signedOutMsg{err: err}) })

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorYellow)

	sort, err := reconcile.ParseSortMode(a.Config.DefaultSort)
	if err != nil {
		sort = reconcile.SortFocusToday
	}

	m := Model{
		ctx:      ctx,
		app:      a,
		events:   events,
		now:      time.Now,
		viewMode: ViewModeLogin,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  s,
		login:    newLoginForm(),
		list:     newListState(sort),
		detail:   newDetailState(),
		chat:     newChatState(),
		settings: newSettingsForm(),
	}
	if session != nil {
		m.startSession(session)
	}
	return m
}

// Run starts the program and blocks until the user quits
func Run(ctx context.Context, a *app.App, session *app.Session) error {
	p := tea.NewProgram(
		New(ctx, a, session),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.events), m.spinner.Tick}
	if m.session != nil {
		cmds = append(cmds, m.enterList())
	} else {
		cmds = append(cmds, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

func (m *Model) startSession(s *app.Session) {
	m.session = s
	events := m.events
	m.recon = reconcile.New(s.Cache, func(k cache.Key) { offer(events, cacheChangedMsg{key: k}) })
	m.viewMode = ViewModeList
}

func (m *Model) endSession() {
	if m.recon != nil {
		m.recon.Close()
	}
	m.recon = nil
	m.session = nil
	m.list = newListState(m.list.sort)
	m.detail = newDetailState()
	m.chat = newChatState()
	m.chat.resize(m.width, m.height)
	m.settings = newSettingsForm()
	m.viewMode = ViewModeLogin
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.chat.resize(msg.Width, msg.Height)
		m.chat.render(m.session)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Interrupt) {
			return m.quit()
		}
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case cacheChangedMsg:
		m.refresh(msg.key)
		return m, waitForEvent(m.events)

	case toastMsg:
		cmds = append(cmds, waitForEvent(m.events))
		if !m.ticking {
			m.ticking = true
			cmds = append(cmds, tickToasts())
		}
		return m, tea.Batch(cmds...)

	case toastTickMsg:
		m.app.Toasts.Expire(time.Time(msg))
		if len(m.app.Toasts.Active(time.Time(msg))) == 0 {
			m.ticking = false
			return m, nil
		}
		return m, tickToasts()

	case signedOutMsg:
		logger.TUI.Info("signed out", "error", msg.err)
		m.endSession()
		m.login.err = "登录已失效，请重新登录"
		focus := m.login.focus()
		return m, tea.Batch(waitForEvent(m.events), focus)

	case loggedInMsg:
		m.login.busy = false
		if msg.err != nil {
			m.login.err = errorText(msg.err)
			return m, nil
		}
		m.login = newLoginForm()
		m.startSession(msg.session)
		cmd := m.enterList()
		return m, cmd

	case loggedOutMsg:
		m.endSession()
		if msg.err != nil {
			m.login.err = errorText(msg.err)
		}
		cmd := m.login.focus()
		return m, cmd

	case fetchedMsg:
		// Failures surface through the query state
		m.refresh(msg.key)
		return m, nil
	}

	if m.session == nil {
		cmd := m.forward(msg)
		return m, cmd
	}
	return m.handleResult(msg)
}

// handleResult takes the result of a command. Results are handled in
// whichever view is open when they arrive.
func (m Model) handleResult(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case submittedMsg:
		cmd := m.detail.resolved(msg)
		return m, cmd

	case taskCreatedMsg:
		if msg.err != nil || msg.id == 0 || m.viewMode != ViewModeList {
			return m, nil
		}
		cmd := m.openDetail(msg.id)
		return m, cmd

	case taskDeletedMsg:
		m.list.refresh(m.session.Cache)
		if msg.err == nil && m.viewMode == ViewModeDetail && m.detail.taskID == msg.id {
			m.recon.Unwatch(cache.TaskDetail(msg.id))
			cmd := m.enterList()
			return m, cmd
		}
		return m, nil

	case stepAddedMsg, stepDeletedMsg:
		m.detail.refresh(m.session.Cache)
		return m, nil

	case chatOpenedMsg:
		cmd := m.chatOpened(msg)
		return m, cmd

	case replyMsg:
		m.chat.sending = false
		m.chat.render(m.session)
		return m, nil

	case chatClearedMsg:
		m.chat.render(m.session)
		return m, nil

	case settingsMsg:
		m.settings.loaded(msg)
		return m, nil

	case settingsSavedMsg:
		m.settings.busy = false
		if msg.err != nil {
			m.settings.err = errorText(msg.err)
			return m, nil
		}
		if m.viewMode == ViewModeSettings {
			m.settings.blur()
			cmd := m.enterList()
			return m, cmd
		}
		return m, nil
	}
	cmd := m.forward(msg)
	return m, cmd
}

// forward passes other messages, such as cursor blinks, to the focused
// component
func (m *Model) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.viewMode {
	case ViewModeLogin:
		if m.login.focused == 0 {
			m.login.email, cmd = m.login.email.Update(msg)
		} else {
			m.login.password, cmd = m.login.password.Update(msg)
		}
	case ViewModeList:
		m.list.input, cmd = m.list.input.Update(msg)
	case ViewModeDetail:
		m.detail.input, cmd = m.detail.input.Update(msg)
	case ViewModeChat:
		cmd = m.chat.forward(msg)
	case ViewModeSettings:
		cmd = m.settings.forward(msg)
	}
	return cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.viewMode == ViewModeHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Escape, m.keys.Quit) {
			m.viewMode = m.prevMode
		}
		return m, nil
	}
	if m.viewMode == ViewModeLogin || m.session == nil {
		return m.updateLogin(msg)
	}

	// Global keys apply only while no input has the keyboard
	if !m.typing() {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		case key.Matches(msg, m.keys.Help):
			m.prevMode = m.viewMode
			m.viewMode = ViewModeHelp
			return m, nil
		}
	}

	switch m.viewMode {
	case ViewModeList:
		return m.updateList(msg)
	case ViewModeDetail:
		return m.updateDetail(msg)
	case ViewModeChat:
		return m.updateChat(msg)
	case ViewModeSettings:
		return m.updateSettings(msg)
	}
	return m, nil
}

// typing reports whether a text input owns the keyboard
func (m Model) typing() bool {
	switch m.viewMode {
	case ViewModeList:
		return m.list.creating != createNone
	case ViewModeDetail:
		return m.detail.typing()
	case ViewModeChat, ViewModeSettings, ViewModeLogin:
		return true
	}
	return false
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.recon != nil {
		m.recon.Close()
	}
	return m, tea.Quit
}

// refresh re-renders the views built from queries matched by key
func (m *Model) refresh(k cache.Key) {
	if m.session == nil {
		return
	}
	switch k.Scope {
	case cache.ScopeTasks, cache.ScopeCompletedTasks:
		m.list.refresh(m.session.Cache)
	case cache.ScopeTaskDetail:
		if k.ID == 0 || k.ID == m.detail.taskID {
			m.detail.refresh(m.session.Cache)
		}
		m.list.refresh(m.session.Cache)
	case cache.ScopeSessionMessages, cache.ScopeGlobalSession:
		m.chat.render(m.session)
	}
}

// View renders the model
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	footer := m.renderStatusBar()
	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	var body string
	switch m.viewMode {
	case ViewModeLogin:
		body = m.loginView(bodyHeight)
	case ViewModeList:
		body = m.listView(bodyHeight)
	case ViewModeDetail:
		body = m.detailView(bodyHeight)
	case ViewModeChat:
		body = m.chatView(bodyHeight)
	case ViewModeSettings:
		body = m.settingsView(bodyHeight)
	case ViewModeHelp:
		body = m.helpView(bodyHeight)
	}
	body = lipgloss.NewStyle().Height(bodyHeight).MaxHeight(bodyHeight).Render(body)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m Model) renderHeader() string {
	title := HeaderStyle.Render("qisumi")
	mode := PanelTitleStyle.Render(m.viewMode.String())
	var account string
	if m.session != nil {
		account = DimStyle.Render(m.session.Account)
	}
	left := title + "  " + mode
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(account) - 1
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + account
}

func (m Model) renderStatusBar() string {
	var status string
	if m.busy() {
		status = m.spinner.View() + " " + StatusRunningStyle.Render("同步中")
	} else {
		status = StatusIdleStyle.Render("就绪")
	}
	line := StatusBarStyle.Render(status + "  " + m.help.View(m.keys))

	toasts := m.renderToasts()
	if toasts == "" {
		return line
	}
	return lipgloss.JoinVertical(lipgloss.Left, toasts, line)
}

// busy reports whether the open view is waiting on the backend
func (m Model) busy() bool {
	if m.session == nil {
		return m.login.busy
	}
	switch m.viewMode {
	case ViewModeList:
		return m.list.view.State.Fetching
	case ViewModeDetail:
		return m.detail.view.State.Fetching || m.detail.submitting()
	case ViewModeChat:
		return m.chat.sending || m.chat.loading
	case ViewModeSettings:
		return m.settings.busy
	}
	return false
}

func (m Model) renderToasts() string {
	active := m.app.Toasts.Active(m.now())
	if len(active) == 0 {
		return ""
	}
	var lines []string
	for _, t := range active {
		lines = append(lines, toastStyle(t.Level).Render(truncate(t.Message, m.width-4)))
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, lipgloss.JoinVertical(lipgloss.Right, lines...))
}

func toastStyle(l notify.Level) lipgloss.Style {
	switch l {
	case notify.Success:
		return ToastSuccessStyle
	case notify.Error:
		return ToastErrorStyle
	default:
		return ToastInfoStyle
	}
}

func (m Model) helpView(height int) string {
	full := help.New()
	full.ShowAll = true
	content := lipgloss.JoinVertical(lipgloss.Left,
		HelpTitleStyle.Render("快捷键"),
		"",
		full.View(m.keys),
		"",
		DimStyle.Render("按 ? 或 esc 返回"),
	)
	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, HelpStyle.Render(content))
}

// emptyState renders a centered hint
func (m Model) emptyState(height int, lines ...string) string {
	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center,
		DimStyle.Render(strings.Join(lines, "\n")))
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}

		// If line fits, just add it
		if lipgloss.Width(line) <= width {
			result.WriteString(line)
			continue
		}

		// Wrap long lines at word boundaries
		words := strings.Fields(line)
		currentLine := ""

		for _, word := range words {
			if currentLine == "" {
				currentLine = word
				continue
			}
			if lipgloss.Width(currentLine)+1+lipgloss.Width(word) <= width {
				currentLine += " " + word
				continue
			}
			result.WriteString(currentLine)
			result.WriteString("\n")
			currentLine = word
		}
		result.WriteString(currentLine)
	}

	return result.String()
}

func progressLabel(done, total int) string {
	if total == 0 {
		return DimStyle.Render("无步骤")
	}
	return fmt.Sprintf("%d/%d", done, total)
}
