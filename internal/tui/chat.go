package tui

import (
	"math"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/qisumi/qisumi-tui/internal/app"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/notify"
)

// composerHeight is the visible lines of the message box
const composerHeight = 3

type chatState struct {
	taskID    uint64 // 0 for the global assistant
	sessionID uint64
	loading   bool
	sending   bool
	err       string

	viewport viewport.Model
	composer textarea.Model
	renderer *glamour.TermRenderer
	wrap     int
	rendered int // messages in the viewport
}

func newChatState() chatState {
	ta := textarea.New()
	ta.Placeholder = "和小奇说点什么… (enter 发送, ctrl+j 换行)"
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(composerHeight)
	ta.KeyMap.InsertNewline.SetKeys("ctrl+j", "alt+enter")

	return chatState{
		viewport: viewport.New(0, 0),
		composer: ta,
	}
}

func (c *chatState) resize(width, height int) {
	if width <= 0 {
		return
	}
	c.viewport.Width = width
	c.viewport.Height = max(3, height-composerHeight-7)
	c.composer.SetWidth(width - 4)

	wrap := width - 6
	if wrap == c.wrap && c.renderer != nil {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithWordWrap(wrap),
		glamour.WithStandardStyle("dark"),
	)
	if err != nil {
		c.renderer = nil
		return
	}
	c.renderer = r
	c.wrap = wrap
}

// openChat shows the chat of taskID, or the global assistant for 0
func (m *Model) openChat(taskID uint64) tea.Cmd {
	c := &m.chat
	if c.sessionID != 0 {
		m.recon.Unwatch(cache.SessionMessages(c.sessionID))
	}
	c.taskID = taskID
	c.sessionID = 0
	c.loading = true
	c.sending = false
	c.err = ""
	c.rendered = 0
	c.viewport.SetContent("")
	m.viewMode = ViewModeChat
	return tea.Batch(openChatCmd(m.ctx, m.session, taskID), c.composer.Focus())
}

func (m *Model) chatOpened(msg chatOpenedMsg) tea.Cmd {
	c := &m.chat
	if msg.taskID != c.taskID || m.viewMode != ViewModeChat {
		return nil
	}
	c.loading = false
	if msg.err != nil {
		c.err = errorText(msg.err)
		return nil
	}
	c.sessionID = msg.sessionID
	m.recon.Watch(cache.SessionMessages(msg.sessionID))
	c.render(m.session)
	return nil
}

func (m *Model) leaveChat() tea.Cmd {
	c := &m.chat
	if c.sessionID != 0 {
		m.recon.Unwatch(cache.SessionMessages(c.sessionID))
	}
	c.composer.Blur()
	if c.taskID != 0 {
		return m.openDetail(c.taskID)
	}
	return m.enterList()
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := &m.chat
	switch {
	case key.Matches(msg, m.keys.Escape):
		cmd := m.leaveChat()
		return m, cmd
	case key.Matches(msg, m.keys.Enter):
		text := strings.TrimSpace(c.composer.Value())
		if text == "" || c.sending || c.sessionID == 0 {
			return m, nil
		}
		c.sending = true
		c.composer.Reset()
		return m, sendCmd(m.ctx, m.session, c.sessionID, text)
	case key.Matches(msg, m.keys.Copy):
		m.copyLastReply()
		return m, nil
	case key.Matches(msg, m.keys.ClearChat):
		if c.sessionID == 0 || c.sending {
			return m, nil
		}
		return m, clearChatCmd(m.ctx, m.session, c.sessionID)
	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		c.viewport, cmd = c.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	c.composer, cmd = c.composer.Update(msg)
	return m, cmd
}

func (c *chatState) forward(msg tea.Msg) tea.Cmd {
	var vpCmd, taCmd tea.Cmd
	c.viewport, vpCmd = c.viewport.Update(msg)
	c.composer, taCmd = c.composer.Update(msg)
	return tea.Batch(vpCmd, taCmd)
}

func (m *Model) copyLastReply() {
	msgs := m.session.Messages(m.chat.sessionID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != model.RoleAssistant {
			continue
		}
		if err := clipboard.WriteAll(msgs[i].Content); err != nil {
			m.app.Toasts.Notify(notify.Error, "复制失败: "+err.Error())
			return
		}
		m.app.Toasts.Notify(notify.Success, "已复制回复")
		return
	}
	m.app.Toasts.Notify(notify.Info, "还没有回复可复制")
}

// render rebuilds the transcript from the cache
func (c *chatState) render(s *app.Session) {
	if s == nil || c.sessionID == 0 {
		return
	}
	msgs := s.Messages(c.sessionID)
	follow := c.viewport.AtBottom() || len(msgs) != c.rendered

	var parts []string
	for _, msg := range msgs {
		parts = append(parts, c.renderMessage(msg))
	}
	c.viewport.SetContent(strings.Join(parts, "\n"))
	c.rendered = len(msgs)
	if follow {
		c.viewport.GotoBottom()
	}
}

func (c *chatState) renderMessage(msg model.Message) string {
	width := max(10, c.viewport.Width-4)
	pending := msg.ID > math.MaxInt64

	switch msg.Role {
	case model.RoleUser:
		body := UserTextStyle.Render(msg.Author()) + "\n" + wrapText(msg.Content, width)
		if pending {
			body += "\n" + AuthorStyle.Render("发送中…")
		}
		return UserInputStyle.Render(body)
	case model.RoleSystem:
		return SystemStyle.Render(SystemTextStyle.Render(wrapText(msg.Content, width)))
	}

	content := msg.Content
	if c.renderer != nil {
		if out, err := c.renderer.Render(msg.Content); err == nil {
			content = strings.TrimSpace(out)
		}
	} else {
		content = wrapText(content, width)
	}
	return AuthorStyle.Render(msg.Author()) + "\n" + AssistantStyle.Render(content)
}

func (m Model) chatView(height int) string {
	c := m.chat
	title := "小奇 · 全局助手"
	if c.taskID != 0 {
		title = "任务对话"
		if t, ok := m.session.Cache.Task(c.taskID); ok {
			title += " · " + t.Title
		}
	}

	var body string
	switch {
	case c.err != "":
		body = m.emptyState(c.viewport.Height, "对话加载失败", c.err, "按 esc 返回")
	case c.loading:
		body = m.emptyState(c.viewport.Height, m.spinner.View()+" 加载中")
	case c.rendered == 0:
		body = m.emptyState(c.viewport.Height, "还没有消息", "说说你今天想完成什么")
	default:
		body = c.viewport.View()
	}

	status := DimStyle.Render("ctrl+y 复制回复 · ctrl+l 清空 · esc 返回")
	if c.sending {
		status = m.spinner.View() + " " + WarningStyle.Render("小奇正在思考…")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		PanelTitleStyle.Render(truncate(title, m.width-2)),
		body,
		InputFocusedStyle.Render(c.composer.View()),
		status,
	)
}
