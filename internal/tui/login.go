package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type loginForm struct {
	email    textinput.Model
	password textinput.Model
	focused  int // 0 email, 1 password
	register bool
	busy     bool
	err      string
}

var (
	toggleRegister = key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "login/register"))
	switchField    = key.NewBinding(key.WithKeys("tab", "shift+tab", "up", "down"), key.WithHelp("tab", "next field"))
)

func newLoginForm() loginForm {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "邮箱  "
	email.PromptStyle = InputPromptStyle
	email.CharLimit = 254
	email.Width = 40
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "密码  "
	password.PromptStyle = InputPromptStyle
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.Width = 40

	return loginForm{email: email, password: password}
}

func (f *loginForm) focus() tea.Cmd {
	if f.focused == 1 {
		f.email.Blur()
		return f.password.Focus()
	}
	f.password.Blur()
	return f.email.Focus()
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.login
	if f.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Escape):
		return m.quit()
	case key.Matches(msg, toggleRegister):
		f.register = !f.register
		return m, nil
	case key.Matches(msg, switchField):
		f.focused = 1 - f.focused
		cmd := f.focus()
		return m, cmd
	case key.Matches(msg, m.keys.Enter):
		if f.focused == 0 {
			f.focused = 1
			cmd := f.focus()
			return m, cmd
		}
		f.busy = true
		f.err = ""
		return m, loginCmd(m.ctx, m.app, f.email.Value(), f.password.Value(), f.register)
	}

	var cmd tea.Cmd
	if f.focused == 0 {
		f.email, cmd = f.email.Update(msg)
	} else {
		f.password, cmd = f.password.Update(msg)
	}
	return m, cmd
}

func (m Model) loginView(height int) string {
	f := m.login
	title := "登录"
	other := "没有账号？ctrl+r 注册"
	if f.register {
		title = "注册"
		other = "已有账号？ctrl+r 登录"
	}

	style := func(i int) lipgloss.Style {
		if i == f.focused {
			return InputFocusedStyle
		}
		return InputStyle
	}
	parts := []string{
		PanelTitleStyle.Render(title),
		DimStyle.Render("服务器 " + m.app.Client.BaseURL()),
		"",
		style(0).Render(f.email.View()),
		style(1).Render(f.password.View()),
		"",
	}
	switch {
	case f.busy:
		parts = append(parts, m.spinner.View()+" "+WarningStyle.Render("请稍候"))
	case f.err != "":
		parts = append(parts, ErrorStyle.Render(f.err))
	default:
		parts = append(parts, DimStyle.Render("enter 提交 · tab 切换"))
	}
	parts = append(parts, DimStyle.Render(other))

	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center,
		PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
}
