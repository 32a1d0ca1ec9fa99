package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qisumi/qisumi-tui/internal/model"
)

const (
	settingBaseURL = iota
	settingAPIKey
	settingModel
	settingThinking
	settingEffort
	settingName
	settingCount
)

var settingLabels = [settingCount]string{"Base URL", "API Key", "模型", "思考模式", "推理强度", "助手名称"}

var saveSettings = key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save"))

type settingsForm struct {
	inputs  [settingCount]textinput.Model
	focused int
	current model.LLMSettings
	loading bool
	busy    bool
	err     string
}

func newSettingsForm() settingsForm {
	var f settingsForm
	placeholders := [settingCount]string{
		"https://api.example.com/v1", "留空保持不变", "model name", "enabled / disabled", "low / medium / high", "小奇",
	}
	for i := range f.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = placeholders[i]
		in.CharLimit = 500
		in.Width = 48
		f.inputs[i] = in
	}
	f.inputs[settingAPIKey].EchoMode = textinput.EchoPassword
	f.inputs[settingAPIKey].EchoCharacter = '•'
	return f
}

func (m *Model) openSettings() tea.Cmd {
	m.settings = newSettingsForm()
	m.settings.loading = true
	m.viewMode = ViewModeSettings
	return tea.Batch(loadSettingsCmd(m.ctx, m.session), m.settings.focus(0))
}

func (f *settingsForm) loaded(msg settingsMsg) {
	f.loading = false
	if msg.err != nil {
		f.err = errorText(msg.err)
		return
	}
	s := msg.settings
	f.current = s
	f.inputs[settingBaseURL].SetValue(s.BaseURL)
	f.inputs[settingModel].SetValue(s.Model)
	f.inputs[settingThinking].SetValue(s.ThinkingType)
	f.inputs[settingEffort].SetValue(s.ReasoningEffort)
	f.inputs[settingName].SetValue(s.AssistantName)
	if s.HasAPIKey {
		f.inputs[settingAPIKey].Placeholder = "已设置，留空保持不变"
	} else {
		f.inputs[settingAPIKey].Placeholder = "必填"
	}
}

func (f *settingsForm) focus(i int) tea.Cmd {
	f.focused = (i + settingCount) % settingCount
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
	return f.inputs[f.focused].Focus()
}

func (f *settingsForm) blur() {
	for j := range f.inputs {
		f.inputs[j].Blur()
	}
}

// next is the settings to save. An empty API key keeps the stored one.
func (f *settingsForm) next() model.LLMSettings {
	value := func(i int) string { return strings.TrimSpace(f.inputs[i].Value()) }
	s := f.current
	s.BaseURL = value(settingBaseURL)
	s.APIKey = value(settingAPIKey)
	s.Model = value(settingModel)
	s.ThinkingType = value(settingThinking)
	s.EnableThinking = s.ThinkingType != "" && s.ThinkingType != "disabled"
	s.ReasoningEffort = value(settingEffort)
	s.AssistantName = value(settingName)
	return s
}

func (f *settingsForm) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focused], cmd = f.inputs[f.focused].Update(msg)
	return cmd
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.settings
	if f.busy {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Escape):
		f.blur()
		cmd := m.enterList()
		return m, cmd
	case key.Matches(msg, switchField):
		dir := 1
		if msg.String() == "shift+tab" || msg.String() == "up" {
			dir = -1
		}
		cmd := f.focus(f.focused + dir)
		return m, cmd
	case key.Matches(msg, saveSettings),
		key.Matches(msg, m.keys.Enter) && f.focused == settingCount-1:
		if f.loading {
			return m, nil
		}
		f.busy = true
		f.err = ""
		return m, saveSettingsCmd(m.ctx, m.session, f.next())
	case key.Matches(msg, m.keys.Enter):
		cmd := f.focus(f.focused + 1)
		return m, cmd
	}
	cmd := f.forward(msg)
	return m, cmd
}

func (m Model) settingsView(height int) string {
	f := m.settings
	lines := []string{PanelTitleStyle.Render("模型设置"), ""}
	for i := range f.inputs {
		style := InputStyle
		if i == f.focused {
			style = InputFocusedStyle
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Center,
			LabelStyle.Render(settingLabels[i]), " ", style.Render(f.inputs[i].View())))
	}
	lines = append(lines, "")
	switch {
	case f.loading:
		lines = append(lines, m.spinner.View()+" 加载中")
	case f.busy:
		lines = append(lines, m.spinner.View()+" "+WarningStyle.Render("保存中…"))
	case f.err != "":
		lines = append(lines, ErrorStyle.Render(f.err))
	case f.current.IsDefault:
		lines = append(lines, DimStyle.Render("当前使用服务器默认配置"))
	}
	lines = append(lines, DimStyle.Render("tab 切换 · ctrl+s 保存 · esc 返回"))

	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center,
		PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}
