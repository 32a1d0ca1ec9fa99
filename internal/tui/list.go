package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/reconcile"
)

type createMode int

const (
	createNone createMode = iota
	createTitle
	createText
)

type listState struct {
	completed bool
	sort      reconcile.SortMode
	view      reconcile.ListView
	cursor    int

	creating createMode
	input    textinput.Model
	// confirm is the task waiting for a second delete press
	confirm uint64
}

func newListState(sort reconcile.SortMode) listState {
	in := textinput.New()
	in.Prompt = "> "
	in.PromptStyle = InputPromptStyle
	in.CharLimit = 2000
	return listState{sort: sort, input: in}
}

func (l *listState) key() cache.Key {
	if l.completed {
		return cache.CompletedTasks
	}
	return cache.Tasks
}

func (l *listState) refresh(c *cache.Cache) {
	l.view = reconcile.TaskList(c, l.key(), l.sort)
	l.clamp()
}

func (l *listState) clamp() {
	if l.cursor >= len(l.view.Cards) {
		l.cursor = len(l.view.Cards) - 1
	}
	if l.cursor < 0 {
		l.cursor = 0
	}
}

func (l *listState) selected() (model.Task, bool) {
	if l.cursor < len(l.view.Cards) {
		return l.view.Cards[l.cursor].Task, true
	}
	return model.Task{}, false
}

// enterList shows the list and loads it when stale
func (m *Model) enterList() tea.Cmd {
	m.viewMode = ViewModeList
	k := m.list.key()
	m.recon.Watch(k)
	m.list.refresh(m.session.Cache)
	return fetchCmd(m.ctx, m.session, k)
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	l := &m.list
	if l.creating != createNone {
		return m.updateCreate(msg)
	}

	pending := l.confirm
	l.confirm = 0

	switch {
	case key.Matches(msg, m.keys.Up):
		l.cursor--
		l.clamp()
	case key.Matches(msg, m.keys.Down):
		l.cursor++
		l.clamp()
	case key.Matches(msg, m.keys.Home):
		l.cursor = 0
	case key.Matches(msg, m.keys.End):
		l.cursor = len(l.view.Cards) - 1
		l.clamp()
	case key.Matches(msg, m.keys.Sort):
		l.sort = l.sort.Next()
		l.refresh(m.session.Cache)
	case key.Matches(msg, m.keys.Tab):
		m.recon.Unwatch(l.key())
		l.completed = !l.completed
		l.cursor = 0
		cmd := m.enterList()
		return m, cmd
	case key.Matches(msg, m.keys.Refresh):
		m.session.Cache.Invalidate(l.key())
	case key.Matches(msg, m.keys.New):
		cmd := l.startCreate(createTitle)
		return m, cmd
	case key.Matches(msg, m.keys.FromText):
		cmd := l.startCreate(createText)
		return m, cmd
	case key.Matches(msg, m.keys.Delete):
		t, ok := l.selected()
		if !ok {
			break
		}
		if pending != t.ID {
			l.confirm = t.ID
			break
		}
		return m, deleteTaskCmd(m.ctx, m.session, t.ID)
	case key.Matches(msg, m.keys.Select):
		if t, ok := l.selected(); ok {
			cmd := m.openDetail(t.ID)
			return m, cmd
		}
	case key.Matches(msg, m.keys.Chat):
		cmd := m.openChat(0)
		return m, cmd
	case key.Matches(msg, m.keys.Settings):
		cmd := m.openSettings()
		return m, cmd
	case key.Matches(msg, m.keys.Logout):
		return m, logoutCmd(m.ctx, m.app)
	}
	return m, nil
}

func (l *listState) startCreate(mode createMode) tea.Cmd {
	l.creating = mode
	l.input.Reset()
	if mode == createText {
		l.input.Placeholder = "描述要做的事，小奇会拆成步骤"
	} else {
		l.input.Placeholder = "新任务标题"
	}
	return l.input.Focus()
}

func (m Model) updateCreate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	l := &m.list
	switch {
	case key.Matches(msg, m.keys.Escape):
		l.creating = createNone
		l.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		text := strings.TrimSpace(l.input.Value())
		if text == "" {
			return m, nil
		}
		mode := l.creating
		l.creating = createNone
		l.input.Blur()
		if mode == createText {
			return m, createFromTextCmd(m.ctx, m.session, text)
		}
		return m, createTaskCmd(m.ctx, m.session, text)
	}
	var cmd tea.Cmd
	l.input, cmd = l.input.Update(msg)
	return m, cmd
}

func (m Model) listView(height int) string {
	l := m.list
	var b strings.Builder

	open, done := TabInactiveStyle, TabInactiveStyle
	if l.completed {
		done = TabActiveStyle
	} else {
		open = TabActiveStyle
	}
	b.WriteString(open.Render("进行中") + " " + done.Render("已完成"))
	b.WriteString("  " + DimStyle.Render("排序: "+l.sort.Label()))
	b.WriteString("\n\n")

	reserved := 3
	if l.creating != createNone {
		reserved += 3
	}
	if l.confirm != 0 {
		reserved++
	}

	switch {
	case len(l.view.Cards) == 0 && (l.view.State.Status == cache.StatusError):
		b.WriteString(m.emptyState(height-reserved, "加载失败", errorText(l.view.State.Err), "按 r 重试"))
	case len(l.view.Cards) == 0 && !l.view.State.HasData:
		b.WriteString(m.emptyState(height-reserved, m.spinner.View()+" 加载中"))
	case len(l.view.Cards) == 0:
		b.WriteString(m.emptyState(height-reserved, "暂无任务", "按 n 新建"))
	default:
		b.WriteString(m.renderCards(height - reserved))
	}

	if l.confirm != 0 {
		b.WriteString("\n" + WarningStyle.Render("再按一次 x 删除该任务"))
	}
	if l.creating != createNone {
		title := "新建任务"
		if l.creating == createText {
			title = "从描述创建"
		}
		b.WriteString("\n" + PanelTitleStyle.Render(title) + "\n")
		b.WriteString(InputFocusedStyle.Width(m.width - 4).Render(l.input.View()))
	}
	return b.String()
}

func (m Model) renderCards(height int) string {
	l := m.list
	if height < 1 {
		height = 1
	}
	start := 0
	if l.cursor >= height {
		start = l.cursor - height + 1
	}
	end := start + height
	if end > len(l.view.Cards) {
		end = len(l.view.Cards)
	}

	var lines []string
	for i := start; i < end; i++ {
		lines = append(lines, m.renderCard(l.view.Cards[i], i == l.cursor))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderCard(c reconcile.Card, selected bool) string {
	t := c.Task
	status := taskStatusStyle(t.Status).Render(t.Status.Icon())
	focus := " "
	if t.IsFocusToday {
		focus = FocusStyle.Render("★")
	}
	prio := priorityStyle(t.Priority).Render(fmt.Sprintf("%-2s", t.Priority.Label()))
	progress := progressLabel(c.Done, c.Total)
	due := ""
	if t.DueAt != nil {
		due = DimStyle.Render(t.DueAt.Local().Format("01-02"))
	}

	right := lipgloss.JoinHorizontal(lipgloss.Top, progress, "  ", due)
	titleWidth := m.width - 12 - lipgloss.Width(right)
	title := truncate(t.Title, titleWidth)
	left := fmt.Sprintf("%s %s %s %s", status, focus, prio, title)

	gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	line := left + strings.Repeat(" ", gap) + right
	if selected {
		return SelectedRowStyle.Width(m.width).Render(line)
	}
	return RowStyle.Render(line)
}
