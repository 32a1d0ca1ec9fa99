package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/duration"
	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/reconcile"
)

type detailState struct {
	taskID uint64
	view   reconcile.DetailView

	// rows edit the task; steps holds the rows of every step opened so
	// far, so drafts survive moving between steps
	rows    []row
	steps   map[uint64][]row
	blocked map[uint64]bool
	stepID  uint64 // open step, 0 for the task
	cursor  int

	editing  row
	input    textinput.Model
	inputErr string
	adding   bool
	confirm  uint64

	bar progress.Model
}

func newDetailState() detailState {
	in := textinput.New()
	in.Prompt = "> "
	in.PromptStyle = InputPromptStyle
	in.CharLimit = 2000
	return detailState{
		steps:   make(map[uint64][]row),
		blocked: make(map[uint64]bool),
		input:   in,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// openDetail shows task id, loading it when stale
func (m *Model) openDetail(id uint64) tea.Cmd {
	if m.detail.taskID != id {
		if m.detail.taskID != 0 {
			m.recon.Unwatch(cache.TaskDetail(m.detail.taskID))
		}
		m.detail = newDetailState()
		m.detail.taskID = id
	}
	m.viewMode = ViewModeDetail
	k := cache.TaskDetail(id)
	m.recon.Watch(k)
	m.detail.refresh(m.session.Cache)
	return fetchCmd(m.ctx, m.session, k)
}

func (d *detailState) refresh(c *cache.Cache) {
	if d.taskID == 0 {
		return
	}
	d.view = reconcile.TaskDetail(c, d.taskID)
	if d.view.Task.ID == 0 {
		return
	}

	if d.rows == nil {
		d.rows = taskRows(d.view.Task)
	} else {
		for _, r := range d.rows {
			r.Sync(d.view.Task)
		}
	}

	present := make(map[uint64]model.TaskStep, len(d.view.Steps))
	for _, s := range d.view.Steps {
		present[s.ID] = s
	}
	for id, rows := range d.steps {
		s, ok := present[id]
		if !ok {
			if d.editing != nil && contains(rows, d.editing) {
				d.closeInput()
			}
			delete(d.steps, id)
			delete(d.blocked, id)
			continue
		}
		// The blocking reason row comes and goes with the status
		if s.Blocked() != d.blocked[id] && !anyActive(rows) {
			d.steps[id] = stepRows(s)
			d.blocked[id] = s.Blocked()
			continue
		}
		for _, r := range rows {
			r.Sync(s)
		}
	}
	if d.stepID != 0 {
		if _, ok := d.steps[d.stepID]; !ok {
			d.stepID = 0
			d.cursor = 0
		}
	}
	d.clamp()
}

func contains(rows []row, r row) bool {
	for _, x := range rows {
		if x == r {
			return true
		}
	}
	return false
}

func anyActive(rows []row) bool {
	for _, r := range rows {
		if r.Phase() != edit.Viewing {
			return true
		}
	}
	return false
}

// items is the number of selectable lines of the open panel
func (d *detailState) items() int {
	if d.stepID != 0 {
		return len(d.steps[d.stepID])
	}
	return len(d.rows) + len(d.view.Steps)
}

func (d *detailState) clamp() {
	if n := d.items(); d.cursor >= n {
		d.cursor = n - 1
	}
	if d.cursor < 0 {
		d.cursor = 0
	}
}

// selected returns the field row or step under the cursor
func (d *detailState) selected() (row, *model.TaskStep) {
	if d.stepID != 0 {
		rows := d.steps[d.stepID]
		if d.cursor < len(rows) {
			return rows[d.cursor], nil
		}
		return nil, nil
	}
	if d.cursor < len(d.rows) {
		return d.rows[d.cursor], nil
	}
	if i := d.cursor - len(d.rows); i >= 0 && i < len(d.view.Steps) {
		s := d.view.Steps[i]
		return nil, &s
	}
	return nil, nil
}

func (d *detailState) typing() bool {
	return d.editing != nil || d.adding
}

func (d *detailState) submitting() bool {
	if anyActiveIn(d.rows, edit.Submitting) {
		return true
	}
	for _, rows := range d.steps {
		if anyActiveIn(rows, edit.Submitting) {
			return true
		}
	}
	return false
}

func anyActiveIn(rows []row, p edit.Phase) bool {
	for _, r := range rows {
		if r.Phase() == p {
			return true
		}
	}
	return false
}

func (d *detailState) openStep(s model.TaskStep) {
	if _, ok := d.steps[s.ID]; !ok {
		d.steps[s.ID] = stepRows(s)
		d.blocked[s.ID] = s.Blocked()
	}
	d.stepID = s.ID
	d.cursor = 0
}

func (d *detailState) closeStep() {
	id := d.stepID
	d.stepID = 0
	d.cursor = len(d.rows)
	for i, s := range d.view.Steps {
		if s.ID == id {
			d.cursor = len(d.rows) + i
		}
	}
}

// startEdit puts r into editing and gives text rows the input
func (d *detailState) startEdit(r row) tea.Cmd {
	var seed string
	switch r.Phase() {
	case edit.Viewing:
		var ok bool
		if seed, ok = r.Edit(); !ok {
			return nil
		}
	case edit.Editing:
		// Back to a draft left after a failed save
		seed = r.Text()
	default:
		return nil
	}
	d.editing = r
	d.inputErr = ""
	if r.Choice() {
		return nil
	}
	d.input.SetValue(seed)
	d.input.CursorEnd()
	return d.input.Focus()
}

func (d *detailState) closeInput() {
	d.editing = nil
	d.adding = false
	d.inputErr = ""
	d.input.Blur()
	d.input.Reset()
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := &m.detail
	switch {
	case d.adding:
		return m.updateAddStep(msg)
	case d.editing != nil:
		return m.updateEditing(msg)
	}

	pending := d.confirm
	d.confirm = 0

	switch {
	case key.Matches(msg, m.keys.Up):
		d.cursor--
		d.clamp()
	case key.Matches(msg, m.keys.Down):
		d.cursor++
		d.clamp()
	case key.Matches(msg, m.keys.Home):
		d.cursor = 0
	case key.Matches(msg, m.keys.End):
		d.cursor = d.items() - 1
		d.clamp()
	case key.Matches(msg, m.keys.Escape):
		if d.stepID != 0 {
			d.closeStep()
			return m, nil
		}
		m.recon.Unwatch(cache.TaskDetail(d.taskID))
		cmd := m.enterList()
		return m, cmd
	case key.Matches(msg, m.keys.Select):
		r, step := d.selected()
		if step != nil {
			d.openStep(*step)
			return m, nil
		}
		if r != nil {
			cmd := d.startEdit(r)
			return m, cmd
		}
	case key.Matches(msg, m.keys.Refresh):
		m.session.Cache.Invalidate(cache.TaskDetail(d.taskID))
	case key.Matches(msg, m.keys.New):
		if d.view.Task.ID == 0 {
			break
		}
		d.adding = true
		d.input.Reset()
		d.input.Placeholder = "新步骤标题"
		cmd := d.input.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Delete):
		_, step := d.selected()
		if step == nil {
			break
		}
		if pending != step.ID {
			d.confirm = step.ID
			break
		}
		return m, deleteStepCmd(m.ctx, m.session, d.taskID, step.ID)
	case key.Matches(msg, m.keys.Chat):
		if d.view.Session != nil {
			cmd := m.openChat(d.taskID)
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := &m.detail
	r := d.editing

	switch {
	case key.Matches(msg, m.keys.Escape):
		r.Cancel()
		d.closeInput()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		if !r.Choice() {
			if err := r.Input(d.input.Value()); err != nil {
				d.inputErr = err.Error()
				return m, nil
			}
		}
		patch, out := r.Commit()
		switch out {
		case edit.Submit:
			d.closeInput()
			return m, submitCmd(m.ctx, m.session, r, patch)
		case edit.Unchanged:
			d.closeInput()
		case edit.Invalid:
			// r.Err() is shown under the field
		}
		return m, nil
	}

	if r.Choice() {
		switch {
		case key.Matches(msg, m.keys.Left), key.Matches(msg, m.keys.Up):
			r.Cycle(-1)
		case key.Matches(msg, m.keys.Right), key.Matches(msg, m.keys.Down), msg.String() == " ":
			r.Cycle(1)
		}
		return m, nil
	}

	d.inputErr = ""
	var cmd tea.Cmd
	d.input, cmd = d.input.Update(msg)
	return m, cmd
}

func (m Model) updateAddStep(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := &m.detail
	switch {
	case key.Matches(msg, m.keys.Escape):
		d.closeInput()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		title := strings.TrimSpace(d.input.Value())
		if title == "" {
			d.inputErr = "标题不能为空"
			return m, nil
		}
		d.closeInput()
		return m, addStepCmd(m.ctx, m.session, d.taskID, title)
	}
	var cmd tea.Cmd
	d.input, cmd = d.input.Update(msg)
	return m, cmd
}

// resolved ends the submission of msg.row. A failed row keeps its draft
// and gets the input back when nothing else is being edited.
func (d *detailState) resolved(msg submittedMsg) tea.Cmd {
	msg.row.Resolve(msg.err)
	if msg.err == nil || d.typing() || msg.row.Phase() != edit.Editing {
		return nil
	}
	if !contains(d.rows, msg.row) && !contains(d.steps[d.stepID], msg.row) {
		return nil
	}
	return d.startEdit(msg.row)
}

func (m Model) detailView(height int) string {
	d := m.detail
	switch {
	case d.view.NotFound:
		return m.emptyState(height, "任务不存在或已删除", "按 esc 返回")
	case d.view.Task.ID == 0 && d.view.State.Status == cache.StatusError:
		return m.emptyState(height, "加载失败", errorText(d.view.State.Err), "按 r 重试")
	case d.view.Task.ID == 0:
		return m.emptyState(height, m.spinner.View()+" 加载中")
	}

	var b strings.Builder
	t := d.view.Task
	b.WriteString(PanelTitleStyle.Render(truncate(t.Title, m.width-4)))
	b.WriteString("\n")

	d.bar.Width = min(40, m.width/2)
	summary := fmt.Sprintf("%s  %s", progressLabel(d.view.Done, d.view.Total),
		DimStyle.Render("预估 "+duration.Of(d.view.EstimateMinutes()).Label))
	b.WriteString(d.bar.ViewAs(d.view.Ratio()) + "  " + summary)
	b.WriteString("\n\n")

	if d.stepID != 0 {
		b.WriteString(m.renderStepPanel())
	} else {
		b.WriteString(m.renderTaskPanel())
	}

	if d.confirm != 0 {
		b.WriteString("\n" + WarningStyle.Render("再按一次 x 删除该步骤"))
	}
	if d.adding {
		b.WriteString("\n" + PanelTitleStyle.Render("添加步骤") + "\n")
		b.WriteString(InputFocusedStyle.Width(m.width - 4).Render(d.input.View()))
		if d.inputErr != "" {
			b.WriteString("\n" + ErrorStyle.Render(d.inputErr))
		}
	}
	return b.String()
}

func (m Model) renderTaskPanel() string {
	d := m.detail
	var lines []string
	for i, r := range d.rows {
		lines = append(lines, m.renderRow(r, i == d.cursor))
	}

	lines = append(lines, "", PanelTitleStyle.Render("步骤"))
	if len(d.view.Steps) == 0 {
		lines = append(lines, DimStyle.Render("  暂无步骤，按 n 添加"))
	}
	for i, s := range d.view.Steps {
		lines = append(lines, m.renderStep(s, len(d.rows)+i == d.cursor))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStepPanel() string {
	d := m.detail
	var title string
	for _, s := range d.view.Steps {
		if s.ID == d.stepID {
			title = fmt.Sprintf("步骤 %d · %s", s.OrderIndex, s.Title)
		}
	}
	lines := []string{PanelTitleStyle.Render(truncate(title, m.width-4))}
	for i, r := range d.steps[d.stepID] {
		lines = append(lines, m.renderRow(r, i == d.cursor))
	}
	lines = append(lines, "", DimStyle.Render("esc 返回任务"))
	return strings.Join(lines, "\n")
}

func (m Model) renderStep(s model.TaskStep, selected bool) string {
	icon := stepStatusStyle(s.Status).Render(s.Status.Icon())
	est := ""
	if s.EstimateMinutes != nil && *s.EstimateMinutes > 0 {
		est = DimStyle.Render(duration.ToDisplay(s.EstimateMinutes).Label)
	}
	title := truncate(fmt.Sprintf("%d. %s", s.OrderIndex, s.Title), m.width-16)
	line := fmt.Sprintf("  %s %s  %s", icon, title, est)
	if s.Blocked() && s.BlockingReason != "" {
		line += "  " + TaskBlockedStyle.Render(truncate(s.BlockingReason, 30))
	}
	if d := m.detail; anyActive(d.steps[s.ID]) {
		line += "  " + WarningStyle.Render("✎")
	}
	if selected {
		return SelectedRowStyle.Width(m.width).Render(line)
	}
	return line
}

func (m Model) renderRow(r row, selected bool) string {
	label := LabelStyle.Render(r.Label())
	d := m.detail

	var value string
	switch {
	case r == d.editing && !r.Choice():
		value = d.input.View()
	case r == d.editing && r.Err() != nil:
		value = r.Display() + " → ‹ " + r.Pending() + " ›"
	case r == d.editing:
		value = "‹ " + r.Display() + " ›"
	case r.Phase() == edit.Submitting:
		value = r.Display() + " " + SubmittingStyle.Render("保存中…")
	case r.Err() != nil:
		value = r.Display() + " " + DimStyle.Render("(未保存: "+r.Pending()+")")
	default:
		value = r.Display()
	}

	line := label + " " + value
	switch {
	case r == d.editing:
		line = EditingStyle.Render(line)
	case selected:
		line = SelectedRowStyle.Width(m.width).Render(line)
	}

	var errs []string
	if r == d.editing && d.inputErr != "" {
		errs = append(errs, d.inputErr)
	}
	if err := r.Err(); err != nil {
		errs = append(errs, errorText(err))
	}
	if len(errs) > 0 {
		line += "\n" + lipgloss.NewStyle().PaddingLeft(11).Render(ErrorStyle.Render(strings.Join(errs, "; ")))
	}
	return line
}
