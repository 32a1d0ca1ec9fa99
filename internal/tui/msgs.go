package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/qisumi/qisumi-tui/internal/api"
	"github.com/qisumi/qisumi-tui/internal/app"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/notify"
)

// Messages from the engine. They arrive on the events channel and are
// read one at a time by waitForEvent.
type (
	cacheChangedMsg struct{ key cache.Key }
	toastMsg        struct{ toast notify.Toast }
	signedOutMsg    struct{ err error }
)

// Results of commands
type (
	loggedInMsg struct {
		session *app.Session
		err     error
	}
	loggedOutMsg struct{ err error }
	fetchedMsg   struct {
		key cache.Key
		err error
	}
	submittedMsg struct {
		row row
		err error
	}
	taskCreatedMsg struct {
		id  uint64
		err error
	}
	taskDeletedMsg struct {
		id  uint64
		err error
	}
	stepAddedMsg struct{ err error }
	stepDeletedMsg struct {
		id  uint64
		err error
	}
	chatOpenedMsg struct {
		taskID    uint64
		sessionID uint64
		err       error
	}
	replyMsg       struct{ err error }
	chatClearedMsg struct{ err error }
	settingsMsg    struct {
		settings model.LLMSettings
		err      error
	}
	settingsSavedMsg struct{ err error }
	toastTickMsg     time.Time
)

// eventQueueSize bounds undelivered engine events. Cache changes are
// dropped when it is full; the next one re-renders from the cache anyway.
// Toasts and sign-outs always arrive.
const eventQueueSize = 64

// waitForEvent returns a command that waits for the next engine event
func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// offer sends msg without blocking
func offer(ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	default:
	}
}

// deliver sends msg without blocking the caller and without dropping it.
// Toasts are raised inside Update too, which is the only reader of ch.
func deliver(ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	default:
		go func() { ch <- msg }()
	}
}

func tickToasts() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return toastTickMsg(t) })
}

func loginCmd(ctx context.Context, a *app.App, email, password string, register bool) tea.Cmd {
	return func() tea.Msg {
		s, err := a.Login(ctx, email, password, register)
		return loggedInMsg{session: s, err: err}
	}
}

func logoutCmd(ctx context.Context, a *app.App) tea.Cmd {
	return func() tea.Msg {
		return loggedOutMsg{err: a.Logout(ctx)}
	}
}

func fetchCmd(ctx context.Context, s *app.Session, key cache.Key) tea.Cmd {
	return func() tea.Msg {
		_, err := s.Tracker.Fetch(ctx, key)
		return fetchedMsg{key: key, err: err}
	}
}

func submitCmd(ctx context.Context, s *app.Session, r row, patch model.Patch) tea.Cmd {
	return func() tea.Msg {
		return submittedMsg{row: r, err: s.Dispatch.Submit(ctx, patch)}
	}
}

func createTaskCmd(ctx context.Context, s *app.Session, title string) tea.Cmd {
	return func() tea.Msg {
		t, err := s.Dispatch.CreateTask(ctx, model.NewTask{Title: title})
		if err != nil {
			return taskCreatedMsg{err: err}
		}
		return taskCreatedMsg{id: t.ID}
	}
}

func createFromTextCmd(ctx context.Context, s *app.Session, text string) tea.Cmd {
	return func() tea.Msg {
		d, err := s.Dispatch.CreateTaskFromText(ctx, text)
		if err != nil {
			return taskCreatedMsg{err: err}
		}
		return taskCreatedMsg{id: d.Task.ID}
	}
}

func deleteTaskCmd(ctx context.Context, s *app.Session, id uint64) tea.Cmd {
	return func() tea.Msg {
		return taskDeletedMsg{id: id, err: s.Dispatch.DeleteTask(ctx, id)}
	}
}

func addStepCmd(ctx context.Context, s *app.Session, taskID uint64, title string) tea.Cmd {
	return func() tea.Msg {
		_, err := s.Dispatch.AddStep(ctx, taskID, model.NewStep{Title: title})
		return stepAddedMsg{err: err}
	}
}

func deleteStepCmd(ctx context.Context, s *app.Session, taskID, stepID uint64) tea.Cmd {
	return func() tea.Msg {
		return stepDeletedMsg{id: stepID, err: s.Dispatch.DeleteStep(ctx, taskID, stepID)}
	}
}

func openChatCmd(ctx context.Context, s *app.Session, taskID uint64) tea.Cmd {
	return func() tea.Msg {
		id, err := s.ChatSession(ctx, taskID)
		if err == nil {
			_, err = s.Tracker.Fetch(ctx, cache.SessionMessages(id))
		}
		return chatOpenedMsg{taskID: taskID, sessionID: id, err: err}
	}
}

func sendCmd(ctx context.Context, s *app.Session, sessionID uint64, content string) tea.Cmd {
	return func() tea.Msg {
		_, err := s.Dispatch.SendMessage(ctx, sessionID, content)
		return replyMsg{err: err}
	}
}

func clearChatCmd(ctx context.Context, s *app.Session, sessionID uint64) tea.Cmd {
	return func() tea.Msg {
		return chatClearedMsg{err: s.Dispatch.ClearMessages(ctx, sessionID)}
	}
}

func loadSettingsCmd(ctx context.Context, s *app.Session) tea.Cmd {
	return func() tea.Msg {
		if _, err := s.Tracker.Fetch(ctx, cache.LLMSettings); err != nil {
			return settingsMsg{err: err}
		}
		v, _ := s.Cache.Value(cache.LLMSettings)
		settings, _ := v.(model.LLMSettings)
		return settingsMsg{settings: settings}
	}
}

func saveSettingsCmd(ctx context.Context, s *app.Session, next model.LLMSettings) tea.Cmd {
	return func() tea.Msg {
		_, err := s.Dispatch.SaveLLMSettings(ctx, next)
		return settingsSavedMsg{err: err}
	}
}

// errorText is the line shown under a form for err
func errorText(err error) string {
	if err == nil {
		return ""
	}
	return api.UserMessage(err)
}
