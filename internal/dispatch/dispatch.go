// Package dispatch sends mutations to the backend and folds their results
// into the cache. Every attempt produces exactly one toast.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/qisumi/qisumi-tui/internal/api"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/logger"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/notify"
	"github.com/qisumi/qisumi-tui/internal/tracker"
)

// Sender is the part of the backend client that mutates
type Sender interface {
	UpdateTask(ctx context.Context, patch model.TaskPatch) error
	UpdateStep(ctx context.Context, patch model.StepPatch) error
	CreateTask(ctx context.Context, t model.NewTask) (*model.Task, error)
	CreateTaskFromText(ctx context.Context, rawText string) (*api.TaskDetail, error)
	DeleteTask(ctx context.Context, id uint64) error
	AddStep(ctx context.Context, taskID uint64, step model.NewStep) (*model.TaskStep, error)
	DeleteStep(ctx context.Context, taskID, stepID uint64) error
	SendMessage(ctx context.Context, sessionID uint64, content string) (*api.Reply, error)
	ClearMessages(ctx context.Context, sessionID uint64) error
	SaveLLMSettings(ctx context.Context, s model.LLMSettings) (*model.LLMSettings, error)
}

// Failure is a mutation the backend did not accept
type Failure struct {
	Op     string
	Kind   api.Kind
	Fields []string
	Err    error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Op, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

// Message is the text shown next to the field and in the toast
func (f *Failure) Message() string { return api.UserMessage(f.Err) }

// Options configures a Dispatcher
type Options struct {
	// Timeout bounds each request
	Timeout time.Duration
	Now     func() time.Time
	// OnUnauthorized is called after a 401, once the toast is out
	OnUnauthorized func(error)
	Logger         *slog.Logger
}

// Dispatcher is safe for concurrent use
type Dispatcher struct {
	send  Sender
	cache *cache.Cache
	toast notify.Notifier
	opts  Options
	log   *slog.Logger

	tempID atomic.Uint64
}

// New creates a dispatcher writing into c and emitting toasts to n
func New(s Sender, c *cache.Cache, n notify.Notifier, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = api.DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Dispatch
	}
	return &Dispatcher{send: s, cache: c, toast: n, opts: opts, log: opts.Logger}
}

// Submit sends a field patch. On success the cache takes the patch and
// the affected queries refetch; on failure the cache is untouched and a
// *Failure is returned.
func (d *Dispatcher) Submit(ctx context.Context, patch model.Patch) error {
	if patch == nil || patch.Empty() {
		return nil
	}
	fields := patch.Fields()
	op := "update " + strings.Join(fields, ", ")

	var (
		detail cache.Key
		call   func(context.Context) error
	)
	switch p := patch.(type) {
	case model.TaskPatch:
		detail = cache.TaskDetail(p.ID)
		call = func(ctx context.Context) error { return d.send.UpdateTask(ctx, p) }
	case model.StepPatch:
		detail = cache.TaskDetail(p.TaskID)
		call = func(ctx context.Context) error { return d.send.UpdateStep(ctx, p) }
	default:
		return fmt.Errorf("dispatch: unsupported patch %T", patch)
	}

	if err := d.do(ctx, op, fields, detail, call); err != nil {
		return err
	}

	now := d.opts.Now()
	d.cache.Update(patch.Target(), func(e model.Entity) model.Entity { return patch.Apply(e, now) })
	switch p := patch.(type) {
	case model.TaskPatch:
		d.invalidate(detail, cache.Tasks, cache.CompletedTasks)
	case model.StepPatch:
		d.cache.Update(p.Parent(), func(e model.Entity) model.Entity { return model.Touch(e, now) })
		d.invalidate(detail, cache.Tasks)
	}
	d.succeed(op, strings.Join(fields, ", ")+" updated")
	return nil
}

// CreateTask adds a task and refreshes the open list
func (d *Dispatcher) CreateTask(ctx context.Context, t model.NewTask) (*model.Task, error) {
	var created *model.Task
	err := d.do(ctx, "create task", []string{"title"}, cache.Key{}, func(ctx context.Context) error {
		var err error
		created, err = d.send.CreateTask(ctx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.cache.Put(tracker.Normalize(*created)...)
	d.invalidate(cache.Tasks)
	d.succeed("create task", "task created")
	return created, nil
}

// CreateTaskFromText has the assistant turn free text into a task. The
// returned detail seeds the cache so the new task opens without a fetch.
func (d *Dispatcher) CreateTaskFromText(ctx context.Context, raw string) (*api.TaskDetail, error) {
	var detail *api.TaskDetail
	err := d.do(ctx, "create task from text", nil, cache.Key{}, func(ctx context.Context) error {
		var err error
		detail, err = d.send.CreateTaskFromText(ctx, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.cache.Seed(cache.TaskDetail(detail.Task.ID), tracker.DetailResult(detail))
	d.invalidate(cache.Tasks)
	d.succeed("create task from text", "task created")
	return detail, nil
}

// DeleteTask removes a task with its steps
func (d *Dispatcher) DeleteTask(ctx context.Context, id uint64) error {
	err := d.do(ctx, "delete task", nil, cache.TaskDetail(id), func(ctx context.Context) error {
		return d.send.DeleteTask(ctx, id)
	})
	if err != nil {
		return err
	}
	d.cache.Remove(model.TaskRef(id))
	d.invalidate(cache.Tasks, cache.CompletedTasks)
	d.succeed("delete task", "task deleted")
	return nil
}

// AddStep appends a step to a task
func (d *Dispatcher) AddStep(ctx context.Context, taskID uint64, step model.NewStep) (*model.TaskStep, error) {
	var added *model.TaskStep
	err := d.do(ctx, "add step", []string{"title"}, cache.TaskDetail(taskID), func(ctx context.Context) error {
		var err error
		added, err = d.send.AddStep(ctx, taskID, step)
		return err
	})
	if err != nil {
		return nil, err
	}
	now := d.opts.Now()
	d.cache.Put(*added)
	d.cache.Update(model.TaskRef(taskID), func(e model.Entity) model.Entity { return model.Touch(e, now) })
	d.invalidate(cache.TaskDetail(taskID), cache.Tasks)
	d.succeed("add step", "step added")
	return added, nil
}

// DeleteStep removes one step
func (d *Dispatcher) DeleteStep(ctx context.Context, taskID, stepID uint64) error {
	err := d.do(ctx, "delete step", nil, cache.TaskDetail(taskID), func(ctx context.Context) error {
		return d.send.DeleteStep(ctx, taskID, stepID)
	})
	if err != nil {
		return err
	}
	d.cache.Remove(model.StepRef(stepID))
	d.invalidate(cache.TaskDetail(taskID), cache.Tasks)
	d.succeed("delete step", "step deleted")
	return nil
}

// SendMessage posts a chat message. The user's message shows at once
// under a temporary id; the transcript refetch replaces it with the
// stored one.
func (d *Dispatcher) SendMessage(ctx context.Context, sessionID uint64, content string) (*api.Reply, error) {
	key := cache.SessionMessages(sessionID)
	pending := model.Message{
		ID:        math.MaxUint64 - d.tempID.Add(1),
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: d.opts.Now(),
	}
	d.cache.Append(key, pending)

	var reply *api.Reply
	err := d.do(ctx, "send message", nil, cache.Key{}, func(ctx context.Context) error {
		var err error
		reply, err = d.send.SendMessage(ctx, sessionID, content)
		return err
	})
	if err != nil {
		d.cache.Remove(pending.Ref())
		return nil, err
	}

	d.cache.Append(key, reply.AssistantMessage)
	if reply.ChangedTasks() {
		d.log.Info("assistant changed tasks", "session", sessionID, "patches", len(reply.TaskPatches))
		d.invalidate(key, cache.All(cache.ScopeTaskDetail), cache.Tasks, cache.CompletedTasks)
	} else {
		d.invalidate(key)
	}
	d.succeed("send message", "message sent")
	return reply, nil
}

// ClearMessages wipes a session's transcript
func (d *Dispatcher) ClearMessages(ctx context.Context, sessionID uint64) error {
	err := d.do(ctx, "clear messages", nil, cache.Key{}, func(ctx context.Context) error {
		return d.send.ClearMessages(ctx, sessionID)
	})
	if err != nil {
		return err
	}
	key := cache.SessionMessages(sessionID)
	for _, e := range d.cache.Resolve(key) {
		d.cache.Remove(e.Ref())
	}
	d.invalidate(key)
	d.succeed("clear messages", "messages cleared")
	return nil
}

// SaveLLMSettings stores the model configuration
func (d *Dispatcher) SaveLLMSettings(ctx context.Context, s model.LLMSettings) (*model.LLMSettings, error) {
	var saved *model.LLMSettings
	err := d.do(ctx, "save settings", []string{"settings"}, cache.Key{}, func(ctx context.Context) error {
		var err error
		saved, err = d.send.SaveLLMSettings(ctx, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	d.cache.SetValue(cache.LLMSettings, *saved)
	d.succeed("save settings", "settings saved")
	return saved, nil
}

// do runs call under the request timeout and turns an error into a
// Failure with its toast. A zero detail key skips the not-found
// invalidation.
func (d *Dispatcher) do(ctx context.Context, op string, fields []string, detail cache.Key, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := call(ctx)
	if err == nil {
		d.log.Debug("mutation accepted", "op", op, "duration", time.Since(start))
		return nil
	}

	f := &Failure{Op: op, Kind: api.KindOf(err), Fields: fields, Err: err}
	d.log.Warn("mutation failed", "op", op, "kind", f.Kind.String(), "error", err)
	d.toast.Notify(notify.Error, fmt.Sprintf("%s failed: %s", op, f.Message()))

	switch f.Kind {
	case api.KindNotFound:
		if detail.Scope != "" {
			d.invalidate(detail)
		}
	case api.KindUnauthorized:
		if d.opts.OnUnauthorized != nil {
			d.opts.OnUnauthorized(err)
		}
	}
	return f
}

func (d *Dispatcher) succeed(op, msg string) {
	d.log.Info("mutation applied", "op", op)
	d.toast.Notify(notify.Success, msg)
}

func (d *Dispatcher) invalidate(keys ...cache.Key) {
	for _, k := range keys {
		d.cache.Invalidate(k)
	}
}
