// Package reconcile derives the list and detail views from the cache and
// reports when they need re-rendering.
package reconcile

import (
	"errors"
	"sync"

	"github.com/qisumi/qisumi-tui/internal/api"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
)

// Card is one row of the task list
type Card struct {
	Task  model.Task
	Done  int
	Total int
}

// ListView is the task list as currently cached
type ListView struct {
	Key   cache.Key
	Mode  SortMode
	Cards []Card
	State cache.QueryState
}

// DetailView is one task with its steps
type DetailView struct {
	Task     model.Task
	Steps    []model.TaskStep
	Done     int
	Total    int
	Session  *model.Session
	State    cache.QueryState
	NotFound bool
}

// Ratio is the completed share of steps, 0 without steps
func (v DetailView) Ratio() float64 {
	if v.Total == 0 {
		return 0
	}
	return float64(v.Done) / float64(v.Total)
}

// EstimateMinutes sums the steps' estimates
func (v DetailView) EstimateMinutes() int {
	total := 0
	for _, s := range v.Steps {
		if s.EstimateMinutes != nil {
			total += *s.EstimateMinutes
		}
	}
	return total
}

// TaskList builds the list view of key, sorted by mode
func TaskList(c *cache.Cache, key cache.Key, mode SortMode) ListView {
	var tasks []model.Task
	for _, e := range c.Resolve(key) {
		if t, ok := e.(model.Task); ok {
			tasks = append(tasks, t)
		}
	}
	view := ListView{Key: key, Mode: mode, State: c.State(key)}
	for _, t := range SortTasks(tasks, mode) {
		done, total := progress(c.StepsOf(t.ID))
		view.Cards = append(view.Cards, Card{Task: t, Done: done, Total: total})
	}
	return view
}

// TaskDetail builds the detail view of task id
func TaskDetail(c *cache.Cache, id uint64) DetailView {
	key := cache.TaskDetail(id)
	view := DetailView{State: c.State(key)}
	if errors.Is(view.State.Err, api.ErrNotFound) && view.State.Status == cache.StatusError {
		view.NotFound = true
		return view
	}
	task, ok := c.Task(id)
	if !ok {
		return view
	}
	view.Task = task
	view.Steps = c.StepsOf(id)
	view.Done, view.Total = progress(view.Steps)
	for _, ref := range c.Refs(key) {
		if ref.Kind != model.KindSession {
			continue
		}
		if s, ok := c.Session(ref.ID); ok {
			view.Session = &s
		}
	}
	return view
}

func progress(steps []model.TaskStep) (done, total int) {
	for _, s := range steps {
		if s.Status == model.StepStatusDone {
			done++
		}
	}
	return done, len(steps)
}

// Reconciler watches the queries behind the open views and calls OnChange
// with the key of every query that changed
type Reconciler struct {
	cache    *cache.Cache
	onChange func(cache.Key)

	mu    sync.Mutex
	stops map[cache.Key]func()
}

// New creates a reconciler over c
func New(c *cache.Cache, onChange func(cache.Key)) *Reconciler {
	return &Reconciler{cache: c, onChange: onChange, stops: make(map[cache.Key]func())}
}

// Watch starts reporting changes to queries matched by key. Watching a
// key twice is a no-op.
func (r *Reconciler) Watch(key cache.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stops[key]; ok {
		return
	}
	r.stops[key] = r.cache.Subscribe(key, func(ch cache.Change) { r.onChange(ch.Key) })
}

// Unwatch stops reporting key
func (r *Reconciler) Unwatch(key cache.Key) {
	r.mu.Lock()
	stop, ok := r.stops[key]
	delete(r.stops, key)
	r.mu.Unlock()
	if ok {
		stop()
	}
}

// Close stops every watch
func (r *Reconciler) Close() {
	r.mu.Lock()
	stops := r.stops
	r.stops = make(map[cache.Key]func())
	r.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}
