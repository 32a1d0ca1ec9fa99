// Package tracker loads backend data into the entity cache. Each cache
// scope has one loader; views fetch through the tracker and the cache
// remembers the loader for background refetches.
package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qisumi/qisumi-tui/internal/api"
	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/logger"
	"github.com/qisumi/qisumi-tui/internal/model"
)

// Source is the part of the backend client the loaders read from
type Source interface {
	ListTasks(ctx context.Context) (*api.TaskList, error)
	ListCompletedTasks(ctx context.Context) (*api.TaskList, error)
	GetTask(ctx context.Context, id uint64) (*api.TaskDetail, error)
	GlobalSession(ctx context.Context) (*model.Session, error)
	ListMessages(ctx context.Context, sessionID uint64) ([]model.Message, error)
	GetLLMSettings(ctx context.Context) (*model.LLMSettings, error)
}

// Tracker fetches queries into a cache
type Tracker struct {
	src            Source
	cache          *cache.Cache
	log            *slog.Logger
	onUnauthorized func(error)
}

// Option configures a Tracker
type Option func(*Tracker)

// WithUnauthorized calls fn when a load is rejected with 401, whether
// fetched directly or refetched in the background
func WithUnauthorized(fn func(error)) Option {
	return func(t *Tracker) { t.onUnauthorized = fn }
}

// New creates a tracker reading from src into c
func New(src Source, c *cache.Cache, opts ...Option) *Tracker {
	t := &Tracker{src: src, cache: c, log: logger.Cache}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Cache returns the cache the tracker fills
func (t *Tracker) Cache() *cache.Cache { return t.cache }

// Fetch loads key through the cache
func (t *Tracker) Fetch(ctx context.Context, key cache.Key) (cache.QueryState, error) {
	loader, err := t.Loader(key)
	if err != nil {
		return cache.QueryState{}, err
	}
	return t.cache.Fetch(ctx, key, loader)
}

// Loader returns the loader of key
func (t *Tracker) Loader(key cache.Key) (cache.Loader, error) {
	load, err := t.loader(key)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (cache.Result, error) {
		res, err := load(ctx)
		if err != nil && t.onUnauthorized != nil && api.KindOf(err) == api.KindUnauthorized {
			t.log.Warn("load unauthorized", "key", key.String())
			t.onUnauthorized(err)
		}
		return res, err
	}, nil
}

func (t *Tracker) loader(key cache.Key) (cache.Loader, error) {
	switch key.Scope {
	case cache.ScopeTasks:
		return t.loadList(t.src.ListTasks), nil
	case cache.ScopeCompletedTasks:
		return t.loadList(t.src.ListCompletedTasks), nil
	case cache.ScopeTaskDetail:
		return t.loadDetail(key.ID), nil
	case cache.ScopeGlobalSession:
		return t.loadGlobalSession, nil
	case cache.ScopeSessionMessages:
		return t.loadMessages(key.ID), nil
	case cache.ScopeLLMSettings:
		return t.loadSettings, nil
	default:
		return nil, fmt.Errorf("no loader for %s", key)
	}
}

func (t *Tracker) loadList(list func(context.Context) (*api.TaskList, error)) cache.Loader {
	return func(ctx context.Context) (cache.Result, error) {
		tl, err := list(ctx)
		if err != nil {
			return cache.Result{}, fmt.Errorf("list tasks: %w", err)
		}
		var res cache.Result
		for _, task := range tl.Tasks {
			res.Entities = append(res.Entities, Normalize(task)...)
			res.Refs = append(res.Refs, task.Ref())
		}
		return res, nil
	}
}

func (t *Tracker) loadDetail(id uint64) cache.Loader {
	return func(ctx context.Context) (cache.Result, error) {
		d, err := t.src.GetTask(ctx, id)
		if err != nil {
			return cache.Result{}, fmt.Errorf("get task %d: %w", id, err)
		}
		return DetailResult(d), nil
	}
}

func (t *Tracker) loadGlobalSession(ctx context.Context) (cache.Result, error) {
	s, err := t.src.GlobalSession(ctx)
	if err != nil {
		return cache.Result{}, fmt.Errorf("get global session: %w", err)
	}
	return cache.Result{Entities: []model.Entity{*s}, Refs: []model.Ref{s.Ref()}}, nil
}

func (t *Tracker) loadMessages(sessionID uint64) cache.Loader {
	return func(ctx context.Context) (cache.Result, error) {
		msgs, err := t.src.ListMessages(ctx, sessionID)
		if err != nil {
			return cache.Result{}, fmt.Errorf("list messages: %w", err)
		}
		res := cache.Result{Owner: model.SessionRef(sessionID), OwnedKind: model.KindMessage}
		for _, m := range msgs {
			res.Entities = append(res.Entities, m)
			res.Refs = append(res.Refs, m.Ref())
		}
		return res, nil
	}
}

func (t *Tracker) loadSettings(ctx context.Context) (cache.Result, error) {
	s, err := t.src.GetLLMSettings(ctx)
	if err != nil {
		return cache.Result{}, fmt.Errorf("get llm settings: %w", err)
	}
	return cache.Result{Value: *s}, nil
}

// Normalize splits a wire task into the task and its step entities
func Normalize(task model.Task) []model.Entity {
	out := make([]model.Entity, 0, len(task.Steps)+1)
	for _, s := range task.Steps {
		out = append(out, s)
	}
	task.Steps = nil
	return append(out, task)
}

// DetailResult is the cache form of a task detail. Steps missing from
// it are pruned; the session sits in the refs after the task.
func DetailResult(d *api.TaskDetail) cache.Result {
	res := cache.Result{
		Entities:  Normalize(d.Task),
		Refs:      []model.Ref{d.Task.Ref()},
		Owner:     d.Task.Ref(),
		OwnedKind: model.KindStep,
	}
	if d.Session != nil {
		res.Entities = append(res.Entities, *d.Session)
		res.Refs = append(res.Refs, d.Session.Ref())
	}
	return res
}
