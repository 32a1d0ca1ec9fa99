// Package cache is the shared store of fetched entities. Every view reads
// through it; queries hold refs into one normalized entity table, so each
// entity has a single cached copy.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/qisumi/qisumi-tui/internal/logger"
	"github.com/qisumi/qisumi-tui/internal/model"
)

// ErrClosed is returned once the cache has been torn down
var ErrClosed = errors.New("cache closed")

// Status of a query's latest load
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// QueryState describes what a view can show for a query
type QueryState struct {
	Status    Status
	Stale     bool // invalidated; a refetch is due or running
	Fetching  bool
	HasData   bool
	Err       error
	UpdatedAt time.Time
}

// Result is what a Loader produced. Entities are upserted, Refs become
// the query's result. When Owner is set, cached children of OwnedKind
// under Owner that are missing from Entities are dropped.
type Result struct {
	Entities  []model.Entity
	Refs      []model.Ref
	Value     any
	Owner     model.Ref
	OwnedKind model.Kind
}

// Loader fetches a query's data
type Loader func(ctx context.Context) (Result, error)

// Change is delivered to subscribers
type Change struct {
	Key   Key
	State QueryState
}

// Listener receives changes. It runs on whichever goroutine applied the
// change and must not block.
type Listener func(Change)

// Options configures a Cache
type Options struct {
	// StaleTime is how long a successful load is served without refetching
	StaleTime time.Duration
	// RequestTimeout bounds each background refetch
	RequestTimeout time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

type query struct {
	state  QueryState
	refs   []model.Ref
	value  any
	owner  model.Ref
	loader Loader
	gen    uint64
}

type subscriber struct {
	key Key
	fn  Listener
}

// Cache is safe for concurrent use
type Cache struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	entities map[model.Ref]model.Entity
	queries  map[Key]*query
	subs     map[uint64]subscriber
	nextSub  uint64
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache; call Close on logout
func New(opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Cache
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		opts:     opts,
		log:      opts.Logger,
		entities: make(map[model.Ref]model.Entity),
		queries:  make(map[Key]*query),
		subs:     make(map[uint64]subscriber),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close cancels in-flight refetches, drops all data and detaches
// subscribers. It waits for background refetches to return.
func (c *Cache) Close() {
	c.Stop()
	c.wg.Wait()
}

// Stop drops every entity and cancels in-flight refetches without
// waiting for them. A loader may call it.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.entities = make(map[model.Ref]model.Entity)
	c.queries = make(map[Key]*query)
	c.subs = make(map[uint64]subscriber)
}

// Subscribe registers fn for changes to queries matched by key. The
// returned func unsubscribes.
func (c *Cache) Subscribe(key Key, fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = subscriber{key: key, fn: fn}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Watch returns a channel that receives a signal whenever a query matched
// by key changes. The channel buffers one signal and never blocks the
// cache, so bursts of changes coalesce.
func (c *Cache) Watch(key Key) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	stop := c.Subscribe(key, func(Change) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	return ch, stop
}

// Fetch serves key from the cache when fresh, otherwise runs loader and
// stores its result. The loader is remembered for later refetches.
func (c *Cache) Fetch(ctx context.Context, key Key, loader Loader) (QueryState, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return QueryState{}, ErrClosed
	}
	q := c.query(key)
	q.loader = loader
	if c.fresh(q) {
		state := q.state
		c.mu.Unlock()
		return state, nil
	}
	gen := q.gen
	q.state.Fetching = true
	if !q.state.HasData {
		q.state.Status = StatusLoading
	}
	notes := c.collect([]Key{key})
	c.mu.Unlock()
	c.deliver(notes)

	res, err := loader(ctx)
	return c.apply(key, gen, res, err), err
}

// Invalidate marks every query matched by filter stale and schedules a
// background refetch for those with a loader. Results of loads started
// before the invalidation are discarded.
func (c *Cache) Invalidate(filter Key) {
	type job struct {
		key    Key
		gen    uint64
		loader Loader
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var (
		keys []Key
		jobs []job
	)
	for key, q := range c.queries {
		if !filter.Match(key) {
			continue
		}
		q.gen++
		q.state.Stale = true
		if q.loader != nil {
			q.state.Fetching = true
			jobs = append(jobs, job{key, q.gen, q.loader})
		}
		keys = append(keys, key)
	}
	c.wg.Add(len(jobs))
	notes := c.collect(keys)
	c.mu.Unlock()

	c.log.Debug("invalidate", "filter", filter.String(), "queries", len(keys), "refetches", len(jobs))
	c.deliver(notes)

	for _, j := range jobs {
		go c.refetch(j.key, j.gen, j.loader)
	}
}

func (c *Cache) refetch(key Key, gen uint64, loader Loader) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.RequestTimeout)
	defer cancel()

	res, err := loader(ctx)
	if err != nil {
		c.log.Warn("refetch failed", "key", key.String(), "error", err)
	}
	c.apply(key, gen, res, err)
}

// apply stores a load result unless a newer invalidation superseded it
func (c *Cache) apply(key Key, gen uint64, res Result, err error) QueryState {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return QueryState{}
	}
	q := c.query(key)
	if q.gen != gen {
		state := q.state
		c.mu.Unlock()
		c.log.Debug("discard superseded load", "key", key.String(), "gen", gen, "current", q.gen)
		return state
	}

	changed := []Key{key}
	if err != nil {
		q.state.Status = StatusError
		q.state.Err = err
		q.state.Fetching = false
	} else {
		changed = append(changed, c.upsert(res.Entities)...)
		if !res.Owner.IsZero() {
			changed = append(changed, c.prune(res.Owner, res.OwnedKind, res.Entities)...)
		}
		q.refs = append([]model.Ref(nil), res.Refs...)
		q.value = res.Value
		q.owner = res.Owner
		q.state = QueryState{
			Status:    StatusSuccess,
			HasData:   true,
			UpdatedAt: c.opts.Now(),
		}
	}
	state := q.state
	notes := c.collect(changed)
	c.mu.Unlock()

	c.deliver(notes)
	return state
}

// Seed stores res as key's result as if a load had just finished, e.g.
// from a create response. The query's loader is kept.
func (c *Cache) Seed(key Key, res Result) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	gen := c.query(key).gen
	c.mu.Unlock()
	c.apply(key, gen, res, nil)
}

// Put upserts entities and notifies dependent queries
func (c *Cache) Put(entities ...model.Entity) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	notes := c.collect(c.upsert(entities))
	c.mu.Unlock()
	c.deliver(notes)
}

// Update replaces the entity at ref with fn's result. It reports false
// when ref is not cached.
func (c *Cache) Update(ref model.Ref, fn func(model.Entity) model.Entity) bool {
	c.mu.Lock()
	e, ok := c.entities[ref]
	if !ok || c.closed {
		c.mu.Unlock()
		return false
	}
	notes := c.collect(c.upsert([]model.Entity{fn(e)}))
	c.mu.Unlock()
	c.deliver(notes)
	return true
}

// Append upserts e and adds its ref to the end of key's result
func (c *Cache) Append(key Key, e model.Entity) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	q := c.query(key)
	q.refs = append(q.refs, e.Ref())
	q.state.HasData = true
	if q.state.Status == StatusIdle {
		q.state.Status = StatusSuccess
	}
	changed := append([]Key{key}, c.upsert([]model.Entity{e})...)
	notes := c.collect(changed)
	c.mu.Unlock()
	c.deliver(notes)
}

// Remove drops the entity at ref, its children, and its ref from every
// query result
func (c *Cache) Remove(ref model.Ref) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	changed := c.dependents(ref)
	delete(c.entities, ref)
	for r, e := range c.entities {
		if child, ok := e.(model.Child); ok && child.Parent() == ref {
			delete(c.entities, r)
		}
	}
	for _, q := range c.queries {
		q.refs = without(q.refs, ref)
	}
	notes := c.collect(changed)
	c.mu.Unlock()
	c.deliver(notes)
}

// Get returns the cached entity at ref
func (c *Cache) Get(ref model.Ref) (model.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entities[ref]
	return e, ok
}

// Task returns a cached task
func (c *Cache) Task(id uint64) (model.Task, bool) {
	e, ok := c.Get(model.TaskRef(id))
	if !ok {
		return model.Task{}, false
	}
	t, ok := e.(model.Task)
	return t, ok
}

// Step returns a cached step
func (c *Cache) Step(id uint64) (model.TaskStep, bool) {
	e, ok := c.Get(model.StepRef(id))
	if !ok {
		return model.TaskStep{}, false
	}
	s, ok := e.(model.TaskStep)
	return s, ok
}

// Session returns a cached session
func (c *Cache) Session(id uint64) (model.Session, bool) {
	e, ok := c.Get(model.SessionRef(id))
	if !ok {
		return model.Session{}, false
	}
	s, ok := e.(model.Session)
	return s, ok
}

// StepsOf returns the cached steps of a task in execution order
func (c *Cache) StepsOf(taskID uint64) []model.TaskStep {
	c.mu.Lock()
	var steps []model.TaskStep
	for _, e := range c.entities {
		if s, ok := e.(model.TaskStep); ok && s.TaskID == taskID {
			steps = append(steps, s)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].OrderIndex != steps[j].OrderIndex {
			return steps[i].OrderIndex < steps[j].OrderIndex
		}
		return steps[i].ID < steps[j].ID
	})
	return steps
}

// Refs returns a copy of key's result refs
func (c *Cache) Refs(key Key) []model.Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[key]
	if !ok {
		return nil
	}
	return append([]model.Ref(nil), q.refs...)
}

// Resolve returns the cached entities of key's result, in result order,
// skipping refs no longer cached
func (c *Cache) Resolve(key Key) []model.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[key]
	if !ok {
		return nil
	}
	out := make([]model.Entity, 0, len(q.refs))
	for _, r := range q.refs {
		if e, ok := c.entities[r]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Value returns the non-entity result of key, e.g. settings
func (c *Cache) Value(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queries[key]
	if !ok || q.value == nil {
		return nil, false
	}
	return q.value, true
}

// SetValue replaces key's non-entity result, e.g. after saving settings
func (c *Cache) SetValue(key Key, v any) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	q := c.query(key)
	q.value = v
	q.state.HasData = true
	if q.state.Status == StatusIdle {
		q.state.Status = StatusSuccess
	}
	notes := c.collect([]Key{key})
	c.mu.Unlock()
	c.deliver(notes)
}

// State returns key's state; unknown keys are idle
func (c *Cache) State(key Key) QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q, ok := c.queries[key]; ok {
		return q.state
	}
	return QueryState{}
}

func (c *Cache) query(key Key) *query {
	q, ok := c.queries[key]
	if !ok {
		q = &query{}
		c.queries[key] = q
	}
	return q
}

func (c *Cache) fresh(q *query) bool {
	if q.state.Status != StatusSuccess || q.state.Stale {
		return false
	}
	return c.opts.Now().Sub(q.state.UpdatedAt) < c.opts.StaleTime
}

// upsert stores entities and returns the keys of queries depending on them
func (c *Cache) upsert(entities []model.Entity) []Key {
	var changed []Key
	for _, e := range entities {
		if e == nil {
			continue
		}
		c.entities[e.Ref()] = e
		changed = append(changed, c.dependents(e.Ref())...)
	}
	return changed
}

// prune drops children of owner of the given kind that keep is missing
func (c *Cache) prune(owner model.Ref, kind model.Kind, keep []model.Entity) []Key {
	kept := make(map[model.Ref]bool, len(keep))
	for _, e := range keep {
		kept[e.Ref()] = true
	}
	var changed []Key
	for r, e := range c.entities {
		if r.Kind != kind || kept[r] {
			continue
		}
		if child, ok := e.(model.Child); ok && child.Parent() == owner {
			changed = append(changed, c.dependents(r)...)
			delete(c.entities, r)
			for _, q := range c.queries {
				q.refs = without(q.refs, r)
			}
		}
	}
	return changed
}

// dependents lists queries whose view includes ref: through their result
// refs, through their owner, or through ref's parent
func (c *Cache) dependents(ref model.Ref) []Key {
	var parent model.Ref
	if e, ok := c.entities[ref]; ok {
		if child, ok := e.(model.Child); ok {
			parent = child.Parent()
		}
	}
	var keys []Key
	for key, q := range c.queries {
		if (!q.owner.IsZero() && (q.owner == ref || q.owner == parent)) ||
			contains(q.refs, ref) || (!parent.IsZero() && contains(q.refs, parent)) {
			keys = append(keys, key)
		}
	}
	return keys
}

type note struct {
	fn     Listener
	change Change
}

// collect pairs each changed key with its matching subscribers. Called
// with c.mu held.
func (c *Cache) collect(keys []Key) []note {
	seen := make(map[Key]bool, len(keys))
	var notes []note
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		state := QueryState{}
		if q, ok := c.queries[key]; ok {
			state = q.state
		}
		for _, sub := range c.subs {
			if sub.key.Match(key) {
				notes = append(notes, note{fn: sub.fn, change: Change{Key: key, State: state}})
			}
		}
	}
	return notes
}

func (c *Cache) deliver(notes []note) {
	for _, n := range notes {
		n.fn(n.change)
	}
}

func contains(refs []model.Ref, ref model.Ref) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func without(refs []model.Ref, ref model.Ref) []model.Ref {
	out := refs[:0]
	for _, r := range refs {
		if r != ref {
			out = append(out, r)
		}
	}
	return out
}
