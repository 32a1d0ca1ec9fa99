package cache

import (
	"time"

	"github.com/qisumi/qisumi-tui/internal/model"
)

// QuerySnapshot is the persisted part of one query
type QuerySnapshot struct {
	Key       Key
	Refs      []model.Ref
	Owner     model.Ref
	UpdatedAt time.Time
}

// Snapshot is a copy of the cache's entities and successful queries,
// used to warm-start the next session
type Snapshot struct {
	Entities []model.Entity
	Queries  []QuerySnapshot
}

// Snapshot copies the current contents. Queries that never loaded are
// left out, as are non-entity values.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var snap Snapshot
	for _, e := range c.entities {
		snap.Entities = append(snap.Entities, e)
	}
	for key, q := range c.queries {
		if !q.state.HasData || q.value != nil {
			continue
		}
		snap.Queries = append(snap.Queries, QuerySnapshot{
			Key:       key,
			Refs:      append([]model.Ref(nil), q.refs...),
			Owner:     q.owner,
			UpdatedAt: q.state.UpdatedAt,
		})
	}
	return snap
}

// Restore loads a snapshot. Restored queries are stale: views show the
// data immediately and the first Fetch refetches it.
func (c *Cache) Restore(snap Snapshot) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	for _, e := range snap.Entities {
		c.entities[e.Ref()] = e
	}
	keys := make([]Key, 0, len(snap.Queries))
	for _, qs := range snap.Queries {
		q := c.query(qs.Key)
		q.refs = append([]model.Ref(nil), qs.Refs...)
		q.owner = qs.Owner
		q.state = QueryState{
			Status:    StatusSuccess,
			Stale:     true,
			HasData:   true,
			UpdatedAt: qs.UpdatedAt,
		}
		keys = append(keys, qs.Key)
	}
	notes := c.collect(keys)
	c.mu.Unlock()

	c.log.Info("restored snapshot", "entities", len(snap.Entities), "queries", len(snap.Queries))
	c.deliver(notes)
}
