package model

import (
	"fmt"
	"time"
)

// Kind names an entity type held by the cache
type Kind string

const (
	KindTask    Kind = "task"
	KindStep    Kind = "step"
	KindSession Kind = "session"
	KindMessage Kind = "message"
)

// Ref identifies one entity by type and id
type Ref struct {
	Kind Kind
	ID   uint64
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// IsZero reports whether the ref points at nothing
func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

// Entity is a record with a stable identity
type Entity interface {
	Ref() Ref
}

// Child is an entity owned by another entity (a step by its task,
// a message by its session)
type Child interface {
	Entity
	Parent() Ref
}

// Patch is a partial update of one entity. Only the fields it carries
// are sent to the backend and merged into the cached record.
type Patch interface {
	Target() Ref
	// Apply merges the patch into e and returns the updated copy
	Apply(e Entity, now time.Time) Entity
	// Fields lists the wire names of the fields the patch carries
	Fields() []string
	Empty() bool
}
