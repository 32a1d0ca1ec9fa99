// Package fields describes the editable attributes of tasks and steps and
// binds edit controllers to cached entities.
package fields

import (
	"context"

	"github.com/qisumi/qisumi-tui/internal/edit"
	"github.com/qisumi/qisumi-tui/internal/model"
)

// Attr describes one editable attribute of entity type E with draft
// type T
type Attr[E model.Entity, T any] struct {
	Name     string
	Label    string
	Get      func(E) T
	Validate func(T) error
	Equal    func(a, b T) bool
	// Patch builds the one-field patch carrying v
	Patch func(e E, v T) model.Patch
}

func equal[T comparable](a, b T) bool { return a == b }

// Editor is the edit controller of one attribute of one entity
type Editor[E model.Entity, T any] struct {
	attr   Attr[E, T]
	ctl    *edit.Controller[T]
	entity E
}

// NewEditor binds attr to the cached entity e
func NewEditor[E model.Entity, T any](attr Attr[E, T], e E) *Editor[E, T] {
	ed := &Editor[E, T]{
		attr:   attr,
		ctl:    edit.NewWithEqual(attr.Name, attr.Validate, attr.Equal),
		entity: e,
	}
	ed.ctl.Sync(attr.Get(e))
	return ed
}

func (ed *Editor[E, T]) Attr() Attr[E, T] { return ed.attr }
func (ed *Editor[E, T]) Controller() *edit.Controller[T] { return ed.ctl }
func (ed *Editor[E, T]) Ref() model.Ref { return ed.entity.Ref() }
func (ed *Editor[E, T]) Phase() edit.Phase { return ed.ctl.Phase() }
func (ed *Editor[E, T]) Value() T { return ed.ctl.Value() }
func (ed *Editor[E, T]) Err() error { return ed.ctl.Err() }

// Begin starts editing from the last confirmed value. Sync and a
// successful Resolve both keep the baseline current.
func (ed *Editor[E, T]) Begin() bool {
	return ed.ctl.Begin(ed.ctl.Baseline())
}

func (ed *Editor[E, T]) Change(v T) error { return ed.ctl.Change(v) }
func (ed *Editor[E, T]) Cancel() bool { return ed.ctl.Cancel() }
func (ed *Editor[E, T]) Resolve(err error) { ed.ctl.Resolve(err) }

// Commit returns the patch to send when the outcome is edit.Submit
func (ed *Editor[E, T]) Commit() (model.Patch, edit.Outcome) {
	v, out := ed.ctl.Commit()
	if out != edit.Submit {
		return nil, out
	}
	return ed.attr.Patch(ed.entity, v), out
}

// Sync takes the refreshed entity from the cache
func (ed *Editor[E, T]) Sync(e E) {
	ed.entity = e
	ed.ctl.Sync(ed.attr.Get(e))
}

// Set runs a whole edit synchronously: begin, change to v, commit and
// submit through send
func (ed *Editor[E, T]) Set(ctx context.Context, v T, send func(context.Context, model.Patch) error) (edit.Outcome, error) {
	if !ed.Begin() {
		return edit.Busy, nil
	}
	if err := ed.Change(v); err != nil {
		return edit.Idle, err
	}
	return ed.ctl.Run(ctx, func(ctx context.Context, v T) error {
		return send(ctx, ed.attr.Patch(ed.entity, v))
	})
}
