// Package edit holds the per-field edit state machine shared by every
// inline editor. A controller moves Viewing → Editing → Submitting and
// back; it never talks to the network itself.
package edit

import (
	"context"
	"errors"
	"strings"
)

// ErrNotEditing is returned by Change outside the Editing phase
var ErrNotEditing = errors.New("field is not being edited")

// Phase of a controller
type Phase int

const (
	Viewing Phase = iota
	Editing
	Submitting
)

func (p Phase) String() string {
	switch p {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	default:
		return "viewing"
	}
}

// Outcome of a Commit
type Outcome int

const (
	// Idle: nothing was being edited
	Idle Outcome = iota
	// Unchanged: the draft equals the baseline; back to Viewing without a request
	Unchanged
	// Invalid: validation failed; still Editing
	Invalid
	// Submit: the caller must send the returned value and call Resolve
	Submit
	// Busy: a submission is already in flight
	Busy
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Invalid:
		return "invalid"
	case Submit:
		return "submit"
	case Busy:
		return "busy"
	default:
		return "idle"
	}
}

// ValidationError is a client-side field error. It never reaches the
// backend.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

// RequireText rejects empty and whitespace-only input
func RequireText(field string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: field, Msg: field + " required"}
		}
		return nil
	}
}

// Controller tracks one editable field. It is not safe for concurrent
// use; the owning view drives it from a single goroutine.
type Controller[T any] struct {
	name     string
	validate func(T) error
	equal    func(a, b T) bool

	phase    Phase
	baseline T
	draft    T
	err      error
}

// New creates a controller comparing values with ==. validate may be nil.
func New[T comparable](name string, validate func(T) error) *Controller[T] {
	return NewWithEqual(name, validate, func(a, b T) bool { return a == b })
}

// NewWithEqual creates a controller with a custom equality, for values
// such as durations where different drafts store the same thing
func NewWithEqual[T any](name string, validate func(T) error, equal func(a, b T) bool) *Controller[T] {
	return &Controller[T]{name: name, validate: validate, equal: equal}
}

func (c *Controller[T]) Name() string { return c.name }
func (c *Controller[T]) Phase() Phase { return c.phase }
func (c *Controller[T]) Editing() bool { return c.phase == Editing }
func (c *Controller[T]) Busy() bool { return c.phase == Submitting }
func (c *Controller[T]) Draft() T { return c.draft }
func (c *Controller[T]) Baseline() T { return c.baseline }
func (c *Controller[T]) Err() error { return c.err }
func (c *Controller[T]) Dirty() bool { return c.phase != Viewing && !c.equal(c.draft, c.baseline) }

// Value is what the field displays: the draft while editing, the
// committed baseline otherwise
func (c *Controller[T]) Value() T {
	if c.phase == Editing {
		return c.draft
	}
	return c.baseline
}

// Begin starts editing from current. It reports false when already
// editing or submitting.
func (c *Controller[T]) Begin(current T) bool {
	if c.phase != Viewing {
		return false
	}
	c.baseline = current
	c.draft = current
	c.err = nil
	c.phase = Editing
	return true
}

// Change replaces the draft and clears any field error
func (c *Controller[T]) Change(v T) error {
	if c.phase != Editing {
		return ErrNotEditing
	}
	c.draft = v
	c.err = nil
	return nil
}

// Commit decides what to do with the draft. Only Submit moves the
// controller to Submitting; the caller then owes a Resolve.
func (c *Controller[T]) Commit() (T, Outcome) {
	var zero T
	switch c.phase {
	case Viewing:
		return zero, Idle
	case Submitting:
		return zero, Busy
	}
	if c.equal(c.draft, c.baseline) {
		c.phase = Viewing
		c.err = nil
		return zero, Unchanged
	}
	if c.validate != nil {
		if err := c.validate(c.draft); err != nil {
			c.err = err
			return zero, Invalid
		}
	}
	c.err = nil
	c.phase = Submitting
	return c.draft, Submit
}

// Resolve ends a submission. On success the draft becomes the baseline;
// on failure the controller returns to Editing with the draft intact.
func (c *Controller[T]) Resolve(err error) {
	if c.phase != Submitting {
		return
	}
	if err != nil {
		c.err = err
		c.phase = Editing
		return
	}
	c.baseline = c.draft
	c.err = nil
	c.phase = Viewing
}

// Cancel discards the draft. An in-flight submission cannot be cancelled.
func (c *Controller[T]) Cancel() bool {
	if c.phase != Editing {
		return false
	}
	c.draft = c.baseline
	c.err = nil
	c.phase = Viewing
	return true
}

// Sync takes a refreshed value from the cache. Drafts are never touched.
func (c *Controller[T]) Sync(current T) {
	if c.phase != Viewing {
		return
	}
	c.baseline = current
	c.draft = current
}

// Run commits and, when there is something to send, calls submit and
// resolves with its result. The returned error is the validation or
// submit failure.
func (c *Controller[T]) Run(ctx context.Context, submit func(context.Context, T) error) (Outcome, error) {
	v, out := c.Commit()
	switch out {
	case Invalid:
		return out, c.err
	case Submit:
	default:
		return out, nil
	}
	err := submit(ctx, v)
	c.Resolve(err)
	return out, err
}
