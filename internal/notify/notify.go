// Package notify collects the short-lived toasts shown after mutations
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level of a toast
type Level string

const (
	Success Level = "success"
	Error   Level = "error"
	Info    Level = "info"
)

// Toast is one notification
type Toast struct {
	ID        string
	Level     Level
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Notifier receives toasts. The dispatcher emits exactly one per
// mutation attempt.
type Notifier interface {
	Notify(level Level, msg string) Toast
}

// Center keeps toasts until they expire. Safe for concurrent use.
type Center struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	toasts []Toast
	hook   func(Toast)
}

// NewCenter creates a center whose toasts live for ttl
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Center{ttl: ttl, now: time.Now}
}

// OnNotify registers fn to be called after every toast
func (c *Center) OnNotify(fn func(Toast)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *Center) Notify(level Level, msg string) Toast {
	now := c.now()
	t := Toast{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.mu.Lock()
	c.toasts = append(c.toasts, t)
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return t
}

// Active returns the toasts still visible at now, oldest first
func (c *Center) Active(now time.Time) []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Toast
	for _, t := range c.toasts {
		if now.Before(t.ExpiresAt) {
			out = append(out, t)
		}
	}
	return out
}

// Expire drops toasts that are no longer visible and reports how many
// remain
func (c *Center) Expire(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.toasts[:0]
	for _, t := range c.toasts {
		if now.Before(t.ExpiresAt) {
			kept = append(kept, t)
		}
	}
	c.toasts = kept
	return len(kept)
}

// Dismiss removes one toast
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.toasts {
		if t.ID == id {
			c.toasts = append(c.toasts[:i], c.toasts[i+1:]...)
			return
		}
	}
}

// All returns every toast emitted and not yet expired or dismissed
func (c *Center) All() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Toast(nil), c.toasts...)
}

// Recorder is a Notifier that keeps every toast; used by tests and the
// CLI, which prints them
type Recorder struct {
	mu     sync.Mutex
	Toasts []Toast
}

func (r *Recorder) Notify(level Level, msg string) Toast {
	t := Toast{ID: uuid.New().String(), Level: level, Message: msg, CreatedAt: time.Now()}
	r.mu.Lock()
	r.Toasts = append(r.Toasts, t)
	r.mu.Unlock()
	return t
}

// Count returns how many toasts of level were recorded
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.Toasts {
		if t.Level == level {
			n++
		}
	}
	return n
}

// Last returns the most recent toast
func (r *Recorder) Last() (Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Toasts) == 0 {
		return Toast{}, false
	}
	return r.Toasts[len(r.Toasts)-1], true
}
