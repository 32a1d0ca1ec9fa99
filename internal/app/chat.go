package app

import (
	"context"
	"fmt"

	"github.com/qisumi/qisumi-tui/internal/cache"
	"github.com/qisumi/qisumi-tui/internal/model"
	"github.com/qisumi/qisumi-tui/internal/reconcile"
)

// ChatSession returns the id of the chat bound to taskID, or of the
// global assistant chat when taskID is 0
func (s *Session) ChatSession(ctx context.Context, taskID uint64) (uint64, error) {
	if taskID == 0 {
		if _, err := s.Tracker.Fetch(ctx, cache.GlobalSession); err != nil {
			return 0, err
		}
		for _, ref := range s.Cache.Refs(cache.GlobalSession) {
			if ref.Kind == model.KindSession {
				return ref.ID, nil
			}
		}
		return 0, fmt.Errorf("no global session")
	}

	if _, err := s.Tracker.Fetch(ctx, cache.TaskDetail(taskID)); err != nil {
		return 0, err
	}
	view := reconcile.TaskDetail(s.Cache, taskID)
	if view.Session == nil {
		return 0, fmt.Errorf("task %d has no chat session", taskID)
	}
	return view.Session.ID, nil
}

// Messages returns the cached transcript of a chat in server order, with
// pending messages where they were appended
func (s *Session) Messages(sessionID uint64) []model.Message {
	var msgs []model.Message
	for _, e := range s.Cache.Resolve(cache.SessionMessages(sessionID)) {
		if m, ok := e.(model.Message); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs
}
