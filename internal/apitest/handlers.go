package apitest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/qisumi/qisumi-tui/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func idParam(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	_, known := s.users[req.Email]
	token := s.token
	s.mu.Unlock()
	if !known || req.Password != Password {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil || !strings.Contains(req.Email, "@") || len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "valid email and a password of at least 6 characters required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		writeError(w, http.StatusBadRequest, "email already registered")
		return
	}
	s.users[req.Email] = s.id()
	writeJSON(w, http.StatusCreated, map[string]string{"message": "registered"})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	s.writeTaskList(w, func(t model.Task) bool { return t.Status != model.TaskStatusDone })
}

func (s *Server) listCompleted(w http.ResponseWriter, r *http.Request) {
	s.writeTaskList(w, func(t model.Task) bool { return t.Status == model.TaskStatusDone })
}

func (s *Server) writeTaskList(w http.ResponseWriter, keep func(model.Task) bool) {
	s.mu.Lock()
	tasks := []model.Task{}
	for _, t := range s.tasks {
		if keep(t) {
			t.Steps = s.stepsOf(t.ID)
			tasks = append(tasks, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "total": len(tasks)})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	t.Steps = s.stepsOf(id)
	sess := s.taskSession(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"task":     t,
		"session":  sess,
		"messages": s.messagesOf(sess.ID),
	})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req model.NewTask
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}
	t := s.SeedTask(model.Task{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Priority:     req.Priority,
		IsFocusToday: req.IsFocusToday,
		DueAt:        req.DueAt,
	})
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}

func (s *Server) createFromText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RawText string `json:"raw_text"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.RawText) == "" {
		writeError(w, http.StatusBadRequest, "raw_text required")
		return
	}
	lines := strings.Split(strings.TrimSpace(req.RawText), "\n")
	t := model.Task{Title: strings.TrimSpace(lines[0]), CreatedFrom: req.RawText}
	for _, line := range lines[1:] {
		if line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-")); line != "" {
			t.Steps = append(t.Steps, model.TaskStep{Title: line})
		}
	}
	t = s.SeedTask(t)

	s.mu.Lock()
	sess := s.taskSession(t.ID)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"task": t, "session": sess})
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var patch model.TaskPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}
	if patch.Status != nil && !patch.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	patch.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.tasks[id] = patch.Apply(t, s.now()).(model.Task)
	writeJSON(w, http.StatusOK, map[string]string{"message": "task updated"})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.removeTask(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "task deleted successfully"})
}

func (s *Server) addStep(w http.ResponseWriter, r *http.Request) {
	taskID, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req model.NewStep
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	now := s.now()
	step := model.TaskStep{
		ID:              s.id(),
		TaskID:          taskID,
		OrderIndex:      len(s.stepsOf(taskID)) + 1,
		Title:           req.Title,
		Detail:          req.Detail,
		Status:          model.StepStatusTodo,
		EstimateMinutes: req.EstimateMinutes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.steps[step.ID] = step
	s.touch(taskID)
	writeJSON(w, http.StatusOK, map[string]any{"step": step})
}

func (s *Server) updateStep(w http.ResponseWriter, r *http.Request) {
	taskID, ok1 := idParam(r, "id")
	stepID, ok2 := idParam(r, "stepID")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var patch model.StepPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Status != nil && !patch.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if patch.EstimateMinutes != nil && *patch.EstimateMinutes < 0 {
		writeError(w, http.StatusBadRequest, "estimateMinutes must be non-negative")
		return
	}
	patch.TaskID, patch.StepID = taskID, stepID

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok || st.TaskID != taskID {
		writeError(w, http.StatusNotFound, "step not found")
		return
	}
	s.steps[stepID] = patch.Apply(st, s.now()).(model.TaskStep)
	s.touch(taskID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "step updated"})
}

func (s *Server) deleteStep(w http.ResponseWriter, r *http.Request) {
	taskID, ok1 := idParam(r, "id")
	stepID, ok2 := idParam(r, "stepID")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok || st.TaskID != taskID {
		writeError(w, http.StatusNotFound, "step not found")
		return
	}
	delete(s.steps, stepID)
	// keep orderIndex contiguous
	for i, rest := range s.stepsOf(taskID) {
		rest.OrderIndex = i + 1
		s.steps[rest.ID] = rest
	}
	s.touch(taskID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "step deleted successfully"})
}

func (s *Server) touch(taskID uint64) {
	if t, ok := s.tasks[taskID]; ok {
		t.UpdatedAt = s.now()
		s.tasks[taskID] = t
	}
}

func (s *Server) globalSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Type == model.SessionTypeGlobal {
			writeJSON(w, http.StatusOK, map[string]any{"session": sess})
			return
		}
	}
	sess := model.Session{ID: s.id(), UserID: 1, Type: model.SessionTypeGlobal, CreatedAt: s.now()}
	s.sessions[sess.ID] = sess
	writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sid, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sid]; !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sid, "messages": s.messagesOf(sid)})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sid, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[sid]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	user := model.Message{ID: s.id(), SessionID: sid, Role: model.RoleUser, Content: req.Content, CreatedAt: s.now()}
	s.messages[user.ID] = user
	s.mu.Unlock()

	content, patches := "收到：" + req.Content, []model.TaskPatchHint{}
	if s.Reply != nil {
		content, patches = s.Reply(sid, req.Content)
	}

	agent := model.AgentExecutor
	if sess.Type == model.SessionTypeGlobal {
		agent = model.AgentGlobal
	}
	s.mu.Lock()
	reply := model.Message{ID: s.id(), SessionID: sid, Role: model.RoleAssistant, AgentName: &agent, Content: content, CreatedAt: s.now()}
	s.messages[reply.ID] = reply
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":        sid,
		"assistantMessage": reply,
		"taskPatches":      patches,
	})
}

func (s *Server) clearMessages(w http.ResponseWriter, r *http.Request) {
	sid, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.messages {
		if m.SessionID == sid {
			delete(s.messages, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	out := *s.settings
	out.APIKey = ""
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	var req model.LLMSettings
	if err := decodeJSON(r, &req); err != nil || req.BaseURL == "" || req.Model == "" {
		writeError(w, http.StatusBadRequest, "base_url and model required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.APIKey == "" {
		if s.settings == nil || !s.settings.HasAPIKey {
			writeError(w, http.StatusBadRequest, "API key required on first configuration")
			return
		}
		req.APIKey = s.settings.APIKey
	}
	req.HasAPIKey = true
	s.settings = &req
	out := req
	out.APIKey = ""
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.settings = nil
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "LLM settings deleted"})
}
