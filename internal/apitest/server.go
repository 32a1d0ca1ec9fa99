// Package apitest runs an in-memory qisumi backend over httptest for
// tests of the client stack.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/qisumi/qisumi-tui/internal/model"
)

const (
	// Password is accepted for every seeded account
	Password = "secret123"

	signingKey = "apitest-signing-key"
)

// Call is one request the server received
type Call struct {
	Method string
	Path   string
	Body   map[string]any
}

type failure struct {
	status int
	msg    string
}

// Server is a fake backend. All exported methods are safe to call while
// requests are in flight.
type Server struct {
	srv *httptest.Server

	// Reply produces the assistant's answer to a chat message. It runs
	// outside the server lock, so it may call MutateTask.
	Reply func(sessionID uint64, content string) (string, []model.TaskPatchHint)

	mu       sync.Mutex
	token    string
	users    map[string]uint64
	tasks    map[uint64]model.Task
	steps    map[uint64]model.TaskStep
	sessions map[uint64]model.Session
	messages map[uint64]model.Message
	settings *model.LLMSettings
	nextID   uint64
	calls    []Call
	failures map[string][]failure
	holds    map[string]chan struct{}
	now      func() time.Time
}

// New starts a server that is closed when the test ends
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		users:    map[string]uint64{"me@example.com": 1},
		tasks:    make(map[uint64]model.Task),
		steps:    make(map[uint64]model.TaskStep),
		sessions: make(map[uint64]model.Session),
		messages: make(map[uint64]model.Message),
		failures: make(map[string][]failure),
		holds:    make(map[string]chan struct{}),
		nextID:   100,
		now:      time.Now,
	}
	s.token = MintToken(1, 7*24*time.Hour)
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the API root to hand to api.NewClient
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Token is a bearer credential the server accepts
func (s *Server) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Close stops the server early, e.g. to simulate the backend going away
func (s *Server) Close() {
	s.srv.Close()
}

// MintToken signs a token of the shape the backend issues
func MintToken(userID uint64, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		panic(err)
	}
	return token
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.login)
		r.Post("/auth/register", s.register)

		r.Group(func(r chi.Router) {
			r.Use(s.bearerAuth)
			r.Use(s.injectFailures)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.listTasks)
				r.Post("/", s.createTask)
				r.Get("/completed", s.listCompleted)
				r.Post("/from-text", s.createFromText)
				r.Get("/{id}", s.getTask)
				r.Patch("/{id}", s.updateTask)
				r.Delete("/{id}", s.deleteTask)
				r.Post("/{id}/steps", s.addStep)
				r.Patch("/{id}/steps/{stepID}", s.updateStep)
				r.Delete("/{id}/steps/{stepID}", s.deleteStep)
			})

			r.Get("/sessions/global", s.globalSession)
			r.Get("/sessions/{id}/messages", s.listMessages)
			r.Post("/sessions/{id}/messages", s.postMessage)
			r.Delete("/sessions/{id}/messages", s.clearMessages)

			r.Get("/settings/llm", s.getSettings)
			r.Post("/settings/llm", s.saveSettings)
			r.Delete("/settings/llm", s.deleteSettings)
		})
	})
	return r
}

// record keeps every request with its decoded JSON body
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			raw, err := io.ReadAll(r.Body)
			if err == nil && len(raw) > 0 {
				_ = json.Unmarshal(raw, &body)
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: strings.TrimPrefix(r.URL.Path, "/api"), Body: body})
		s.mu.Unlock()

		w.Header().Set("X-Request-ID", uuid.New().String()[:8])
		next.ServeHTTP(w, r)
	})
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token() {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// injectFailures answers with a queued failure or waits on a hold
func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")

		s.mu.Lock()
		hold := s.holds[route]
		var f *failure
		if queue := s.failures[route]; len(queue) > 0 {
			f = &queue[0]
			s.failures[route] = queue[1:]
		}
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if f != nil {
			writeError(w, f.status, f.msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next request to "METHOD /path" answer with status
func (s *Server) FailNext(method, path string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	route := method + " " + path
	s.failures[route] = append(s.failures[route], failure{status: status, msg: msg})
}

// Hold blocks requests to "METHOD /path" until the returned func is called
func (s *Server) Hold(method, path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[method+" "+path] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, method+" "+path)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns the recorded requests matching method and path. An empty
// method or path matches anything.
func (s *Server) Calls(method, path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if (method == "" || c.Method == method) && (path == "" || c.Path == path) {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded requests
func (s *Server) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// SeedTask stores t and its steps, assigning ids where missing
func (s *Server) SeedTask(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if t.ID == 0 {
		t.ID = s.id()
	}
	if t.UserID == 0 {
		t.UserID = 1
	}
	if t.Status == "" {
		t.Status = model.TaskStatusTodo
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	for i, step := range t.Steps {
		if step.ID == 0 {
			step.ID = s.id()
		}
		step.TaskID = t.ID
		if step.OrderIndex == 0 {
			step.OrderIndex = i + 1
		}
		if step.Status == "" {
			step.Status = model.StepStatusTodo
		}
		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
			step.UpdatedAt = now
		}
		s.steps[step.ID] = step
		t.Steps[i] = step
	}
	stored := t
	stored.Steps = nil
	s.tasks[t.ID] = stored
	return t
}

// Task returns the stored task with its steps
func (s *Server) Task(id uint64) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	t.Steps = s.stepsOf(id)
	return t, true
}

// Step returns a stored step
func (s *Server) Step(id uint64) (model.TaskStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[id]
	return st, ok
}

// MutateTask edits a task server-side, as another client would
func (s *Server) MutateTask(id uint64, fn func(*model.Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		fn(&t)
		t.UpdatedAt = s.now()
		s.tasks[id] = t
	}
}

// RemoveTask deletes a task server-side
func (s *Server) RemoveTask(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeTask(id)
}

func (s *Server) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *Server) stepsOf(taskID uint64) []model.TaskStep {
	var steps []model.TaskStep
	for _, st := range s.steps {
		if st.TaskID == taskID {
			steps = append(steps, st)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].OrderIndex < steps[j].OrderIndex })
	return steps
}

func (s *Server) removeTask(id uint64) {
	delete(s.tasks, id)
	for sid, st := range s.steps {
		if st.TaskID == id {
			delete(s.steps, sid)
		}
	}
}

// taskSession returns the task's session, creating it on first use
func (s *Server) taskSession(taskID uint64) model.Session {
	for _, sess := range s.sessions {
		if sess.TaskID != nil && *sess.TaskID == taskID {
			return sess
		}
	}
	id := taskID
	sess := model.Session{ID: s.id(), UserID: 1, TaskID: &id, Type: model.SessionTypeTask, CreatedAt: s.now()}
	s.sessions[sess.ID] = sess
	return sess
}

func (s *Server) messagesOf(sessionID uint64) []model.Message {
	msgs := []model.Message{}
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs
}
