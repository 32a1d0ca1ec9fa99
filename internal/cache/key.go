package cache

import "fmt"

// Scope names a family of queries
type Scope string

const (
	ScopeTasks           Scope = "tasks"
	ScopeCompletedTasks  Scope = "completedTasks"
	ScopeTaskDetail      Scope = "taskDetail"
	ScopeGlobalSession   Scope = "globalSession"
	ScopeSessionMessages Scope = "sessionMessages"
	ScopeLLMSettings     Scope = "llmSettings"
)

// Key identifies one query. A Key with a zero ID also works as a filter
// matching every query of its scope.
type Key struct {
	Scope Scope
	ID    uint64
}

var (
	Tasks          = Key{Scope: ScopeTasks}
	CompletedTasks = Key{Scope: ScopeCompletedTasks}
	GlobalSession  = Key{Scope: ScopeGlobalSession}
	LLMSettings    = Key{Scope: ScopeLLMSettings}
)

// TaskDetail is the query for one task with its steps and session
func TaskDetail(taskID uint64) Key {
	return Key{Scope: ScopeTaskDetail, ID: taskID}
}

// SessionMessages is the transcript query of one session
func SessionMessages(sessionID uint64) Key {
	return Key{Scope: ScopeSessionMessages, ID: sessionID}
}

// All matches every query of scope
func All(scope Scope) Key {
	return Key{Scope: scope}
}

// Match reports whether k, used as a filter, selects other
func (k Key) Match(other Key) bool {
	return k.Scope == other.Scope && (k.ID == 0 || k.ID == other.ID)
}

func (k Key) String() string {
	if k.ID == 0 {
		return string(k.Scope)
	}
	return fmt.Sprintf("%s/%d", k.Scope, k.ID)
}
