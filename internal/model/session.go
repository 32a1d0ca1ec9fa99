package model

import "time"

// SessionType distinguishes the per-task chat from the global assistant
type SessionType string

const (
	SessionTypeTask   SessionType = "task"
	SessionTypeGlobal SessionType = "global"
)

// Session is a chat thread, either bound to a task or global
type Session struct {
	ID        uint64      `json:"id"`
	UserID    uint64      `json:"userId"`
	TaskID    *uint64     `json:"taskId,omitempty"`
	Type      SessionType `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
}

func (s Session) Ref() Ref { return SessionRef(s.ID) }

func SessionRef(id uint64) Ref { return Ref{Kind: KindSession, ID: id} }

// Role of a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AgentName tags which assistant agent wrote a message
type AgentName string

const (
	AgentExecutor   AgentName = "executor"
	AgentPlanner    AgentName = "planner"
	AgentSummarizer AgentName = "summarizer"
	AgentGlobal     AgentName = "global"
	AgentSystem     AgentName = "system"
)

func (a AgentName) Label() string {
	switch a {
	case AgentExecutor:
		return "小奇（执行）"
	case AgentPlanner:
		return "小奇（规划）"
	case AgentSummarizer:
		return "小奇（总结）"
	case AgentGlobal:
		return "小奇（全局）"
	case AgentSystem:
		return "系统"
	default:
		return "小奇"
	}
}

// Message is one entry of a session transcript
type Message struct {
	ID        uint64     `json:"id"`
	SessionID uint64     `json:"sessionId"`
	Role      Role       `json:"role"`
	AgentName *AgentName `json:"agentName,omitempty"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (m Message) Ref() Ref    { return MessageRef(m.ID) }
func (m Message) Parent() Ref { return SessionRef(m.SessionID) }

func MessageRef(id uint64) Ref { return Ref{Kind: KindMessage, ID: id} }

// Author returns the display name of whoever wrote the message
func (m Message) Author() string {
	switch m.Role {
	case RoleUser:
		return "我"
	case RoleSystem:
		return AgentSystem.Label()
	}
	if m.AgentName != nil {
		return m.AgentName.Label()
	}
	return AgentName("").Label()
}

// TaskPatchHint is an assistant side effect reported with a chat reply.
// The client only needs to know one happened.
type TaskPatchHint struct {
	Kind string `json:"kind"`
}

// LLMSettings is the per-user model configuration. An empty APIKey on
// save keeps the stored key.
type LLMSettings struct {
	BaseURL         string `json:"base_url"`
	APIKey          string `json:"api_key,omitempty"`
	Model           string `json:"model"`
	ThinkingType    string `json:"thinking_type"`
	ReasoningEffort string `json:"reasoning_effort"`
	EnableThinking  bool   `json:"enable_thinking"`
	AssistantName   string `json:"assistant_name"`
	HasAPIKey       bool   `json:"has_api_key,omitempty"`
	IsDefault       bool   `json:"is_default,omitempty"`
}
