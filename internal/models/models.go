// Package models holds the entities the server pushes over the realtime channel.
// The server is the source of truth for every field; the client only keys,
// orders and partitions them.
package models

import "time"

// ChatMessage is one message in a chat thread.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m ChatMessage) Key() string { return m.ID }

// Chat is the metadata of a chat thread.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c Chat) Key() string { return c.ID }

type TodoStatus string

const (
	TodoOpen    TodoStatus = "open"
	TodoDone    TodoStatus = "done"
	TodoDropped TodoStatus = "dropped"
)

type Todo struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    TodoStatus `json:"status"`
	DueAt     *time.Time `json:"dueAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (t Todo) Key() string { return t.ID }

// Terminal reports whether the todo should leave the local caches.
func (t Todo) Terminal() bool { return t.Status == TodoDropped }

type Email struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"threadId"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
	Read       bool      `json:"read"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func (e Email) Key() string { return e.ID }

// ToolExecution is an action the assistant prepared or ran on the user's behalf.
type ToolExecution struct {
	ID                string     `json:"id"`
	Tool              string     `json:"tool"`
	Input             any        `json:"input,omitempty"`
	ExecutedAt        *time.Time `json:"executedAt,omitempty"`
	InternalListeners []string   `json:"internalListeners,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func (x ToolExecution) Key() string { return x.ID }

// IsDraft reports whether the execution still waits for the user: it has not
// run and nothing internal is subscribed to it.
func (x ToolExecution) IsDraft() bool {
	return x.ExecutedAt == nil && len(x.InternalListeners) == 0
}

type UserTaskStatus string

const (
	UserTaskPending   UserTaskStatus = "pending"
	UserTaskCompleted UserTaskStatus = "completed"
	UserTaskIgnored   UserTaskStatus = "ignored"
	UserTaskSnoozed   UserTaskStatus = "snoozed"
	UserTaskDropped   UserTaskStatus = "dropped"
)

// UserTask is an item in the user's task inbox.
type UserTask struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       UserTaskStatus `json:"status"`
	SnoozedUntil *time.Time     `json:"snoozedUntil,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (u UserTask) Key() string { return u.ID }

func (u UserTask) Terminal() bool { return u.Status == UserTaskDropped }
