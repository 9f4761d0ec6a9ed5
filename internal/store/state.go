package store

import "github.com/dearflow-inc/flora-mobile-sub000/internal/models"

// State is the full set of client-side entity caches. It is a value: reducers
// take a State and return the next one.
type State struct {
	ChatMessages        Collection[models.ChatMessage]
	Chats               Collection[models.Chat]
	Todos               Collection[models.Todo]
	Emails              Collection[models.Email]
	ToolExecutions      Collection[models.ToolExecution]
	DraftToolExecutions Collection[models.ToolExecution]
	UserTasks           Collection[models.UserTask]

	// RemovedUserTasks holds tasks hidden by an optimistic mutation that the
	// server has not confirmed yet. An id is never in both UserTasks and here.
	RemovedUserTasks Collection[models.UserTask]

	CurrentChat          *models.Chat
	CurrentTodo          *models.Todo
	CurrentEmail         *models.Email
	CurrentToolExecution *models.ToolExecution
	SelectedUserTask     *models.UserTask
}

// Counts summarises collection sizes for status output and metrics.
type Counts struct {
	ChatMessages   int `json:"chat_messages"`
	Chats          int `json:"chats"`
	Todos          int `json:"todos"`
	Emails         int `json:"emails"`
	ToolExecutions int `json:"tool_executions"`
	Drafts         int `json:"drafts"`
	UserTasks      int `json:"user_tasks"`
	PendingRemoval int `json:"pending_removal"`
}

func (s State) Counts() Counts {
	return Counts{
		ChatMessages:   s.ChatMessages.Len(),
		Chats:          s.Chats.Len(),
		Todos:          s.Todos.Len(),
		Emails:         s.Emails.Len(),
		ToolExecutions: s.ToolExecutions.Len(),
		Drafts:         s.DraftToolExecutions.Len(),
		UserTasks:      s.UserTasks.Len(),
		PendingRemoval: s.RemovedUserTasks.Len(),
	}
}
