// Package reconcile merges authoritative entities pushed by the server into
// the local caches. Every reducer is a pure (State, entity) -> State function.
package reconcile

import (
	"github.com/dearflow-inc/flora-mobile-sub000/internal/models"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/store"
)

// ChatMessage appends a message to the open thread, deduplicated by id.
// Messages for another chat are ignored while a chat is open.
func ChatMessage(s store.State, m models.ChatMessage) store.State {
	if s.CurrentChat != nil && s.CurrentChat.ID != m.ChatID {
		return s
	}
	s.ChatMessages = s.ChatMessages.Upsert(m, store.Back)
	return s
}

func ChatMeta(s store.State, c models.Chat) store.State {
	s.Chats = s.Chats.Upsert(c, store.Front)
	if s.CurrentChat != nil && s.CurrentChat.ID == c.ID {
		s.CurrentChat = &c
	}
	return s
}

func Todo(s store.State, t models.Todo) store.State {
	if t.Terminal() {
		s.Todos = s.Todos.Remove(t.ID)
		if s.CurrentTodo != nil && s.CurrentTodo.ID == t.ID {
			s.CurrentTodo = nil
		}
		return s
	}
	s.Todos = s.Todos.Upsert(t, store.Front)
	if s.CurrentTodo != nil && s.CurrentTodo.ID == t.ID {
		s.CurrentTodo = &t
	}
	return s
}

func Email(s store.State, e models.Email) store.State {
	s.Emails = s.Emails.Upsert(e, store.Front)
	if s.CurrentEmail != nil && s.CurrentEmail.ID == e.ID {
		s.CurrentEmail = &e
	}
	return s
}

// ToolExecution upserts into the full list and moves the entity into or out
// of the drafts view depending on its current draft state.
func ToolExecution(s store.State, x models.ToolExecution) store.State {
	s.ToolExecutions = s.ToolExecutions.Upsert(x, store.Front)
	if x.IsDraft() {
		s.DraftToolExecutions = s.DraftToolExecutions.Upsert(x, store.Front)
	} else {
		s.DraftToolExecutions = s.DraftToolExecutions.Remove(x.ID)
	}
	if s.CurrentToolExecution != nil && s.CurrentToolExecution.ID == x.ID {
		s.CurrentToolExecution = &x
	}
	return s
}

// UserTask upserts or removes a task. A task hidden by an in-flight
// optimistic mutation is updated in the shadow buffer instead, so it does
// not reappear before the server answers.
func UserTask(s store.State, u models.UserTask) store.State {
	if s.RemovedUserTasks.Has(u.ID) {
		if u.Terminal() {
			s.RemovedUserTasks = s.RemovedUserTasks.Remove(u.ID)
		} else {
			s.RemovedUserTasks = s.RemovedUserTasks.Upsert(u, store.Front)
		}
		return s
	}

	if u.Terminal() {
		s.UserTasks = s.UserTasks.Remove(u.ID)
		if s.SelectedUserTask != nil && s.SelectedUserTask.ID == u.ID {
			s.SelectedUserTask = nil
		}
		return s
	}
	s.UserTasks = s.UserTasks.Upsert(u, store.Front)
	if s.SelectedUserTask != nil && s.SelectedUserTask.ID == u.ID {
		s.SelectedUserTask = &u
	}
	return s
}
