package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/store"
)

// EventKind tags an inbound realtime frame.
type EventKind string

const (
	KindChatMessage   EventKind = "chat_message"
	KindChat          EventKind = "chat"
	KindTodo          EventKind = "todo"
	KindEmail         EventKind = "email"
	KindToolExecution EventKind = "tool_execution"
	KindUserTask      EventKind = "user_task"
)

var ErrMalformedPayload = errors.New("malformed event payload")

// InboundEvent is one received frame, consumed synchronously by Route.
type InboundEvent struct {
	Kind    EventKind
	Payload json.RawMessage
}

// Recorder receives routing outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordEventRouted(kind string)
	RecordEventDropped(kind, reason string)
}

type handler func(raw json.RawMessage) (reduce func(store.State) store.State, id string, err error)

// Router dispatches each event to exactly one reducer by kind.
type Router struct {
	store    *store.Store
	handlers map[EventKind]handler
	logger   *slog.Logger
	recorder Recorder
}

func NewRouter(s *store.Store, logger *slog.Logger, recorder Recorder) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:    s,
		logger:   logger,
		recorder: recorder,
		handlers: map[EventKind]handler{
			KindChatMessage:   decodeInto("chatMessage", ChatMessage),
			KindChat:          decodeInto("chat", ChatMeta),
			KindTodo:          decodeInto("todo", Todo),
			KindEmail:         decodeInto("email", Email),
			KindToolExecution: decodeInto("toolExecution", ToolExecution),
			KindUserTask:      decodeInto("userTask", UserTask),
		},
	}
}

// Route applies ev to the store. Unknown kinds are logged and dropped without
// error; the channel carries event types newer clients understand.
func (r *Router) Route(ev InboundEvent) error {
	h, ok := r.handlers[ev.Kind]
	if !ok {
		r.logger.Debug("dropping event of unknown kind", "kind", ev.Kind)
		r.dropped(ev.Kind, "unknown_kind")
		return nil
	}

	reduce, id, err := h(ev.Payload)
	if err != nil {
		r.logger.Warn("dropping malformed event", "kind", ev.Kind, "error", err)
		r.dropped(ev.Kind, "malformed")
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, ev.Kind, err)
	}

	r.store.Apply(reduce)
	r.logger.Debug("event reconciled", "kind", ev.Kind, "id", id)
	if r.recorder != nil {
		r.recorder.RecordEventRouted(string(ev.Kind))
	}
	return nil
}

// Handles reports whether kind has a reducer.
func (r *Router) Handles(kind EventKind) bool {
	_, ok := r.handlers[kind]
	return ok
}

func (r *Router) dropped(kind EventKind, reason string) {
	if r.recorder != nil {
		r.recorder.RecordEventDropped(string(kind), reason)
	}
}

// decodeInto builds a handler that reads data.<field> as T and applies reduce.
func decodeInto[T interface{ Key() string }](field string, reduce func(store.State, T) store.State) handler {
	return func(raw json.RawMessage) (func(store.State) store.State, string, error) {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, "", fmt.Errorf("decode envelope: %w", err)
		}
		body, ok := envelope[field]
		if !ok || string(body) == "null" {
			return nil, "", fmt.Errorf("missing %q", field)
		}

		var entity T
		if err := json.Unmarshal(body, &entity); err != nil {
			return nil, "", fmt.Errorf("decode %s: %w", field, err)
		}
		if entity.Key() == "" {
			return nil, "", fmt.Errorf("%s has no id", field)
		}
		return func(s store.State) store.State { return reduce(s, entity) }, entity.Key(), nil
	}
}
