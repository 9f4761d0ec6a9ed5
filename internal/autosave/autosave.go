// Package autosave writes drafts after the user stops typing.
package autosave

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/timers"
)

const (
	DefaultDelay = 1500 * time.Millisecond
	keyPrefix    = "autosave:"
)

// Sink persists a draft body.
type Sink interface {
	SaveDraft(id, body string) error
	DeleteDraft(id string) error
}

// Saver is a trailing debounce per draft: each Edit replaces the pending
// save, and only the last body is written.
type Saver struct {
	timers *timers.Timers
	sink   Sink
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]string
}

func New(t *timers.Timers, sink Sink, delay time.Duration, logger *slog.Logger) *Saver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{
		timers:  t,
		sink:    sink,
		delay:   delay,
		logger:  logger,
		pending: make(map[string]string),
	}
}

// Edit records the latest body for id and restarts its debounce.
func (s *Saver) Edit(id, body string) {
	s.mu.Lock()
	s.pending[id] = body
	s.mu.Unlock()

	s.timers.Schedule(keyPrefix+id, s.delay, func() { s.save(id) })
}

// Discard drops a pending save and the stored draft.
func (s *Saver) Discard(id string) error {
	s.timers.Cancel(keyPrefix + id)
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
	return s.sink.DeleteDraft(id)
}

// Flush writes every pending draft now.
func (s *Saver) Flush() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.timers.Cancel(keyPrefix + id)
		s.save(id)
	}
}

// Pending reports whether id has an unsaved edit.
func (s *Saver) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

func (s *Saver) save(id string) {
	s.mu.Lock()
	body, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.sink.SaveDraft(id, body); err != nil {
		s.logger.Error("autosave failed", "draft_id", id, "error", err)
		return
	}
	s.logger.Debug("draft saved", "draft_id", id, "bytes", len(body))
}
