package autosave

import (
	"sync"
	"testing"
	"time"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/logging"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/timers"
)

type memSink struct {
	mu     sync.Mutex
	saves  []string
	drafts map[string]string
}

func newMemSink() *memSink { return &memSink{drafts: map[string]string{}} }

func (m *memSink) SaveDraft(id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, id+"="+body)
	m.drafts[id] = body
	return nil
}

func (m *memSink) DeleteDraft(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

func newTestSaver() (*Saver, *memSink, *timers.ManualClock) {
	clock := timers.NewManualClock(time.Unix(0, 0))
	sink := newMemSink()
	return New(timers.New(clock), sink, time.Second, logging.Discard()), sink, clock
}

func TestSaver_TrailingDebounce(t *testing.T) {
	s, sink, clock := newTestSaver()

	s.Edit("e1", "h")
	clock.Advance(600 * time.Millisecond)
	s.Edit("e1", "he")
	clock.Advance(600 * time.Millisecond)
	s.Edit("e1", "hello")

	if len(sink.saves) != 0 {
		t.Fatalf("saved during typing: %v", sink.saves)
	}
	clock.Advance(time.Second)
	if len(sink.saves) != 1 || sink.saves[0] != "e1=hello" {
		t.Fatalf("expected single save of last body, got %v", sink.saves)
	}
	if s.Pending("e1") {
		t.Error("nothing should be pending after save")
	}
}

func TestSaver_DraftsDebounceIndependently(t *testing.T) {
	s, sink, clock := newTestSaver()
	s.Edit("a", "1")
	clock.Advance(500 * time.Millisecond)
	s.Edit("b", "2")
	clock.Advance(500 * time.Millisecond)

	if len(sink.saves) != 1 || sink.saves[0] != "a=1" {
		t.Fatalf("expected a saved first, got %v", sink.saves)
	}
	clock.Advance(500 * time.Millisecond)
	if len(sink.saves) != 2 {
		t.Fatalf("expected b saved, got %v", sink.saves)
	}
}

func TestSaver_DiscardCancels(t *testing.T) {
	s, sink, clock := newTestSaver()
	sink.SaveDraft("a", "old")
	sink.saves = nil

	s.Edit("a", "new")
	if err := s.Discard("a"); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	clock.Advance(5 * time.Second)
	if len(sink.saves) != 0 {
		t.Fatalf("discarded draft was saved: %v", sink.saves)
	}
	if _, ok := sink.drafts["a"]; ok {
		t.Error("stored draft should be deleted")
	}
}

func TestSaver_Flush(t *testing.T) {
	s, sink, clock := newTestSaver()
	s.Edit("a", "1")
	s.Edit("b", "2")
	s.Flush()

	if len(sink.saves) != 2 {
		t.Fatalf("expected both drafts flushed, got %v", sink.saves)
	}
	clock.Advance(5 * time.Second)
	if len(sink.saves) != 2 {
		t.Fatalf("flushed drafts saved again: %v", sink.saves)
	}
}
