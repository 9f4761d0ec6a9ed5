package optimistic

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/logging"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/models"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/reconcile"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/store"
)

// fakeAPI records calls. Each call waits on release (if set) and returns err.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []string
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeAPI) do(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	release, started, err := f.release, f.started, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeAPI) DeleteTask(ctx context.Context, id string) error   { return f.do(ctx, "delete:"+id) }
func (f *fakeAPI) CompleteTask(ctx context.Context, id string) error { return f.do(ctx, "complete:"+id) }
func (f *fakeAPI) IgnoreTask(ctx context.Context, id string) error   { return f.do(ctx, "ignore:"+id) }
func (f *fakeAPI) SnoozeTask(ctx context.Context, id string, until time.Time) error {
	return f.do(ctx, "snooze:"+id)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func seededStore(ids ...string) *store.Store {
	s := store.New()
	s.Apply(func(st store.State) store.State {
		for i := len(ids) - 1; i >= 0; i-- {
			st.UserTasks = st.UserTasks.Upsert(models.UserTask{ID: ids[i], Status: models.UserTaskPending}, store.Front)
		}
		return st
	})
	return s
}

func sortedKeys(c store.Collection[models.UserTask]) []string {
	keys := c.Keys()
	sort.Strings(keys)
	return keys
}

func TestCoordinator_CommitRemovesPermanently(t *testing.T) {
	s := seededStore("a", "x", "b")
	api := &fakeAPI{}
	c := New(s, api, Options{Logger: logging.Discard()})

	if err := c.Delete(context.Background(), "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	st := s.Snapshot()
	if st.UserTasks.Has("x") {
		t.Error("committed task still visible")
	}
	if st.RemovedUserTasks.Has("x") {
		t.Error("committed task still in shadow buffer")
	}
	if api.callCount() != 1 {
		t.Errorf("expected one API call, got %d", api.callCount())
	}
}

func TestCoordinator_RollbackRestoresTask(t *testing.T) {
	s := seededStore("a", "x", "b")
	before := sortedKeys(s.Snapshot().UserTasks)
	api := &fakeAPI{err: errors.New("503")}

	var surfaced error
	c := New(s, api, Options{
		Logger:  logging.Discard(),
		OnError: func(_ Action, _ models.UserTask, err error) { surfaced = err },
	})

	err := c.Delete(context.Background(), "x")
	if err == nil || !errors.Is(err, api.err) {
		t.Fatalf("expected wrapped API error, got %v", err)
	}
	if surfaced == nil {
		t.Error("error was not surfaced")
	}

	st := s.Snapshot()
	if got := sortedKeys(st.UserTasks); !reflect.DeepEqual(got, before) {
		t.Fatalf("visible set not restored: %v vs %v", got, before)
	}
	if st.UserTasks.Keys()[0] != "x" {
		t.Errorf("restored task should be at the front, got %v", st.UserTasks.Keys())
	}
	if st.RemovedUserTasks.Len() != 0 {
		t.Error("shadow buffer should be empty after rollback")
	}
}

func TestCoordinator_HiddenBeforeNetworkCall(t *testing.T) {
	s := seededStore("x")
	api := &fakeAPI{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := New(s, api, Options{Logger: logging.Discard()})

	done := make(chan error, 1)
	go func() { done <- c.Complete(context.Background(), "x") }()
	<-api.started

	st := s.Snapshot()
	if st.UserTasks.Has("x") {
		t.Fatal("task should be hidden while the call is in flight")
	}
	if !st.RemovedUserTasks.Has("x") {
		t.Fatal("task should be staged in the shadow buffer")
	}
	if !c.InFlight(ActionComplete, "x") {
		t.Error("expected in-flight marker")
	}

	close(api.release)
	if err := <-done; err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c.InFlight(ActionComplete, "x") {
		t.Error("in-flight marker should clear after completion")
	}
}

func TestCoordinator_DuplicateActionShortCircuits(t *testing.T) {
	s := seededStore("x")
	api := &fakeAPI{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := New(s, api, Options{Logger: logging.Discard()})

	done := make(chan error, 1)
	go func() { done <- c.Delete(context.Background(), "x") }()
	<-api.started

	if err := c.Delete(context.Background(), "x"); err != nil {
		t.Fatalf("duplicate delete should report success, got %v", err)
	}
	close(api.release)
	<-done

	if n := api.callCount(); n != 1 {
		t.Fatalf("expected one network call, got %d", n)
	}
}

func TestCoordinator_MissingTaskIsNotFound(t *testing.T) {
	s := seededStore("a")
	api := &fakeAPI{}
	c := New(s, api, Options{Logger: logging.Discard()})

	if err := c.Ignore(context.Background(), "ghost"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if api.callCount() != 0 {
		t.Error("no API call expected for a missing task")
	}
}

func TestCoordinator_RollbackUsesLatestServerCopy(t *testing.T) {
	s := seededStore("x")
	api := &fakeAPI{err: errors.New("boom"), release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := New(s, api, Options{Logger: logging.Discard()})

	done := make(chan error, 1)
	go func() { done <- c.Snooze(context.Background(), "x", time.Now().Add(time.Hour)) }()
	<-api.started

	s.Apply(func(st store.State) store.State {
		return reconcile.UserTask(st, models.UserTask{ID: "x", Title: "renamed", Status: models.UserTaskPending})
	})
	if s.Snapshot().UserTasks.Has("x") {
		t.Fatal("server update must not resurrect a hidden task")
	}

	close(api.release)
	<-done
	got, ok := s.Snapshot().UserTasks.Get("x")
	if !ok || got.Title != "renamed" {
		t.Fatalf("expected restored task with server title, got %+v (found=%v)", got, ok)
	}
}

func TestCoordinator_NoRestoreIfDroppedMeanwhile(t *testing.T) {
	s := seededStore("x")
	api := &fakeAPI{err: errors.New("boom"), release: make(chan struct{}), started: make(chan struct{}, 1)}
	c := New(s, api, Options{Logger: logging.Discard()})

	done := make(chan error, 1)
	go func() { done <- c.Delete(context.Background(), "x") }()
	<-api.started

	s.Apply(func(st store.State) store.State {
		return reconcile.UserTask(st, models.UserTask{ID: "x", Status: models.UserTaskDropped})
	})
	close(api.release)
	<-done

	st := s.Snapshot()
	if st.UserTasks.Has("x") || st.RemovedUserTasks.Has("x") {
		t.Fatal("task dropped by the server must stay gone")
	}
}

func TestCoordinator_Do(t *testing.T) {
	s := seededStore("a", "b")
	api := &fakeAPI{}
	c := New(s, api, Options{Logger: logging.Discard()})

	if err := c.Do(context.Background(), ActionIgnore, "a", time.Time{}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if _, err := ParseAction("archive"); err == nil {
		t.Error("expected unknown action error")
	}
	if a, err := ParseAction("snooze"); err != nil || a != ActionSnooze {
		t.Errorf("ParseAction(snooze) = %q, %v", a, err)
	}
	if api.calls[0] != "ignore:a" {
		t.Errorf("unexpected call %v", api.calls)
	}
}
