// Package optimistic hides a user task as soon as the user acts on it and
// restores it if the server refuses the change.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/logging"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/models"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/store"
)

var ErrTaskNotFound = errors.New("task not in visible list")

// Action is a task-ending user action.
type Action string

const (
	ActionDelete   Action = "delete"
	ActionComplete Action = "complete"
	ActionIgnore   Action = "ignore"
	ActionSnooze   Action = "snooze"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionDelete, ActionComplete, ActionIgnore, ActionSnooze:
		return a, nil
	}
	return "", fmt.Errorf("unknown task action %q", s)
}

// TaskAPI is the remote side of each action.
type TaskAPI interface {
	DeleteTask(ctx context.Context, id string) error
	CompleteTask(ctx context.Context, id string) error
	IgnoreTask(ctx context.Context, id string) error
	SnoozeTask(ctx context.Context, id string, until time.Time) error
}

// Recorder receives mutation outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordOptimisticOutcome(action, outcome string)
}

// Outcomes reported to the Recorder.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeDuplicate  = "duplicate"
	OutcomeNotFound   = "not_found"
)

type Options struct {
	// GuardTTL bounds how long an in-flight marker can outlive a stuck call.
	GuardTTL time.Duration
	Logger   *slog.Logger
	Recorder Recorder
	// OnError is told about every rolled back action, for surfacing to the user.
	OnError func(action Action, task models.UserTask, err error)
}

// Coordinator runs every task action as: hide, call, then forget or restore.
type Coordinator struct {
	store    *store.Store
	api      TaskAPI
	inflight *cache.Cache
	logger   *slog.Logger
	recorder Recorder
	onError  func(Action, models.UserTask, error)
}

func New(s *store.Store, api TaskAPI, opts Options) *Coordinator {
	if opts.GuardTTL <= 0 {
		opts.GuardTTL = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		store:    s,
		api:      api,
		inflight: cache.New(opts.GuardTTL, opts.GuardTTL*2),
		logger:   opts.Logger,
		recorder: opts.Recorder,
		onError:  opts.OnError,
	}
}

func (c *Coordinator) Delete(ctx context.Context, id string) error {
	return c.run(ctx, ActionDelete, id, func(ctx context.Context) error {
		return c.api.DeleteTask(ctx, id)
	})
}

func (c *Coordinator) Complete(ctx context.Context, id string) error {
	return c.run(ctx, ActionComplete, id, func(ctx context.Context) error {
		return c.api.CompleteTask(ctx, id)
	})
}

func (c *Coordinator) Ignore(ctx context.Context, id string) error {
	return c.run(ctx, ActionIgnore, id, func(ctx context.Context) error {
		return c.api.IgnoreTask(ctx, id)
	})
}

func (c *Coordinator) Snooze(ctx context.Context, id string, until time.Time) error {
	return c.run(ctx, ActionSnooze, id, func(ctx context.Context) error {
		return c.api.SnoozeTask(ctx, id, until)
	})
}

// Do dispatches by action name; until is only used by snooze.
func (c *Coordinator) Do(ctx context.Context, action Action, id string, until time.Time) error {
	switch action {
	case ActionDelete:
		return c.Delete(ctx, id)
	case ActionComplete:
		return c.Complete(ctx, id)
	case ActionIgnore:
		return c.Ignore(ctx, id)
	case ActionSnooze:
		return c.Snooze(ctx, id, until)
	}
	return fmt.Errorf("unknown task action %q", action)
}

// InFlight reports whether action is running for id.
func (c *Coordinator) InFlight(action Action, id string) bool {
	_, ok := c.inflight.Get(guardKey(action, id))
	return ok
}

func (c *Coordinator) run(ctx context.Context, action Action, id string, call func(context.Context) error) error {
	key := guardKey(action, id)
	log := logging.WithEntity(c.logger, "user_task", id)
	if err := c.inflight.Add(key, time.Now(), cache.DefaultExpiration); err != nil {
		log.Debug("task action already in flight", "action", action)
		c.record(action, OutcomeDuplicate)
		return nil
	}
	defer c.inflight.Delete(key)

	var task models.UserTask
	var found bool
	c.store.Apply(func(s store.State) store.State {
		task, found = s.UserTasks.Get(id)
		if !found {
			return s
		}
		s.UserTasks = s.UserTasks.Remove(id)
		s.RemovedUserTasks = s.RemovedUserTasks.Upsert(task, store.Front)
		return s
	})
	if !found {
		c.record(action, OutcomeNotFound)
		return fmt.Errorf("%s %s: %w", action, id, ErrTaskNotFound)
	}

	err := call(ctx)
	if err == nil {
		c.store.Apply(func(s store.State) store.State {
			s.RemovedUserTasks = s.RemovedUserTasks.Remove(id)
			return s
		})
		log.Info("task action confirmed", "action", action)
		c.record(action, OutcomeCommitted)
		return nil
	}

	restored := task
	c.store.Apply(func(s store.State) store.State {
		latest, ok := s.RemovedUserTasks.Get(id)
		if !ok {
			// dropped by the server while the call was running
			return s
		}
		restored = latest
		s.RemovedUserTasks = s.RemovedUserTasks.Remove(id)
		s.UserTasks = s.UserTasks.Upsert(latest, store.Front)
		return s
	})
	log.Warn("task action failed, restored task", "action", action, "error", err)
	c.record(action, OutcomeRolledBack)

	wrapped := fmt.Errorf("%s task %s: %w", action, id, err)
	if c.onError != nil {
		c.onError(action, restored, wrapped)
	}
	return wrapped
}

func (c *Coordinator) record(action Action, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordOptimisticOutcome(string(action), outcome)
	}
}

func guardKey(action Action, id string) string {
	return string(action) + ":" + id
}
