// Package daemon runs the sync core in the background and serves a local
// control socket for the CLI.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/api"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/auth"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/autosave"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/config"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/gate"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/metrics"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/models"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/optimistic"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/persist"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/realtime"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/reconcile"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/store"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/timers"
)

const (
	profileRetryKey   = "profile:retry"
	profileRetryDelay = 30 * time.Second
	profileTimeout    = 15 * time.Second
	actionTimeout     = 30 * time.Second
	configDebounce    = 250 * time.Millisecond
)

// API is the REST surface the daemon needs. *api.Client satisfies it.
type API interface {
	optimistic.TaskAPI
	FetchProfile(ctx context.Context) (*api.Profile, error)
}

// Options override the production wiring, mostly for tests.
type Options struct {
	// ConfigPath enables hot reload of tokens and onboarding settings.
	ConfigPath string
	SocketPath string
	Transport  realtime.Transport
	API        API
	Clock      timers.Clock
	Logger     *slog.Logger
}

// Daemon owns one realtime session: the connection manager behind the
// lifecycle gate, the event router feeding the store, and the optimistic
// task coordinator.
type Daemon struct {
	opts   Options
	logger *slog.Logger

	cfgMu sync.RWMutex
	cfg   *config.Config

	timers      *timers.Timers
	persist     *persist.Store
	store       *store.Store
	gate        *gate.Gate
	router      *reconcile.Router
	manager     *realtime.Manager
	coordinator *optimistic.Coordinator
	saver       *autosave.Saver
	metrics     *metrics.Metrics
	api         API

	listener net.Listener
	clients  map[*peer]bool
	clientMu sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	// session counts token changes; a profile answer for an older session
	// is dropped.
	session atomic.Uint64

	statusMu  sync.RWMutex
	lastError error
	deviceID  string
	tokenExp  int64
}

// New wires every component but does not connect or listen yet.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SocketPath == "" {
		opts.SocketPath = GetSocketPath()
	}
	if opts.Transport == nil {
		opts.Transport = realtime.NewWebsocketTransport(15 * time.Second)
	}

	ps, err := persist.Open(cfg.StateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	d := &Daemon{
		opts:    opts,
		logger:  opts.Logger.With("component", "daemon"),
		cfg:     cfg,
		timers:  timers.New(opts.Clock),
		persist: ps,
		store:   store.New(),
		metrics: metrics.New(),
		clients: make(map[*peer]bool),
	}

	d.api = opts.API
	if d.api == nil {
		d.api = api.NewClient(cfg.APIURL(), d.credentials)
	}

	d.gate = gate.New(cfg.Onboarding.RequiredStep, opts.Logger.With("component", "gate"))
	d.router = reconcile.NewRouter(d.store, opts.Logger.With("component", "router"), d.metrics)
	d.manager = realtime.NewManager(opts.Transport, realtime.Options{
		URL:         cfg.BackendURL,
		Policy:      realtime.Policy{Base: cfg.Reconnect.Base(), Max: cfg.Reconnect.Max()},
		Timers:      d.timers,
		DeviceID:    ps.DeviceID,
		Credentials: d.credentials,
		Logger:      opts.Logger.With("component", "realtime"),
		Recorder:    d.metrics,
	})
	d.coordinator = optimistic.New(d.store, d.api, optimistic.Options{
		Logger:   opts.Logger.With("component", "tasks"),
		Recorder: d.metrics,
		OnError:  d.onTaskRolledBack,
	})
	d.saver = autosave.New(d.timers, ps, cfg.AutosaveDelay(), opts.Logger.With("component", "autosave"))

	return d, nil
}

// Run starts the daemon and blocks until ctx is done or a client asks it to
// shut down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		d.Shutdown()
		return err
	}
	<-d.ctx.Done()
	d.Shutdown()
	return nil
}

// Start restores persisted state, opens the control socket and hands the
// tokens to the gate, which connects once the session is usable.
func (d *Daemon) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	id, err := d.persist.DeviceID()
	if err != nil {
		return fmt.Errorf("failed to load device id: %w", err)
	}
	d.statusMu.Lock()
	d.deviceID = id
	d.statusMu.Unlock()

	d.restoreSession()

	d.manager.SetEventHandler(d.handleFrame)
	d.manager.SetStateChangeHandler(func(realtime.State) { d.broadcastStatus() })
	d.manager.SetAuthFailureHandler(func(err error) {
		d.setLastError(err)
		d.gate.Revoke(err)
		d.broadcastStatus()
	})
	d.gate.Subscribe(d.manager.SetAuthorized)

	if err := d.setupListener(); err != nil {
		return fmt.Errorf("failed to set up IPC listener: %w", err)
	}
	go d.acceptConnections()

	if addr := d.config().MetricsAddr; addr != "" {
		go func() {
			if err := d.metrics.Serve(d.ctx, addr, d.logger); err != nil {
				d.logger.Error("metrics endpoint failed", "addr", addr, "error", err)
			}
		}()
	}

	if d.opts.ConfigPath != "" {
		if err := config.Watch(d.ctx, d.opts.ConfigPath, d.timers, configDebounce, d.logger, d.applyConfig); err != nil {
			d.logger.Warn("config hot reload disabled", "error", err)
		}
	}

	cfg := d.config()
	d.checkTokenExpiry(cfg)
	d.gate.SetTokens(cfg.AuthToken, cfg.RefreshToken)
	go d.fetchProfile()

	d.logger.Info("sync daemon started", "backend", cfg.BackendURL, "socket", d.opts.SocketPath, "device_id", id)
	return nil
}

// Shutdown gracefully shuts down the daemon
func (d *Daemon) Shutdown() {
	d.stopOnce.Do(func() {
		d.logger.Info("shutting down")
		if d.cancel != nil {
			d.cancel()
		}

		d.saver.Flush()
		d.manager.Close()
		d.timers.Stop()

		if d.listener != nil {
			d.listener.Close()
			os.Remove(d.opts.SocketPath)
		}

		d.clientMu.Lock()
		for p := range d.clients {
			p.conn.Close()
		}
		d.clientMu.Unlock()

		if err := d.persist.Close(); err != nil {
			d.logger.Warn("failed to close state store", "error", err)
		}
	})
}

func (d *Daemon) Store() *store.Store { return d.store }

// Foreground reconnects now if the session is down, skipping the backoff.
func (d *Daemon) Foreground() { d.manager.Foreground() }

func (d *Daemon) Gate() *gate.Gate { return d.gate }

func (d *Daemon) config() *config.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

func (d *Daemon) credentials() auth.Credentials {
	return d.config().Credentials()
}

func (d *Daemon) setLastError(err error) {
	d.statusMu.Lock()
	d.lastError = err
	d.statusMu.Unlock()
}

// restoreSession feeds the gate what the previous run learned, so a known
// session reconnects without waiting for the profile request.
func (d *Daemon) restoreSession() {
	if raw, err := d.persist.Get(persist.KeyOnboardingStep); err == nil {
		if step, err := strconv.Atoi(raw); err == nil {
			d.gate.SetOnboardingStep(step)
		}
	}

	var profile api.Profile
	if err := d.persist.GetJSON(persist.KeyProfile, &profile); err == nil {
		d.logger.Debug("restored profile", "user_id", profile.ID)
		d.gate.MarkProfileFetched()
	} else if !errors.Is(err, persist.ErrNotFound) {
		d.logger.Warn("failed to restore profile", "error", err)
	}

	if drafts, err := d.persist.Drafts(); err == nil && len(drafts) > 0 {
		d.logger.Info("restored drafts", "count", len(drafts))
	}
}

// fetchProfile loads the profile once per token pair. Success opens the gate
// even before onboarding completes; a rejection revokes it.
func (d *Daemon) fetchProfile() {
	if d.ctx.Err() != nil || !d.credentials().Present() {
		return
	}
	session := d.session.Load()

	ctx, cancel := context.WithTimeout(d.ctx, profileTimeout)
	defer cancel()

	profile, err := d.api.FetchProfile(ctx)
	if d.session.Load() != session {
		d.logger.Debug("profile answer for a previous session dropped")
		return
	}
	switch {
	case err == nil:
		if err := d.persist.SetJSON(persist.KeyProfile, profile); err != nil {
			d.logger.Warn("failed to persist profile", "error", err)
		}
		if err := d.persist.Set(persist.KeyOnboardingStep, strconv.Itoa(profile.OnboardingStep)); err != nil {
			d.logger.Warn("failed to persist onboarding step", "error", err)
		}
		d.cfgMu.Lock()
		if d.cfg.UserEmail == "" {
			next := *d.cfg
			next.UserEmail = profile.Email
			d.cfg = &next
		}
		d.cfgMu.Unlock()

		d.logger.Info("profile fetched", "user_id", profile.ID, "onboarding_step", profile.OnboardingStep)
		d.gate.SetOnboardingStep(profile.OnboardingStep)
		d.gate.MarkProfileFetched()
		d.broadcastStatus()

	case errors.Is(err, api.ErrUnauthorized):
		d.setLastError(err)
		d.gate.Revoke(fmt.Errorf("%w: %v", auth.ErrAuthenticationFailed, err))
		d.broadcastStatus()

	case d.ctx.Err() != nil:
		return

	default:
		d.logger.Warn("profile fetch failed, retrying", "error", err, "delay", profileRetryDelay)
		d.timers.Schedule(profileRetryKey, profileRetryDelay, func() { go d.fetchProfile() })
	}
}

// applyConfig takes a reloaded config. Tokens and the onboarding threshold
// apply live; the backend URL needs a restart. New tokens start a new
// session: the gate waits for the new profile and the caches start empty.
func (d *Daemon) applyConfig(next *config.Config) {
	d.cfgMu.Lock()
	prev := d.cfg
	d.cfg = next
	d.cfgMu.Unlock()

	if next.BackendURL != prev.BackendURL {
		d.logger.Warn("backend_url changed, restart the daemon to apply", "backend", next.BackendURL)
	}

	d.gate.SetRequiredStep(next.Onboarding.RequiredStep)
	if next.AuthToken != prev.AuthToken || next.RefreshToken != prev.RefreshToken {
		d.logger.Info("credentials changed")
		d.setLastError(nil)
		d.checkTokenExpiry(next)
		d.session.Add(1)
		d.timers.Cancel(profileRetryKey)
		d.gate.StartSession(next.AuthToken, next.RefreshToken)
		d.store.Apply(func(store.State) store.State { return store.State{} })
		d.forgetSession()
		go d.fetchProfile()
	}
	d.broadcastStatus()
}

// forgetSession drops the persisted profile so a restart does not open the
// gate on the previous account's behalf.
func (d *Daemon) forgetSession() {
	for _, key := range []string{persist.KeyProfile, persist.KeyOnboardingStep} {
		if err := d.persist.Delete(key); err != nil {
			d.logger.Warn("failed to clear session state", "key", key, "error", err)
		}
	}
}

func (d *Daemon) checkTokenExpiry(cfg *config.Config) {
	if cfg.AuthToken == "" {
		d.setTokenExp(0)
		return
	}
	exp := cfg.TokenExpiry
	if exp == 0 {
		if parsed, err := auth.ParseJWTExpiry(cfg.AuthToken); err == nil {
			exp = parsed
		}
	}
	d.setTokenExp(exp)

	switch {
	case exp == 0:
		d.logger.Debug("access token expiry unknown")
	case auth.IsTokenExpired(exp):
		d.logger.Warn("access token expired, run 'flora_sync login' with a fresh token", "expired_at", time.Unix(exp, 0))
	case auth.IsTokenExpiringSoon(exp, auth.TokenExpiryBuffer):
		d.logger.Warn("access token expires soon", "expires_at", time.Unix(exp, 0))
	}
}

func (d *Daemon) setTokenExp(exp int64) {
	d.statusMu.Lock()
	d.tokenExp = exp
	d.statusMu.Unlock()
}

func (d *Daemon) handleFrame(f realtime.Frame) {
	err := d.router.Route(reconcile.InboundEvent{Kind: reconcile.EventKind(f.Event), Payload: f.Data})
	if err != nil {
		d.logger.Debug("frame dropped", "event", f.Event, "error", err)
	}
}

func (d *Daemon) onTaskRolledBack(action optimistic.Action, task models.UserTask, err error) {
	d.setLastError(err)
	d.broadcast(MsgTypeNotice, NoticePayload{
		Level:   "error",
		Message: fmt.Sprintf("Could not %s %q, it is back in your list", action, task.Title),
		TaskID:  task.ID,
	})
}

func (d *Daemon) setupListener() error {
	socketPath := d.opts.SocketPath
	os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	os.Chmod(socketPath, 0600)
	return nil
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.logger.Warn("accept error", "error", err)
			continue
		}

		p := newPeer(conn)
		d.clientMu.Lock()
		d.clients[p] = true
		d.clientMu.Unlock()

		go d.handleClient(p)
	}
}

func (d *Daemon) handleClient(p *peer) {
	defer func() {
		d.clientMu.Lock()
		delete(d.clients, p)
		d.clientMu.Unlock()
		p.conn.Close()
	}()

	// Send initial status
	p.send(MsgTypeStatus, d.StatusPayload())

	decoder := json.NewDecoder(p.conn)
	for {
		var msg IPCMessage
		if err := decoder.Decode(&msg); err != nil {
			return
		}

		switch msg.Type {
		case MsgTypePing:
			p.reply(msg.ID, MsgTypePong, nil)

		case MsgTypeStatus:
			p.reply(msg.ID, MsgTypeStatus, d.StatusPayload())

		case MsgTypeTaskList:
			p.reply(msg.ID, MsgTypeTaskList, d.taskList())

		case MsgTypeTaskAction:
			var payload TaskActionPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				p.replyError(msg.ID, "invalid payload")
				continue
			}
			if err := d.taskAction(payload); err != nil {
				p.replyError(msg.ID, err.Error())
				continue
			}
			p.replyOK(msg.ID)

		case MsgTypeDraftEdit:
			var payload DraftEditPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ID == "" {
				p.replyError(msg.ID, "invalid payload")
				continue
			}
			if payload.Discard {
				if err := d.saver.Discard(payload.ID); err != nil {
					p.replyError(msg.ID, err.Error())
					continue
				}
			} else {
				d.saver.Edit(payload.ID, payload.Body)
			}
			p.replyOK(msg.ID)

		case MsgTypeDraftList:
			drafts, err := d.persist.Drafts()
			if err != nil {
				p.replyError(msg.ID, err.Error())
				continue
			}
			p.reply(msg.ID, MsgTypeDraftList, drafts)

		case MsgTypeForeground:
			d.Foreground()
			p.replyOK(msg.ID)

		case MsgTypeShutdown:
			p.replyOK(msg.ID)
			d.cancel()
			return

		default:
			p.replyError(msg.ID, fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

func (d *Daemon) taskAction(payload TaskActionPayload) error {
	action, err := optimistic.ParseAction(payload.Action)
	if err != nil {
		return err
	}
	if payload.ID == "" {
		return errors.New("task id is required")
	}
	if action == optimistic.ActionSnooze && payload.Until.IsZero() {
		return errors.New("snooze needs an until time")
	}

	ctx, cancel := context.WithTimeout(d.ctx, actionTimeout)
	defer cancel()
	return d.coordinator.Do(ctx, action, payload.ID, payload.Until)
}

func (d *Daemon) taskList() TaskListPayload {
	s := d.store.Snapshot()
	return TaskListPayload{
		Tasks:          s.UserTasks.Items(),
		PendingRemoval: s.RemovedUserTasks.Items(),
	}
}

// StatusPayload snapshots everything `flora_sync status` shows.
func (d *Daemon) StatusPayload() StatusPayload {
	cfg := d.config()
	conn := d.manager.State()

	d.statusMu.RLock()
	defer d.statusMu.RUnlock()

	status := StatusPayload{
		Phase:      conn.Phase().String(),
		Connection: conn,
		Authorized: d.gate.Allowed(),
		Counts:     d.store.Snapshot().Counts(),
		BackendURL: cfg.BackendURL,
		UserEmail:  cfg.UserEmail,
		DeviceID:   d.deviceID,
		TokenExp:   d.tokenExp,
	}
	if reason := d.gate.RevokedReason(); reason != nil {
		status.Revoked = reason.Error()
	}
	if d.lastError != nil {
		status.Error = d.lastError.Error()
	}
	return status
}

func (d *Daemon) broadcastStatus() {
	d.broadcast(MsgTypeStatus, d.StatusPayload())
}

func (d *Daemon) broadcast(msgType string, payload any) {
	d.clientMu.RLock()
	peers := make([]*peer, 0, len(d.clients))
	for p := range d.clients {
		peers = append(peers, p)
	}
	d.clientMu.RUnlock()

	for _, p := range peers {
		p.send(msgType, payload)
	}
}
