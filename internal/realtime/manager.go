// Package realtime owns the single realtime connection to the backend.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/auth"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/timers"
)

// ReconnectKey is the timer key of the pending reconnect.
const ReconnectKey = "realtime:reconnect"

// Phase is the coarse connection state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// State is an observable snapshot of the manager.
type State struct {
	Connected  bool `json:"connected"`
	Connecting bool `json:"connecting"`
	Attempts   int  `json:"attempts"`
	Authorized bool `json:"authorized"`
}

func (s State) Phase() Phase {
	switch {
	case s.Connected:
		return PhaseConnected
	case s.Connecting:
		return PhaseConnecting
	default:
		return PhaseDisconnected
	}
}

// Recorder receives connection metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordConnectionPhase(phase string)
	RecordReconnectScheduled(delay time.Duration)
}

// Options configure a Manager.
type Options struct {
	URL         string
	Policy      Policy
	Timers      *timers.Timers
	DeviceID    func() (string, error)
	Credentials func() auth.Credentials
	DialTimeout time.Duration

	// ForegroundInterval bounds how often Foreground may bypass the backoff.
	ForegroundInterval time.Duration

	Logger   *slog.Logger
	Recorder Recorder
}

// Manager drives disconnected -> connecting -> connected with capped
// exponential reconnects. Every connection is tagged with a generation; a
// callback from an older generation is ignored.
type Manager struct {
	transport Transport
	opts      Options
	timers    *timers.Timers
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu         sync.Mutex
	conn       Conn
	gen        uint64
	authorized bool
	connected  bool
	connecting bool
	manual     bool
	closed     bool
	attempts   int
	cancelDial context.CancelFunc
	last       State

	writeMu sync.Mutex

	handlerMu     sync.RWMutex
	onEvent       func(Frame)
	onStateChange func(State)
	onAuthFailure func(error)
}

func NewManager(transport Transport, opts Options) *Manager {
	if opts.Timers == nil {
		opts.Timers = timers.New(nil)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 15 * time.Second
	}
	if opts.ForegroundInterval <= 0 {
		opts.ForegroundInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DeviceID == nil {
		opts.DeviceID = func() (string, error) { return "", nil }
	}
	if opts.Credentials == nil {
		opts.Credentials = func() auth.Credentials { return auth.Credentials{} }
	}

	return &Manager{
		transport: transport,
		opts:      opts,
		timers:    opts.Timers,
		limiter:   rate.NewLimiter(rate.Every(opts.ForegroundInterval), 1),
		logger:    opts.Logger,
	}
}

// SetEventHandler sets the callback for inbound frames. It runs on the read
// goroutine, one frame at a time, in delivery order.
func (m *Manager) SetEventHandler(fn func(Frame)) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onEvent = fn
}

func (m *Manager) SetStateChangeHandler(fn func(State)) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onStateChange = fn
}

// SetAuthFailureHandler is called when the server rejects the credentials.
// No reconnect is scheduled after an auth failure.
func (m *Manager) SetAuthFailureHandler(fn func(error)) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.onAuthFailure = fn
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// SetAuthorized is driven by the lifecycle gate. Granting connects; revoking
// tears the connection down and forgets the retry history.
func (m *Manager) SetAuthorized(ok bool) {
	m.mu.Lock()
	m.authorized = ok
	if ok {
		m.mu.Unlock()
		m.Connect()
		return
	}

	m.teardownLocked()
	m.attempts = 0
	m.timers.Cancel(ReconnectKey)
	st, changed := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("realtime authorization revoked, connection closed")
	m.notifyState(st, changed)
}

// Connect opens the connection unless one is open or opening, or the gate
// is closed.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.connected || m.connecting {
		m.mu.Unlock()
		return
	}
	if !m.authorized {
		m.mu.Unlock()
		m.logger.Debug("connect skipped, not authorized")
		return
	}

	m.timers.Cancel(ReconnectKey)
	m.manual = false
	m.connecting = true
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	m.cancelDial = cancel
	st, changed := m.snapshotLocked()
	m.mu.Unlock()

	m.notifyState(st, changed)
	go m.dial(ctx, cancel, gen)
}

// Disconnect closes the connection on request. No reconnect follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	m.teardownLocked()
	m.timers.Cancel(ReconnectKey)
	st, changed := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("realtime disconnected")
	m.notifyState(st, changed)
}

// Foreground reacts to the app becoming active: while disconnected and
// authorized it reconnects immediately instead of waiting for the backoff.
func (m *Manager) Foreground() {
	m.mu.Lock()
	eligible := !m.closed && !m.connected && !m.connecting && m.authorized
	m.mu.Unlock()
	if !eligible {
		return
	}
	if !m.limiter.Allow() {
		m.logger.Debug("foreground reconnect throttled")
		return
	}
	m.logger.Info("foreground, reconnecting now")
	m.Connect()
}

// Emit sends an event. While disconnected it logs and returns false without
// side effects.
func (m *Manager) Emit(event string, data any) bool {
	m.mu.Lock()
	conn := m.conn
	connected := m.connected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.logger.Warn("emit dropped, not connected", "event", event)
		return false
	}

	raw, err := json.Marshal(data)
	if err != nil {
		m.logger.Error("emit dropped, cannot encode payload", "event", event, "error", err)
		return false
	}
	if err := m.write(conn, Frame{Event: event, Data: raw}); err != nil {
		m.logger.Warn("emit failed", "event", event, "error", err)
		return false
	}
	return true
}

// Close tears down permanently.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.teardownLocked()
	m.timers.Cancel(ReconnectKey)
	st, changed := m.snapshotLocked()
	m.mu.Unlock()

	m.notifyState(st, changed)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	deviceID, err := m.opts.DeviceID()
	if err != nil {
		m.fail(gen, nil, err)
		return
	}

	conn, err := m.transport.Dial(ctx, m.opts.URL, m.opts.Credentials().Header())

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.mu.Unlock()
		m.fail(gen, nil, err)
		return
	}
	m.conn = conn
	m.connecting = false
	m.connected = true
	m.attempts = 0
	m.cancelDial = nil
	st, changed := m.snapshotLocked()
	m.mu.Unlock()

	m.timers.Cancel(ReconnectKey)
	m.logger.Info("realtime connected", "url", m.opts.URL)
	m.notifyState(st, changed)

	data, _ := json.Marshal(identifyPayload{DeviceID: deviceID})
	if err := m.write(conn, Frame{Event: EventIdentify, Data: data}); err != nil {
		m.logger.Warn("identify failed", "error", err)
	}

	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if isDecodeError(err) {
				m.logger.Warn("dropping undecodable frame", "error", err)
				continue
			}
			m.fail(gen, conn, err)
			return
		}
		if f.Event == "" {
			m.logger.Debug("dropping frame without event name")
			continue
		}

		m.handlerMu.RLock()
		fn := m.onEvent
		m.handlerMu.RUnlock()
		if fn != nil {
			fn(f)
		}
	}
}

// fail handles a dial error or a dropped connection for generation gen.
// The retry delay is computed here, from the attempt count at scheduling time.
func (m *Manager) fail(gen uint64, conn Conn, err error) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	if conn != nil && conn != m.conn {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()

	authFailed := isAuthFailure(err)
	retry := !m.manual && m.authorized && !authFailed
	var delay time.Duration
	if retry {
		delay = m.opts.Policy.Delay(m.attempts)
		m.attempts++
		m.timers.Schedule(ReconnectKey, delay, m.Connect)
	}
	st, changed := m.snapshotLocked()
	m.mu.Unlock()

	m.notifyState(st, changed)

	switch {
	case authFailed:
		m.logger.Warn("realtime authentication rejected", "error", err)
		m.handlerMu.RLock()
		fn := m.onAuthFailure
		m.handlerMu.RUnlock()
		if fn != nil {
			fn(err)
		}
	case retry:
		m.logger.Info("realtime connection lost, reconnecting", "error", err, "delay", delay, "attempt", st.Attempts)
		if m.opts.Recorder != nil {
			m.opts.Recorder.RecordReconnectScheduled(delay)
		}
	default:
		m.logger.Info("realtime connection closed", "error", err)
	}
}

// teardownLocked invalidates the current generation and releases the socket.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connected = false
	m.connecting = false
}

func (m *Manager) write(conn Conn, f Frame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(f)
}

func (m *Manager) stateLocked() State {
	return State{
		Connected:  m.connected,
		Connecting: m.connecting,
		Attempts:   m.attempts,
		Authorized: m.authorized,
	}
}

func (m *Manager) snapshotLocked() (State, bool) {
	st := m.stateLocked()
	changed := st != m.last
	m.last = st
	return st, changed
}

func (m *Manager) notifyState(st State, changed bool) {
	if !changed {
		return
	}
	if m.opts.Recorder != nil {
		m.opts.Recorder.RecordConnectionPhase(st.Phase().String())
	}
	m.handlerMu.RLock()
	fn := m.onStateChange
	m.handlerMu.RUnlock()
	if fn != nil {
		fn(st)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
