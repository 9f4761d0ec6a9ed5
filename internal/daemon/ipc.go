package daemon

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/models"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/realtime"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/store"
)

// IPCMessage is one newline-delimited JSON message on the control socket.
// A reply carries the ID of its request; pushed messages carry none.
type IPCMessage struct {
	ID      uint64          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message types
const (
	MsgTypeStatus     = "status"
	MsgTypePing       = "ping"
	MsgTypePong       = "pong"
	MsgTypeOK         = "ok"
	MsgTypeError      = "error"
	MsgTypeShutdown   = "shutdown"
	MsgTypeTaskAction = "task_action"
	MsgTypeTaskList   = "task_list"
	MsgTypeDraftEdit  = "draft_edit"
	MsgTypeDraftList  = "draft_list"
	MsgTypeForeground = "foreground"

	// MsgTypeNotice is pushed to every client, never sent as a reply.
	MsgTypeNotice = "notice"
)

// StatusPayload contains current daemon status
type StatusPayload struct {
	Phase      string         `json:"phase"`
	Connection realtime.State `json:"connection"`
	Authorized bool           `json:"authorized"`
	Revoked    string         `json:"revoked,omitempty"`
	Counts     store.Counts   `json:"counts"`
	BackendURL string         `json:"backend_url"`
	UserEmail  string         `json:"user_email,omitempty"`
	DeviceID   string         `json:"device_id,omitempty"`
	TokenExp   int64          `json:"token_exp,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// TaskActionPayload asks for one optimistic task action. Until is only read
// for snooze.
type TaskActionPayload struct {
	Action string    `json:"action"`
	ID     string    `json:"id"`
	Until  time.Time `json:"until,omitempty"`
}

// TaskListPayload is the visible list plus tasks hidden by unconfirmed actions.
type TaskListPayload struct {
	Tasks          []models.UserTask `json:"tasks"`
	PendingRemoval []models.UserTask `json:"pending_removal"`
}

// DraftEditPayload replaces a draft body, or discards the draft.
type DraftEditPayload struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Discard bool   `json:"discard,omitempty"`
}

// NoticePayload reports something the user should see, e.g. a rolled back action.
type NoticePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	TaskID  string `json:"task_id,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// GetSocketPath returns the IPC socket path
func GetSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}
	return filepath.Join(runtimeDir, "flora_sync.sock")
}

// IsRunning checks if a daemon is already listening on socketPath. A stale
// socket file is removed.
func IsRunning(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		os.Remove(socketPath)
		return false
	}
	conn.Close()
	return true
}

// peer is one connected IPC client. Replies and broadcasts share the
// encoder, so writes are serialised.
type peer struct {
	conn net.Conn
	mu   sync.Mutex
	enc  *json.Encoder
}

func newPeer(conn net.Conn) *peer {
	return &peer{conn: conn, enc: json.NewEncoder(conn)}
}

// send pushes an unsolicited message.
func (p *peer) send(msgType string, payload any) error {
	return p.reply(0, msgType, payload)
}

func (p *peer) reply(id uint64, msgType string, payload any) error {
	msg := IPCMessage{ID: id, Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = raw
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(msg)
}

func (p *peer) replyOK(id uint64) error { return p.reply(id, MsgTypeOK, nil) }

func (p *peer) replyError(id uint64, errMsg string) error {
	return p.reply(id, MsgTypeError, errorPayload{Error: errMsg})
}
