package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const callTimeout = 45 * time.Second

// Client connects to the daemon via IPC. Each request waits for the reply
// carrying its ID; status broadcasts and notices arriving in between are
// handed to OnNotice or skipped.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  uint64

	// OnNotice receives notices pushed while a request is pending.
	OnNotice func(NoticePayload)
}

// Connect connects to the running daemon
func Connect(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("daemon not running: %w", err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// call sends one request and returns its reply of type want, or the
// daemon's error.
func (c *Client) call(msgType string, payload any, want string) (IPCMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	msg := IPCMessage{ID: c.nextID, Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return IPCMessage{}, err
		}
		msg.Payload = raw
	}

	c.conn.SetDeadline(time.Now().Add(callTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(msg); err != nil {
		return IPCMessage{}, fmt.Errorf("send %s: %w", msgType, err)
	}

	for {
		var reply IPCMessage
		if err := c.decoder.Decode(&reply); err != nil {
			return IPCMessage{}, fmt.Errorf("connection lost: %w", err)
		}
		if reply.ID == 0 {
			if reply.Type == MsgTypeNotice && c.OnNotice != nil {
				var n NoticePayload
				if err := json.Unmarshal(reply.Payload, &n); err == nil {
					c.OnNotice(n)
				}
			}
			continue
		}
		if reply.ID != msg.ID {
			continue
		}
		switch reply.Type {
		case want:
			return reply, nil
		case MsgTypeError:
			var e errorPayload
			if err := json.Unmarshal(reply.Payload, &e); err != nil || e.Error == "" {
				return IPCMessage{}, errors.New("daemon returned an error")
			}
			return IPCMessage{}, errors.New(e.Error)
		default:
			return IPCMessage{}, fmt.Errorf("unexpected %q reply to %s", reply.Type, msgType)
		}
	}
}

func (c *Client) Ping() error {
	_, err := c.call(MsgTypePing, nil, MsgTypePong)
	return err
}

func (c *Client) Status() (StatusPayload, error) {
	var status StatusPayload
	reply, err := c.call(MsgTypeStatus, nil, MsgTypeStatus)
	if err != nil {
		return status, err
	}
	err = json.Unmarshal(reply.Payload, &status)
	return status, err
}

func (c *Client) TaskList() (TaskListPayload, error) {
	var list TaskListPayload
	reply, err := c.call(MsgTypeTaskList, nil, MsgTypeTaskList)
	if err != nil {
		return list, err
	}
	err = json.Unmarshal(reply.Payload, &list)
	return list, err
}

// TaskAction runs action on task id and waits for the server's answer.
func (c *Client) TaskAction(action, id string, until time.Time) error {
	_, err := c.call(MsgTypeTaskAction, TaskActionPayload{Action: action, ID: id, Until: until}, MsgTypeOK)
	return err
}

func (c *Client) DraftEdit(id, body string) error {
	_, err := c.call(MsgTypeDraftEdit, DraftEditPayload{ID: id, Body: body}, MsgTypeOK)
	return err
}

func (c *Client) DraftDiscard(id string) error {
	_, err := c.call(MsgTypeDraftEdit, DraftEditPayload{ID: id, Discard: true}, MsgTypeOK)
	return err
}

func (c *Client) Drafts() (map[string]string, error) {
	var drafts map[string]string
	reply, err := c.call(MsgTypeDraftList, nil, MsgTypeDraftList)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(reply.Payload, &drafts)
	return drafts, err
}

// Foreground asks for an immediate reconnect if the session is down.
func (c *Client) Foreground() error {
	_, err := c.call(MsgTypeForeground, nil, MsgTypeOK)
	return err
}

func (c *Client) Shutdown() error {
	_, err := c.call(MsgTypeShutdown, nil, MsgTypeOK)
	return err
}
