package realtime

import "encoding/json"

// EventIdentify is sent once per connection, right after connect.
const EventIdentify = "identify"

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type identifyPayload struct {
	DeviceID string `json:"deviceId"`
}
