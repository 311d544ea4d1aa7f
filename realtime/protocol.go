// Package realtime carries readings and alerts to dashboards over
// websockets: a topic-filtered server hub and a reconnecting client.
package realtime

import (
	"encoding/json"
	"time"
)

// Message types. subscribe, unsubscribe and ping travel client to server;
// the rest travel server to client. connection and error are only emitted
// locally by Client.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeReading     = "reading"
	TypeAlert       = "alert"
	TypeAnomaly     = "anomaly"
	TypeHistory     = "history"
	TypeConnection  = "connection"
	TypeError       = "error"

	// Wildcard subscribes to every type
	Wildcard = "*"
)

// Connection event statuses
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusFailed       = "failed"
)

// Envelope is the JSON frame exchanged in both directions
type Envelope struct {
	Type      string          `json:"type"`
	Topics    []string        `json:"topics,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    string          `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

func newEnvelope(msgType string, payload interface{}) (Envelope, error) {
	env := Envelope{Type: msgType, Timestamp: time.Now()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = raw
	}
	return env, nil
}

// localOnly reports whether a type is emitted by the client itself and
// never subscribed to on the server
func localOnly(msgType string) bool {
	return msgType == TypeConnection || msgType == TypeError
}
