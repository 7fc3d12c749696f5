package testutil

import (
	"encoding/json"
	"sync"
)

// Sent is one message captured by a RecordingChannel, decoded from the
// bridge's wire shape.
type Sent struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Decode unmarshals the captured payload into v.
func (s Sent) Decode(v any) error {
	return json.Unmarshal(s.Data, v)
}

// RecordingChannel captures everything sent through it. Err, when set, is
// returned from Send instead of recording. Unavailable makes the channel
// report itself as unavailable.
type RecordingChannel struct {
	mu          sync.Mutex
	sent        []Sent
	Err         error
	Unavailable bool
}

// Send implements bridge.Channel.
func (c *RecordingChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	var s Sent
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	c.sent = append(c.sent, s)
	return nil
}

// Available implements bridge.Availability.
func (c *RecordingChannel) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.Unavailable
}

// Sent returns a copy of the captured messages.
func (c *RecordingChannel) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// OfType returns the captured messages with the given type.
func (c *RecordingChannel) OfType(typ string) []Sent {
	var out []Sent
	for _, s := range c.Sent() {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

// Reset discards captured messages.
func (c *RecordingChannel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
