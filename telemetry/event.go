// Package telemetry defines the JSON frame pushed to subscribers.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/Siddamnn/SpeakMind/processor/band"
)

// Event is one smoothed sample. Field order is fixed on the wire:
// alpha, beta, theta, delta, gamma, timestamp.
type Event struct {
	Alpha     float64 `json:"alpha"`
	Beta      float64 `json:"beta"`
	Theta     float64 `json:"theta"`
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Timestamp int64   `json:"timestamp"` // milliseconds since epoch
}

// FromState builds an Event from a band snapshot taken at the given time.
func FromState(s band.State, at time.Time) Event {
	return Event{
		Alpha:     s.Alpha,
		Beta:      s.Beta,
		Theta:     s.Theta,
		Delta:     s.Delta,
		Gamma:     s.Gamma,
		Timestamp: at.UnixMilli(),
	}
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Marshal encodes the event as a single text frame.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a frame produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
