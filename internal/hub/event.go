package hub

import (
	"encoding/json"
	"strconv"
)

// Event is a message that can be published to consumers.
type Event interface {
	json.Marshaler
	event()
}

// SampleEvent is one heart rate sample.
//
// Wire form: {"bpm": 72, "timestamp": 1700000000000, "rr_ms": [820.31]}.
// rr_ms is omitted when there are no intervals; values are rounded to two
// decimal places.
type SampleEvent struct {
	BPM         uint16
	TimestampMS int64
	RR          []float64
}

type sampleWire struct {
	BPM       uint16    `json:"bpm"`
	Timestamp int64     `json:"timestamp"`
	RRMS      []float64 `json:"rr_ms,omitempty"`
}

func (SampleEvent) event() {}

// MarshalJSON implements json.Marshaler.
func (e SampleEvent) MarshalJSON() ([]byte, error) {
	w := sampleWire{BPM: e.BPM, Timestamp: e.TimestampMS}
	if len(e.RR) > 0 {
		w.RRMS = make([]float64, len(e.RR))
		for i, v := range e.RR {
			w.RRMS[i] = round2(v)
		}
	}
	return json.Marshal(w)
}

// StatusEvent reports the peripheral connection state.
//
// Wire form: {"status": "connected", "device": "Polar H10"}. device is
// omitted when empty.
type StatusEvent struct {
	Status string
	Device string
}

type statusWire struct {
	Status string `json:"status"`
	Device string `json:"device,omitempty"`
}

func (StatusEvent) event() {}

// MarshalJSON implements json.Marshaler.
func (e StatusEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusWire{Status: e.Status, Device: e.Device})
}

// round2 rounds v to two decimal places using its exact decimal expansion,
// so 820.345 becomes 820.35.
func round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}
