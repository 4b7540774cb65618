// Package message defines the ingest pipeline's logical message record: its
// wire parsing, its validity predicate, its dedup fingerprint, and the
// service-to-priority classification.
package message

import (
	"encoding/json"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vtelemetry/ingestcore/internal/ingesterr"
)

// Message is a parsed vehicle telemetry record.
type Message struct {
	Service   string
	VIN       string
	Timestamp float64
	Params    map[string]any
	Channel   string
	RunScene  string
}

// wireMessage mirrors the raw JSON shape: a top-level service tag plus a
// params object carrying data and the optional recognized fields.
type wireMessage struct {
	Service  string         `json:"service"`
	Channel  string         `json:"channel"`
	RunScene string         `json:"run_scene"`
	Params   map[string]any `json:"params"`
}

// Parse decodes raw as a single JSON message and extracts the recognized
// fields, applying the documented defaults. It returns a JsonError for
// malformed JSON and an InvalidMessage error for a missing service or params
// object, matching steps 1-2 of the coordinator's submit sequence. It never
// evaluates the semantic validity predicate (see Valid) and never touches
// statistics or the dedup cache.
func Parse(raw []byte) (Message, *ingesterr.Error) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Message{}, ingesterr.JSON(err)
	}

	if wire.Service == "" {
		return Message{}, ingesterr.InvalidMessage("missing required field: service")
	}
	if wire.Params == nil {
		return Message{}, ingesterr.InvalidMessage("missing required field: params")
	}
	if _, ok := wire.Params["data"]; !ok {
		return Message{}, ingesterr.InvalidMessage("params missing required key: data")
	}

	vin := "UNKNOWN"
	if v, ok := wire.Params["vin"].(string); ok && v != "" {
		vin = v
	}

	timestamp := float64(time.Now().UnixNano()) / 1e9
	if ts, ok := wire.Params["timestamp"].(float64); ok {
		timestamp = ts
	}

	runScene := wire.RunScene
	if runScene == "" {
		if rs, ok := wire.Params["run_scene"].(string); ok {
			runScene = rs
		}
	}

	channel := wire.Channel
	if channel == "" {
		channel = wire.Service
	}

	return Message{
		Service:   wire.Service,
		VIN:       vin,
		Timestamp: timestamp,
		Params:    wire.Params,
		Channel:   channel,
		RunScene:  runScene,
	}, nil
}

// Valid reports whether m satisfies the semantic validity predicate: a
// non-empty service, a non-empty VIN, a strictly positive timestamp, and a
// params map containing "data".
func (m Message) Valid() bool {
	if m.Service == "" || m.VIN == "" {
		return false
	}
	if m.Timestamp <= 0 {
		return false
	}
	if m.Params == nil {
		return false
	}
	if _, ok := m.Params["data"]; !ok {
		return false
	}
	return true
}

// Priority classifies m by its service name.
func (m Message) Priority() Priority {
	return ClassifyService(m.Service)
}

// Fingerprint derives a 64-bit content hash from (service, vin,
// floor(timestamp), canonical-form of params["data"]). The fractional part
// of the timestamp is intentionally discarded so that a burst of the "same
// sample" at microsecond spacing collides. The data payload is re-marshaled
// through encoding/json, which sorts object keys at every nesting level,
// before hashing — two JSON encodings of the same logical value therefore
// always produce the same fingerprint, unlike a non-canonical debug-format
// stringification would.
func (m Message) Fingerprint() uint64 {
	h := xxhash.New()
	h.WriteString(m.Service)
	h.Write([]byte{0})
	h.WriteString(m.VIN)
	h.Write([]byte{0})

	floorTs := math.Floor(m.Timestamp)
	var tsBuf [8]byte
	bits := math.Float64bits(floorTs)
	for i := range tsBuf {
		tsBuf[i] = byte(bits >> (8 * i))
	}
	h.Write(tsBuf[:])

	canonical, err := json.Marshal(m.Params["data"])
	if err != nil {
		// Unmarshaled JSON values are always re-marshalable; this is
		// unreachable in practice, but fall back to a stable sentinel
		// rather than panic.
		canonical = []byte("null")
	}
	h.Write(canonical)

	return h.Sum64()
}
