package message

import (
	"testing"

	"github.com/vtelemetry/ingestcore/internal/ingesterr"
)

func TestParseValidMessage(t *testing.T) {
	raw := []byte(`{"service":"tracking","params":{"vin":"V1","timestamp":1700000000.0,"data":{"x":1,"y":2}}}`)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.Service != "tracking" {
		t.Errorf("expected service 'tracking', got %q", msg.Service)
	}
	if msg.VIN != "V1" {
		t.Errorf("expected vin 'V1', got %q", msg.VIN)
	}
	if msg.Timestamp != 1700000000.0 {
		t.Errorf("expected timestamp 1700000000.0, got %v", msg.Timestamp)
	}
	if !msg.Valid() {
		t.Error("expected message to be valid")
	}
	if msg.Priority() != Critical {
		t.Errorf("expected Critical priority, got %v", msg.Priority())
	}
}

func TestParseMissingService(t *testing.T) {
	raw := []byte(`{"params":{"data":{}}}`)

	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected InvalidMessage error")
	}
	if err.Code != ingesterr.CodeInvalidMessage {
		t.Errorf("expected CodeInvalidMessage, got %v", err.Code)
	}
}

func TestParseMissingParams(t *testing.T) {
	raw := []byte(`{"service":"tracking"}`)

	_, err := Parse(raw)
	if err == nil || err.Code != ingesterr.CodeInvalidMessage {
		t.Fatalf("expected InvalidMessage error, got %v", err)
	}
}

func TestParseMissingData(t *testing.T) {
	raw := []byte(`{"service":"tracking","params":{"vin":"V1"}}`)

	_, err := Parse(raw)
	if err == nil || err.Code != ingesterr.CodeInvalidMessage {
		t.Fatalf("expected InvalidMessage error, got %v", err)
	}
}

func TestParseMalformedJSON(t *testing.T) {
	raw := []byte(`{"service":`)

	_, err := Parse(raw)
	if err == nil || err.Code != ingesterr.CodeJSON {
		t.Fatalf("expected JsonError, got %v", err)
	}
}

func TestParseDefaultsVINAndTimestamp(t *testing.T) {
	raw := []byte(`{"service":"tracking","params":{"data":{}}}`)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if msg.VIN != "UNKNOWN" {
		t.Errorf("expected default vin 'UNKNOWN', got %q", msg.VIN)
	}
	if msg.Timestamp <= 0 {
		t.Errorf("expected positive default timestamp, got %v", msg.Timestamp)
	}
}

func TestClassifyServiceTotal(t *testing.T) {
	cases := map[string]Priority{
		"tracking":   Critical,
		"route":      Critical,
		"error_info": Critical,
		"traj":       Background,
		"moving_obj": Background,
		"device":     Background,
		"loc_stat":   Background,
		"vcc":        Normal,
		"uos_config": Normal,
		"anything_else": Normal,
	}
	for service, want := range cases {
		if got := ClassifyService(service); got != want {
			t.Errorf("ClassifyService(%q) = %v, want %v", service, got, want)
		}
	}
}

func TestFingerprintStableAcrossEquivalentEncodings(t *testing.T) {
	a := Message{
		Service:   "tracking",
		VIN:       "V1",
		Timestamp: 1700000000.4,
		Params:    map[string]any{"data": map[string]any{"x": 1.0, "y": 2.0}},
	}

	raw := []byte(`{"service":"tracking","params":{"vin":"V1","timestamp":1700000000.9,"data":{"y":2,"x":1}}}`)
	b, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("expected equal fingerprints for equivalent messages with reordered keys and differing fractional timestamps")
	}
}

func TestFingerprintDiffersOnDifferentData(t *testing.T) {
	a := Message{Service: "tracking", VIN: "V1", Timestamp: 1700000000, Params: map[string]any{"data": map[string]any{"x": 1.0}}}
	b := Message{Service: "tracking", VIN: "V1", Timestamp: 1700000000, Params: map[string]any{"data": map[string]any{"x": 2.0}}}

	if a.Fingerprint() == b.Fingerprint() {
		t.Error("expected different fingerprints for different data payloads")
	}
}

func TestValidRejectsMissingFields(t *testing.T) {
	cases := []Message{
		{Service: "", VIN: "V1", Timestamp: 1, Params: map[string]any{"data": 1}},
		{Service: "tracking", VIN: "", Timestamp: 1, Params: map[string]any{"data": 1}},
		{Service: "tracking", VIN: "V1", Timestamp: 0, Params: map[string]any{"data": 1}},
		{Service: "tracking", VIN: "V1", Timestamp: 1, Params: nil},
		{Service: "tracking", VIN: "V1", Timestamp: 1, Params: map[string]any{}},
	}
	for i, msg := range cases {
		if msg.Valid() {
			t.Errorf("case %d: expected invalid message", i)
		}
	}
}
