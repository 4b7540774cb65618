package ingest

import (
	"fmt"
	"testing"
	"time"

	"github.com/vtelemetry/ingestcore/internal/dedupcache"
	"github.com/vtelemetry/ingestcore/internal/ingesterr"
	"github.com/vtelemetry/ingestcore/internal/message"
	"github.com/vtelemetry/ingestcore/internal/sampling"
	"github.com/vtelemetry/ingestcore/internal/stats"
)

func newTestCoordinator(criticalCap, normalCap, backgroundCap int) (*Coordinator, chan message.Message, chan message.Message, chan message.Message, *stats.Statistics) {
	cache := dedupcache.New(1 * time.Second)
	samplingCfg := sampling.NewConfig()
	st := stats.New()

	c := New(cache, samplingCfg, st, nil, nil, nil, 1*time.Millisecond)

	critical := make(chan message.Message, criticalCap)
	normal := make(chan message.Message, normalCap)
	background := make(chan message.Message, backgroundCap)
	c.BindChannels(critical, normal, background)

	return c, critical, normal, background, st
}

func trackingPayload(vin string) []byte {
	return []byte(fmt.Sprintf(`{"service":"tracking","params":{"vin":%q,"timestamp":1700000000.0,"data":{"x":1,"y":2}}}`, vin))
}

func TestSubmitValidTrackingMessage(t *testing.T) {
	c, critical, _, _, st := newTestCoordinator(200, 500, 100)

	if err := c.Submit(trackingPayload("V1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case msg := <-critical:
		if msg.Service != "tracking" {
			t.Errorf("expected service tracking, got %q", msg.Service)
		}
	default:
		t.Fatal("expected message enqueued on critical channel")
	}

	snap := st.Snapshot()
	if snap.MessagesReceived != 1 || snap.MessagesDropped != 0 {
		t.Errorf("expected received=1 dropped=0, got %+v", snap)
	}
}

func TestSubmitImmediateDuplicate(t *testing.T) {
	c, critical, _, _, st := newTestCoordinator(200, 500, 100)

	payload := trackingPayload("V1")
	if err := c.Submit(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Submit(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := st.Snapshot()
	if snap.MessagesReceived != 1 {
		t.Errorf("expected received=1, got %d", snap.MessagesReceived)
	}
	if snap.MessagesDropped != 1 || snap.DroppedByReason[stats.ReasonDuplicate] != 1 {
		t.Errorf("expected 1 duplicate drop, got %+v", snap)
	}
	if len(critical) != 1 {
		t.Errorf("expected handler to see exactly 1 message queued, got %d", len(critical))
	}
}

func TestSubmitSamplingDrop(t *testing.T) {
	c, _, _, background, st := newTestCoordinator(200, 500, 100)
	_ = background

	samplingCfg := sampling.NewConfig()
	samplingCfg.SetRate("traj", 0.0)
	c.sampling = samplingCfg

	for i := 0; i < 100; i++ {
		payload := []byte(fmt.Sprintf(`{"service":"traj","params":{"vin":"V%d","timestamp":1700000000.0,"data":{"i":%d}}}`, i, i))
		if err := c.Submit(payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snap := st.Snapshot()
	if snap.MessagesReceived != 0 {
		t.Errorf("expected received=0, got %d", snap.MessagesReceived)
	}
	if snap.MessagesDropped != 100 || snap.DroppedByReason[stats.ReasonSampling] != 100 {
		t.Errorf("expected 100 sampling drops, got %+v", snap)
	}
}

func TestSubmitPriorityIndependence(t *testing.T) {
	c, critical, _, background, st := newTestCoordinator(200, 500, 100)
	c.sampling.SetRate("traj", 1.0)

	for i := 0; i < 100; i++ {
		payload := []byte(fmt.Sprintf(`{"service":"traj","params":{"vin":"V%d","timestamp":1700000000.0,"data":{"i":%d}}}`, i, i))
		if err := c.Submit(payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(background) != 100 {
		t.Fatalf("expected background channel full at 100, got %d", len(background))
	}

	if err := c.Submit(trackingPayload("V-critical")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(critical) != 1 {
		t.Fatalf("expected tracking message accepted despite full background queue, got %d", len(critical))
	}

	snap := st.Snapshot()
	if snap.MessagesReceived != 101 {
		t.Errorf("expected received=101, got %d", snap.MessagesReceived)
	}
}

func TestSubmitQueueFullDrop(t *testing.T) {
	c, critical, _, _, st := newTestCoordinator(200, 500, 100)

	for i := 0; i < 250; i++ {
		payload := []byte(fmt.Sprintf(`{"service":"tracking","params":{"vin":"V%d","timestamp":1700000000.0,"data":{"i":%d}}}`, i, i))
		if err := c.Submit(payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snap := st.Snapshot()
	if snap.MessagesReceived != 200 {
		t.Errorf("expected received=200, got %d", snap.MessagesReceived)
	}
	if snap.MessagesDropped != 50 || snap.DroppedByReason[stats.ReasonQueueFull] != 50 {
		t.Errorf("expected 50 queue-full drops, got %+v", snap)
	}
	if len(critical) != 200 {
		t.Errorf("expected 200 messages queued, got %d", len(critical))
	}
}

func TestSubmitInvalidShapeReturnsError(t *testing.T) {
	c, _, _, _, st := newTestCoordinator(200, 500, 100)

	err := c.Submit([]byte(`{"params":{"data":{}}}`))
	if err == nil || err.Code != ingesterr.CodeInvalidMessage {
		t.Fatalf("expected InvalidMessage error, got %v", err)
	}

	snap := st.Snapshot()
	if snap.MessagesReceived != 0 || snap.MessagesDropped != 0 {
		t.Errorf("expected no counters to move on shape error, got %+v", snap)
	}
}

func TestSubmitDedupExpiry(t *testing.T) {
	c, critical, _, _, st := newTestCoordinator(200, 500, 100)
	c.cache = dedupcache.New(10 * time.Millisecond)

	payload := trackingPayload("V1")
	if err := c.Submit(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := c.Submit(payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := st.Snapshot()
	if snap.MessagesReceived != 2 || snap.MessagesDropped != 0 {
		t.Errorf("expected received=2 dropped=0 after dedup window expiry, got %+v", snap)
	}
	if len(critical) != 2 {
		t.Errorf("expected 2 messages queued, got %d", len(critical))
	}
}

func TestSubmitUnboundCoordinatorReturnsConfigError(t *testing.T) {
	cache := dedupcache.New(1 * time.Second)
	c := New(cache, sampling.NewConfig(), stats.New(), nil, nil, nil, 1*time.Millisecond)

	err := c.Submit(trackingPayload("V1"))
	if err == nil || err.Code != ingesterr.CodeConfig {
		t.Fatalf("expected ConfigError for unbound coordinator, got %v", err)
	}
}
