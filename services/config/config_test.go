package config

import (
	"context"
	"testing"
	"time"

	"capsense-go/bus"
)

func TestPublishEmbeddedRetainedPerKey(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "capsense" {
			return nil, false
		}
		return []byte(`{
			"sampler": {"period_ms": 50, "cal_samples": 8},
			"debug": true,
			"mode": "dev"
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "capsense")
	svc.Start(ctx, conn)

	// Retained messages should arrive even to a late subscriber.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))

	wantCount := 3
	got := map[string]any{}
	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if len(m.Topic) < 2 || m.Topic[0] != configPrefix {
				t.Fatalf("unexpected topic: %v", m.Topic)
			}
			got[m.Topic[1]] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d (%v)", wantCount, len(got), got)
	}

	if s, ok := got["mode"].(string); !ok || s != "dev" {
		t.Fatalf("mode payload = %#v, want \"dev\"", got["mode"])
	}
	if v, ok := got["debug"].(bool); !ok || !v {
		t.Fatalf("debug payload = %#v, want true", got["debug"])
	}
	m, ok := got["sampler"].(map[string]any)
	if !ok {
		t.Fatalf("sampler payload type = %T, want map[string]any", got["sampler"])
	}
	if p, ok := m["period_ms"].(float64); !ok || p != 50 {
		t.Fatalf("sampler.period_ms = %#v, want 50", m["period_ms"])
	}
}

func TestPublishConfigMissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	if err := NewService().publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestPublishConfigNoConfigFound(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if err := NewService().publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}
