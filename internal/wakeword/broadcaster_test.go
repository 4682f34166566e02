package wakeword

import (
	"errors"
	"testing"
	"time"
)

type memSettingsStore struct {
	cfg Config
	ok  bool
}

func (s *memSettingsStore) LoadWakeWordConfig() (Config, bool, error) {
	return s.cfg, s.ok, nil
}

func (s *memSettingsStore) SaveWakeWordConfig(cfg Config) error {
	s.cfg = cfg
	s.ok = true
	return nil
}

type recordingSink struct {
	updates  []Config
	failNext bool
}

func (s *recordingSink) SendConfigUpdate(cfg Config) error {
	if s.failNext {
		s.failNext = false
		return errors.New("send failed")
	}
	s.updates = append(s.updates, cfg)
	return nil
}

func defaultConfig() Config {
	return Config{Keywords: []string{"renfield"}, Threshold: 0.5, CooldownMs: 2000, Enabled: true, Version: 1}
}

func TestUpdateConfigVersionMonotonic(t *testing.T) {
	b, err := New(nil, defaultConfig(), []string{"renfield", "computer"}, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		before := b.GetConfig().Version
		th := 0.6
		cfg, err := b.UpdateConfig(PartialUpdate{Threshold: &th})
		if err != nil {
			t.Fatalf("UpdateConfig iteration %d: %v", i, err)
		}
		if cfg.Version != before+1 {
			t.Fatalf("iteration %d: expected version %d, got %d", i, before+1, cfg.Version)
		}
	}
}

func TestUpdateConfigRejectsDisallowedKeyword(t *testing.T) {
	b, _ := New(nil, defaultConfig(), []string{"renfield"}, 500*time.Millisecond)
	_, err := b.UpdateConfig(PartialUpdate{Keywords: []string{"intruder"}})
	if !errors.Is(err, ErrInvalidKeyword) {
		t.Fatalf("expected ErrInvalidKeyword, got %v", err)
	}
	if b.GetConfig().Version != 1 {
		t.Fatalf("rejected update must not bump version, got %d", b.GetConfig().Version)
	}
}

func TestUpdateConfigRejectsOutOfRangeThreshold(t *testing.T) {
	b, _ := New(nil, defaultConfig(), nil, 500*time.Millisecond)
	tooHigh := 1.5
	if _, err := b.UpdateConfig(PartialUpdate{Threshold: &tooHigh}); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected ErrInvalidThreshold, got %v", err)
	}
	tooLow := 0.05
	if _, err := b.UpdateConfig(PartialUpdate{Threshold: &tooLow}); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("expected ErrInvalidThreshold, got %v", err)
	}
}

func TestUpdateConfigRejectsSubFloorCooldown(t *testing.T) {
	b, _ := New(nil, defaultConfig(), nil, 1*time.Second)
	tooShort := int64(200)
	if _, err := b.UpdateConfig(PartialUpdate{CooldownMs: &tooShort}); !errors.Is(err, ErrInvalidCooldown) {
		t.Fatalf("expected ErrInvalidCooldown, got %v", err)
	}
}

func TestUpdateConfigPersists(t *testing.T) {
	store := &memSettingsStore{}
	b, err := New(store, defaultConfig(), nil, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	th := 0.8
	cfg, err := b.UpdateConfig(PartialUpdate{Threshold: &th})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if store.cfg.Threshold != cfg.Threshold || store.cfg.Version != cfg.Version {
		t.Fatalf("store not updated to match returned config: store=%+v cfg=%+v", store.cfg, cfg)
	}

	b2, err := New(store, defaultConfig(), nil, 0)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if b2.GetConfig().Version != cfg.Version {
		t.Fatalf("reload did not pick up persisted config, got version %d want %d", b2.GetConfig().Version, cfg.Version)
	}
}

func TestHandleAckSyncedSemantics(t *testing.T) {
	b, _ := New(nil, defaultConfig(), nil, 0)
	cur := b.GetConfig().Version

	b.HandleAck("dev-1", true, []string{"renfield"}, nil, "")
	rec, ok := b.DeviceSync("dev-1")
	if !ok {
		t.Fatalf("expected sync record for dev-1")
	}
	if !rec.Synced(cur) {
		t.Fatalf("expected dev-1 synced at version %d, got %+v", cur, rec)
	}

	b.HandleAck("dev-2", false, nil, []string{"renfield"}, "mic error")
	rec2, _ := b.DeviceSync("dev-2")
	if rec2.Synced(cur) {
		t.Fatalf("expected dev-2 not synced on ack failure, got %+v", rec2)
	}

	th := 0.9
	if _, err := b.UpdateConfig(PartialUpdate{Threshold: &th}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	recStale, _ := b.DeviceSync("dev-1")
	if recStale.Synced(b.GetConfig().Version) {
		t.Fatalf("dev-1's ack from the old version must not read synced against the new version")
	}
}

// TestBroadcastDeadSubscriberRemoval exercises scenario S3: one of two
// subscribed devices fails its send and is dropped from the subscriber
// set, without blocking the broadcast to the other.
func TestBroadcastDeadSubscriberRemoval(t *testing.T) {
	b, _ := New(nil, defaultConfig(), nil, 0)

	good := &recordingSink{}
	bad := &recordingSink{failNext: true}

	b.Subscribe(good, "dev-good", "satellite")
	badID := b.Subscribe(bad, "dev-bad", "satellite")

	th := 0.7
	if _, err := b.UpdateConfig(PartialUpdate{Threshold: &th}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	if len(good.updates) != 1 {
		t.Fatalf("expected good subscriber to receive 1 update, got %d", len(good.updates))
	}
	if len(bad.updates) != 0 {
		t.Fatalf("expected bad subscriber to receive 0 updates (failed send), got %d", len(bad.updates))
	}

	b.mu.Lock()
	_, stillSubscribed := b.subs[badID]
	b.mu.Unlock()
	if stillSubscribed {
		t.Fatalf("expected failed subscriber to be removed from the subscriber set")
	}

	recBad, ok := b.DeviceSync("dev-bad")
	if !ok || recBad.Error == "" {
		t.Fatalf("expected dev-bad's sync row to carry the send error, got %+v", recBad)
	}

	summary := b.SyncSummary()
	if summary.ErroredCount != 1 {
		t.Fatalf("expected 1 errored device in summary, got %+v", summary)
	}
	if summary.SyncedCount != 0 {
		t.Fatalf("expected 0 synced devices before any ack, got %+v", summary)
	}

	// A second update must still succeed for the surviving subscriber.
	th2 := 0.75
	if _, err := b.UpdateConfig(PartialUpdate{Threshold: &th2}); err != nil {
		t.Fatalf("UpdateConfig (second): %v", err)
	}
	if len(good.updates) != 2 {
		t.Fatalf("expected good subscriber to receive 2 updates total, got %d", len(good.updates))
	}
}

func TestSyncSummaryCounts(t *testing.T) {
	b, _ := New(nil, defaultConfig(), nil, 0)
	b.Subscribe(&recordingSink{}, "dev-1", "satellite")
	b.Subscribe(&recordingSink{}, "dev-2", "satellite")
	b.Subscribe(&recordingSink{}, "dev-3", "satellite")

	cur := b.GetConfig().Version
	b.HandleAck("dev-1", true, nil, nil, "")
	b.HandleAck("dev-2", false, nil, nil, "timeout")

	summary := b.SyncSummary()
	if summary.SyncedCount != 1 {
		t.Fatalf("expected 1 synced, got %+v", summary)
	}
	if summary.ErroredCount != 1 {
		t.Fatalf("a failed ack carrying an error string counts as errored, got %+v", summary)
	}
	if summary.PendingCount != 1 {
		t.Fatalf("expected 1 pending (dev-3 never acked), got %+v", summary)
	}
	_ = cur
}
