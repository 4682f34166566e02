package wakeword

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidKeyword   = errors.New("keyword not in the allowed set")
	ErrInvalidThreshold = errors.New("threshold must be within [0.1, 1.0]")
	ErrInvalidCooldown  = errors.New("cooldown must be positive")
)

type subscriberEntry struct {
	sink       Sink
	deviceID   string
	deviceType string
}

// Broadcaster is the singleton Wake-Word Config Broadcaster (C8). A
// single mutex guards the config, version counter, subscriber set, and
// device sync table, generalized from internal/tasks.Manager's
// subscribers map[string]map[int]chan Event + publishLocked non-blocking
// send-or-drop pattern, here keyed by an opaque subscription id rather
// than session id since one config fans out to every subscriber at once.
type Broadcaster struct {
	mu sync.Mutex

	cfg    Config
	store  SettingsStore
	logger *zap.Logger

	allowedKeywords map[string]bool
	cooldownFloor   time.Duration

	subs       map[int]subscriberEntry
	nextSubID  int
	deviceSync map[string]DeviceSyncRecord // device_id -> record
}

type Option func(*Broadcaster)

func WithLogger(l *zap.Logger) Option {
	return func(b *Broadcaster) { b.logger = l }
}

// New loads the config from the settings store (falling back to
// startupDefault) and constructs the broadcaster.
func New(store SettingsStore, startupDefault Config, allowedKeywords []string, cooldownFloor time.Duration, opts ...Option) (*Broadcaster, error) {
	b := &Broadcaster{
		store:           store,
		subs:            make(map[int]subscriberEntry),
		deviceSync:      make(map[string]DeviceSyncRecord),
		cooldownFloor:   cooldownFloor,
		allowedKeywords: make(map[string]bool, len(allowedKeywords)),
		logger:          zap.NewNop(),
	}
	for _, k := range allowedKeywords {
		b.allowedKeywords[k] = true
	}
	for _, opt := range opts {
		opt(b)
	}

	if store != nil {
		loaded, ok, err := store.LoadWakeWordConfig()
		if err != nil {
			return nil, fmt.Errorf("load wake-word config: %w", err)
		}
		if ok {
			b.cfg = loaded
			return b, nil
		}
	}
	b.cfg = startupDefault
	return b, nil
}

// GetConfig returns the current config.
func (b *Broadcaster) GetConfig() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// UpdateConfig validates and applies a partial update, persists it, bumps
// the version, and broadcasts to every subscriber. Broadcasts are
// serialized globally (the same mutex guarding the config) so version
// numbers stay monotonic, per spec.md §5.
func (b *Broadcaster) UpdateConfig(update PartialUpdate) (Config, error) {
	b.mu.Lock()

	next := b.cfg
	if update.Keywords != nil {
		if len(b.allowedKeywords) > 0 {
			for _, k := range update.Keywords {
				if !b.allowedKeywords[k] {
					b.mu.Unlock()
					return Config{}, fmt.Errorf("%w: %q", ErrInvalidKeyword, k)
				}
			}
		}
		next.Keywords = update.Keywords
	}
	if update.Threshold != nil {
		if *update.Threshold < 0.1 || *update.Threshold > 1.0 {
			b.mu.Unlock()
			return Config{}, ErrInvalidThreshold
		}
		next.Threshold = *update.Threshold
	}
	if update.CooldownMs != nil {
		d := time.Duration(*update.CooldownMs) * time.Millisecond
		if d <= 0 || d < b.cooldownFloor {
			b.mu.Unlock()
			return Config{}, ErrInvalidCooldown
		}
		next.CooldownMs = *update.CooldownMs
	}
	if update.Enabled != nil {
		next.Enabled = *update.Enabled
	}
	next.Version = b.cfg.Version + 1

	if b.store != nil {
		if err := b.store.SaveWakeWordConfig(next); err != nil {
			b.mu.Unlock()
			return Config{}, fmt.Errorf("persist wake-word config: %w", err)
		}
	}
	b.cfg = next

	// Every subscriber's sync status resets to pending on a new version.
	for id := range b.deviceSync {
		rec := b.deviceSync[id]
		rec.LastAckSuccess = false
		b.deviceSync[id] = rec
	}

	subsSnapshot := make([]subscriberEntry, 0, len(b.subs))
	subIDs := make([]int, 0, len(b.subs))
	for id, s := range b.subs {
		subsSnapshot = append(subsSnapshot, s)
		subIDs = append(subIDs, id)
	}
	cfg := b.cfg
	b.mu.Unlock()

	// Sends happen outside the lock; a failed send removes that
	// subscriber and marks its sync row errored, without aborting the
	// broadcast to the rest (spec.md §4.8).
	for i, s := range subsSnapshot {
		if err := s.sink.SendConfigUpdate(cfg); err != nil {
			b.logger.Warn("config broadcast send failed", zap.String("device_id", s.deviceID), zap.Error(err))
			b.removeSubscriber(subIDs[i], s.deviceID, err)
		}
	}

	return cfg, nil
}

// Subscribe registers ws as a config_update recipient. Subscribing with a
// non-empty deviceID creates a DeviceSyncStatus row initially pending.
// Returns an unsubscribe id to hand to Unsubscribe.
func (b *Broadcaster) Subscribe(sink Sink, deviceID, deviceType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.subs[id] = subscriberEntry{sink: sink, deviceID: deviceID, deviceType: deviceType}
	if deviceID != "" {
		if _, exists := b.deviceSync[deviceID]; !exists {
			b.deviceSync[deviceID] = DeviceSyncRecord{DeviceID: deviceID}
		}
	}
	return id
}

func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *Broadcaster) removeSubscriber(id int, deviceID string, sendErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	if deviceID != "" {
		rec := b.deviceSync[deviceID]
		rec.DeviceID = deviceID
		rec.Error = sendErr.Error()
		b.deviceSync[deviceID] = rec
	}
}

// HandleAck updates a device's sync row from an inbound config_ack frame.
func (b *Broadcaster) HandleAck(deviceID string, success bool, activeKeywords, failedKeywords []string, errStr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deviceSync[deviceID] = DeviceSyncRecord{
		DeviceID:       deviceID,
		LastAckVersion: b.cfg.Version,
		LastAckSuccess: success,
		ActiveKeywords: activeKeywords,
		FailedKeywords: failedKeywords,
		LastAckAt:      time.Now().UTC(),
		Error:          errStr,
	}
}

// DeviceSync returns a copy of one device's sync row.
func (b *Broadcaster) DeviceSync(deviceID string) (DeviceSyncRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.deviceSync[deviceID]
	return rec, ok
}

// SyncSummary counts subscribed devices by synced/pending/errored,
// matching scenario S3's GetDeviceSyncStatus() expectation.
type SyncSummary struct {
	SyncedCount  int
	PendingCount int
	ErroredCount int
}

func (b *Broadcaster) SyncSummary() SyncSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	var s SyncSummary
	for _, rec := range b.deviceSync {
		switch {
		case rec.Error != "":
			s.ErroredCount++
		case rec.Synced(b.cfg.Version):
			s.SyncedCount++
		default:
			s.PendingCount++
		}
	}
	return s
}
