package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/renfield-project/renfield/internal/room"
	"github.com/renfield-project/renfield/internal/session"
)

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrSessionExists   = errors.New("device already has an active session")
	ErrNoSession       = errors.New("no_session")
	ErrWrongState      = errors.New("wrong_state")
	ErrEmptyRoomPolicy = errors.New("room could not be resolved")
)

// StateSink receives state/session_end frames the registry emits as a
// side effect of mutating a session, so the websocket layer can forward
// them to the device without the registry importing it.
type StateSink interface {
	SendState(deviceID string, state session.State)
	SendSessionEnd(deviceID, sessionID, reason string)
}

type noopSink struct{}

func (noopSink) SendState(string, session.State)       {}
func (noopSink) SendSessionEnd(string, string, string) {}

type sessionEntry struct {
	Session
	machine *session.Machine
	audio   *audioBuffer
}

// Registry is the Device Registry (C1): an authoritative in-memory table
// of devices, sessions, and buffered audio, serialized per device_id
// behind a single mutex — matching the teacher's session manager's
// single-lock-per-table discipline; mutation volume per device is low
// enough that finer-grained locking buys nothing observable.
type Registry struct {
	mu               sync.RWMutex
	devices          map[string]*Device
	sessions         map[string]*sessionEntry
	activeByDevice   map[string]string // device_id -> session_id
	rooms            *room.Service
	sink             StateSink
	maxAudioBytes    int
	persister        DevicePersister
	logger           *zap.Logger
}

// DevicePersister durably records a device's last-known registration,
// mirroring room.Persister's fire-and-forget shape: a slow or failing
// store must never block a device's register/heartbeat path.
type DevicePersister interface {
	Save(ctx context.Context, deviceID, deviceType, deviceName, roomID string, isStationary bool, caps Capabilities, ipAddress string) error
}

// WithPersister wires a DevicePersister after construction; nil disables
// persistence (the default, matching room.Service.WithPersister).
func (r *Registry) WithPersister(p DevicePersister) *Registry {
	r.persister = p
	return r
}

// WithLogger replaces the default no-op logger.
func (r *Registry) WithLogger(l *zap.Logger) *Registry {
	if l != nil {
		r.logger = l
	}
	return r
}

func (r *Registry) persistAsync(deviceID string, deviceType DeviceType, deviceName, roomID string, isStationary bool, caps Capabilities, ipAddress string) {
	if r.persister == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.persister.Save(ctx, deviceID, string(deviceType), deviceName, roomID, isStationary, caps, ipAddress)
	}()
}

func New(rooms *room.Service, sink StateSink, maxAudioBytes int) *Registry {
	if sink == nil {
		sink = noopSink{}
	}
	if maxAudioBytes <= 0 {
		maxAudioBytes = 2 << 20
	}
	return &Registry{
		devices:        make(map[string]*Device),
		sessions:       make(map[string]*sessionEntry),
		activeByDevice: make(map[string]string),
		rooms:          rooms,
		sink:           sink,
		maxAudioBytes:  maxAudioBytes,
		logger:         zap.NewNop(),
	}
}

// SetSink rewires the sink after construction, for the common case
// where the websocket layer that implements StateSink itself needs a
// reference to this Registry to be built first.
func (r *Registry) SetSink(sink StateSink) {
	if sink == nil {
		sink = noopSink{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Register creates or updates a device row, resolving (and optionally
// auto-creating) its room. Re-registering the same device_id replaces
// the prior connection handle; the old one is closed asynchronously.
func (r *Registry) Register(deviceID string, deviceType DeviceType, roomName string, override Capabilities, deviceName string, isStationary bool, ipAddress string, handle ConnHandle) (roomID string, err error) {
	if deviceID == "" {
		return "", errors.New("device_id is required")
	}

	res, err := r.rooms.EnsureRoom(roomName, room.SourceAutoReg)
	if err != nil {
		return "", ErrEmptyRoomPolicy
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	caps := mergeCapabilities(defaultCapabilities(deviceType), override)
	now := time.Now().UTC()

	existing, ok := r.devices[deviceID]
	if !ok {
		r.devices[deviceID] = &Device{
			DeviceID:      deviceID,
			DeviceType:    deviceType,
			DeviceName:    deviceName,
			RoomID:        res.ID,
			Capabilities:  caps,
			IsStationary:  isStationary,
			IsOnline:      true,
			LastConnected: now,
			IPAddress:     ipAddress,
			handle:        handle,
		}
		r.persistAsync(deviceID, deviceType, deviceName, res.ID, isStationary, caps, ipAddress)
		return res.ID, nil
	}

	if existing.handle != nil && existing.handle != handle {
		old := existing.handle
		go func() { _ = old.Close() }()
	}
	if existing.IsStationary && existing.IPAddress != "" && existing.IPAddress != ipAddress {
		// Non-stationary devices (phones, laptops) change address
		// constantly and silently; a stationary one moving is notable.
		r.logger.Warn("stationary device changed address",
			zap.String("device_id", deviceID),
			zap.String("old_ip", existing.IPAddress),
			zap.String("new_ip", ipAddress))
	}
	existing.DeviceType = deviceType
	existing.DeviceName = deviceName
	existing.RoomID = res.ID
	existing.Capabilities = caps
	existing.IsStationary = isStationary
	existing.IsOnline = true
	existing.LastConnected = now
	existing.IPAddress = ipAddress
	existing.handle = handle
	r.persistAsync(deviceID, deviceType, deviceName, res.ID, isStationary, caps, ipAddress)
	return res.ID, nil
}

// StartSession allocates a new session in LISTENING, failing if the
// device is unknown or already has one active.
func (r *Registry) StartSession(deviceID, clientSessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return "", ErrDeviceNotFound
	}
	if _, active := r.activeByDevice[deviceID]; active {
		return "", ErrSessionExists
	}

	sessionID := clientSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	entry := &sessionEntry{
		Session: Session{
			SessionID:      sessionID,
			DeviceID:       deviceID,
			RoomID:         dev.RoomID,
			CreatedAt:      time.Now().UTC(),
			StateEnteredAt: time.Now().UTC(),
		},
		machine: session.NewMachine(),
		audio:   newAudioBuffer(r.maxAudioBytes),
	}
	r.sessions[sessionID] = entry
	r.activeByDevice[deviceID] = sessionID
	return sessionID, nil
}

// BufferAudio appends a chunk to a LISTENING session's buffer.
func (r *Registry) BufferAudio(sessionID string, chunk []byte, sequence uint64) error {
	r.mu.RLock()
	entry, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if entry.machine.Current() != session.StateListening {
		return ErrWrongState
	}
	if err := entry.audio.Append(sequence, chunk); err != nil {
		return err
	}
	if uint64(sequence) > entry.MaxSeq {
		r.mu.Lock()
		entry.MaxSeq = sequence
		r.mu.Unlock()
	}
	return nil
}

// GetAudio returns the session's buffered audio concatenated in
// sequence order.
func (r *Registry) GetAudio(sessionID string) ([]byte, error) {
	r.mu.RLock()
	entry, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}
	data, gap := entry.audio.Bytes()
	if gap {
		r.mu.Lock()
		entry.Warning = "audio sequence gap"
		r.mu.Unlock()
	}
	return data, nil
}

// SetSessionState fires the named FSM event on the session's machine,
// rejecting transitions the FSM does not allow, and notifies the owning device
// if it exposes a display or wakeword LED.
func (r *Registry) SetSessionState(ctx context.Context, sessionID string, event string) (session.State, error) {
	r.mu.RLock()
	entry, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return 0, ErrNoSession
	}

	newState, err := entry.machine.Fire(ctx, event)
	if err != nil {
		return entry.machine.Current(), err
	}
	r.mu.Lock()
	entry.StateEnteredAt = time.Now().UTC()
	r.mu.Unlock()

	r.mu.RLock()
	dev := r.devices[entry.DeviceID]
	r.mu.RUnlock()
	if dev != nil && (dev.Capabilities.HasDisplay || dev.Capabilities.HasWakeword) {
		r.sink.SendState(entry.DeviceID, newState)
	}
	return newState, nil
}

// EndSession transitions a session to ENDED, frees its buffer, and
// drops it from the indexes. Idempotent: ending an already-ended or
// unknown session is a no-op.
func (r *Registry) EndSession(ctx context.Context, sessionID, reason string) {
	r.mu.Lock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if entry.machine.CanFire(session.EventCancel) {
		_, _ = entry.machine.Fire(ctx, session.EventCancel)
	}
	delete(r.sessions, sessionID)
	if r.activeByDevice[entry.DeviceID] == sessionID {
		delete(r.activeByDevice, entry.DeviceID)
	}
	deviceID := entry.DeviceID
	r.mu.Unlock()

	r.sink.SendSessionEnd(deviceID, sessionID, reason)
}

// Unregister ends any active session for the device, marks it offline,
// and drops its connection handle.
func (r *Registry) Unregister(ctx context.Context, deviceID string) {
	r.mu.Lock()
	activeID, hasActive := r.activeByDevice[deviceID]
	dev, ok := r.devices[deviceID]
	if ok {
		dev.IsOnline = false
		dev.handle = nil
	}
	r.mu.Unlock()

	if hasActive {
		r.EndSession(ctx, activeID, "device_disconnected")
	}
}

// GetDevice returns a copy of the device row.
func (r *Registry) GetDevice(deviceID string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	clone := *dev
	clone.handle = nil
	return clone, true
}

// IsDeviceOnline reports whether deviceID is a known, connected device.
// Used by internal/output.Router to check Renfield-attached playback
// targets; an unknown device is treated as offline rather than erroring.
func (r *Registry) IsDeviceOnline(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devices[deviceID]
	return ok && dev.IsOnline
}

// GetSession returns a copy of the session row plus its current state.
func (r *Registry) GetSession(sessionID string) (Session, session.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, 0, false
	}
	return entry.Session, entry.machine.Current(), true
}

// SetTranscript records the assembled transcript exactly once.
func (r *Registry) SetTranscript(sessionID, transcript string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return ErrNoSession
	}
	entry.Transcript = transcript
	return nil
}

// ActiveSession returns the session id currently active for a device, if any.
func (r *Registry) ActiveSession(deviceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.activeByDevice[deviceID]
	return id, ok
}

// StartJanitor periodically ends sessions that have overstayed their
// per-state timeout, mirroring the teacher's inactivity-sweep goroutine
// generalized to two timeouts (listening, processing) instead of one.
func (r *Registry) StartJanitor(ctx context.Context, interval, listeningTimeout, processingTimeout time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweepExpired(ctx, listeningTimeout, processingTimeout)
			}
		}
	}()
}

func (r *Registry) sweepExpired(ctx context.Context, listeningTimeout, processingTimeout time.Duration) {
	now := time.Now().UTC()

	r.mu.RLock()
	var expired []string
	for id, entry := range r.sessions {
		var timeout time.Duration
		switch entry.machine.Current() {
		case session.StateListening:
			timeout = listeningTimeout
		case session.StateProcessing:
			timeout = processingTimeout
		default:
			continue
		}
		if timeout > 0 && now.Sub(entry.StateEnteredAt) >= timeout {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		r.EndSession(ctx, id, "timeout")
	}
}
